// Package batch provides the chunking and bounded-concurrency primitives
// shared by the entity syncers, so concurrency limits are declared once
// rather than hand-rolled per call site.
package batch

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Chunk splits items into consecutive slices of at most size elements. The
// returned slices share the backing array of items.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// ForEachLimit runs fn for every item with at most limit concurrent
// invocations. Individual failures do not cancel the remaining items; all
// errors are joined and returned once every item has been processed. Only a
// cancelled context stops the run early.
func ForEachLimit[T any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, item T) error) error {
	if limit <= 0 {
		limit = 1
	}
	g := new(errgroup.Group)
	g.SetLimit(limit)

	var mu sync.Mutex
	var errs []error
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		item := item
		g.Go(func() error {
			if err := fn(ctx, item); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
