package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestChunk(t *testing.T) {
	tests := []struct {
		name  string
		items []int
		size  int
		want  [][]int
	}{
		{"even split", []int{1, 2, 3, 4}, 2, [][]int{{1, 2}, {3, 4}}},
		{"ragged tail", []int{1, 2, 3, 4, 5}, 2, [][]int{{1, 2}, {3, 4}, {5}}},
		{"oversized chunk", []int{1, 2}, 10, [][]int{{1, 2}}},
		{"single element chunks", []int{1, 2, 3}, 1, [][]int{{1}, {2}, {3}}},
		{"empty input", nil, 3, nil},
		{"zero size", []int{1, 2}, 0, nil},
	}
	for _, tc := range tests {
		got := Chunk(tc.items, tc.size)
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("%s: Chunk mismatch (-want +got):\n%s", tc.name, diff)
		}
	}
}

func TestForEachLimitBoundsConcurrency(t *testing.T) {
	items := make([]int, 50)
	for i := range items {
		items[i] = i
	}

	var inFlight, peak atomic.Int64
	err := ForEachLimit(context.Background(), items, 5, func(ctx context.Context, _ int) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peak.Load() > 5 {
		t.Errorf("concurrency peak %d exceeds limit 5", peak.Load())
	}
}

func TestForEachLimitContinuesPastFailures(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	var mu sync.Mutex
	seen := make(map[int]bool)
	err := ForEachLimit(context.Background(), items, 2, func(ctx context.Context, n int) error {
		mu.Lock()
		seen[n] = true
		mu.Unlock()
		if n%2 == 0 {
			return fmt.Errorf("item %d failed", n)
		}
		return nil
	})
	if err == nil {
		t.Fatal("expected joined errors")
	}
	if len(seen) != len(items) {
		t.Errorf("processed %d items, want all %d despite failures", len(seen), len(items))
	}
	for _, want := range []string{"item 2 failed", "item 4 failed"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

func TestForEachLimitCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int64
	err := ForEachLimit(ctx, []int{1, 2, 3}, 2, func(ctx context.Context, _ int) error {
		ran.Add(1)
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ran.Load() != 0 {
		t.Errorf("no items should start after cancellation, got %d", ran.Load())
	}
}
