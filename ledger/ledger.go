// Package ledger accumulates per-(entity, tenant) sync outcomes and flushes
// consolidated summary rows instead of one record per operation.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Status is the consolidated outcome of one sync pass for one key.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusError   Status = "error"
)

// maxErrorDigest caps the stored error message so a large failing pass does
// not bloat the outcome table.
const maxErrorDigest = 2000

// defaultQuietPeriod is the debounce window: a flush fires automatically
// once no Record call has arrived for this long.
const defaultQuietPeriod = 30 * time.Second

// Record is one consolidated sync outcome, written as a single row per
// (entity, tenant) key on flush.
type Record struct {
	Entity      string
	Operation   string
	RecordCount int
	Status      Status
	ErrorDigest string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Sink persists flushed records. Implemented by the mirror store's
// sync_logs writer.
type Sink interface {
	InsertSyncOutcome(ctx context.Context, rec Record) error
}

// bucket accumulates the outcomes recorded for one key.
type bucket struct {
	count     int
	successes int
	failures  int
	errs      []string
	startedAt time.Time
}

type key struct {
	entity string
	tenant string
}

// Ledger is an injectable outcome accumulator. Construct one per process
// (or per test), Record into it, and Flush either explicitly at the end of
// an orchestrator run or implicitly after the quiet period. Close flushes
// the tail batch on shutdown.
type Ledger struct {
	mu    sync.Mutex
	sink  Sink
	acc   map[key]*bucket
	quiet time.Duration
	timer *time.Timer
	log   *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithQuietPeriod overrides the debounce window for automatic flushes.
func WithQuietPeriod(d time.Duration) Option {
	return func(l *Ledger) { l.quiet = d }
}

// New creates a Ledger writing flushed outcomes to sink.
func New(sink Sink, logger *slog.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(
			os.Stdout,
			&slog.HandlerOptions{Level: slog.LevelInfo},
		))
	}
	l := &Ledger{
		sink:  sink,
		acc:   make(map[key]*bucket),
		quiet: defaultQuietPeriod,
		log:   logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record accumulates one outcome for (entity, tenant): the running total is
// incremented by count, a success or failure counter is bumped, and any
// error message appended. The debounce timer is reset on every call.
func (l *Ledger) Record(entity, tenant string, count int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{entity: entity, tenant: tenant}
	b, ok := l.acc[k]
	if !ok {
		b = &bucket{startedAt: time.Now().UTC()}
		l.acc[k] = b
	}
	b.count += count
	if err != nil {
		b.failures++
		b.errs = append(b.errs, err.Error())
	} else {
		b.successes++
	}

	if l.timer == nil {
		l.timer = time.AfterFunc(l.quiet, l.quietFlush)
	} else {
		l.timer.Reset(l.quiet)
	}
}

// quietFlush is the debounce callback.
func (l *Ledger) quietFlush() {
	if err := l.Flush(context.Background()); err != nil {
		l.log.Error(fmt.Sprintf("debounced ledger flush failed: %v", err))
	}
}

// Flush writes exactly one consolidated record per accumulated key and
// clears the accumulator. Status is success when no errors were recorded,
// error when every recording failed, and partial otherwise.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	pending := l.acc
	l.acc = make(map[key]*bucket)
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.mu.Unlock()

	var firstErr error
	now := time.Now().UTC()
	for k, b := range pending {
		rec := Record{
			Entity:      fmt.Sprintf("%s_%s", k.entity, k.tenant),
			Operation:   "sync",
			RecordCount: b.count,
			Status:      resolveStatus(b),
			ErrorDigest: digest(b.errs),
			StartedAt:   b.startedAt,
			CompletedAt: now,
		}
		if err := l.sink.InsertSyncOutcome(ctx, rec); err != nil {
			l.log.Error(fmt.Sprintf("failed to flush outcome for %s/%s: %v", k.entity, k.tenant, err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Close flushes any tail batch. Call on process shutdown so the last
// debounce window is not lost.
func (l *Ledger) Close(ctx context.Context) error {
	return l.Flush(ctx)
}

func resolveStatus(b *bucket) Status {
	switch {
	case b.failures == 0:
		return StatusSuccess
	case b.successes == 0:
		return StatusError
	default:
		return StatusPartial
	}
}

func digest(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	joined := strings.Join(errs, "; ")
	if len(joined) > maxErrorDigest {
		// Back up to a rune boundary so multibyte characters in error
		// text are never split.
		cut := maxErrorDigest
		for cut > 0 && !utf8.RuneStart(joined[cut]) {
			cut--
		}
		joined = joined[:cut] + "..."
	}
	return joined
}
