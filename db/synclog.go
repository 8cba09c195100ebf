package db

import (
	"context"
	"fmt"

	"github.com/squaremeter/economirror/ledger"
)

// InsertSyncOutcome appends one consolidated outcome row to sync_logs,
// satisfying the ledger.Sink interface.
func (s *Store) InsertSyncOutcome(ctx context.Context, rec ledger.Record) error {
	var errMsg any
	if rec.ErrorDigest != "" {
		errMsg = rec.ErrorDigest
	}
	durationMs := rec.CompletedAt.Sub(rec.StartedAt).Milliseconds()
	_, err := s.Exec(ctx, syncLogInsertSQL,
		rec.Entity, rec.Operation, rec.RecordCount, string(rec.Status), errMsg,
		rec.StartedAt, rec.CompletedAt, durationMs)
	if err != nil {
		return fmt.Errorf("failed to insert sync log for %s: %w", rec.Entity, err)
	}
	return nil
}
