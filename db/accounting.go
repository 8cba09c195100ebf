package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/squaremeter/economirror/apiclients/economic"
)

// nullDate converts a zero time to NULL for DATE columns.
func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format("2006-01-02")
}

// UpsertAccountingYear inserts or updates one accounting year for a tenant.
func (s *Store) UpsertAccountingYear(ctx context.Context, tenant string, y economic.AccountingYear) error {
	_, err := s.Exec(ctx, yearUpsertSQL,
		y.YearID, tenant, nullDate(y.FromDate), nullDate(y.ToDate), y.Closed)
	if err != nil {
		return fmt.Errorf("failed to upsert accounting year %s: %w", y.YearID, err)
	}
	return nil
}

// UpsertAccountingPeriod inserts or updates one period for a tenant's year.
// The period number is expected to already be normalized; a period row must
// exist before any entry or total referencing it is written.
func (s *Store) UpsertAccountingPeriod(ctx context.Context, tenant, yearID string, p economic.AccountingPeriod) error {
	_, err := s.Exec(ctx, periodUpsertSQL,
		p.PeriodNumber, yearID, tenant, nullDate(p.FromDate), nullDate(p.ToDate), p.Barred)
	if err != nil {
		return fmt.Errorf("failed to upsert period %d of year %s: %w", p.PeriodNumber, yearID, err)
	}
	return nil
}

// UpsertAccountingEntries upserts a batch of entries for one period inside a
// single retryable transaction. Callers bound the batch size.
func (s *Store) UpsertAccountingEntries(ctx context.Context, tenant, yearID string, period int, entries []economic.AccountingEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.Transaction(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, entryUpsertSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare entry upsert statement: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			var voucher any
			if e.VoucherNumber != 0 {
				voucher = e.VoucherNumber
			}
			_, err := stmt.ExecContext(ctx,
				e.EntryNumber, yearID, tenant, period, e.AccountNumber,
				e.Amount, e.AmountBase, e.Currency, nullDate(e.Date),
				e.Text, e.EntryType, voucher)
			if err != nil {
				return fmt.Errorf("failed to upsert entry %d: %w", e.EntryNumber, err)
			}
		}
		return nil
	})
}

// UpsertAccountingTotals overwrites a batch of derived totals for one period
// inside a single retryable transaction.
func (s *Store) UpsertAccountingTotals(ctx context.Context, tenant, yearID string, period int, totals []economic.AccountingTotal) error {
	if len(totals) == 0 {
		return nil
	}
	return s.Transaction(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, totalUpsertSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare total upsert statement: %w", err)
		}
		defer stmt.Close()

		for _, t := range totals {
			_, err := stmt.ExecContext(ctx, t.AccountNumber, yearID, period, tenant, t.TotalBase)
			if err != nil {
				return fmt.Errorf("failed to upsert total for account %d: %w", t.AccountNumber, err)
			}
		}
		return nil
	})
}

// UpsertVoucherAvailability records whether a voucher's supporting PDF
// exists, with the time the side API was consulted.
func (s *Store) UpsertVoucherAvailability(ctx context.Context, tenant string, voucher int, available bool) error {
	_, err := s.Exec(ctx, voucherAvailabilityUpsertSQL, voucher, tenant, available, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert voucher availability for %d: %w", voucher, err)
	}
	return nil
}
