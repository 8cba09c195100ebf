package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/squaremeter/economirror/apiclients/economic"
	"github.com/squaremeter/economirror/internal/batch"
)

const (
	// listPageSize is requested from collection endpoints; the source may
	// clamp it.
	listPageSize = 1000

	// entryBatchSize bounds the rows written per transaction for entries
	// and totals, capping memory and lock duration.
	entryBatchSize = 100

	// voucherBatchSize bounds the document-existence checks issued before
	// pausing for voucherBatchPause.
	voucherBatchSize  = 50
	voucherBatchPause = 200 * time.Millisecond
)

// AccountingSyncer walks the Year → Period → {Entry, Total} hierarchy for
// one tenant, normalizing period numbers and guaranteeing that a period row
// exists before any entry or total referencing it is written.
type AccountingSyncer struct {
	store     AccountingStore
	enrichPDF bool
	log       *slog.Logger

	// pause is replaced in tests to avoid real inter-batch waits.
	pause func(ctx context.Context, d time.Duration)
}

// NewAccountingSyncer creates the hierarchy walker. With enrichPDF set,
// voucher-backed entries are checked against the document-availability side
// API after each year's walk.
func NewAccountingSyncer(store AccountingStore, enrichPDF bool, log *slog.Logger) *AccountingSyncer {
	return &AccountingSyncer{
		store:     store,
		enrichPDF: enrichPDF,
		log:       log,
		pause: func(ctx context.Context, d time.Duration) {
			select {
			case <-ctx.Done():
			case <-time.After(d):
			}
		},
	}
}

// Name implements EntitySyncer.
func (a *AccountingSyncer) Name() string { return "accounting" }

// Sync fetches the tenant's accounting years and walks each one. A failure
// in one year does not abort its siblings; all year-level failures are
// joined into the returned error.
func (a *AccountingSyncer) Sync(ctx context.Context, tenant Tenant, conn Connector) (int, error) {
	raws, err := conn.FetchAll(ctx, "/accounting-years", &economic.ListParams{PageSize: listPageSize})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch accounting years: %w", err)
	}
	years := decodeAll(a.log, "accounting year", raws, economic.DecodeAccountingYear)

	var total int
	var errs []error
	for _, year := range years {
		count, err := a.syncYear(ctx, tenant, conn, year)
		total += count
		if err != nil {
			a.log.Error(fmt.Sprintf("year %s for tenant %s failed: %v", year.YearID, tenant.Number, err))
			errs = append(errs, fmt.Errorf("year %s: %w", year.YearID, err))
		}
	}
	return total, errors.Join(errs...)
}

// syncYear walks one accounting year: the year row, a guaranteed period 0,
// the normalized calendar periods with their entries and totals, and
// finally the year-level totals under period 0.
func (a *AccountingSyncer) syncYear(ctx context.Context, tenant Tenant, conn Connector, year economic.AccountingYear) (int, error) {
	if err := a.store.UpsertAccountingYear(ctx, tenant.Number, year); err != nil {
		return 0, err
	}

	// Period 0 is the synthetic annual aggregate; it must exist before any
	// year-level totals are written under it.
	if err := a.store.UpsertAccountingPeriod(ctx, tenant.Number, year.YearID, economic.AccountingPeriod{
		PeriodNumber: 0,
		FromDate:     year.FromDate,
		ToDate:       year.ToDate,
	}); err != nil {
		return 0, fmt.Errorf("failed to ensure period 0: %w", err)
	}

	rawPeriods, err := conn.FetchAll(ctx, fmt.Sprintf("/accounting-years/%s/periods", year.YearID), &economic.ListParams{PageSize: listPageSize})
	if errors.Is(err, economic.ErrNotFound) {
		// Not yet available upstream; skipped, not an error.
		a.log.Info(fmt.Sprintf("periods for year %s not yet available, skipping", year.YearID))
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to fetch periods: %w", err)
	}

	var total int
	var errs []error
	vouchers := newVoucherSet()

	// Duplicate normalized periods within one year are skipped after the
	// first; period 0 is already present.
	seen := map[int]bool{0: true}
	for _, raw := range rawPeriods {
		period, err := economic.DecodeAccountingPeriod(raw)
		if err != nil {
			a.log.Warn(fmt.Sprintf("skipping malformed period record: %v", err))
			continue
		}
		rawNumber := period.PeriodNumber
		normalized := economic.NormalizePeriod(rawNumber)
		if seen[normalized] {
			continue
		}
		seen[normalized] = true

		count, err := a.syncPeriod(ctx, tenant, conn, year, period, rawNumber, normalized, vouchers)
		total += count
		if err != nil {
			a.log.Error(fmt.Sprintf("period %d (raw %d) of year %s failed: %v", normalized, rawNumber, year.YearID, err))
			errs = append(errs, fmt.Errorf("period %d: %w", normalized, err))
		}
	}

	// Year-level totals live under the synthetic period 0.
	count, err := a.syncTotals(ctx, tenant, year.YearID, 0,
		fmt.Sprintf("/accounting-years/%s/totals", year.YearID), conn)
	total += count
	if err != nil {
		errs = append(errs, fmt.Errorf("year totals: %w", err))
	}

	if a.enrichPDF {
		if err := a.enrichVouchers(ctx, tenant, conn, vouchers); err != nil {
			errs = append(errs, fmt.Errorf("voucher enrichment: %w", err))
		}
	}
	return total, errors.Join(errs...)
}

// syncPeriod ensures the period row exists (repairing missing dates from
// the year's range) and then writes the period's entries and totals in
// bounded batches, each in its own retryable transaction.
func (a *AccountingSyncer) syncPeriod(
	ctx context.Context,
	tenant Tenant,
	conn Connector,
	year economic.AccountingYear,
	period economic.AccountingPeriod,
	rawNumber, normalized int,
	vouchers *voucherSet,
) (int, error) {

	// Repair missing dates locally rather than failing the period.
	if period.FromDate.IsZero() {
		period.FromDate = year.FromDate
	}
	if period.ToDate.IsZero() {
		period.ToDate = year.ToDate
	}
	period.PeriodNumber = normalized
	if err := a.store.UpsertAccountingPeriod(ctx, tenant.Number, year.YearID, period); err != nil {
		return 0, fmt.Errorf("failed to upsert period: %w", err)
	}

	var total int
	var errs []error

	// Entries, keyed upstream by the raw period numbering.
	entriesPath := fmt.Sprintf("/accounting-years/%s/periods/%d/entries", year.YearID, rawNumber)
	rawEntries, err := conn.FetchAll(ctx, entriesPath, &economic.ListParams{PageSize: listPageSize})
	switch {
	case errors.Is(err, economic.ErrNotFound):
		a.log.Info(fmt.Sprintf("entries for period %d of year %s not yet available, skipping", rawNumber, year.YearID))
	case err != nil:
		errs = append(errs, fmt.Errorf("failed to fetch entries: %w", err))
	default:
		entries := decodeAll(a.log, "accounting entry", rawEntries, economic.DecodeAccountingEntry)
		for _, chunk := range batch.Chunk(entries, entryBatchSize) {
			if err := a.store.UpsertAccountingEntries(ctx, tenant.Number, year.YearID, normalized, chunk); err != nil {
				errs = append(errs, fmt.Errorf("failed to upsert entries: %w", err))
				break
			}
			total += len(chunk)
		}
		vouchers.collect(entries)
	}

	// Period totals.
	count, err := a.syncTotals(ctx, tenant, year.YearID, normalized,
		fmt.Sprintf("/accounting-years/%s/periods/%d/totals", year.YearID, rawNumber), conn)
	total += count
	if err != nil {
		errs = append(errs, err)
	}

	return total, errors.Join(errs...)
}

// syncTotals fetches and overwrites the derived totals at path under the
// given normalized period.
func (a *AccountingSyncer) syncTotals(ctx context.Context, tenant Tenant, yearID string, period int, path string, conn Connector) (int, error) {
	rawTotals, err := conn.FetchAll(ctx, path, &economic.ListParams{PageSize: listPageSize})
	if errors.Is(err, economic.ErrNotFound) {
		a.log.Info(fmt.Sprintf("totals at %s not yet available, skipping", path))
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to fetch totals: %w", err)
	}

	totals := decodeAll(a.log, "accounting total", rawTotals, economic.DecodeAccountingTotal)
	var total int
	for _, chunk := range batch.Chunk(totals, entryBatchSize) {
		if err := a.store.UpsertAccountingTotals(ctx, tenant.Number, yearID, period, chunk); err != nil {
			return total, fmt.Errorf("failed to upsert totals: %w", err)
		}
		total += len(chunk)
	}
	return total, nil
}

// voucherSet gathers the vouchers seen during a year's walk, split by
// whether a side-API existence check is needed.
type voucherSet struct {
	// invoiceBacked vouchers belong to customer invoice entries and are
	// always available without a side query.
	invoiceBacked map[int]bool
	// checkable vouchers belong to other voucher-backed entry types and
	// are consulted against the documents side API.
	checkable map[int]bool
}

func newVoucherSet() *voucherSet {
	return &voucherSet{
		invoiceBacked: make(map[int]bool),
		checkable:     make(map[int]bool),
	}
}

func (v *voucherSet) collect(entries []economic.AccountingEntry) {
	for _, e := range entries {
		if e.VoucherNumber == 0 {
			continue
		}
		if e.EntryType == economic.EntryTypeCustomerInvoice {
			v.invoiceBacked[e.VoucherNumber] = true
		} else {
			v.checkable[e.VoucherNumber] = true
		}
	}
}

// enrichVouchers upserts PDF availability for the collected vouchers.
// Customer-invoice vouchers are marked available outright; the rest are
// checked against the side API in bounded batches with a small pause
// between batches. A failed check skips only that voucher.
func (a *AccountingSyncer) enrichVouchers(ctx context.Context, tenant Tenant, conn Connector, vouchers *voucherSet) error {
	var errs []error
	for voucher := range vouchers.invoiceBacked {
		if err := a.store.UpsertVoucherAvailability(ctx, tenant.Number, voucher, true); err != nil {
			errs = append(errs, err)
		}
	}

	checkable := make([]int, 0, len(vouchers.checkable))
	for voucher := range vouchers.checkable {
		if !vouchers.invoiceBacked[voucher] {
			checkable = append(checkable, voucher)
		}
	}

	for i, chunk := range batch.Chunk(checkable, voucherBatchSize) {
		if i > 0 {
			a.pause(ctx, voucherBatchPause)
		}
		for _, voucher := range chunk {
			available, err := conn.Exists(ctx, fmt.Sprintf("/vouchers/%d", voucher))
			if err != nil {
				a.log.Warn(fmt.Sprintf("availability check for voucher %d failed: %v", voucher, err))
				errs = append(errs, fmt.Errorf("voucher %d: %w", voucher, err))
				continue
			}
			if err := a.store.UpsertVoucherAvailability(ctx, tenant.Number, voucher, available); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
