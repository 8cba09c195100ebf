package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/squaremeter/economirror/apiclients/economic"
	"github.com/squaremeter/economirror/internal/batch"
)

const (
	// invoiceOuterBatch is the outer batch size per view; each outer batch
	// is processed through the bounded concurrency window below.
	invoiceOuterBatch = 200

	// invoiceConcurrency caps concurrent per-invoice operations (upsert
	// plus line-detail fetch).
	invoiceConcurrency = 5
)

// View is one source invoice view walked per tenant.
type View struct {
	Name  string
	Path  string
	Draft bool

	// hint is the status implied by membership of this view, refined by
	// due-date and remainder signals in resolveStatus.
	hint economic.PaymentStatus
}

// invoiceViews are the six source views, drafts first so booked
// counterparts displace any surviving draft rows in the same pass.
var invoiceViews = []View{
	{Name: "draft", Path: "/invoices/drafts", Draft: true, hint: economic.StatusDraft},
	{Name: "booked", Path: "/invoices/booked", hint: economic.StatusPending},
	{Name: "paid", Path: "/invoices/paid", hint: economic.StatusPaid},
	{Name: "unpaid", Path: "/invoices/unpaid", hint: economic.StatusPending},
	{Name: "overdue", Path: "/invoices/overdue", hint: economic.StatusOverdue},
	{Name: "not-due", Path: "/invoices/not-due", hint: economic.StatusPending},
}

// statusRank orders conflicting classification signals; higher wins.
var statusRank = map[economic.PaymentStatus]int{
	economic.StatusPending: 1,
	economic.StatusPartial: 2,
	economic.StatusPaid:    3,
	economic.StatusOverdue: 4,
}

// resolveStatus classifies a non-draft invoice from its view hint, due date
// and remaining amount, with precedence overdue > paid > partial > pending.
func resolveStatus(hint economic.PaymentStatus, inv economic.Invoice, now time.Time) economic.PaymentStatus {
	candidates := []economic.PaymentStatus{hint}

	if inv.Remainder.IsZero() && inv.GrossAmount.Sign() != 0 {
		candidates = append(candidates, economic.StatusPaid)
	} else if inv.Remainder.Sign() > 0 && inv.Remainder.LessThan(inv.GrossAmount) {
		candidates = append(candidates, economic.StatusPartial)
	}
	if inv.Remainder.Sign() > 0 && !inv.DueDate.IsZero() && inv.DueDate.Before(now) {
		candidates = append(candidates, economic.StatusOverdue)
	}

	resolved := economic.StatusPending
	for _, c := range candidates {
		if statusRank[c] > statusRank[resolved] {
			resolved = c
		}
	}
	return resolved
}

// InvoiceSyncer walks the six invoice-state source views for one tenant,
// reconciling draft against booked identity and fetching line-item detail
// with bounded concurrency.
type InvoiceSyncer struct {
	store InvoiceStore
	log   *slog.Logger

	// now is replaced in tests for deterministic due-date classification.
	now func() time.Time
}

// NewInvoiceSyncer creates the invoice lifecycle syncer.
func NewInvoiceSyncer(store InvoiceStore, log *slog.Logger) *InvoiceSyncer {
	return &InvoiceSyncer{
		store: store,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Name implements EntitySyncer.
func (s *InvoiceSyncer) Name() string { return "invoices" }

// Sync walks every view in order. A failing view does not abort the
// remaining views; all view-level failures are joined into the returned
// error.
func (s *InvoiceSyncer) Sync(ctx context.Context, tenant Tenant, conn Connector) (int, error) {
	var total int
	var errs []error
	for _, view := range invoiceViews {
		count, err := s.syncView(ctx, tenant, conn, view)
		total += count
		if err != nil {
			s.log.Error(fmt.Sprintf("invoice view %s for tenant %s failed: %v", view.Name, tenant.Number, err))
			errs = append(errs, fmt.Errorf("view %s: %w", view.Name, err))
		}
	}
	return total, errors.Join(errs...)
}

// syncView paginates one view fully, then processes the items in outer
// batches whose members run through the bounded concurrency window.
func (s *InvoiceSyncer) syncView(ctx context.Context, tenant Tenant, conn Connector, view View) (int, error) {
	raws, err := conn.FetchAll(ctx, view.Path, &economic.ListParams{PageSize: listPageSize})
	if errors.Is(err, economic.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to fetch view: %w", err)
	}

	var processed atomic.Int64
	var errs []error
	for _, outer := range batch.Chunk(raws, invoiceOuterBatch) {
		err := batch.ForEachLimit(ctx, outer, invoiceConcurrency, func(ctx context.Context, raw json.RawMessage) error {
			if err := s.syncInvoice(ctx, tenant, conn, view, raw); err != nil {
				return err
			}
			processed.Add(1)
			return nil
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return int(processed.Load()), errors.Join(errs...)
}

// syncInvoice upserts one invoice and replaces its lines. The upsert is
// atomic on the natural key, and for booked invoices deletes any surviving
// draft counterpart first. A failed line-detail fetch skips only this
// invoice's lines.
func (s *InvoiceSyncer) syncInvoice(ctx context.Context, tenant Tenant, conn Connector, view View, raw json.RawMessage) error {
	var inv economic.Invoice
	var err error
	if view.Draft {
		inv, err = economic.DecodeDraftInvoice(raw)
	} else {
		inv, err = economic.DecodeBookedInvoice(raw)
		if err == nil {
			inv.PaymentStatus = resolveStatus(view.hint, inv, s.now())
		}
	}
	if err != nil {
		// Malformed record: skipped and logged, never aborts the batch.
		s.log.Warn(fmt.Sprintf("skipping malformed invoice in view %s: %v", view.Name, err))
		return nil
	}

	if err := s.store.UpsertInvoice(ctx, tenant.Number, inv); err != nil {
		return fmt.Errorf("invoice %d: %w", inv.InvoiceNumber, err)
	}

	if err := s.syncLines(ctx, tenant, conn, view, inv); err != nil {
		// Lines are best-effort per invoice; the error surfaces without
		// failing the invoice row itself.
		s.log.Warn(fmt.Sprintf("lines for invoice %d skipped: %v", inv.InvoiceNumber, err))
	}
	return nil
}

// syncLines fetches the invoice detail payload and replaces the stored
// lines wholesale inside one transaction.
func (s *InvoiceSyncer) syncLines(ctx context.Context, tenant Tenant, conn Connector, view View, inv economic.Invoice) error {
	detailPath := fmt.Sprintf("/invoices/booked/%d", inv.InvoiceNumber)
	if view.Draft {
		detailPath = fmt.Sprintf("/invoices/drafts/%d", inv.DraftInvoiceNumber)
	}

	detail, err := conn.Fetch(ctx, detailPath, nil)
	if err != nil {
		return fmt.Errorf("failed to fetch detail: %w", err)
	}
	lines, err := economic.DecodeInvoiceLines(detail)
	if err != nil {
		return err
	}
	if err := s.store.ReplaceInvoiceLines(ctx, tenant.Number, inv, lines); err != nil {
		return fmt.Errorf("failed to replace lines: %w", err)
	}
	return nil
}
