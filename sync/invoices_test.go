package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/squaremeter/economirror/apiclients/economic"
)

// fakeInvoiceStore records upserts in order and keeps the latest state per
// invoice number.
type fakeInvoiceStore struct {
	mu          sync.Mutex
	order       []int
	latest      map[int]economic.Invoice
	lines       map[int][]economic.InvoiceLine
	failNumbers map[int]bool
}

func newFakeInvoiceStore() *fakeInvoiceStore {
	return &fakeInvoiceStore{
		latest:      make(map[int]economic.Invoice),
		lines:       make(map[int][]economic.InvoiceLine),
		failNumbers: make(map[int]bool),
	}
}

func (f *fakeInvoiceStore) UpsertInvoice(_ context.Context, _ string, inv economic.Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNumbers[inv.InvoiceNumber] {
		return fmt.Errorf("store rejected invoice %d", inv.InvoiceNumber)
	}
	f.order = append(f.order, inv.InvoiceNumber)
	f.latest[inv.InvoiceNumber] = inv
	return nil
}

func (f *fakeInvoiceStore) ReplaceInvoiceLines(_ context.Context, _ string, inv economic.Invoice, lines []economic.InvoiceLine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines[inv.InvoiceNumber] = lines
	return nil
}

func newTestInvoiceSyncer(store InvoiceStore, now time.Time) *InvoiceSyncer {
	s := NewInvoiceSyncer(store, testLogger())
	s.now = func() time.Time { return now }
	return s
}

func TestResolveStatus(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	past := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	inv := func(gross, remainder string, due time.Time) economic.Invoice {
		return economic.Invoice{
			GrossAmount: decimal.RequireFromString(gross),
			Remainder:   decimal.RequireFromString(remainder),
			DueDate:     due,
		}
	}

	tests := []struct {
		name string
		hint economic.PaymentStatus
		inv  economic.Invoice
		want economic.PaymentStatus
	}{
		{"settled in paid view", economic.StatusPaid, inv("100", "0", future), economic.StatusPaid},
		{"settled in booked view", economic.StatusPending, inv("100", "0", future), economic.StatusPaid},
		{"untouched and not due", economic.StatusPending, inv("100", "100", future), economic.StatusPending},
		{"partially settled", economic.StatusPending, inv("100", "40", future), economic.StatusPartial},
		{"partially settled but late", economic.StatusPending, inv("100", "40", past), economic.StatusOverdue},
		{"late outranks paid hint", economic.StatusPaid, inv("100", "100", past), economic.StatusOverdue},
		{"overdue view", economic.StatusOverdue, inv("100", "100", future), economic.StatusOverdue},
		{"no due date never overdue", economic.StatusPending, inv("100", "100", time.Time{}), economic.StatusPending},
		{"zero gross stays pending", economic.StatusPending, inv("0", "0", future), economic.StatusPending},
	}
	for _, tc := range tests {
		if got := resolveStatus(tc.hint, tc.inv, now); got != tc.want {
			t.Errorf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}

func TestInvoiceSyncDraftThenBookedReconciliation(t *testing.T) {
	conn := newFakeConn()
	conn.lists["/invoices/drafts"] = []json.RawMessage{
		json.RawMessage(`{"draftInvoiceNumber":300,"grossAmount":"50.00","customer":{"customerNumber":7}}`),
	}
	conn.lists["/invoices/paid"] = []json.RawMessage{
		json.RawMessage(`{"bookedInvoiceNumber":300,"grossAmount":"50.00","remainder":"0.00","customer":{"customerNumber":7}}`),
	}
	conn.details["/invoices/drafts/300"] = json.RawMessage(`{"lines":[{"lineNumber":1,"product":{"productNumber":"P1"}}]}`)
	conn.details["/invoices/booked/300"] = json.RawMessage(`{"lines":[{"lineNumber":1,"product":{"productNumber":"P1"}},{"lineNumber":2,"product":{"productNumber":"P2"}}]}`)

	store := newFakeInvoiceStore()
	syncer := newTestInvoiceSyncer(store, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC))

	count, err := syncer.Sync(context.Background(), testTenant(), conn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("count: got %d want 2", count)
	}

	// Drafts are walked first so the booked row wins for the same number.
	if len(store.order) != 2 || store.order[0] != 300 || store.order[1] != 300 {
		t.Fatalf("upsert order: got %v", store.order)
	}
	final := store.latest[300]
	if final.PaymentStatus != economic.StatusPaid {
		t.Errorf("final status: got %s want %s", final.PaymentStatus, economic.StatusPaid)
	}
	if final.DraftInvoiceNumber != 0 {
		t.Errorf("booked invoice should carry no draft number, got %d", final.DraftInvoiceNumber)
	}
	if got := len(store.lines[300]); got != 2 {
		t.Errorf("final line count: got %d want 2", got)
	}
}

func TestInvoiceSyncMalformedRecordSkipped(t *testing.T) {
	conn := newFakeConn()
	conn.lists["/invoices/booked"] = []json.RawMessage{
		json.RawMessage(`{"grossAmount":"10.00"}`), // no bookedInvoiceNumber
		json.RawMessage(`{"bookedInvoiceNumber":42,"grossAmount":"10.00","remainder":"10.00"}`),
	}

	store := newFakeInvoiceStore()
	syncer := newTestInvoiceSyncer(store, time.Now().UTC())

	count, err := syncer.Sync(context.Background(), testTenant(), conn)
	if err != nil {
		t.Fatalf("a malformed record must not fail the view: %v", err)
	}
	if count != 1 {
		t.Errorf("count: got %d want 1", count)
	}
	if _, ok := store.latest[42]; !ok {
		t.Error("well-formed sibling was not stored")
	}
}

func TestInvoiceSyncLineFailureKeepsInvoice(t *testing.T) {
	conn := newFakeConn()
	conn.lists["/invoices/booked"] = []json.RawMessage{
		json.RawMessage(`{"bookedInvoiceNumber":77,"grossAmount":"10.00","remainder":"10.00"}`),
	}
	// No detail fixture: the line fetch fails with not-found.

	store := newFakeInvoiceStore()
	syncer := newTestInvoiceSyncer(store, time.Now().UTC())

	count, err := syncer.Sync(context.Background(), testTenant(), conn)
	if err != nil {
		t.Fatalf("a failed line fetch must not fail the invoice: %v", err)
	}
	if count != 1 {
		t.Errorf("count: got %d want 1", count)
	}
	if _, ok := store.latest[77]; !ok {
		t.Error("invoice row missing despite line failure")
	}
	if _, ok := store.lines[77]; ok {
		t.Error("lines should be untouched after a failed detail fetch")
	}
}

func TestInvoiceSyncUpsertFailureConfined(t *testing.T) {
	conn := newFakeConn()
	conn.lists["/invoices/booked"] = []json.RawMessage{
		json.RawMessage(`{"bookedInvoiceNumber":7,"grossAmount":"10.00","remainder":"10.00"}`),
		json.RawMessage(`{"bookedInvoiceNumber":8,"grossAmount":"10.00","remainder":"10.00"}`),
	}
	conn.details["/invoices/booked/8"] = json.RawMessage(`{"lines":[]}`)

	store := newFakeInvoiceStore()
	store.failNumbers[7] = true
	syncer := newTestInvoiceSyncer(store, time.Now().UTC())

	count, err := syncer.Sync(context.Background(), testTenant(), conn)
	if err == nil || !strings.Contains(err.Error(), "invoice 7") {
		t.Fatalf("expected invoice 7 in the joined error, got %v", err)
	}
	if count != 1 {
		t.Errorf("count: got %d want 1", count)
	}
	if _, ok := store.latest[8]; !ok {
		t.Error("sibling invoice was not processed past the failure")
	}
}
