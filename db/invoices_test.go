package db

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"github.com/squaremeter/economirror/apiclients/economic"
)

func bookedInvoice() economic.Invoice {
	return economic.Invoice{
		InvoiceNumber:  2001,
		CustomerNumber: 7,
		CustomerName:   "Acme",
		Currency:       "DKK",
		Date:           time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		DueDate:        time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		NetAmount:      decimal.RequireFromString("100.00"),
		GrossAmount:    decimal.RequireFromString("125.00"),
		VatAmount:      decimal.RequireFromString("25.00"),
		Remainder:      decimal.Zero,
		PaymentStatus:  economic.StatusPaid,
	}
}

func TestUpsertInvoiceBookedDeletesDraftCounterpart(t *testing.T) {
	s, mock := testStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM invoices").
		WithArgs("1234", 2001).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO invoices").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.UpsertInvoice(context.Background(), "1234", bookedInvoice()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpsertInvoiceDraftSkipsDelete(t *testing.T) {
	s, mock := testStore(t)

	inv := bookedInvoice()
	inv.InvoiceNumber = 55
	inv.DraftInvoiceNumber = 55
	inv.PaymentStatus = economic.StatusDraft

	// A draft upsert must not touch any existing booked row.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO invoices").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.UpsertInvoice(context.Background(), "1234", inv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReplaceInvoiceLines(t *testing.T) {
	s, mock := testStore(t)

	inv := bookedInvoice()
	lines := []economic.InvoiceLine{
		{LineNumber: 1, ProductNumber: "P1", Quantity: decimal.NewFromInt(2)},
		{LineNumber: 2, ProductNumber: "P2", Quantity: decimal.NewFromInt(1)},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM invoice_lines").
		WithArgs("1234", 2001).
		WillReturnResult(sqlmock.NewResult(0, 2))
	prep := mock.ExpectPrepare("INSERT INTO invoice_lines")
	for range lines {
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	if err := s.ReplaceInvoiceLines(context.Background(), "1234", inv, lines); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReplaceInvoiceLinesEmptySet(t *testing.T) {
	s, mock := testStore(t)

	// No lines means delete-only, with nothing prepared.
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM invoice_lines").
		WithArgs("1234", 2001).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	if err := s.ReplaceInvoiceLines(context.Background(), "1234", bookedInvoice(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
