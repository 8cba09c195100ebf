package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/squaremeter/economirror/apiclients/economic"
)

// UpsertInvoice inserts or updates one invoice atomically on its natural
// key. For a non-draft invoice any surviving draft row carrying the same
// number as draft_invoice_number is deleted first, in the same transaction,
// so a logical invoice never has a draft and a booked row simultaneously.
func (s *Store) UpsertInvoice(ctx context.Context, tenant string, inv economic.Invoice) error {
	return s.Transaction(ctx, func(tx *sqlx.Tx) error {
		if inv.PaymentStatus != economic.StatusDraft {
			if _, err := tx.ExecContext(ctx, invoiceDraftDeleteSQL, tenant, inv.InvoiceNumber); err != nil {
				return fmt.Errorf("failed to delete draft counterpart of invoice %d: %w", inv.InvoiceNumber, err)
			}
		}

		var draftNumber any
		if inv.DraftInvoiceNumber != 0 {
			draftNumber = inv.DraftInvoiceNumber
		}
		_, err := tx.ExecContext(ctx, invoiceUpsertSQL,
			tenant, inv.InvoiceNumber, draftNumber, inv.CustomerNumber, inv.CustomerName,
			inv.Currency, nullDate(inv.Date), nullDate(inv.DueDate),
			inv.NetAmount, inv.GrossAmount, inv.VatAmount, inv.Remainder,
			string(inv.PaymentStatus), inv.PdfURL)
		if err != nil {
			return fmt.Errorf("failed to upsert invoice %d: %w", inv.InvoiceNumber, err)
		}
		return nil
	})
}

// ReplaceInvoiceLines replaces all lines of one invoice inside a single
// transaction: existing lines are deleted, then the fresh set inserted.
func (s *Store) ReplaceInvoiceLines(ctx context.Context, tenant string, inv economic.Invoice, lines []economic.InvoiceLine) error {
	return s.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, invoiceLineDeleteSQL, tenant, inv.InvoiceNumber); err != nil {
			return fmt.Errorf("failed to delete old lines for invoice %d: %w", inv.InvoiceNumber, err)
		}

		if len(lines) == 0 {
			return nil
		}
		stmt, err := tx.PreparexContext(ctx, invoiceLineInsertSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare line insert statement: %w", err)
		}
		defer stmt.Close()

		for _, line := range lines {
			_, err := stmt.ExecContext(ctx,
				tenant, inv.InvoiceNumber, inv.CustomerNumber, line.LineNumber,
				line.ProductNumber, line.Description, line.Quantity,
				line.UnitNetPrice, line.DiscountPct, line.TotalNetAmount)
			if err != nil {
				return fmt.Errorf("failed to insert line %d for invoice %d: %w", line.LineNumber, inv.InvoiceNumber, err)
			}
		}
		return nil
	})
}
