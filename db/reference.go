package db

// Batch upserts for the reference-data entities synced ahead of the
// transactional data. Each batch runs in one retryable transaction.

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/squaremeter/economirror/apiclients/economic"
)

// upsertBatch runs one prepared upsert per item inside a transaction.
func upsertBatch[T any](ctx context.Context, s *Store, query string, items []T, args func(T) []any) error {
	if len(items) == 0 {
		return nil
	}
	return s.Transaction(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert statement: %w", err)
		}
		defer stmt.Close()

		for _, item := range items {
			if _, err := stmt.ExecContext(ctx, args(item)...); err != nil {
				return fmt.Errorf("failed to upsert row: %w", err)
			}
		}
		return nil
	})
}

// UpsertCustomers upserts a batch of customers for a tenant.
func (s *Store) UpsertCustomers(ctx context.Context, tenant string, customers []economic.Customer) error {
	return upsertBatch(ctx, s, customerUpsertSQL, customers, func(c economic.Customer) []any {
		return []any{c.CustomerNumber, tenant, c.Name, c.Email, c.Currency, c.PaymentTermsNumber, c.Balance}
	})
}

// UpsertSuppliers upserts a batch of suppliers for a tenant.
func (s *Store) UpsertSuppliers(ctx context.Context, tenant string, suppliers []economic.Supplier) error {
	return upsertBatch(ctx, s, supplierUpsertSQL, suppliers, func(sp economic.Supplier) []any {
		return []any{sp.SupplierNumber, tenant, sp.Name, sp.Email, sp.Currency, sp.SupplierGroupNumber}
	})
}

// UpsertProducts upserts a batch of products for a tenant.
func (s *Store) UpsertProducts(ctx context.Context, tenant string, products []economic.Product) error {
	return upsertBatch(ctx, s, productUpsertSQL, products, func(p economic.Product) []any {
		return []any{p.ProductNumber, tenant, p.Name, p.ProductGroupNumber, p.SalesPrice, p.CostPrice, p.Barred}
	})
}

// UpsertAccounts upserts a batch of ledger accounts for a tenant.
func (s *Store) UpsertAccounts(ctx context.Context, tenant string, accounts []economic.Account) error {
	return upsertBatch(ctx, s, accountUpsertSQL, accounts, func(a economic.Account) []any {
		return []any{a.AccountNumber, tenant, a.Name, a.AccountType, a.Balance, a.Barred}
	})
}

// UpsertPaymentTerms upserts a batch of payment terms for a tenant.
func (s *Store) UpsertPaymentTerms(ctx context.Context, tenant string, terms []economic.PaymentTerm) error {
	return upsertBatch(ctx, s, paymentTermUpsertSQL, terms, func(t economic.PaymentTerm) []any {
		return []any{t.PaymentTermsNumber, tenant, t.Name, t.DaysOfCredit, t.PaymentTermsType}
	})
}

// UpsertProductGroups upserts a batch of product groups for a tenant.
func (s *Store) UpsertProductGroups(ctx context.Context, tenant string, groups []economic.NumberedName) error {
	return upsertBatch(ctx, s, productGroupUpsertSQL, groups, func(g economic.NumberedName) []any {
		return []any{g.Number, tenant, g.Name}
	})
}

// UpsertSupplierGroups upserts a batch of supplier groups for a tenant.
func (s *Store) UpsertSupplierGroups(ctx context.Context, tenant string, groups []economic.NumberedName) error {
	return upsertBatch(ctx, s, supplierGroupUpsertSQL, groups, func(g economic.NumberedName) []any {
		return []any{g.Number, tenant, g.Name}
	})
}

// UpsertVatAccounts upserts a batch of VAT accounts for a tenant.
func (s *Store) UpsertVatAccounts(ctx context.Context, tenant string, vats []economic.VatAccount) error {
	return upsertBatch(ctx, s, vatAccountUpsertSQL, vats, func(v economic.VatAccount) []any {
		return []any{v.VatCode, tenant, v.Name, v.RatePct, v.VatType, v.Account, v.Barred}
	})
}

// UpsertDepartments upserts a batch of departments for a tenant.
func (s *Store) UpsertDepartments(ctx context.Context, tenant string, departments []economic.NumberedName) error {
	return upsertBatch(ctx, s, departmentUpsertSQL, departments, func(d economic.NumberedName) []any {
		return []any{d.Number, tenant, d.Name}
	})
}

// UpsertDepartmentalDistributions upserts a batch of departmental
// distributions for a tenant.
func (s *Store) UpsertDepartmentalDistributions(ctx context.Context, tenant string, dists []economic.DepartmentalDistribution) error {
	return upsertBatch(ctx, s, distributionUpsertSQL, dists, func(d economic.DepartmentalDistribution) []any {
		return []any{d.Number, tenant, d.Name, d.Type}
	})
}
