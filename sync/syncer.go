// Package sync implements the dependency-ordered, multi-tenant
// synchronization engine: the hierarchical accounting walker, the invoice
// lifecycle syncer, the reference-data syncers and the orchestrator that
// drives them.
package sync

import (
	"context"
	"encoding/json"

	"github.com/squaremeter/economirror/apiclients/economic"
)

// Tenant is one agreement scope to sync.
type Tenant struct {
	Number     string
	GrantToken string
	Name       string
}

// Connector is the per-tenant source API surface consumed by the entity
// syncers. Satisfied by *economic.Client.
type Connector interface {
	Fetch(ctx context.Context, path string, params *economic.ListParams) (json.RawMessage, error)
	FetchAll(ctx context.Context, path string, params *economic.ListParams) ([]json.RawMessage, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// ConnectorFactory builds a Connector authenticated for one tenant's grant
// token.
type ConnectorFactory func(grantToken string) Connector

// Recorder receives per-(entity, tenant) outcome recordings. Satisfied by
// *ledger.Ledger.
type Recorder interface {
	Record(entity, tenant string, count int, err error)
}

// TenantSource enumerates the tenants to sync. Satisfied by the mirror
// store's agreement registry.
type TenantSource interface {
	ActiveTenants(ctx context.Context) ([]Tenant, error)
}

// EntitySyncer syncs one entity type for one tenant, returning the number
// of records written.
type EntitySyncer interface {
	Name() string
	Sync(ctx context.Context, tenant Tenant, conn Connector) (int, error)
}

// AccountingStore is the mirror-store surface used by the hierarchical
// accounting syncer.
type AccountingStore interface {
	UpsertAccountingYear(ctx context.Context, tenant string, y economic.AccountingYear) error
	UpsertAccountingPeriod(ctx context.Context, tenant, yearID string, p economic.AccountingPeriod) error
	UpsertAccountingEntries(ctx context.Context, tenant, yearID string, period int, entries []economic.AccountingEntry) error
	UpsertAccountingTotals(ctx context.Context, tenant, yearID string, period int, totals []economic.AccountingTotal) error
	UpsertVoucherAvailability(ctx context.Context, tenant string, voucher int, available bool) error
}

// InvoiceStore is the mirror-store surface used by the invoice lifecycle
// syncer.
type InvoiceStore interface {
	UpsertInvoice(ctx context.Context, tenant string, inv economic.Invoice) error
	ReplaceInvoiceLines(ctx context.Context, tenant string, inv economic.Invoice, lines []economic.InvoiceLine) error
}

// ReferenceStore is the mirror-store surface used by the reference-data
// syncers.
type ReferenceStore interface {
	UpsertCustomers(ctx context.Context, tenant string, customers []economic.Customer) error
	UpsertSuppliers(ctx context.Context, tenant string, suppliers []economic.Supplier) error
	UpsertProducts(ctx context.Context, tenant string, products []economic.Product) error
	UpsertAccounts(ctx context.Context, tenant string, accounts []economic.Account) error
	UpsertPaymentTerms(ctx context.Context, tenant string, terms []economic.PaymentTerm) error
	UpsertProductGroups(ctx context.Context, tenant string, groups []economic.NumberedName) error
	UpsertSupplierGroups(ctx context.Context, tenant string, groups []economic.NumberedName) error
	UpsertVatAccounts(ctx context.Context, tenant string, vats []economic.VatAccount) error
	UpsertDepartments(ctx context.Context, tenant string, departments []economic.NumberedName) error
	UpsertDepartmentalDistributions(ctx context.Context, tenant string, dists []economic.DepartmentalDistribution) error
}

// Store is the full mirror-store surface the orchestrator wires to its
// syncers. Satisfied by *db.Store.
type Store interface {
	AccountingStore
	InvoiceStore
	ReferenceStore
}
