package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/squaremeter/economirror/apiclients/economic"
)

// decodeAll applies one typed decode to every raw item, skipping and
// counting malformed records rather than aborting the batch.
func decodeAll[T any](log *slog.Logger, what string, raws []json.RawMessage, decode func(json.RawMessage) (T, error)) []T {
	items := make([]T, 0, len(raws))
	var malformed int
	for _, raw := range raws {
		item, err := decode(raw)
		if err != nil {
			malformed++
			log.Warn(fmt.Sprintf("skipping malformed %s record: %v", what, err))
			continue
		}
		items = append(items, item)
	}
	if malformed > 0 {
		log.Warn(fmt.Sprintf("%s: skipped %d malformed records", what, malformed))
	}
	return items
}

// referenceSyncer syncs one flat collection endpoint: paginate everything,
// decode, then batch-upsert. The generic parameter keeps one syncer
// implementation across all reference entity types.
type referenceSyncer[T any] struct {
	name   string
	path   string
	decode func(json.RawMessage) (T, error)
	upsert func(ctx context.Context, tenant string, items []T) error
	log    *slog.Logger
}

func (r *referenceSyncer[T]) Name() string { return r.name }

func (r *referenceSyncer[T]) Sync(ctx context.Context, tenant Tenant, conn Connector) (int, error) {
	raws, err := conn.FetchAll(ctx, r.path, &economic.ListParams{PageSize: listPageSize})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch %s: %w", r.name, err)
	}
	items := decodeAll(r.log, r.name, raws, r.decode)
	if err := r.upsert(ctx, tenant.Number, items); err != nil {
		return 0, fmt.Errorf("failed to upsert %s: %w", r.name, err)
	}
	return len(items), nil
}

// newReferenceSyncers builds the flat-collection syncers for the first
// three dependency groups, in group order.
func newReferenceSyncers(store Store, log *slog.Logger) (group1, group2, group3 []EntitySyncer) {
	group1 = []EntitySyncer{
		&referenceSyncer[economic.PaymentTerm]{
			name: "payment_terms", path: "/payment-terms",
			decode: economic.DecodePaymentTerm, upsert: store.UpsertPaymentTerms, log: log,
		},
		&referenceSyncer[economic.NumberedName]{
			name: "product_groups", path: "/product-groups",
			decode: economic.DecodeProductGroup, upsert: store.UpsertProductGroups, log: log,
		},
		&referenceSyncer[economic.NumberedName]{
			name: "supplier_groups", path: "/supplier-groups",
			decode: economic.DecodeSupplierGroup, upsert: store.UpsertSupplierGroups, log: log,
		},
		&referenceSyncer[economic.VatAccount]{
			name: "vat_accounts", path: "/vat-accounts",
			decode: economic.DecodeVatAccount, upsert: store.UpsertVatAccounts, log: log,
		},
		&referenceSyncer[economic.AccountingYear]{
			name: "accounting_years", path: "/accounting-years",
			decode: economic.DecodeAccountingYear,
			upsert: func(ctx context.Context, tenant string, years []economic.AccountingYear) error {
				for _, y := range years {
					if err := store.UpsertAccountingYear(ctx, tenant, y); err != nil {
						return err
					}
				}
				return nil
			},
			log: log,
		},
		&referenceSyncer[economic.NumberedName]{
			name: "departments", path: "/departments",
			decode: economic.DecodeDepartment, upsert: store.UpsertDepartments, log: log,
		},
	}

	group2 = []EntitySyncer{
		&referenceSyncer[economic.Product]{
			name: "products", path: "/products",
			decode: economic.DecodeProduct, upsert: store.UpsertProducts, log: log,
		},
		&referenceSyncer[economic.Account]{
			name: "accounts", path: "/accounts",
			decode: economic.DecodeAccount, upsert: store.UpsertAccounts, log: log,
		},
		&referenceSyncer[economic.Supplier]{
			name: "suppliers", path: "/suppliers",
			decode: economic.DecodeSupplier, upsert: store.UpsertSuppliers, log: log,
		},
		&referenceSyncer[economic.Customer]{
			name: "customers", path: "/customers",
			decode: economic.DecodeCustomer, upsert: store.UpsertCustomers, log: log,
		},
	}

	group3 = []EntitySyncer{
		&referenceSyncer[economic.DepartmentalDistribution]{
			name: "departmental_distributions", path: "/departmental-distributions",
			decode: economic.DecodeDepartmentalDistribution, upsert: store.UpsertDepartmentalDistributions, log: log,
		},
	}

	return group1, group2, group3
}
