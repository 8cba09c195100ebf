package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/squaremeter/economirror/apiclients/economic"
)

const (
	// entityAttempts is how many times a whole entity syncer is retried
	// before being marked failed for the pass.
	entityAttempts = 3

	// entityRetryDelay is the fixed pause between entity attempts.
	entityRetryDelay = 2 * time.Second

	// tenantPause is the fixed pause between tenants in the outer loop.
	tenantPause = time.Second
)

// Status is the top-level outcome of an orchestrator run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusError   Status = "error"
)

// EntityResult is the outcome of one entity syncer for one tenant.
type EntityResult struct {
	Entity string `json:"entity"`
	Tenant string `json:"tenant"`
	Count  int    `json:"count"`
	Error  string `json:"error,omitempty"`

	// authError marks a tenant-fatal authentication failure.
	authError bool
}

// Report is the consolidated result of one orchestrator run.
type Report struct {
	Status     Status         `json:"status"`
	Results    []EntityResult `json:"results"`
	TotalCount int            `json:"totalCount"`
}

// Orchestrator drives dependency-ordered groups of entity syncers across
// all active tenants: groups run strictly in order, syncers within a group
// run concurrently, and each syncer is retried as a whole on failure.
type Orchestrator struct {
	tenants  TenantSource
	connect  ConnectorFactory
	recorder Recorder
	groups   [][]EntitySyncer
	invoices []EntitySyncer
	log      *slog.Logger

	// pause is replaced in tests to avoid real delays.
	pause func(ctx context.Context, d time.Duration)
}

// NewOrchestrator assembles the fixed dependency groups over the given
// store: reference data, dependent entities, cross-cutting aggregates, then
// the high-volume transactional data (invoices and the accounting walk).
func NewOrchestrator(
	tenants TenantSource,
	connect ConnectorFactory,
	store Store,
	recorder Recorder,
	enrichPDF bool,
	log *slog.Logger,
) *Orchestrator {
	group1, group2, group3 := newReferenceSyncers(store, log)
	invoiceSyncer := NewInvoiceSyncer(store, log)
	group4 := []EntitySyncer{
		invoiceSyncer,
		NewAccountingSyncer(store, enrichPDF, log),
	}
	return &Orchestrator{
		tenants:  tenants,
		connect:  connect,
		recorder: recorder,
		groups:   [][]EntitySyncer{group1, group2, group3, group4},
		invoices: []EntitySyncer{invoiceSyncer},
		log:      log,
		pause: func(ctx context.Context, d time.Duration) {
			select {
			case <-ctx.Done():
			case <-time.After(d):
			}
		},
	}
}

// Run executes a full sync pass over all active tenants. Only a failure to
// enumerate tenants is fatal; everything else is captured per entity in the
// report and the outcome ledger.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	return o.run(ctx, o.groups)
}

// RunInvoices executes the invoice group only, for the dedicated invoice
// trigger.
func (o *Orchestrator) RunInvoices(ctx context.Context) (*Report, error) {
	return o.run(ctx, [][]EntitySyncer{o.invoices})
}

func (o *Orchestrator) run(ctx context.Context, groups [][]EntitySyncer) (*Report, error) {
	tenants, err := o.tenants.ActiveTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate tenants: %w", err)
	}

	report := &Report{}
	for i, tenant := range tenants {
		if i > 0 {
			o.pause(ctx, tenantPause)
		}
		results := o.syncTenant(ctx, tenant, groups)
		report.Results = append(report.Results, results...)
	}

	var successes, failures int
	for _, r := range report.Results {
		if r.Error == "" {
			successes++
			report.TotalCount += r.Count
		} else {
			failures++
		}
	}
	switch {
	case failures == 0:
		report.Status = StatusSuccess
	case successes == 0 && failures > 0:
		report.Status = StatusError
	default:
		report.Status = StatusPartial
	}

	o.log.Info(fmt.Sprintf("sync run complete: status=%s entities=%d totalCount=%d",
		report.Status, len(report.Results), report.TotalCount))
	return report, nil
}

// syncTenant runs the groups for one tenant. Groups execute strictly in
// order; entity syncers within a group run fully concurrently. An
// authentication failure abandons the remaining groups for this tenant
// only.
func (o *Orchestrator) syncTenant(ctx context.Context, tenant Tenant, groups [][]EntitySyncer) []EntityResult {
	conn := o.connect(tenant.GrantToken)

	var results []EntityResult
	var authFailed bool
	for _, group := range groups {
		if authFailed {
			break
		}

		var mu sync.Mutex
		g := new(errgroup.Group)
		for _, syncer := range group {
			syncer := syncer
			g.Go(func() error {
				result := o.syncEntity(ctx, tenant, conn, syncer)
				mu.Lock()
				results = append(results, result)
				if result.authError {
					authFailed = true
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}
	if authFailed {
		o.log.Error(fmt.Sprintf("tenant %s abandoned after authentication failure", tenant.Number))
	}
	return results
}

// syncEntity runs one entity syncer with whole-syncer retries, records the
// consolidated outcome and converts any final failure into a result record
// rather than an error.
func (o *Orchestrator) syncEntity(ctx context.Context, tenant Tenant, conn Connector, syncer EntitySyncer) EntityResult {
	var count int
	var err error
	for attempt := 1; attempt <= entityAttempts; attempt++ {
		count, err = syncer.Sync(ctx, tenant, conn)
		if err == nil {
			break
		}
		// Authentication failures cannot succeed on retry.
		if errors.Is(err, economic.ErrAuth) {
			break
		}
		if attempt < entityAttempts {
			o.log.Warn(fmt.Sprintf("entity %s attempt %d for tenant %s failed: %v",
				syncer.Name(), attempt, tenant.Number, err))
			o.pause(ctx, entityRetryDelay)
		}
	}

	o.recorder.Record(syncer.Name(), tenant.Number, count, err)

	result := EntityResult{Entity: syncer.Name(), Tenant: tenant.Number, Count: count}
	if err != nil {
		o.log.Error(fmt.Sprintf("entity %s for tenant %s failed: %v", syncer.Name(), tenant.Number, err))
		result.Error = err.Error()
		if errors.Is(err, economic.ErrAuth) {
			result.authError = true
		}
	}
	return result
}
