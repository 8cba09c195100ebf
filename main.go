package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	charmlog "github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/squaremeter/economirror/apiclients/economic"
	"github.com/squaremeter/economirror/config"
	"github.com/squaremeter/economirror/db"
	"github.com/squaremeter/economirror/ledger"
	syncer "github.com/squaremeter/economirror/sync"
	"github.com/squaremeter/economirror/web"
)

// app wires the sync engine together and implements Applicator.
type app struct {
	log *slog.Logger
}

// components holds everything built from one configuration load.
type components struct {
	cfg          *config.Config
	store        *db.Store
	outcomes     *ledger.Ledger
	orchestrator *syncer.Orchestrator
}

// build loads the configuration and constructs the store, ledger and
// orchestrator.
func (a *app) build(cfgPath string) (*components, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	store, err := db.NewStore(cfg.DatabaseDSN, a.log)
	if err != nil {
		return nil, fmt.Errorf("database setup error: %w", err)
	}

	var ledgerOpts []ledger.Option
	if cfg.LedgerQuietPeriod > 0 {
		ledgerOpts = append(ledgerOpts, ledger.WithQuietPeriod(cfg.LedgerQuietPeriod))
	}
	outcomes := ledger.New(store, a.log, ledgerOpts...)

	connect := func(grantToken string) syncer.Connector {
		return a.newClient(cfg, grantToken)
	}
	orchestrator := syncer.NewOrchestrator(
		&tenantSource{store: store},
		connect,
		store,
		outcomes,
		cfg.EnrichPDF,
		a.log,
	)

	return &components{
		cfg:          cfg,
		store:        store,
		outcomes:     outcomes,
		orchestrator: orchestrator,
	}, nil
}

// newClient builds a per-tenant source API client honouring any configured
// base URL overrides.
func (a *app) newClient(cfg *config.Config, grantToken string) *economic.Client {
	var opts []economic.Option
	if cfg.APIBaseURL != "" {
		opts = append(opts, economic.WithBaseURL(cfg.APIBaseURL))
	}
	if cfg.DocumentsBaseURL != "" {
		opts = append(opts, economic.WithDocumentsURL(cfg.DocumentsBaseURL))
	}
	return economic.NewClient(cfg.AppSecretToken, grantToken, nil, a.log, opts...)
}

// close flushes the outcome ledger tail and closes the store.
func (c *components) close(ctx context.Context, log *slog.Logger) {
	if err := c.outcomes.Close(ctx); err != nil {
		log.Error(fmt.Sprintf("ledger close error: %v", err))
	}
	if err := c.store.Close(); err != nil {
		log.Error(fmt.Sprintf("store close error: %v", err))
	}
}

// tenantSource adapts the store's agreement registry to the sync package.
type tenantSource struct {
	store *db.Store
}

func (t *tenantSource) ActiveTenants(ctx context.Context) ([]syncer.Tenant, error) {
	agreements, err := t.store.ActiveAgreements(ctx)
	if err != nil {
		return nil, err
	}
	tenants := make([]syncer.Tenant, 0, len(agreements))
	for _, agr := range agreements {
		tenants = append(tenants, syncer.Tenant{
			Number:     agr.AgreementNumber,
			GrantToken: agr.GrantToken,
			Name:       agr.Name,
		})
	}
	return tenants, nil
}

// registrar validates candidate grant tokens against the source /self
// endpoint and stores the agreement they belong to.
type registrar struct {
	app   *app
	cfg   *config.Config
	store *db.Store
}

func (r *registrar) RegisterToken(ctx context.Context, token string) (string, string, error) {
	client := r.app.newClient(r.cfg, token)
	raw, err := client.Fetch(ctx, "/self", nil)
	if err != nil {
		return "", "", fmt.Errorf("token validation failed: %w", err)
	}
	self, err := economic.DecodeSelfAgreement(raw)
	if err != nil {
		return "", "", err
	}
	number := strconv.Itoa(self.AgreementNumber)
	err = r.store.RegisterAgreement(ctx, db.Agreement{
		AgreementNumber: number,
		GrantToken:      token,
		Name:            self.CompanyName,
		Active:          true,
	})
	if err != nil {
		return "", "", err
	}
	return number, self.CompanyName, nil
}

// Serve starts the trigger web server.
func (a *app) Serve(ctx context.Context, cfgPath string) error {
	c, err := a.build(cfgPath)
	if err != nil {
		return err
	}
	defer c.close(context.Background(), a.log)

	if err := c.store.InitSchema(ctx); err != nil {
		return fmt.Errorf("database schema error: %w", err)
	}

	server := web.New(a.log, c.orchestrator, &registrar{app: a, cfg: c.cfg, store: c.store}, c.cfg.Web.ListenAddress)
	err = server.Start()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Sync runs one full pass and prints the report.
func (a *app) Sync(ctx context.Context, cfgPath string) error {
	return a.runOnce(ctx, cfgPath, func(ctx context.Context, o *syncer.Orchestrator) (*syncer.Report, error) {
		return o.Run(ctx)
	})
}

// SyncInvoices runs the invoice group only and prints the report.
func (a *app) SyncInvoices(ctx context.Context, cfgPath string) error {
	return a.runOnce(ctx, cfgPath, func(ctx context.Context, o *syncer.Orchestrator) (*syncer.Report, error) {
		return o.RunInvoices(ctx)
	})
}

func (a *app) runOnce(ctx context.Context, cfgPath string, run func(context.Context, *syncer.Orchestrator) (*syncer.Report, error)) error {
	c, err := a.build(cfgPath)
	if err != nil {
		return err
	}
	defer c.close(context.Background(), a.log)

	report, err := run(ctx, c.orchestrator)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// InitSchema creates the mirror tables.
func (a *app) InitSchema(ctx context.Context, cfgPath string) error {
	c, err := a.build(cfgPath)
	if err != nil {
		return err
	}
	defer c.close(context.Background(), a.log)
	return c.store.InitSchema(ctx)
}

func main() {
	// Secrets may live in a .env file alongside the config.
	_ = godotenv.Load()

	logger := slog.New(charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
	}))

	cmd := BuildCLI(&app{log: logger})
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}
