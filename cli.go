package main

import (
	"context"

	"github.com/urfave/cli/v3"
)

// Applicator defines the interface for the core application logic. This
// allows the CLI to be tested independently of the main app implementation.
type Applicator interface {
	Serve(ctx context.Context, cfgPath string) error
	Sync(ctx context.Context, cfgPath string) error
	SyncInvoices(ctx context.Context, cfgPath string) error
	InitSchema(ctx context.Context, cfgPath string) error
}

// BuildCLI creates the full CLI command structure for the application,
// injecting the core application logic into the command actions.
func BuildCLI(app Applicator) *cli.Command {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   "config.yaml",
		Usage:   "path to the configuration file",
	}

	serveCmd := &cli.Command{
		Name:  "serve",
		Usage: "Start the sync trigger web server",
		Flags: []cli.Flag{configFlag},
		Action: func(ctx context.Context, c *cli.Command) error {
			return app.Serve(ctx, c.String("config"))
		},
	}

	syncCmd := &cli.Command{
		Name:  "sync",
		Usage: "Run one full sync pass over all active agreements",
		Flags: []cli.Flag{configFlag},
		Action: func(ctx context.Context, c *cli.Command) error {
			return app.Sync(ctx, c.String("config"))
		},
	}

	syncInvoicesCmd := &cli.Command{
		Name:    "sync-invoices",
		Usage:   "Run the invoice sync only over all active agreements",
		Aliases: []string{"si"},
		Flags:   []cli.Flag{configFlag},
		Action: func(ctx context.Context, c *cli.Command) error {
			return app.SyncInvoices(ctx, c.String("config"))
		},
	}

	initSchemaCmd := &cli.Command{
		Name:  "init-schema",
		Usage: "Create the mirror tables if they do not exist",
		Flags: []cli.Flag{configFlag},
		Action: func(ctx context.Context, c *cli.Command) error {
			return app.InitSchema(ctx, c.String("config"))
		},
	}

	return &cli.Command{
		Name:  "economirror",
		Usage: "Mirror e-conomic accounting data into a local MySQL store",
		Commands: []*cli.Command{
			serveCmd,
			syncCmd,
			syncInvoicesCmd,
			initSchemaCmd,
		},
	}
}
