// Command stockctl is the operator CLI for the costing engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/jhoicas/inventory-costing/internal/bootstrap"
	"github.com/jhoicas/inventory-costing/internal/domain"
	"github.com/jhoicas/inventory-costing/internal/infrastructure/postgres"
	"github.com/jhoicas/inventory-costing/pkg/config"
	"github.com/jhoicas/inventory-costing/pkg/logger"
)

type engineKey struct{}

func openEngine(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.IsSet("catalog") {
		cfg.Store.CatalogFile = c.String("catalog")
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, Out: os.Stderr})
	e, err := bootstrap.New(c.Context, cfg, log, nil)
	if err != nil {
		return err
	}
	c.Context = context.WithValue(c.Context, engineKey{}, e)
	return nil
}

func closeEngine(c *cli.Context) error {
	if e, ok := c.Context.Value(engineKey{}).(*bootstrap.Engine); ok && e != nil {
		e.Close()
	}
	return nil
}

func engineFrom(c *cli.Context) *bootstrap.Engine {
	return c.Context.Value(engineKey{}).(*bootstrap.Engine)
}

func main() {
	app := &cli.App{
		Name:  "stockctl",
		Usage: "Operate the inventory costing engine (schema, catalog, aggregates)",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Apply the embedded PostgreSQL schema",
				Before: openEngine,
				After:  closeEngine,
				Action: runMigrate,
			},
			{
				Name:  "seed",
				Usage: "Load products and variants from a catalog file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "catalog",
						Usage:    "Catalog file (yaml, json or toml)",
						Required: true,
						EnvVars:  []string{"CATALOG_FILE"},
					},
				},
				Before: openEngine,
				After:  closeEngine,
				Action: runSeed,
			},
			{
				Name:  "resync",
				Usage: "Recompute product aggregates from variant/warehouse rows",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "product",
						Usage: "Only this product id (default: every product)",
					},
				},
				Before: openEngine,
				After:  closeEngine,
				Action: runResync,
			},
			{
				Name:   "integrity-check",
				Usage:  "Report aggregates that differ from their detail rows (exit code 2 on mismatch)",
				Before: openEngine,
				After:  closeEngine,
				Action: runIntegrityCheck,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "stockctl:", err)
		os.Exit(1)
	}
}

func runMigrate(c *cli.Context) error {
	e := engineFrom(c)
	if e.Pool == nil {
		return cli.Exit("migrate needs STORE_DRIVER=postgres", 1)
	}
	if err := postgres.Migrate(c.Context, e.Pool); err != nil {
		return err
	}
	fmt.Println("schema applied")
	return nil
}

func runSeed(c *cli.Context) error {
	e := engineFrom(c)
	if e.Pool == nil {
		return cli.Exit("seed needs STORE_DRIVER=postgres; the memory store loads CATALOG_FILE at startup", 1)
	}
	if err := bootstrap.SeedCatalog(c.Context, c.String("catalog"), e.Catalog); err != nil {
		return err
	}
	fmt.Println("catalog loaded")
	return nil
}

func runResync(c *cli.Context) error {
	e := engineFrom(c)
	if id := c.String("product"); id != "" {
		res, err := e.Aggregator.Recompute(c.Context, id)
		if err != nil {
			return err
		}
		fmt.Printf("%s\tprevious=%s\trecomputed=%s\trepaired=%t\n", res.ProductID, res.Previous, res.Recomputed, res.Repaired)
		return nil
	}

	results, err := e.Aggregator.ResyncAll(c.Context)
	repaired := 0
	for _, res := range results {
		if res.Repaired {
			repaired++
			fmt.Printf("%s\tprevious=%s\trecomputed=%s\trepaired\n", res.ProductID, res.Previous, res.Recomputed)
		}
	}
	fmt.Printf("%d products resynced, %d repaired\n", len(results), repaired)
	return err
}

func runIntegrityCheck(c *cli.Context) error {
	e := engineFrom(c)
	report, err := e.Aggregator.IntegrityCheck(c.Context)
	if err != nil && !errors.Is(err, domain.ErrInconsistent) {
		return err
	}
	for _, m := range report.Mismatches {
		fmt.Printf("%s\trecorded=%s\tcomputed=%s\n", m.ProductID, m.Recorded, m.Computed)
	}
	fmt.Printf("%d products checked, %d mismatches\n", report.Checked, len(report.Mismatches))
	if !report.Consistent() {
		return cli.Exit("aggregate mismatches found; run stockctl resync", 2)
	}
	return nil
}
