// Package bootstrap wires the costing engine from configuration for cmd/api and cmd/stockctl.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/jhoicas/inventory-costing/internal/application/inventory"
	"github.com/jhoicas/inventory-costing/internal/domain/entity"
	costing "github.com/jhoicas/inventory-costing/internal/domain/inventory"
	"github.com/jhoicas/inventory-costing/internal/domain/repository"
	"github.com/jhoicas/inventory-costing/internal/infrastructure/lock"
	"github.com/jhoicas/inventory-costing/internal/infrastructure/memory"
	"github.com/jhoicas/inventory-costing/internal/infrastructure/postgres"
	"github.com/jhoicas/inventory-costing/internal/infrastructure/redislock"
	"github.com/jhoicas/inventory-costing/pkg/config"
	"github.com/jhoicas/inventory-costing/pkg/logger"
	"github.com/jhoicas/inventory-costing/pkg/metrics"
)

// CatalogWriter stores products and variants. Both stores implement it.
type CatalogWriter interface {
	UpsertProduct(ctx context.Context, id, name string) error
	UpsertVariant(ctx context.Context, v entity.ProductVariant) error
}

// Engine is the wired costing engine.
type Engine struct {
	Movements  *inventory.RegisterMovementUseCase
	Aggregator *inventory.StockAggregator
	Valuation  *inventory.ValuationService
	Catalog    CatalogWriter
	Pool       *pgxpool.Pool // nil with the memory driver

	closers []func()
}

// Close releases the pool and the Redis client.
func (e *Engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

type stores struct {
	tx        inventory.TxRunner
	snapshots inventory.SnapshotRunner
	variants  repository.ProductVariantRepository
	history   repository.StockMovementRepository
	cogs      repository.COGSRepository
	catalog   CatalogWriter
}

// New opens the configured store and locker and builds the use cases. reg may be nil.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, reg prometheus.Registerer) (*Engine, error) {
	e := &Engine{}
	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	var s stores
	switch cfg.Store.Driver {
	case "memory":
		store := memory.New(cfg.Inventory.LockTimeout)
		s = stores{tx: store, snapshots: store, variants: store, history: store.History(), cogs: store.COGS(), catalog: store}
		log.Warn().Msg("memory store: state is lost on restart")
	default:
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		e.Pool = pool
		e.closers = append(e.closers, pool.Close)
		runner := postgres.NewTxRunner(pool, cfg.Inventory.LockTimeout)
		variants := postgres.NewVariantRepository(pool)
		s = stores{
			tx:        runner,
			snapshots: runner,
			variants:  variants,
			history:   postgres.NewStockMovementRepository(pool),
			cogs:      postgres.NewCOGSRepository(pool),
			catalog:   variants,
		}
	}
	e.Catalog = s.catalog

	locker, err := newLocker(ctx, cfg, e)
	if err != nil {
		e.Close()
		return nil, err
	}

	if cfg.Store.Driver == "memory" && cfg.Store.CatalogFile != "" {
		if err := SeedCatalog(ctx, cfg.Store.CatalogFile, s.catalog); err != nil {
			e.Close()
			return nil, err
		}
	}

	e.Aggregator = inventory.NewStockAggregator(s.tx, s.snapshots, s.variants, log.Component("aggregator"), m, cfg.Inventory.ResyncConcurrency)
	e.Movements = inventory.NewRegisterMovementUseCase(
		s.tx, locker, s.variants, e.Aggregator,
		costing.Policy{AllowNegativeStock: cfg.Inventory.AllowNegativeStock},
		log.Component("movements"), m,
	)
	e.Valuation = inventory.NewValuationService(s.snapshots, s.history, s.cogs)

	log.Info().
		Str("store", cfg.Store.Driver).
		Str("locker", cfg.Inventory.Locker).
		Dur("lock_timeout", cfg.Inventory.LockTimeout).
		Bool("allow_negative_stock", cfg.Inventory.AllowNegativeStock).
		Msg("costing engine ready")
	return e, nil
}

func newLocker(ctx context.Context, cfg *config.Config, e *Engine) (inventory.KeyLocker, error) {
	if cfg.Inventory.Locker != "redis" {
		return lock.NewLocalLocker(cfg.Inventory.LockTimeout), nil
	}
	client, err := redislock.NewClient(cfg.Redis)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, func() { _ = client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return redislock.New(redis.UniversalClient(client), cfg.Redis.LockTTL, cfg.Inventory.LockTimeout), nil
}

// SeedCatalog loads a catalog file into w.
func SeedCatalog(ctx context.Context, path string, w CatalogWriter) error {
	c, err := config.LoadCatalog(path)
	if err != nil {
		return err
	}
	for _, p := range c.Products {
		name := p.Name
		if name == "" {
			name = p.ID
		}
		if err := w.UpsertProduct(ctx, p.ID, name); err != nil {
			return fmt.Errorf("seed product %s: %w", p.ID, err)
		}
		for _, v := range p.Variants {
			if err := w.UpsertVariant(ctx, entity.ProductVariant{ID: v.ID, ProductID: p.ID, SKU: v.SKU, Name: v.Name}); err != nil {
				return fmt.Errorf("seed variant %s: %w", v.ID, err)
			}
		}
	}
	return nil
}
