package inventory

import (
	"context"

	"github.com/jhoicas/inventory-costing/internal/domain/repository"
)

// TxRepos are the repositories bound to one transaction.
type TxRepos struct {
	Movements  repository.StockMovementRepository
	Stock      repository.StockRepository
	Aggregates repository.ProductAggregateRepository
	COGS       repository.COGSRepository
}

// TxRunner runs fn inside a database transaction with repositories bound to it.
// It commits when fn returns nil and rolls back otherwise, so the ledger append and the
// state changes it causes are one commit unit.
type TxRunner interface {
	Run(ctx context.Context, fn func(repos TxRepos) error) error
}

// SnapshotRunner runs read-only fn against a single consistent snapshot of committed state.
type SnapshotRunner interface {
	Snapshot(ctx context.Context, fn func(repo repository.ValuationRepository) error) error
}

// KeyLocker serializes all mutations of one stock key. Lock waits a bounded time and
// returns a *domain.ContentionError when the key stays busy.
type KeyLocker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}
