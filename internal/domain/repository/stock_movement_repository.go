package repository

import (
	"context"

	"github.com/jhoicas/inventory-costing/internal/domain/entity"
)

// StockMovementRepository is the append-only ledger port.
type StockMovementRepository interface {
	// Append persists a movement whose PerKeySequence is already assigned.
	// Implementations reject a repeated (key, sequence) or (key, reference, type).
	Append(ctx context.Context, movement *entity.StockMovement) error
	// ExistsReference reports whether (referenceID, type) was already recorded for the key.
	ExistsReference(ctx context.Context, key entity.StockKey, referenceID string, typ entity.MovementType) (bool, error)
	// List returns ledger history, newest first.
	List(ctx context.Context, filter entity.MovementFilter) ([]*entity.StockMovement, error)
}
