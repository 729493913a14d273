package repository

import (
	"context"

	"github.com/jhoicas/inventory-costing/internal/domain/entity"
)

// COGSRepository stores the immutable cost basis of sale lines.
type COGSRepository interface {
	// Create rejects a second record for the same movement.
	Create(ctx context.Context, record *entity.COGSRecord) error
	// GetBySaleItem returns the earliest record for the sale line, or nil, nil when it has none.
	GetBySaleItem(ctx context.Context, saleItemID string) (*entity.COGSRecord, error)
}
