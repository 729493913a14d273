package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventory-costing/internal/domain/entity"
)

// StockRepository holds the per-key costed state. Used inside transactions.
type StockRepository interface {
	// GetForUpdate locks the key's row (creating the empty row if needed) and returns it.
	GetForUpdate(ctx context.Context, key entity.StockKey) (*entity.VariantWarehouseState, error)
	Save(ctx context.Context, state *entity.VariantWarehouseState) error
	// SumByProduct returns Σ quantityOnHand over every row of the product's variants.
	SumByProduct(ctx context.Context, productID string) (decimal.Decimal, error)
}

// ProductAggregateRepository holds the denormalized per-product totals.
type ProductAggregateRepository interface {
	// GetForUpdate locks the product's aggregate row. When none was ever written, found is false
	// and agg is a zero-total aggregate for productID; the lock is still held so concurrent
	// recomputes serialize.
	GetForUpdate(ctx context.Context, productID string) (agg *entity.ProductAggregate, found bool, err error)
	Save(ctx context.Context, agg *entity.ProductAggregate) error
}
