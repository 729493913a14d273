package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventory-costing/internal/domain/entity"
	"github.com/jhoicas/inventory-costing/internal/domain/repository"
)

var (
	_ repository.StockRepository            = (*StockRepo)(nil)
	_ repository.ProductAggregateRepository = (*ProductAggregateRepo)(nil)
)

// StockRepo stores the costed state of each (variant, warehouse) key (pool or tx).
type StockRepo struct {
	q Querier
}

// NewStockRepository builds the stock adapter.
func NewStockRepository(q Querier) *StockRepo {
	return &StockRepo{q: q}
}

// GetForUpdate makes sure the key's row exists, then locks it with SELECT ... FOR UPDATE. The
// lock is held until the transaction ends; waiting longer than lock_timeout is contention.
func (r *StockRepo) GetForUpdate(ctx context.Context, key entity.StockKey) (*entity.VariantWarehouseState, error) {
	const insert = `
		INSERT INTO variant_warehouse_stock (variant_id, warehouse_id)
		VALUES ($1, $2)
		ON CONFLICT (variant_id, warehouse_id) DO NOTHING`
	if _, err := r.q.Exec(ctx, insert, key.VariantID, key.WarehouseID); err != nil {
		return nil, wrap("create stock row", key.String(), err)
	}

	const query = `
		SELECT variant_id, warehouse_id, quantity_on_hand, weighted_average_cost, last_applied_sequence, updated_at
		FROM variant_warehouse_stock
		WHERE variant_id = $1 AND warehouse_id = $2
		FOR UPDATE`
	var s entity.VariantWarehouseState
	err := r.q.QueryRow(ctx, query, key.VariantID, key.WarehouseID).Scan(
		&s.VariantID, &s.WarehouseID, &s.QuantityOnHand, &s.WeightedAverageCost, &s.LastAppliedSequence, &s.UpdatedAt,
	)
	if err != nil {
		return nil, wrap("lock stock row", key.String(), err)
	}
	return &s, nil
}

// Save writes the state of a row locked by GetForUpdate.
func (r *StockRepo) Save(ctx context.Context, s *entity.VariantWarehouseState) error {
	const query = `
		UPDATE variant_warehouse_stock
		SET quantity_on_hand = $3, weighted_average_cost = $4, last_applied_sequence = $5, updated_at = $6
		WHERE variant_id = $1 AND warehouse_id = $2`
	tag, err := r.q.Exec(ctx, query,
		s.VariantID, s.WarehouseID, s.QuantityOnHand, s.WeightedAverageCost, s.LastAppliedSequence, s.UpdatedAt,
	)
	if err != nil {
		return wrap("save stock", s.Key().String(), err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("save stock: row %s not found", s.Key())
	}
	return nil
}

// SumByProduct sums quantity_on_hand over every row of the product's variants. Under READ
// COMMITTED it sees committed rows plus this transaction's own writes.
func (r *StockRepo) SumByProduct(ctx context.Context, productID string) (decimal.Decimal, error) {
	const query = `
		SELECT COALESCE(SUM(s.quantity_on_hand), 0)
		FROM variant_warehouse_stock s
		JOIN product_variants v ON v.id = s.variant_id
		WHERE v.product_id = $1`
	var sum decimal.Decimal
	if err := r.q.QueryRow(ctx, query, productID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum stock by product: %w", err)
	}
	return sum, nil
}

// ProductAggregateRepo stores the denormalized product totals (pool or tx).
type ProductAggregateRepo struct {
	q Querier
}

// NewProductAggregateRepository builds the aggregate adapter.
func NewProductAggregateRepository(q Querier) *ProductAggregateRepo {
	return &ProductAggregateRepo{q: q}
}

// GetForUpdate locks the product's aggregate row, creating it at zero if it never existed.
func (r *ProductAggregateRepo) GetForUpdate(ctx context.Context, productID string) (*entity.ProductAggregate, bool, error) {
	const query = `
		SELECT product_id, total_stock, updated_at
		FROM product_aggregates
		WHERE product_id = $1
		FOR UPDATE`
	agg, err := r.lock(ctx, query, productID)
	if err == nil {
		return agg, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, wrap("lock product aggregate", "product:"+productID, err)
	}

	const insert = `
		INSERT INTO product_aggregates (product_id, total_stock)
		VALUES ($1, 0)
		ON CONFLICT (product_id) DO NOTHING`
	if _, err := r.q.Exec(ctx, insert, productID); err != nil {
		return nil, false, wrap("create product aggregate", "product:"+productID, err)
	}
	agg, err = r.lock(ctx, query, productID)
	if err != nil {
		return nil, false, wrap("lock product aggregate", "product:"+productID, err)
	}
	return agg, false, nil
}

func (r *ProductAggregateRepo) lock(ctx context.Context, query, productID string) (*entity.ProductAggregate, error) {
	var agg entity.ProductAggregate
	if err := r.q.QueryRow(ctx, query, productID).Scan(&agg.ProductID, &agg.TotalStock, &agg.UpdatedAt); err != nil {
		return nil, err
	}
	return &agg, nil
}

// Save writes the total of a row locked by GetForUpdate.
func (r *ProductAggregateRepo) Save(ctx context.Context, agg *entity.ProductAggregate) error {
	const query = `
		UPDATE product_aggregates
		SET total_stock = $2, updated_at = $3
		WHERE product_id = $1`
	if _, err := r.q.Exec(ctx, query, agg.ProductID, agg.TotalStock, agg.UpdatedAt); err != nil {
		return wrap("save product aggregate", "product:"+agg.ProductID, err)
	}
	return nil
}
