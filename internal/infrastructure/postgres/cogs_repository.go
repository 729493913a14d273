package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/inventory-costing/internal/domain"
	"github.com/jhoicas/inventory-costing/internal/domain/entity"
	"github.com/jhoicas/inventory-costing/internal/domain/repository"
)

var _ repository.COGSRepository = (*COGSRepo)(nil)

// COGSRepo stores sale line cost snapshots (pool or tx).
type COGSRepo struct {
	q Querier
}

// NewCOGSRepository builds the COGS adapter.
func NewCOGSRepository(q Querier) *COGSRepo {
	return &COGSRepo{q: q}
}

// Create inserts the record. A second record for the same movement is a duplicate.
func (r *COGSRepo) Create(ctx context.Context, c *entity.COGSRecord) error {
	const query = `
		INSERT INTO cogs_records (id, sale_item_id, sale_id, variant_id, product_id, warehouse_id, movement_id,
			quantity_sold, unit_cost_at_sale, total_cost, revenue, sale_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.q.Exec(ctx, query,
		c.ID, c.SaleItemID, c.SaleID, c.VariantID, c.ProductID, c.WarehouseID, c.MovementID,
		c.QuantitySold, c.UnitCostAtSale, c.TotalCost, c.Revenue, c.SaleDate,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.DuplicateMovementError{
				VariantID:   c.VariantID,
				WarehouseID: c.WarehouseID,
				ReferenceID: c.MovementID,
				Type:        string(entity.MovementSale),
			}
		}
		return fmt.Errorf("create cogs record: %w", err)
	}
	return nil
}

// GetBySaleItem returns the earliest record for the sale line, or nil, nil.
func (r *COGSRepo) GetBySaleItem(ctx context.Context, saleItemID string) (*entity.COGSRecord, error) {
	const query = `
		SELECT id, sale_item_id, sale_id, variant_id, product_id, warehouse_id, movement_id,
			quantity_sold, unit_cost_at_sale, total_cost, revenue, sale_date
		FROM cogs_records WHERE sale_item_id = $1
		ORDER BY sale_date, id
		LIMIT 1`
	var c entity.COGSRecord
	err := r.q.QueryRow(ctx, query, saleItemID).Scan(
		&c.ID, &c.SaleItemID, &c.SaleID, &c.VariantID, &c.ProductID, &c.WarehouseID, &c.MovementID,
		&c.QuantitySold, &c.UnitCostAtSale, &c.TotalCost, &c.Revenue, &c.SaleDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cogs record: %w", err)
	}
	return &c, nil
}
