package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/inventory-costing/internal/domain"
	"github.com/jhoicas/inventory-costing/internal/domain/entity"
	"github.com/jhoicas/inventory-costing/internal/domain/repository"
)

var _ repository.StockMovementRepository = (*StockMovementRepo)(nil)

const movementColumns = `id, variant_id, warehouse_id, type, quantity_delta, unit_cost, reference_id,
	occurred_at, per_key_sequence, applied_unit_cost, quantity_after, wac_after, write_off_amount, created_at`

// StockMovementRepo is the append-only ledger (pool or tx).
type StockMovementRepo struct {
	q Querier
}

// NewStockMovementRepository builds the ledger adapter.
func NewStockMovementRepository(q Querier) *StockMovementRepo {
	return &StockMovementRepo{q: q}
}

// Append inserts the movement. The reference constraint maps to DuplicateMovementError.
func (r *StockMovementRepo) Append(ctx context.Context, m *entity.StockMovement) error {
	query := `INSERT INTO stock_movements (` + movementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.q.Exec(ctx, query,
		m.ID, m.VariantID, m.WarehouseID, string(m.Type), m.QuantityDelta, m.UnitCost, m.ReferenceID,
		m.OccurredAt, m.PerKeySequence, m.AppliedUnitCost, m.QuantityAfter, m.WACAfter, m.WriteOffAmount, m.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) && constraintName(err) == "stock_movements_reference_key" {
			return &domain.DuplicateMovementError{
				VariantID:   m.VariantID,
				WarehouseID: m.WarehouseID,
				ReferenceID: m.ReferenceID,
				Type:        string(m.Type),
			}
		}
		return wrap("append movement", m.Key().String(), err)
	}
	return nil
}

// ExistsReference reports whether (referenceID, type) is already on the key's ledger.
func (r *StockMovementRepo) ExistsReference(ctx context.Context, key entity.StockKey, referenceID string, typ entity.MovementType) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM stock_movements
			WHERE variant_id = $1 AND warehouse_id = $2 AND reference_id = $3 AND type = $4
		)`
	var exists bool
	if err := r.q.QueryRow(ctx, query, key.VariantID, key.WarehouseID, referenceID, string(typ)).Scan(&exists); err != nil {
		return false, fmt.Errorf("exists movement reference: %w", err)
	}
	return exists, nil
}

// List returns ledger history newest first.
func (r *StockMovementRepo) List(ctx context.Context, filter entity.MovementFilter) ([]*entity.StockMovement, error) {
	var (
		where []string
		args  []any
	)
	if filter.VariantID != "" {
		args = append(args, filter.VariantID)
		where = append(where, fmt.Sprintf("variant_id = $%d", len(args)))
	}
	if filter.WarehouseID != "" {
		args = append(args, filter.WarehouseID)
		where = append(where, fmt.Sprintf("warehouse_id = $%d", len(args)))
	}

	query := `SELECT ` + movementColumns + ` FROM stock_movements`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, per_key_sequence DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	list := make([]*entity.StockMovement, 0)
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("list movements scan: %w", err)
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func scanMovement(row pgx.Row) (*entity.StockMovement, error) {
	var m entity.StockMovement
	var typ string
	err := row.Scan(
		&m.ID, &m.VariantID, &m.WarehouseID, &typ, &m.QuantityDelta, &m.UnitCost, &m.ReferenceID,
		&m.OccurredAt, &m.PerKeySequence, &m.AppliedUnitCost, &m.QuantityAfter, &m.WACAfter, &m.WriteOffAmount, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Type = entity.MovementType(typ)
	return &m, nil
}
