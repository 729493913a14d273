package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventory-costing/internal/domain/entity"
	"github.com/jhoicas/inventory-costing/internal/domain/repository"
)

var _ repository.ValuationRepository = (*ValuationRepo)(nil)

// ValuationRepo runs the read-only report queries. Bind it to a snapshot transaction.
type ValuationRepo struct {
	q Querier
}

// NewValuationRepository builds the report adapter.
func NewValuationRepository(q Querier) *ValuationRepo {
	return &ValuationRepo{q: q}
}

// ValuationRows returns the positions ordered by product name.
func (r *ValuationRepo) ValuationRows(ctx context.Context, warehouseID string) ([]entity.ValuationRow, error) {
	const query = `
	SELECT
	    p.id                      AS product_id,
	    p.name                    AS product_name,
	    s.quantity_on_hand,
	    s.weighted_average_cost
	FROM variant_warehouse_stock s
	JOIN product_variants v ON v.id = s.variant_id
	JOIN products         p ON p.id = v.product_id
	WHERE ($1::text = '' OR s.warehouse_id = $1)
	ORDER BY p.name, p.id, s.variant_id, s.warehouse_id`

	rows, err := r.q.Query(ctx, query, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("valuation.ValuationRows: %w", err)
	}
	defer rows.Close()

	out := make([]entity.ValuationRow, 0)
	for rows.Next() {
		var row entity.ValuationRow
		if err := rows.Scan(&row.ProductID, &row.ProductName, &row.QuantityOnHand, &row.WeightedAverageCost); err != nil {
			return nil, fmt.Errorf("valuation.ValuationRows scan: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ProductTotals returns the aggregate of every product that has one.
func (r *ValuationRepo) ProductTotals(ctx context.Context) (map[string]decimal.Decimal, error) {
	rows, err := r.q.Query(ctx, `SELECT product_id, total_stock FROM product_aggregates`)
	if err != nil {
		return nil, fmt.Errorf("valuation.ProductTotals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]decimal.Decimal)
	for rows.Next() {
		var id string
		var total decimal.Decimal
		if err := rows.Scan(&id, &total); err != nil {
			return nil, fmt.Errorf("valuation.ProductTotals scan: %w", err)
		}
		totals[id] = total
	}
	return totals, rows.Err()
}

// ProductStocks puts each product's aggregate next to the sum of its detail rows.
func (r *ValuationRepo) ProductStocks(ctx context.Context) ([]entity.ProductStock, error) {
	const query = `
	SELECT
	    p.id,
	    p.name,
	    COALESCE(a.total_stock, 0)                        AS aggregate_qty,
	    COALESCE(d.detail_qty, 0)                         AS detail_qty,
	    a.product_id IS NOT NULL                          AS has_aggregate
	FROM products p
	LEFT JOIN product_aggregates a ON a.product_id = p.id
	LEFT JOIN (
	    SELECT v.product_id, SUM(s.quantity_on_hand) AS detail_qty
	    FROM variant_warehouse_stock s
	    JOIN product_variants v ON v.id = s.variant_id
	    GROUP BY v.product_id
	) d ON d.product_id = p.id
	ORDER BY p.name, p.id`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("valuation.ProductStocks: %w", err)
	}
	defer rows.Close()

	out := make([]entity.ProductStock, 0)
	for rows.Next() {
		var ps entity.ProductStock
		if err := rows.Scan(&ps.ProductID, &ps.ProductName, &ps.AggregateQty, &ps.DetailQty, &ps.HasAggregate); err != nil {
			return nil, fmt.Errorf("valuation.ProductStocks scan: %w", err)
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

// COGSByProduct sums the window's COGS records per product. A line without a sale id counts as
// its own sale.
func (r *ValuationRepo) COGSByProduct(ctx context.Context, f entity.COGSReportFilter) ([]entity.COGSReportLine, error) {
	const query = `
	SELECT
	    p.id                                                        AS product_id,
	    p.name                                                      AS product_name,
	    COALESCE(SUM(c.quantity_sold), 0)                           AS total_quantity_sold,
	    COALESCE(SUM(c.revenue),       0)                           AS total_revenue,
	    COALESCE(SUM(c.total_cost),    0)                           AS total_cogs,
	    COUNT(DISTINCT COALESCE(NULLIF(c.sale_id, ''), 'item:' || c.sale_item_id)) AS sales_count
	FROM cogs_records c
	JOIN products p ON p.id = c.product_id
	WHERE c.sale_date BETWEEN $1 AND $2
	  AND ($3::text = '' OR c.warehouse_id = $3)
	GROUP BY p.id, p.name
	ORDER BY p.name, p.id`

	rows, err := r.q.Query(ctx, query, f.DateFrom, f.DateTo, f.WarehouseID)
	if err != nil {
		return nil, fmt.Errorf("valuation.COGSByProduct: %w", err)
	}
	defer rows.Close()

	out := make([]entity.COGSReportLine, 0)
	for rows.Next() {
		var l entity.COGSReportLine
		if err := rows.Scan(
			&l.ProductID,
			&l.ProductName,
			&l.TotalQuantitySold,
			&l.TotalRevenue,
			&l.TotalCOGS,
			&l.SalesCount,
		); err != nil {
			return nil, fmt.Errorf("valuation.COGSByProduct scan: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
