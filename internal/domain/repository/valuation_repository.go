package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventory-costing/internal/domain/entity"
)

// ValuationRepository is the read-only port used by valuation and integrity queries.
// Implementations are handed out inside a snapshot so every call sees the same committed state.
type ValuationRepository interface {
	// ValuationRows returns every variant/warehouse position, optionally for one warehouse.
	ValuationRows(ctx context.Context, warehouseID string) ([]entity.ValuationRow, error)
	// ProductTotals returns ProductAggregate.TotalStock keyed by product id.
	ProductTotals(ctx context.Context) (map[string]decimal.Decimal, error)
	// ProductStocks returns aggregate and detail sums side by side for every product.
	ProductStocks(ctx context.Context) ([]entity.ProductStock, error)
	// COGSByProduct sums COGS records in [DateFrom, DateTo] grouped by product.
	// Only the sum columns and SalesCount are filled.
	COGSByProduct(ctx context.Context, filter entity.COGSReportFilter) ([]entity.COGSReportLine, error)
}
