package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// SaleLineRequest is what the sales workflow knows about the line being costed.
type SaleLineRequest struct {
	SaleID     string          `json:"sale_id"`
	SaleItemID string          `json:"sale_item_id,omitempty"` // defaults to reference_id
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

// RegisterMovementRequest body for POST /api/inventory/movements.
type RegisterMovementRequest struct {
	ProductVariantID string           `json:"product_variant_id"`
	WarehouseID      string           `json:"warehouse_id"`
	Type             string           `json:"type"`
	QuantityDelta    decimal.Decimal  `json:"quantity_delta"`
	UnitCost         *decimal.Decimal `json:"unit_cost,omitempty"`
	ReferenceID      string           `json:"reference_id"`
	OccurredAt       *time.Time       `json:"occurred_at,omitempty"`
	Sale             *SaleLineRequest `json:"sale,omitempty"`
}

// MovementDTO is one ledger record.
type MovementDTO struct {
	ID               string           `json:"id"`
	ProductVariantID string           `json:"product_variant_id"`
	WarehouseID      string           `json:"warehouse_id"`
	Type             string           `json:"type"`
	QuantityDelta    decimal.Decimal  `json:"quantity_delta"`
	UnitCost         *decimal.Decimal `json:"unit_cost,omitempty"`
	AppliedUnitCost  decimal.Decimal  `json:"applied_unit_cost"`
	QuantityAfter    decimal.Decimal  `json:"quantity_after"`
	WACAfter         decimal.Decimal  `json:"wac_after"`
	WriteOffAmount   decimal.Decimal  `json:"write_off_amount"`
	ReferenceID      string           `json:"reference_id"`
	Sequence         int64            `json:"sequence"`
	OccurredAt       time.Time        `json:"occurred_at"`
	CreatedAt        time.Time        `json:"created_at"`
}

// COGSRecordDTO is the cost basis written for a sale line.
type COGSRecordDTO struct {
	ID             string          `json:"id"`
	SaleItemID     string          `json:"sale_item_id"`
	SaleID         string          `json:"sale_id,omitempty"`
	ProductID      string          `json:"product_id"`
	VariantID      string          `json:"product_variant_id"`
	WarehouseID    string          `json:"warehouse_id"`
	QuantitySold   decimal.Decimal `json:"quantity_sold"`
	UnitCostAtSale decimal.Decimal `json:"unit_cost_at_sale"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	Revenue        decimal.Decimal `json:"revenue"`
	SaleDate       time.Time       `json:"sale_date"`
}

// MovementResponse is returned by POST /api/inventory/movements.
type MovementResponse struct {
	MovementID          string           `json:"movement_id"`
	Sequence            int64            `json:"sequence"`
	QuantityOnHand      decimal.Decimal  `json:"quantity_on_hand"`
	WeightedAverageCost decimal.Decimal  `json:"weighted_average_cost"`
	UnitCost            decimal.Decimal  `json:"unit_cost"`
	WriteOff            *decimal.Decimal `json:"write_off,omitempty"`
	ProductTotalStock   decimal.Decimal  `json:"product_total_stock"`
	COGS                *COGSRecordDTO   `json:"cogs,omitempty"`
}

// TransferRequest body for POST /api/inventory/transfers.
type TransferRequest struct {
	ProductVariantID string          `json:"product_variant_id"`
	FromWarehouseID  string          `json:"from_warehouse_id"`
	ToWarehouseID    string          `json:"to_warehouse_id"`
	Quantity         decimal.Decimal `json:"quantity"`
	ReferenceID      string          `json:"reference_id"`
	OccurredAt       *time.Time      `json:"occurred_at,omitempty"`
}

// TransferResponse carries both legs of a transfer.
type TransferResponse struct {
	Out      MovementDTO     `json:"out"`
	In       MovementDTO     `json:"in"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// MovementListResponse is a page of ledger history.
type MovementListResponse struct {
	Items []MovementDTO `json:"items"`
	Page  PageResponse  `json:"page"`
}

// ValuationItemDTO is one product valued at its weighted average cost.
type ValuationItemDTO struct {
	ProductID       string          `json:"product_id"`
	ProductName     string          `json:"product_name"`
	CurrentQuantity decimal.Decimal `json:"current_quantity"`
	AverageCost     decimal.Decimal `json:"average_cost"`
	TotalValue      decimal.Decimal `json:"total_value"`
}

// ValuationResponse is the valuation listing plus grand totals.
type ValuationResponse struct {
	WarehouseID   string             `json:"warehouse_id,omitempty"`
	Items         []ValuationItemDTO `json:"items"`
	TotalQuantity decimal.Decimal    `json:"total_quantity"`
	TotalValue    decimal.Decimal    `json:"total_value"`
	GeneratedAt   time.Time          `json:"generated_at"`
}

// COGSLineDTO is the profitability of one product (or the summary row).
type COGSLineDTO struct {
	ProductID         string          `json:"product_id,omitempty"`
	ProductName       string          `json:"product_name,omitempty"`
	TotalQuantitySold decimal.Decimal `json:"total_quantity_sold"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	TotalCOGS         decimal.Decimal `json:"total_cogs"`
	GrossProfit       decimal.Decimal `json:"gross_profit"`
	ProfitMargin      decimal.Decimal `json:"profit_margin"`
	AverageWAC        decimal.Decimal `json:"average_wac"`
	SalesCount        int             `json:"sales_count"`
}

// COGSReportResponse is returned by GET /api/reports/cogs.
type COGSReportResponse struct {
	DateFrom time.Time     `json:"date_from"`
	DateTo   time.Time     `json:"date_to"`
	Lines    []COGSLineDTO `json:"lines"`
	Summary  COGSLineDTO   `json:"summary"`
}

// ResyncRequest body for POST /api/inventory/aggregates/resync. An empty ProductID resyncs every product.
type ResyncRequest struct {
	ProductID string `json:"product_id"`
}

// ResyncResultDTO describes one product after a resync.
type ResyncResultDTO struct {
	ProductID  string          `json:"product_id"`
	Previous   decimal.Decimal `json:"previous"`
	Recomputed decimal.Decimal `json:"recomputed"`
	Repaired   bool            `json:"repaired"`
}

// ResyncResponse lists the resynced products and any per-product failures.
type ResyncResponse struct {
	Results []ResyncResultDTO `json:"results"`
	Errors  []string          `json:"errors,omitempty"`
}

// MismatchDTO is one aggregate that disagrees with its detail rows.
type MismatchDTO struct {
	ProductID string          `json:"product_id"`
	Recorded  decimal.Decimal `json:"recorded"`
	Computed  decimal.Decimal `json:"computed"`
}

// IntegrityResponse is returned by GET /api/inventory/aggregates/integrity.
type IntegrityResponse struct {
	CheckedAt  time.Time     `json:"checked_at"`
	Checked    int           `json:"checked"`
	Consistent bool          `json:"consistent"`
	Mismatches []MismatchDTO `json:"mismatches"`
}
