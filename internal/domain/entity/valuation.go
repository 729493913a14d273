package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryValuation is the derived value of a product's on-hand stock.
type InventoryValuation struct {
	ProductID       string
	ProductName     string
	CurrentQuantity decimal.Decimal
	AverageCost     decimal.Decimal // quantity-weighted across variants and warehouses
	TotalValue      decimal.Decimal
}

// ValuationRow is one variant/warehouse position as read for valuation.
type ValuationRow struct {
	ProductID           string
	ProductName         string
	QuantityOnHand      decimal.Decimal
	WeightedAverageCost decimal.Decimal
}

// ProductStock is the aggregate next to the recorded detail, read in one snapshot.
type ProductStock struct {
	ProductID    string
	ProductName  string
	AggregateQty decimal.Decimal // ProductAggregate.TotalStock
	DetailQty    decimal.Decimal // Σ quantityOnHand
	HasAggregate bool
}

// COGSReportLine is the profitability of one product over a window.
type COGSReportLine struct {
	ProductID         string
	ProductName       string
	TotalQuantitySold decimal.Decimal
	TotalRevenue      decimal.Decimal
	TotalCOGS         decimal.Decimal
	GrossProfit       decimal.Decimal
	ProfitMargin      decimal.Decimal
	AverageWAC        decimal.Decimal
	SalesCount        int
}

// COGSReportFilter parameterizes a COGS report.
type COGSReportFilter struct {
	DateFrom    time.Time
	DateTo      time.Time
	WarehouseID string
}
