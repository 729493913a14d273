package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// SaleLine carries what the sales workflow knows about the line being costed.
// SaleItemID defaults to the movement reference when empty.
type SaleLine struct {
	SaleID     string
	SaleItemID string
	UnitPrice  decimal.Decimal
}

// COGSRecord is the immutable cost basis of one sale line, captured in the same
// state transition that decremented stock. There is exactly one per sale movement.
type COGSRecord struct {
	ID             string
	SaleItemID     string
	SaleID         string
	VariantID      string
	ProductID      string
	WarehouseID    string
	MovementID     string
	QuantitySold   decimal.Decimal
	UnitCostAtSale decimal.Decimal
	TotalCost      decimal.Decimal
	Revenue        decimal.Decimal
	SaleDate       time.Time
}
