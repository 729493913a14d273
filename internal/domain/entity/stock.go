package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// VariantWarehouseState is the costed stock position of one key.
// It is mutated exactly once per movement, in sequence order.
type VariantWarehouseState struct {
	VariantID           string
	WarehouseID         string
	QuantityOnHand      decimal.Decimal
	WeightedAverageCost decimal.Decimal
	LastAppliedSequence int64
	UpdatedAt           time.Time
}

// NewVariantWarehouseState returns the empty state for a key never seen before.
func NewVariantWarehouseState(key StockKey) VariantWarehouseState {
	return VariantWarehouseState{
		VariantID:           key.VariantID,
		WarehouseID:         key.WarehouseID,
		QuantityOnHand:      decimal.Zero,
		WeightedAverageCost: decimal.Zero,
	}
}

// Key returns the state's key.
func (s VariantWarehouseState) Key() StockKey {
	return StockKey{VariantID: s.VariantID, WarehouseID: s.WarehouseID}
}

// Value is quantityOnHand × weightedAverageCost.
func (s VariantWarehouseState) Value() decimal.Decimal {
	return s.QuantityOnHand.Mul(s.WeightedAverageCost)
}

// ProductVariant links a variant to its owning product.
type ProductVariant struct {
	ID        string
	ProductID string
	SKU       string
	Name      string
}

// ProductAggregate is the denormalized total stock of a product.
// TotalStock must equal Σ quantityOnHand over the product's variant/warehouse rows.
type ProductAggregate struct {
	ProductID  string
	TotalStock decimal.Decimal
	UpdatedAt  time.Time
}
