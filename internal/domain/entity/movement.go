package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementType is the closed set of stock-affecting events.
type MovementType string

const (
	MovementPurchaseReceipt MovementType = "purchase_receipt"
	MovementSale            MovementType = "sale"
	MovementReturn          MovementType = "return"
	MovementAdjustment      MovementType = "adjustment"
	MovementTransferOut     MovementType = "transfer_out"
	MovementTransferIn      MovementType = "transfer_in"
)

// MovementTypes lists every valid type, in ledger display order.
var MovementTypes = []MovementType{
	MovementPurchaseReceipt,
	MovementSale,
	MovementReturn,
	MovementAdjustment,
	MovementTransferOut,
	MovementTransferIn,
}

// ParseMovementType validates a raw type coming from the ingestion boundary.
func ParseMovementType(s string) (MovementType, bool) {
	for _, t := range MovementTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// RequiresUnitCost reports whether the type must carry an explicit unit cost.
func (t MovementType) RequiresUnitCost() bool {
	return t == MovementPurchaseReceipt || t == MovementTransferIn
}

// StockKey identifies a product variant located in a warehouse.
type StockKey struct {
	VariantID   string
	WarehouseID string
}

// String renders the key as used for locks and logs.
func (k StockKey) String() string {
	return k.VariantID + "@" + k.WarehouseID
}

// Less orders keys deterministically; multi-key operations lock in this order.
func (k StockKey) Less(o StockKey) bool {
	if k.VariantID != o.VariantID {
		return k.VariantID < o.VariantID
	}
	return k.WarehouseID < o.WarehouseID
}

// StockMovement is an immutable ledger record. Corrections are new compensating movements.
type StockMovement struct {
	ID              string
	VariantID       string
	WarehouseID     string
	Type            MovementType
	QuantityDelta   decimal.Decimal  // signed: positive inbound, negative outbound
	UnitCost        *decimal.Decimal // only on cost-bearing inbound movements
	ReferenceID     string           // source document id; (ReferenceID, Type) is unique per key
	OccurredAt      time.Time
	PerKeySequence  int64 // assigned at append time
	AppliedUnitCost decimal.Decimal
	QuantityAfter   decimal.Decimal
	WACAfter        decimal.Decimal
	WriteOffAmount  decimal.Decimal
	CreatedAt       time.Time
}

// Key returns the movement's (variant, warehouse) key.
func (m *StockMovement) Key() StockKey {
	return StockKey{VariantID: m.VariantID, WarehouseID: m.WarehouseID}
}

// IsInbound reports whether the movement adds quantity.
func (m *StockMovement) IsInbound() bool {
	return m.QuantityDelta.IsPositive()
}

// MovementFilter narrows ledger history queries.
type MovementFilter struct {
	VariantID   string
	WarehouseID string
	Limit       int
	Offset      int
}
