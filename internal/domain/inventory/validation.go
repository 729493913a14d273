package inventory

import (
	"github.com/jhoicas/inventory-costing/internal/domain"
	"github.com/jhoicas/inventory-costing/internal/domain/entity"
)

// ValidateMovement checks the shape of a movement before it reaches the ledger.
func ValidateMovement(m *entity.StockMovement) error {
	if m.VariantID == "" {
		return domain.Invalid("product_variant_id", "is required")
	}
	if m.WarehouseID == "" {
		return domain.Invalid("warehouse_id", "is required")
	}
	if m.ReferenceID == "" {
		return domain.Invalid("reference_id", "is required")
	}
	if _, ok := entity.ParseMovementType(string(m.Type)); !ok {
		return domain.Invalid("type", "is not a known movement type")
	}
	if m.QuantityDelta.IsZero() {
		return domain.Invalid("quantity_delta", "must not be zero")
	}

	switch m.Type {
	case entity.MovementPurchaseReceipt, entity.MovementTransferIn:
		if !m.QuantityDelta.IsPositive() {
			return domain.Invalid("quantity_delta", "must be positive for "+string(m.Type))
		}
	case entity.MovementSale, entity.MovementTransferOut:
		if !m.QuantityDelta.IsNegative() {
			return domain.Invalid("quantity_delta", "must be negative for "+string(m.Type))
		}
	}

	if m.Type.RequiresUnitCost() && m.UnitCost == nil {
		return domain.Invalid("unit_cost", "is required for "+string(m.Type))
	}
	if m.UnitCost != nil {
		if m.UnitCost.IsNegative() {
			return domain.Invalid("unit_cost", "must not be negative")
		}
		if m.QuantityDelta.IsNegative() {
			return domain.Invalid("unit_cost", "is only accepted on inbound movements")
		}
	}
	return nil
}
