package inventory

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventory-costing/internal/domain"
	"github.com/jhoicas/inventory-costing/internal/domain/entity"
)

// ErrOutOfSequence is returned when a movement does not follow the key's last applied sequence.
var ErrOutOfSequence = errors.New("movement applied out of sequence")

// Policy holds the deployment-level stock rules.
type Policy struct {
	AllowNegativeStock bool
}

// Transition is the result of applying one movement to one key.
type Transition struct {
	Before   entity.VariantWarehouseState
	After    entity.VariantWarehouseState
	UnitCost decimal.Decimal // cost the moved units were valued at
	WriteOff decimal.Decimal // value consumed by a negative adjustment
}

// Value is |quantityDelta| × UnitCost.
func (t Transition) Value() decimal.Decimal {
	return t.After.QuantityOnHand.Sub(t.Before.QuantityOnHand).Abs().Mul(t.UnitCost)
}

// ApplyMovement computes the next state of a key. It never mutates its inputs, so a
// rejected movement leaves the caller's state untouched.
//
// Inbound with unit cost: WAC follows CostCalculator.
// Inbound without unit cost (adjustment, customer return): valued at the current WAC, WAC unchanged.
// Outbound: quantity only, valued at the current WAC. Negative adjustments record a write-off.
func ApplyMovement(state entity.VariantWarehouseState, m *entity.StockMovement, policy Policy) (Transition, error) {
	if m.VariantID != state.VariantID || m.WarehouseID != state.WarehouseID {
		return Transition{}, fmt.Errorf("movement key %s does not match state key %s", m.Key(), state.Key())
	}
	if m.PerKeySequence != state.LastAppliedSequence+1 {
		return Transition{}, fmt.Errorf("%w: got %d, last applied %d", ErrOutOfSequence, m.PerKeySequence, state.LastAppliedSequence)
	}

	next := state
	next.LastAppliedSequence = m.PerKeySequence
	t := Transition{Before: state, WriteOff: decimal.Zero}

	switch {
	case m.QuantityDelta.IsPositive():
		if m.UnitCost != nil {
			if m.UnitCost.IsNegative() {
				return Transition{}, domain.Invalid("unit_cost", "must not be negative")
			}
			next.WeightedAverageCost = CostCalculator(state.QuantityOnHand, state.WeightedAverageCost, m.QuantityDelta, *m.UnitCost)
			t.UnitCost = *m.UnitCost
		} else {
			t.UnitCost = state.WeightedAverageCost
		}
		next.QuantityOnHand = state.QuantityOnHand.Add(m.QuantityDelta)

	case m.QuantityDelta.IsNegative():
		out := m.QuantityDelta.Neg()
		newQty := state.QuantityOnHand.Sub(out)
		if newQty.IsNegative() && !policy.AllowNegativeStock {
			return Transition{}, &domain.InsufficientStockError{
				VariantID:   state.VariantID,
				WarehouseID: state.WarehouseID,
				OnHand:      state.QuantityOnHand,
				Requested:   out,
			}
		}
		next.QuantityOnHand = newQty
		t.UnitCost = state.WeightedAverageCost
		if m.Type == entity.MovementAdjustment {
			t.WriteOff = out.Mul(state.WeightedAverageCost)
		}

	default:
		return Transition{}, domain.Invalid("quantity_delta", "must not be zero")
	}

	t.After = next
	return t, nil
}

// Stamp copies the transition outcome onto the ledger record.
func (t Transition) Stamp(m *entity.StockMovement) {
	m.AppliedUnitCost = t.UnitCost
	m.QuantityAfter = t.After.QuantityOnHand
	m.WACAfter = t.After.WeightedAverageCost
	m.WriteOffAmount = t.WriteOff
}
