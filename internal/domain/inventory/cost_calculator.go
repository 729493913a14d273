package inventory

import "github.com/shopspring/decimal"

// WACScale is the number of decimal places a blended average cost is rounded to. Re-valuing a
// key at its rounded WAC is off by at most qty × 0.5e-16 from the exact blend.
const WACScale int32 = 16

// WACValueTolerance bounds |qty × WAC - exact value| for a key holding qty units.
func WACValueTolerance(qty decimal.Decimal) decimal.Decimal {
	return qty.Abs().Mul(decimal.New(5, -WACScale-1))
}

// CostCalculator implements the moving weighted average cost.
// NewCost = ((StockQty * CurrentCost) + (InQty * InCost)) / (StockQty + InQty)
// When nothing is on hand (or the key is backordered) the incoming cost becomes the average,
// so stale cost from an emptied key never leaks into new stock.
func CostCalculator(stockQty, currentCost, inQty, inCost decimal.Decimal) decimal.Decimal {
	if !stockQty.IsPositive() {
		return inCost
	}
	sum := stockQty.Add(inQty)
	if !sum.IsPositive() {
		return inCost
	}
	num := stockQty.Mul(currentCost).Add(inQty.Mul(inCost))
	return num.DivRound(sum, WACScale)
}

// WeightedAverage returns Σ(qty·cost)/Σqty over the positions holding stock,
// zero when none does. Backordered positions carry no value and are skipped.
func WeightedAverage(qtys, costs []decimal.Decimal) decimal.Decimal {
	totalQty := decimal.Zero
	totalValue := decimal.Zero
	for i := range qtys {
		if !qtys[i].IsPositive() {
			continue
		}
		totalQty = totalQty.Add(qtys[i])
		totalValue = totalValue.Add(qtys[i].Mul(costs[i]))
	}
	if !totalQty.IsPositive() {
		return decimal.Zero
	}
	return totalValue.DivRound(totalQty, WACScale)
}
