package inventory

import (
	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventory-costing/internal/domain/entity"
)

// GrossProfit = revenue - cost.
func GrossProfit(revenue, cost decimal.Decimal) decimal.Decimal {
	return revenue.Sub(cost)
}

// ProfitMargin = grossProfit / revenue, 0 when revenue is 0.
func ProfitMargin(revenue, cost decimal.Decimal) decimal.Decimal {
	if revenue.IsZero() {
		return decimal.Zero
	}
	return GrossProfit(revenue, cost).Div(revenue)
}

// AverageUnitCost = totalCost / quantity, 0 when quantity is 0.
func AverageUnitCost(totalCost, qty decimal.Decimal) decimal.Decimal {
	if qty.IsZero() {
		return decimal.Zero
	}
	return totalCost.Div(qty)
}

// FinishReportLine fills the derived columns of a COGS line from its sums.
func FinishReportLine(l *entity.COGSReportLine) {
	l.GrossProfit = GrossProfit(l.TotalRevenue, l.TotalCOGS)
	l.ProfitMargin = ProfitMargin(l.TotalRevenue, l.TotalCOGS)
	l.AverageWAC = AverageUnitCost(l.TotalCOGS, l.TotalQuantitySold)
}

// SummarizeCOGS folds report lines into one total line.
func SummarizeCOGS(lines []entity.COGSReportLine) entity.COGSReportLine {
	total := entity.COGSReportLine{
		TotalQuantitySold: decimal.Zero,
		TotalRevenue:      decimal.Zero,
		TotalCOGS:         decimal.Zero,
	}
	for _, l := range lines {
		total.TotalQuantitySold = total.TotalQuantitySold.Add(l.TotalQuantitySold)
		total.TotalRevenue = total.TotalRevenue.Add(l.TotalRevenue)
		total.TotalCOGS = total.TotalCOGS.Add(l.TotalCOGS)
		total.SalesCount += l.SalesCount
	}
	FinishReportLine(&total)
	return total
}

// ValueInventory folds variant/warehouse rows into per-product valuations.
// currentQuantity comes from the product aggregate; the average cost is weighted by
// the on-hand quantity of each row.
func ValueInventory(rows []entity.ValuationRow, totals map[string]decimal.Decimal) []entity.InventoryValuation {
	type acc struct {
		name  string
		qtys  []decimal.Decimal
		costs []decimal.Decimal
	}
	order := make([]string, 0)
	byProduct := make(map[string]*acc)
	for _, r := range rows {
		a, ok := byProduct[r.ProductID]
		if !ok {
			a = &acc{name: r.ProductName}
			byProduct[r.ProductID] = a
			order = append(order, r.ProductID)
		}
		a.qtys = append(a.qtys, r.QuantityOnHand)
		a.costs = append(a.costs, r.WeightedAverageCost)
	}

	out := make([]entity.InventoryValuation, 0, len(order))
	for _, id := range order {
		a := byProduct[id]
		qty, ok := totals[id]
		if !ok {
			qty = decimal.Zero
		}
		avg := WeightedAverage(a.qtys, a.costs)
		out = append(out, entity.InventoryValuation{
			ProductID:       id,
			ProductName:     a.name,
			CurrentQuantity: qty,
			AverageCost:     avg,
			TotalValue:      qty.Mul(avg),
		})
	}
	return out
}
