package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventory-costing/internal/application/inventory"
	"github.com/jhoicas/inventory-costing/internal/domain"
	"github.com/jhoicas/inventory-costing/internal/domain/entity"
	costing "github.com/jhoicas/inventory-costing/internal/domain/inventory"
)

var day = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func soldAt(variant, warehouse, qty, ref, saleID, price string, at time.Time) inventory.MovementInput {
	in := sale(variant, warehouse, qty, ref)
	in.OccurredAt = at
	in.Sale = &entity.SaleLine{SaleID: saleID, UnitPrice: d(price)}
	return in
}

func TestGetInventoryValuation_WeightsAcrossWarehouses(t *testing.T) {
	f := newFixture(t, costing.Policy{})
	f.mustApply(t, receipt("var-1", "wh-1", "10", "4", "po-1"))
	f.mustApply(t, receipt("var-2", "wh-2", "30", "8", "po-1"))
	f.mustApply(t, receipt("var-3", "wh-1", "5", "2", "po-1"))

	report, err := f.val.GetInventoryValuation(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, report.Items, 2)

	coffee := report.Items[0]
	assert.Equal(t, "prod-1", coffee.ProductID)
	assert.Equal(t, "Coffee beans", coffee.ProductName)
	assertDecimal(t, "40", coffee.CurrentQuantity, "coffee qty")
	assertDecimal(t, "7", coffee.AverageCost, "coffee avg")
	assertDecimal(t, "280", coffee.TotalValue, "coffee value")

	tea := report.Items[1]
	assertDecimal(t, "10", tea.TotalValue, "tea value")
	assertDecimal(t, "290", report.TotalValue, "grand total")

	byWarehouse, err := f.val.GetInventoryValuation(context.Background(), "wh-1")
	require.NoError(t, err)
	require.Len(t, byWarehouse.Items, 2)
	assertDecimal(t, "10", byWarehouse.Items[0].CurrentQuantity, "coffee in wh-1")
	assertDecimal(t, "40", byWarehouse.Items[0].TotalValue, "coffee value in wh-1")
	assertDecimal(t, "50", byWarehouse.TotalValue, "wh-1 total")
}

func TestGetInventoryValuation_Empty(t *testing.T) {
	f := newFixture(t, costing.Policy{})
	report, err := f.val.GetInventoryValuation(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, report.Items)
	assert.True(t, report.TotalValue.IsZero())
}

func TestGetCOGSReport_AggregatesWindow(t *testing.T) {
	f := newFixture(t, costing.Policy{})
	f.mustApply(t, receipt("var-1", "wh-1", "10", "5", "po-1"))
	f.mustApply(t, receipt("var-1", "wh-1", "10", "7", "po-2"))
	f.mustApply(t, receipt("var-3", "wh-1", "10", "2", "po-1"))

	f.mustApply(t, soldAt("var-1", "wh-1", "5", "l-1", "s-1", "10", day))
	f.mustApply(t, soldAt("var-1", "wh-1", "2", "l-2", "s-1", "12", day.Add(time.Hour)))
	f.mustApply(t, soldAt("var-1", "wh-1", "1", "l-3", "s-2", "10", day.Add(2*time.Hour)))
	f.mustApply(t, soldAt("var-3", "wh-1", "4", "l-4", "s-2", "2", day))
	// Outside the window.
	f.mustApply(t, soldAt("var-1", "wh-1", "1", "l-5", "s-3", "10", day.AddDate(0, 0, 5)))

	report, err := f.val.GetCOGSReport(context.Background(), entity.COGSReportFilter{
		DateFrom: day.Add(-time.Hour),
		DateTo:   day.AddDate(0, 0, 1),
	})
	require.NoError(t, err)
	require.Len(t, report.Lines, 2)

	coffee := report.Lines[0]
	assert.Equal(t, "prod-1", coffee.ProductID)
	assertDecimal(t, "8", coffee.TotalQuantitySold, "qty")
	assertDecimal(t, "84", coffee.TotalRevenue, "revenue") // 50 + 24 + 10
	assertDecimal(t, "48", coffee.TotalCOGS, "cogs")
	assertDecimal(t, "36", coffee.GrossProfit, "profit")
	assertDecimal(t, "0.42857143", coffee.ProfitMargin, "margin")
	assertDecimal(t, "6", coffee.AverageWAC, "avg wac")
	assert.Equal(t, 2, coffee.SalesCount)

	tea := report.Lines[1]
	assertDecimal(t, "8", tea.TotalRevenue, "tea revenue")
	assertDecimal(t, "8", tea.TotalCOGS, "tea cogs")
	assertDecimal(t, "0", tea.ProfitMargin, "tea margin")
	assert.Equal(t, 1, tea.SalesCount)

	assertDecimal(t, "92", report.Summary.TotalRevenue, "summary revenue")
	assertDecimal(t, "56", report.Summary.TotalCOGS, "summary cogs")
	assert.Equal(t, 3, report.Summary.SalesCount)
}

func TestGetCOGSReport_ZeroRevenueHasZeroMargin(t *testing.T) {
	f := newFixture(t, costing.Policy{})
	f.mustApply(t, receipt("var-1", "wh-1", "2", "5", "po-1"))
	in := sale("var-1", "wh-1", "1", "l-1")
	in.OccurredAt = day
	f.mustApply(t, in)

	report, err := f.val.GetCOGSReport(context.Background(), entity.COGSReportFilter{DateFrom: day, DateTo: day})
	require.NoError(t, err)
	require.Len(t, report.Lines, 1)
	assert.True(t, report.Lines[0].TotalRevenue.IsZero())
	assert.True(t, report.Lines[0].ProfitMargin.IsZero())
	assertDecimal(t, "-5", report.Lines[0].GrossProfit, "profit")
}

func TestGetCOGSReport_WarehouseFilterAndInvalidWindow(t *testing.T) {
	f := newFixture(t, costing.Policy{})
	f.mustApply(t, receipt("var-1", "wh-1", "2", "5", "po-1"))
	f.mustApply(t, receipt("var-1", "wh-2", "2", "9", "po-1"))
	f.mustApply(t, soldAt("var-1", "wh-1", "1", "l-1", "s-1", "10", day))
	f.mustApply(t, soldAt("var-1", "wh-2", "1", "l-2", "s-2", "10", day))

	report, err := f.val.GetCOGSReport(context.Background(), entity.COGSReportFilter{
		DateFrom:    day.Add(-time.Minute),
		DateTo:      day.Add(time.Minute),
		WarehouseID: "wh-2",
	})
	require.NoError(t, err)
	require.Len(t, report.Lines, 1)
	assertDecimal(t, "9", report.Lines[0].TotalCOGS, "wh-2 cogs")

	_, err = f.val.GetCOGSReport(context.Background(), entity.COGSReportFilter{DateFrom: day, DateTo: day.Add(-time.Second)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGetCOGSReport_EmptyWindow(t *testing.T) {
	f := newFixture(t, costing.Policy{})
	report, err := f.val.GetCOGSReport(context.Background(), entity.COGSReportFilter{DateFrom: day, DateTo: day})
	require.NoError(t, err)
	assert.Empty(t, report.Lines)
	assert.True(t, report.Summary.ProfitMargin.IsZero())
}

func TestListMovements_NewestFirstWithPaging(t *testing.T) {
	f := newFixture(t, costing.Policy{})
	f.mustApply(t, receipt("var-1", "wh-1", "5", "1", "po-1"))
	f.mustApply(t, receipt("var-1", "wh-2", "5", "1", "po-2"))
	f.mustApply(t, sale("var-1", "wh-1", "1", "l-1"))
	f.mustApply(t, sale("var-1", "wh-1", "1", "l-2"))

	list, err := f.val.ListMovements(context.Background(), entity.MovementFilter{VariantID: "var-1", WarehouseID: "wh-1"})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "l-2", list[0].ReferenceID)
	assert.Equal(t, int64(3), list[0].PerKeySequence)
	assert.Equal(t, "po-1", list[2].ReferenceID)

	page, err := f.val.ListMovements(context.Background(), entity.MovementFilter{VariantID: "var-1", Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "l-1", page[0].ReferenceID)
	assert.Equal(t, "po-2", page[1].ReferenceID)
}
