package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/inventory-costing/internal/application/inventory"
	"github.com/jhoicas/inventory-costing/internal/domain"
	"github.com/jhoicas/inventory-costing/internal/domain/entity"
)

const dateLayout = "2006-01-02"

// ReportHandler maneja los reportes de costo de ventas y rentabilidad.
type ReportHandler struct {
	valuation *inventory.ValuationService
	now       func() time.Time
}

// NewReportHandler construye el handler.
func NewReportHandler(valuation *inventory.ValuationService) *ReportHandler {
	return &ReportHandler{valuation: valuation, now: time.Now}
}

// GetCOGSReport godoc
// @Summary      Costo de ventas y rentabilidad por producto
// @Description  Aggregates the COGS records of sales in [date_from, date_to]. Products without sales in the window are omitted.
// @Tags         reports
// @Produce      json
// @Param        date_from     query  string  false  "Window start (YYYY-MM-DD or RFC3339). Default: first day of the current month."
// @Param        date_to       query  string  false  "Window end, inclusive (YYYY-MM-DD or RFC3339). Default: now."
// @Param        warehouse_id  query  string  false  "Warehouse filter"
// @Success      200  {object}  dto.COGSReportResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      500  {object}  dto.ErrorResponse
// @Router       /api/reports/cogs [get]
func (h *ReportHandler) GetCOGSReport(c *fiber.Ctx) error {
	from, to, err := h.parsePeriod(c.Query("date_from"), c.Query("date_to"))
	if err != nil {
		return writeError(c, err)
	}
	report, err := h.valuation.GetCOGSReport(c.UserContext(), entity.COGSReportFilter{
		DateFrom:    from,
		DateTo:      to,
		WarehouseID: c.Query("warehouse_id"),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toCOGSReportResponse(report))
}

// GetCOGSRecord godoc
// @Summary      Costo de una línea de venta
// @Tags         reports
// @Produce      json
// @Param        sale_item_id  path  string  true  "Sale line reference"
// @Success      200  {object}  dto.COGSRecordDTO
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/reports/cogs/records/{sale_item_id} [get]
func (h *ReportHandler) GetCOGSRecord(c *fiber.Ctx) error {
	rec, err := h.valuation.GetCOGSRecord(c.UserContext(), c.Params("sale_item_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toCOGSRecordDTO(rec))
}

// parsePeriod reads the report window. A date-only date_to covers the whole day.
func (h *ReportHandler) parsePeriod(fromStr, toStr string) (from, to time.Time, err error) {
	now := h.now()

	if toStr == "" {
		to = now
	} else {
		var dateOnly bool
		to, dateOnly, err = parseDate(toStr, now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, domain.Invalid("date_to", "must be YYYY-MM-DD or RFC3339")
		}
		if dateOnly {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
	}

	if fromStr == "" {
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	} else {
		from, _, err = parseDate(fromStr, now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, domain.Invalid("date_from", "must be YYYY-MM-DD or RFC3339")
		}
	}
	return from, to, nil
}

func parseDate(s string, loc *time.Location) (time.Time, bool, error) {
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	return t, false, err
}
