package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/inventory-costing/internal/application/dto"
	"github.com/jhoicas/inventory-costing/internal/application/inventory"
	"github.com/jhoicas/inventory-costing/internal/domain"
)

// AggregateHandler expone los endpoints de operación sobre los agregados por producto.
type AggregateHandler struct {
	aggregator *inventory.StockAggregator
}

// NewAggregateHandler construye el handler.
func NewAggregateHandler(aggregator *inventory.StockAggregator) *AggregateHandler {
	return &AggregateHandler{aggregator: aggregator}
}

// Resync godoc
// @Summary      Recalcular agregados por producto
// @Description  Rebuilds ProductAggregate.total_stock from the variant/warehouse rows. Without product_id every product is resynced.
// @Tags         aggregates
// @Accept       json
// @Produce      json
// @Param        body  body  dto.ResyncRequest  false  "product_id"
// @Success      200  {object}  dto.ResyncResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      500  {object}  dto.ResyncResponse
// @Router       /api/inventory/aggregates/resync [post]
func (h *AggregateHandler) Resync(c *fiber.Ctx) error {
	var in dto.ResyncRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return badBody(c)
		}
	}
	if in.ProductID == "" {
		in.ProductID = c.Query("product_id")
	}

	if in.ProductID != "" {
		res, err := h.aggregator.Recompute(c.UserContext(), in.ProductID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(dto.ResyncResponse{Results: []dto.ResyncResultDTO{toResyncResultDTO(*res)}})
	}

	results, err := h.aggregator.ResyncAll(c.UserContext())
	out := dto.ResyncResponse{Results: make([]dto.ResyncResultDTO, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, toResyncResultDTO(r))
	}
	if err == nil {
		return c.JSON(out)
	}
	if len(results) == 0 && !isJoined(err) {
		return writeError(c, err)
	}
	for _, e := range unjoin(err) {
		out.Errors = append(out.Errors, e.Error())
	}
	return c.Status(fiber.StatusInternalServerError).JSON(out)
}

// Integrity godoc
// @Summary      Verificar agregados por producto
// @Description  Compares every aggregate with the sum of its detail rows on one snapshot. Report only, nothing is repaired.
// @Tags         aggregates
// @Produce      json
// @Success      200  {object}  dto.IntegrityResponse
// @Failure      409  {object}  dto.IntegrityResponse
// @Failure      500  {object}  dto.ErrorResponse
// @Router       /api/inventory/aggregates/integrity [get]
func (h *AggregateHandler) Integrity(c *fiber.Ctx) error {
	report, err := h.aggregator.IntegrityCheck(c.UserContext())
	if err != nil && (report == nil || !errors.Is(err, domain.ErrInconsistent)) {
		return writeError(c, err)
	}
	if !report.Consistent() {
		return c.Status(fiber.StatusConflict).JSON(toIntegrityResponse(report))
	}
	return c.JSON(toIntegrityResponse(report))
}

func isJoined(err error) bool {
	_, ok := err.(interface{ Unwrap() []error })
	return ok
}

func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
