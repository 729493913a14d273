package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/inventory-costing/internal/application/dto"
	"github.com/jhoicas/inventory-costing/internal/application/inventory"
	"github.com/jhoicas/inventory-costing/internal/domain/entity"
)

// InventoryHandler maneja las peticiones HTTP de movimientos, traslados, kardex y valorización.
type InventoryHandler struct {
	movements *inventory.RegisterMovementUseCase
	valuation *inventory.ValuationService
}

// NewInventoryHandler construye el handler.
func NewInventoryHandler(movements *inventory.RegisterMovementUseCase, valuation *inventory.ValuationService) *InventoryHandler {
	return &InventoryHandler{movements: movements, valuation: valuation}
}

// RegisterMovement godoc
// @Summary      Registrar movimiento de inventario
// @Tags         inventory
// @Accept       json
// @Produce      json
// @Param        body  body  dto.RegisterMovementRequest  true  "product_variant_id, warehouse_id, type, quantity_delta, unit_cost (receipts), reference_id, sale (sales)"
// @Success      201   {object}  dto.MovementResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      503   {object}  dto.ErrorResponse
// @Router       /api/inventory/movements [post]
func (h *InventoryHandler) RegisterMovement(c *fiber.Ctx) error {
	var in dto.RegisterMovementRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	mi := inventory.MovementInput{
		VariantID:     in.ProductVariantID,
		WarehouseID:   in.WarehouseID,
		Type:          in.Type,
		QuantityDelta: in.QuantityDelta,
		UnitCost:      in.UnitCost,
		ReferenceID:   in.ReferenceID,
	}
	if in.OccurredAt != nil {
		mi.OccurredAt = *in.OccurredAt
	}
	if in.Sale != nil {
		mi.Sale = &entity.SaleLine{SaleID: in.Sale.SaleID, SaleItemID: in.Sale.SaleItemID, UnitPrice: in.Sale.UnitPrice}
	}

	res, err := h.movements.RegisterMovement(c.UserContext(), mi)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toMovementResponse(res))
}

// TransferStock godoc
// @Summary      Trasladar stock entre bodegas
// @Description  Records transfer_out and transfer_in legs in one unit; the destination is costed at the source WAC.
// @Tags         inventory
// @Accept       json
// @Produce      json
// @Param        body  body  dto.TransferRequest  true  "product_variant_id, from_warehouse_id, to_warehouse_id, quantity, reference_id"
// @Success      201   {object}  dto.TransferResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      503   {object}  dto.ErrorResponse
// @Router       /api/inventory/transfers [post]
func (h *InventoryHandler) TransferStock(c *fiber.Ctx) error {
	var in dto.TransferRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	ti := inventory.TransferInput{
		VariantID:       in.ProductVariantID,
		FromWarehouseID: in.FromWarehouseID,
		ToWarehouseID:   in.ToWarehouseID,
		Quantity:        in.Quantity,
		ReferenceID:     in.ReferenceID,
	}
	if in.OccurredAt != nil {
		ti.OccurredAt = *in.OccurredAt
	}

	res, err := h.movements.TransferStock(c.UserContext(), ti)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.TransferResponse{
		Out:      toMovementDTO(res.Out),
		In:       toMovementDTO(res.In),
		UnitCost: res.UnitCost,
	})
}

// ListMovements godoc
// @Summary      Historial de movimientos
// @Tags         inventory
// @Produce      json
// @Param        variant_id    query  string  false  "Variant filter"
// @Param        warehouse_id  query  string  false  "Warehouse filter"
// @Param        limit         query  int     false  "Page size (default 50, max 500)"
// @Param        offset        query  int     false  "Offset"
// @Success      200  {object}  dto.MovementListResponse
// @Router       /api/inventory/movements [get]
func (h *InventoryHandler) ListMovements(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return badBody(c)
	}
	page.DefaultPage()

	list, err := h.valuation.ListMovements(c.UserContext(), entity.MovementFilter{
		VariantID:   c.Query("variant_id"),
		WarehouseID: c.Query("warehouse_id"),
		Limit:       page.Limit,
		Offset:      page.Offset,
	})
	if err != nil {
		return writeError(c, err)
	}
	items := make([]dto.MovementDTO, 0, len(list))
	for _, m := range list {
		items = append(items, toMovementDTO(m))
	}
	return c.JSON(dto.MovementListResponse{
		Items: items,
		Page:  dto.PageResponse{Limit: page.Limit, Offset: page.Offset, Count: len(items)},
	})
}

// GetValuation godoc
// @Summary      Valorización del inventario
// @Description  Values every product at its quantity-weighted average cost. Without warehouse_id the quantity is the product aggregate.
// @Tags         inventory
// @Produce      json
// @Param        warehouse_id  query  string  false  "Warehouse filter"
// @Success      200  {object}  dto.ValuationResponse
// @Failure      500  {object}  dto.ErrorResponse
// @Router       /api/inventory/valuation [get]
func (h *InventoryHandler) GetValuation(c *fiber.Ctx) error {
	report, err := h.valuation.GetInventoryValuation(c.UserContext(), c.Query("warehouse_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toValuationResponse(report))
}
