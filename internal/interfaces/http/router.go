package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhoicas/inventory-costing/internal/application/inventory"
)

// RouterDeps dependencias del router.
type RouterDeps struct {
	RegisterMovement *inventory.RegisterMovementUseCase
	Aggregator       *inventory.StockAggregator
	Valuation        *inventory.ValuationService
	Gatherer         prometheus.Gatherer // nil disables /metrics
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api")

	// Movimientos, traslados, historial y valorización
	invGroup := api.Group("/inventory")
	inventoryHandler := NewInventoryHandler(deps.RegisterMovement, deps.Valuation)
	invGroup.Post("/movements", inventoryHandler.RegisterMovement)
	invGroup.Get("/movements", inventoryHandler.ListMovements)
	invGroup.Post("/transfers", inventoryHandler.TransferStock)
	invGroup.Get("/valuation", inventoryHandler.GetValuation)

	// Operación
	aggregates := invGroup.Group("/aggregates")
	aggregateHandler := NewAggregateHandler(deps.Aggregator)
	aggregates.Post("/resync", aggregateHandler.Resync)
	aggregates.Get("/integrity", aggregateHandler.Integrity)

	// Reportes
	reports := api.Group("/reports")
	reportHandler := NewReportHandler(deps.Valuation)
	reports.Get("/cogs", reportHandler.GetCOGSReport)
	reports.Get("/cogs/records/:sale_item_id", reportHandler.GetCOGSRecord)
}
