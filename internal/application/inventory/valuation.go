package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventory-costing/internal/domain"
	"github.com/jhoicas/inventory-costing/internal/domain/entity"
	costing "github.com/jhoicas/inventory-costing/internal/domain/inventory"
	"github.com/jhoicas/inventory-costing/internal/domain/repository"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// ValuationService answers read-only questions. Every report reads one consistent snapshot.
type ValuationService struct {
	snapshots SnapshotRunner
	history   repository.StockMovementRepository
	cogs      repository.COGSRepository
	now       func() time.Time
}

// NewValuationService builds the service. history and cogs are bound to the pool, outside any
// movement transaction.
func NewValuationService(snapshots SnapshotRunner, history repository.StockMovementRepository, cogs repository.COGSRepository) *ValuationService {
	return &ValuationService{snapshots: snapshots, history: history, cogs: cogs, now: time.Now}
}

// ValuationReport is the inventory valuation plus its grand total.
type ValuationReport struct {
	WarehouseID string
	Items       []entity.InventoryValuation
	TotalValue  decimal.Decimal
	GeneratedAt time.Time
}

// GetInventoryValuation values every product at its weighted average cost. Without a warehouse
// filter the quantity comes from ProductAggregate; with one it is that warehouse's detail sum.
func (s *ValuationService) GetInventoryValuation(ctx context.Context, warehouseID string) (*ValuationReport, error) {
	var items []entity.InventoryValuation
	err := s.snapshots.Snapshot(ctx, func(repo repository.ValuationRepository) error {
		rows, err := repo.ValuationRows(ctx, warehouseID)
		if err != nil {
			return err
		}
		var totals map[string]decimal.Decimal
		if warehouseID == "" {
			totals, err = repo.ProductTotals(ctx)
			if err != nil {
				return err
			}
		} else {
			totals = make(map[string]decimal.Decimal)
			for _, r := range rows {
				totals[r.ProductID] = totals[r.ProductID].Add(r.QuantityOnHand)
			}
		}
		items = costing.ValueInventory(rows, totals)
		return nil
	})
	if err != nil {
		return nil, domain.Storage("inventory valuation", err)
	}

	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.TotalValue)
	}
	return &ValuationReport{WarehouseID: warehouseID, Items: items, TotalValue: total, GeneratedAt: s.now()}, nil
}

// COGSReport is the per-product profitability over a window plus a summary line.
type COGSReport struct {
	DateFrom time.Time
	DateTo   time.Time
	Lines    []entity.COGSReportLine
	Summary  entity.COGSReportLine
}

// GetCOGSReport aggregates COGS records with saleDate in [DateFrom, DateTo]. A zero DateTo means
// now. Products without sales in the window are omitted.
func (s *ValuationService) GetCOGSReport(ctx context.Context, filter entity.COGSReportFilter) (*COGSReport, error) {
	if filter.DateTo.IsZero() {
		filter.DateTo = s.now()
	}
	if filter.DateTo.Before(filter.DateFrom) {
		return nil, domain.Invalid("date_to", "must not be before date_from")
	}

	var lines []entity.COGSReportLine
	err := s.snapshots.Snapshot(ctx, func(repo repository.ValuationRepository) error {
		var err error
		lines, err = repo.COGSByProduct(ctx, filter)
		return err
	})
	if err != nil {
		return nil, domain.Storage("cogs report", err)
	}
	for i := range lines {
		costing.FinishReportLine(&lines[i])
	}
	if lines == nil {
		lines = []entity.COGSReportLine{}
	}
	return &COGSReport{
		DateFrom: filter.DateFrom,
		DateTo:   filter.DateTo,
		Lines:    lines,
		Summary:  costing.SummarizeCOGS(lines),
	}, nil
}

// GetCOGSRecord returns the cost basis written for a sale line.
func (s *ValuationService) GetCOGSRecord(ctx context.Context, saleItemID string) (*entity.COGSRecord, error) {
	if saleItemID == "" {
		return nil, domain.Invalid("sale_item_id", "is required")
	}
	rec, err := s.cogs.GetBySaleItem(ctx, saleItemID)
	if err != nil {
		return nil, domain.Storage("get cogs record", err)
	}
	if rec == nil {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

// ListMovements returns ledger history, newest first.
func (s *ValuationService) ListMovements(ctx context.Context, filter entity.MovementFilter) ([]*entity.StockMovement, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultHistoryLimit
	}
	if filter.Limit > maxHistoryLimit {
		filter.Limit = maxHistoryLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	list, err := s.history.List(ctx, filter)
	if err != nil {
		return nil, domain.Storage("list movements", err)
	}
	return list, nil
}
