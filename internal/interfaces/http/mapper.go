package http

import (
	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventory-costing/internal/application/dto"
	"github.com/jhoicas/inventory-costing/internal/application/inventory"
	"github.com/jhoicas/inventory-costing/internal/domain/entity"
)

func toMovementDTO(m *entity.StockMovement) dto.MovementDTO {
	return dto.MovementDTO{
		ID:               m.ID,
		ProductVariantID: m.VariantID,
		WarehouseID:      m.WarehouseID,
		Type:             string(m.Type),
		QuantityDelta:    m.QuantityDelta,
		UnitCost:         m.UnitCost,
		AppliedUnitCost:  m.AppliedUnitCost,
		QuantityAfter:    m.QuantityAfter,
		WACAfter:         m.WACAfter,
		WriteOffAmount:   m.WriteOffAmount,
		ReferenceID:      m.ReferenceID,
		Sequence:         m.PerKeySequence,
		OccurredAt:       m.OccurredAt,
		CreatedAt:        m.CreatedAt,
	}
}

func toCOGSRecordDTO(r *entity.COGSRecord) *dto.COGSRecordDTO {
	if r == nil {
		return nil
	}
	return &dto.COGSRecordDTO{
		ID:             r.ID,
		SaleItemID:     r.SaleItemID,
		SaleID:         r.SaleID,
		ProductID:      r.ProductID,
		VariantID:      r.VariantID,
		WarehouseID:    r.WarehouseID,
		QuantitySold:   r.QuantitySold,
		UnitCostAtSale: r.UnitCostAtSale,
		TotalCost:      r.TotalCost,
		Revenue:        r.Revenue,
		SaleDate:       r.SaleDate,
	}
}

func toMovementResponse(res *inventory.MovementResult) dto.MovementResponse {
	out := dto.MovementResponse{
		MovementID:          res.Movement.ID,
		Sequence:            res.Movement.PerKeySequence,
		QuantityOnHand:      res.QuantityOnHand,
		WeightedAverageCost: res.WeightedAverageCost,
		UnitCost:            res.Movement.AppliedUnitCost,
		ProductTotalStock:   res.ProductTotalStock,
		COGS:                toCOGSRecordDTO(res.COGS),
	}
	if !res.WriteOff.IsZero() {
		w := res.WriteOff
		out.WriteOff = &w
	}
	return out
}

func toValuationResponse(r *inventory.ValuationReport) dto.ValuationResponse {
	out := dto.ValuationResponse{
		WarehouseID:   r.WarehouseID,
		Items:         make([]dto.ValuationItemDTO, 0, len(r.Items)),
		TotalQuantity: decimal.Zero,
		TotalValue:    r.TotalValue,
		GeneratedAt:   r.GeneratedAt,
	}
	for _, it := range r.Items {
		out.TotalQuantity = out.TotalQuantity.Add(it.CurrentQuantity)
		out.Items = append(out.Items, dto.ValuationItemDTO{
			ProductID:       it.ProductID,
			ProductName:     it.ProductName,
			CurrentQuantity: it.CurrentQuantity,
			AverageCost:     it.AverageCost,
			TotalValue:      it.TotalValue,
		})
	}
	return out
}

func toCOGSLineDTO(l entity.COGSReportLine) dto.COGSLineDTO {
	return dto.COGSLineDTO{
		ProductID:         l.ProductID,
		ProductName:       l.ProductName,
		TotalQuantitySold: l.TotalQuantitySold,
		TotalRevenue:      l.TotalRevenue,
		TotalCOGS:         l.TotalCOGS,
		GrossProfit:       l.GrossProfit,
		ProfitMargin:      l.ProfitMargin,
		AverageWAC:        l.AverageWAC,
		SalesCount:        l.SalesCount,
	}
}

func toCOGSReportResponse(r *inventory.COGSReport) dto.COGSReportResponse {
	out := dto.COGSReportResponse{
		DateFrom: r.DateFrom,
		DateTo:   r.DateTo,
		Lines:    make([]dto.COGSLineDTO, 0, len(r.Lines)),
		Summary:  toCOGSLineDTO(r.Summary),
	}
	for _, l := range r.Lines {
		out.Lines = append(out.Lines, toCOGSLineDTO(l))
	}
	return out
}

func toResyncResultDTO(r inventory.ResyncResult) dto.ResyncResultDTO {
	return dto.ResyncResultDTO{
		ProductID:  r.ProductID,
		Previous:   r.Previous,
		Recomputed: r.Recomputed,
		Repaired:   r.Repaired,
	}
}

func toIntegrityResponse(r *inventory.IntegrityReport) dto.IntegrityResponse {
	out := dto.IntegrityResponse{
		CheckedAt:  r.CheckedAt,
		Checked:    r.Checked,
		Consistent: r.Consistent(),
		Mismatches: make([]dto.MismatchDTO, 0, len(r.Mismatches)),
	}
	for _, m := range r.Mismatches {
		out.Mismatches = append(out.Mismatches, dto.MismatchDTO{
			ProductID: m.ProductID,
			Recorded:  m.Recorded,
			Computed:  m.Computed,
		})
	}
	return out
}
