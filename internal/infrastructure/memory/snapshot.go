package memory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventory-costing/internal/domain/entity"
)

// snapshot is an immutable copy of committed state taken under one read lock.
type snapshot struct {
	products   map[string]string
	variants   map[string]entity.ProductVariant
	states     []entity.VariantWarehouseState
	aggregates map[string]entity.ProductAggregate
	cogs       []entity.COGSRecord
}

func (s *Store) snapshot() *snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &snapshot{
		products:   make(map[string]string, len(s.products)),
		variants:   make(map[string]entity.ProductVariant, len(s.variants)),
		states:     make([]entity.VariantWarehouseState, 0, len(s.states)),
		aggregates: make(map[string]entity.ProductAggregate, len(s.aggregates)),
		cogs:       make([]entity.COGSRecord, 0, len(s.cogsOrder)),
	}
	for id, name := range s.products {
		snap.products[id] = name
	}
	for id, v := range s.variants {
		snap.variants[id] = v
	}
	for _, st := range s.states {
		snap.states = append(snap.states, st)
	}
	for id, agg := range s.aggregates {
		snap.aggregates[id] = agg
	}
	for _, id := range s.cogsOrder {
		snap.cogs = append(snap.cogs, s.cogs[id])
	}
	return snap
}

// productIDs returns products ordered by name, then id.
func (s *snapshot) productIDs() []string {
	ids := make([]string, 0, len(s.products))
	for id := range s.products {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ni, nj := s.products[ids[i]], s.products[ids[j]]
		if ni != nj {
			return ni < nj
		}
		return ids[i] < ids[j]
	})
	return ids
}

func (s *snapshot) ValuationRows(_ context.Context, warehouseID string) ([]entity.ValuationRow, error) {
	byProduct := make(map[string][]entity.VariantWarehouseState)
	for _, st := range s.states {
		if warehouseID != "" && st.WarehouseID != warehouseID {
			continue
		}
		v, ok := s.variants[st.VariantID]
		if !ok {
			continue
		}
		byProduct[v.ProductID] = append(byProduct[v.ProductID], st)
	}

	rows := make([]entity.ValuationRow, 0, len(s.states))
	for _, pid := range s.productIDs() {
		states := byProduct[pid]
		sort.Slice(states, func(i, j int) bool { return states[i].Key().Less(states[j].Key()) })
		for _, st := range states {
			rows = append(rows, entity.ValuationRow{
				ProductID:           pid,
				ProductName:         s.products[pid],
				QuantityOnHand:      st.QuantityOnHand,
				WeightedAverageCost: st.WeightedAverageCost,
			})
		}
	}
	return rows, nil
}

func (s *snapshot) ProductTotals(_ context.Context) (map[string]decimal.Decimal, error) {
	totals := make(map[string]decimal.Decimal, len(s.aggregates))
	for id, agg := range s.aggregates {
		totals[id] = agg.TotalStock
	}
	return totals, nil
}

func (s *snapshot) ProductStocks(_ context.Context) ([]entity.ProductStock, error) {
	detail := make(map[string]decimal.Decimal)
	for _, st := range s.states {
		if v, ok := s.variants[st.VariantID]; ok {
			detail[v.ProductID] = detail[v.ProductID].Add(st.QuantityOnHand)
		}
	}

	out := make([]entity.ProductStock, 0, len(s.products))
	for _, pid := range s.productIDs() {
		agg, has := s.aggregates[pid]
		ps := entity.ProductStock{
			ProductID:    pid,
			ProductName:  s.products[pid],
			AggregateQty: decimal.Zero,
			DetailQty:    detail[pid],
			HasAggregate: has,
		}
		if has {
			ps.AggregateQty = agg.TotalStock
		}
		out = append(out, ps)
	}
	return out, nil
}

// COGSByProduct counts a sale line without a sale id as its own sale.
func (s *snapshot) COGSByProduct(_ context.Context, filter entity.COGSReportFilter) ([]entity.COGSReportLine, error) {
	lines := make(map[string]*entity.COGSReportLine)
	sales := make(map[string]map[string]struct{})
	for _, c := range s.cogs {
		if c.SaleDate.Before(filter.DateFrom) || c.SaleDate.After(filter.DateTo) {
			continue
		}
		if filter.WarehouseID != "" && c.WarehouseID != filter.WarehouseID {
			continue
		}
		l, ok := lines[c.ProductID]
		if !ok {
			l = &entity.COGSReportLine{
				ProductID:         c.ProductID,
				ProductName:       s.products[c.ProductID],
				TotalQuantitySold: decimal.Zero,
				TotalRevenue:      decimal.Zero,
				TotalCOGS:         decimal.Zero,
			}
			lines[c.ProductID] = l
			sales[c.ProductID] = make(map[string]struct{})
		}
		l.TotalQuantitySold = l.TotalQuantitySold.Add(c.QuantitySold)
		l.TotalRevenue = l.TotalRevenue.Add(c.Revenue)
		l.TotalCOGS = l.TotalCOGS.Add(c.TotalCost)
		saleID := c.SaleID
		if saleID == "" {
			saleID = "item:" + c.SaleItemID
		}
		sales[c.ProductID][saleID] = struct{}{}
	}

	out := make([]entity.COGSReportLine, 0, len(lines))
	for _, pid := range s.productIDs() {
		if l, ok := lines[pid]; ok {
			l.SalesCount = len(sales[pid])
			out = append(out, *l)
		}
	}
	return out, nil
}
