package memory

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventory-costing/internal/application/inventory"
	"github.com/jhoicas/inventory-costing/internal/domain/entity"
)

type txMovements tx

func (r *txMovements) Append(_ context.Context, m *entity.StockMovement) error {
	t := (*tx)(r)
	for i := range t.movements {
		staged := &t.movements[i]
		if staged.Key() != m.Key() {
			continue
		}
		if staged.ReferenceID == m.ReferenceID && staged.Type == m.Type {
			return duplicateOf(m)
		}
		if staged.PerKeySequence == m.PerKeySequence {
			return errSequenceTaken
		}
	}
	t.movements = append(t.movements, copyMovement(m))
	return nil
}

func (r *txMovements) ExistsReference(ctx context.Context, key entity.StockKey, referenceID string, typ entity.MovementType) (bool, error) {
	t := (*tx)(r)
	for _, m := range t.movements {
		if m.Key() == key && m.ReferenceID == referenceID && m.Type == typ {
			return true, nil
		}
	}
	return (*committedMovements)(t.store).ExistsReference(ctx, key, referenceID, typ)
}

func (r *txMovements) List(ctx context.Context, filter entity.MovementFilter) ([]*entity.StockMovement, error) {
	return (*committedMovements)(r.store).List(ctx, filter)
}

type txStock tx

func (r *txStock) GetForUpdate(ctx context.Context, key entity.StockKey) (*entity.VariantWarehouseState, error) {
	t := (*tx)(r)
	if err := t.lockRow(ctx, "stock:"+key.String()); err != nil {
		return nil, err
	}
	if st, ok := t.states[key]; ok {
		return &st, nil
	}
	t.store.mu.RLock()
	st, ok := t.store.states[key]
	t.store.mu.RUnlock()
	if !ok {
		st = entity.NewVariantWarehouseState(key)
	}
	return &st, nil
}

func (r *txStock) Save(_ context.Context, state *entity.VariantWarehouseState) error {
	r.states[state.Key()] = *state
	return nil
}

// SumByProduct sees committed rows overlaid with this transaction's own writes.
func (r *txStock) SumByProduct(_ context.Context, productID string) (decimal.Decimal, error) {
	t := (*tx)(r)
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := decimal.Zero
	for k, st := range s.states {
		if _, staged := t.states[k]; staged {
			continue
		}
		if p, ok := s.productOf(k.VariantID); ok && p == productID {
			sum = sum.Add(st.QuantityOnHand)
		}
	}
	for k, st := range t.states {
		if p, ok := s.productOf(k.VariantID); ok && p == productID {
			sum = sum.Add(st.QuantityOnHand)
		}
	}
	return sum, nil
}

type txAggregates tx

func (r *txAggregates) GetForUpdate(ctx context.Context, productID string) (*entity.ProductAggregate, bool, error) {
	t := (*tx)(r)
	if err := t.lockRow(ctx, "agg:"+productID); err != nil {
		return nil, false, err
	}
	if agg, ok := t.aggs[productID]; ok {
		return &agg, true, nil
	}
	t.store.mu.RLock()
	agg, ok := t.store.aggregates[productID]
	t.store.mu.RUnlock()
	if !ok {
		return &entity.ProductAggregate{ProductID: productID, TotalStock: decimal.Zero}, false, nil
	}
	return &agg, true, nil
}

func (r *txAggregates) Save(_ context.Context, agg *entity.ProductAggregate) error {
	r.aggs[agg.ProductID] = *agg
	return nil
}

type txCOGS tx

func (r *txCOGS) Create(ctx context.Context, record *entity.COGSRecord) error {
	t := (*tx)(r)
	for i := range t.cogs {
		if t.cogs[i].MovementID == record.MovementID {
			return duplicateCOGS(record)
		}
	}
	t.store.mu.RLock()
	_, committed := t.store.cogs[record.MovementID]
	t.store.mu.RUnlock()
	if committed {
		return duplicateCOGS(record)
	}
	t.cogs = append(t.cogs, *record)
	return nil
}

func (r *txCOGS) GetBySaleItem(ctx context.Context, saleItemID string) (*entity.COGSRecord, error) {
	rec, err := (*committedCOGS)(r.store).GetBySaleItem(ctx, saleItemID)
	if rec != nil || err != nil {
		return rec, err
	}
	for i := range r.cogs {
		if r.cogs[i].SaleItemID == saleItemID {
			rec := r.cogs[i]
			return &rec, nil
		}
	}
	return nil, nil
}

// committedMovements reads the committed ledger. Append runs its own transaction.
type committedMovements Store

func (r *committedMovements) Append(ctx context.Context, m *entity.StockMovement) error {
	s := (*Store)(r)
	return s.Run(ctx, func(repos inventory.TxRepos) error {
		return repos.Movements.Append(ctx, m)
	})
}

func (r *committedMovements) ExistsReference(_ context.Context, key entity.StockKey, referenceID string, typ entity.MovementType) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.refs[refKey{key, referenceID, typ}]
	return ok, nil
}

// List returns newest first, which is reverse commit order.
func (r *committedMovements) List(_ context.Context, filter entity.MovementFilter) ([]*entity.StockMovement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.StockMovement, 0)
	skipped := 0
	for i := len(r.movements) - 1; i >= 0; i-- {
		m := r.movements[i]
		if filter.VariantID != "" && m.VariantID != filter.VariantID {
			continue
		}
		if filter.WarehouseID != "" && m.WarehouseID != filter.WarehouseID {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		cp := copyMovement(&m)
		out = append(out, &cp)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

type committedCOGS Store

func (r *committedCOGS) Create(ctx context.Context, record *entity.COGSRecord) error {
	s := (*Store)(r)
	return s.Run(ctx, func(repos inventory.TxRepos) error {
		return repos.COGS.Create(ctx, record)
	})
}

func (r *committedCOGS) GetBySaleItem(_ context.Context, saleItemID string) (*entity.COGSRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.cogsOrder {
		if rec := r.cogs[id]; rec.SaleItemID == saleItemID {
			return &rec, nil
		}
	}
	return nil, nil
}

func copyMovement(m *entity.StockMovement) entity.StockMovement {
	cp := *m
	if m.UnitCost != nil {
		c := *m.UnitCost
		cp.UnitCost = &c
	}
	return cp
}
