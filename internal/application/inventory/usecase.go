package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventory-costing/internal/domain"
	"github.com/jhoicas/inventory-costing/internal/domain/entity"
	costing "github.com/jhoicas/inventory-costing/internal/domain/inventory"
	"github.com/jhoicas/inventory-costing/internal/domain/repository"
	"github.com/jhoicas/inventory-costing/pkg/logger"
	"github.com/jhoicas/inventory-costing/pkg/metrics"
)

// RegisterMovementUseCase records stock movements. Every movement is serialized on its
// (variant, warehouse) key, appended to the ledger with the key's next sequence and applied to
// the key's costed state in the same transaction, after which the product aggregate is
// recomputed and, for sales, the COGS snapshot is written.
type RegisterMovementUseCase struct {
	txRunner   TxRunner
	locker     KeyLocker
	variants   repository.ProductVariantRepository
	aggregator *StockAggregator
	policy     costing.Policy
	log        *logger.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewRegisterMovementUseCase builds the use case.
func NewRegisterMovementUseCase(
	txRunner TxRunner,
	locker KeyLocker,
	variants repository.ProductVariantRepository,
	aggregator *StockAggregator,
	policy costing.Policy,
	log *logger.Logger,
	m *metrics.Metrics,
) *RegisterMovementUseCase {
	return &RegisterMovementUseCase{
		txRunner:   txRunner,
		locker:     locker,
		variants:   variants,
		aggregator: aggregator,
		policy:     policy,
		log:        log,
		metrics:    m,
		now:        time.Now,
	}
}

// MovementInput is a movement as submitted by an upstream workflow.
type MovementInput struct {
	VariantID     string
	WarehouseID   string
	Type          string
	QuantityDelta decimal.Decimal
	UnitCost      *decimal.Decimal
	ReferenceID   string
	OccurredAt    time.Time
	Sale          *entity.SaleLine // sale movements only
}

// MovementResult is the settled state of the key after the movement.
type MovementResult struct {
	Movement            *entity.StockMovement
	QuantityOnHand      decimal.Decimal
	WeightedAverageCost decimal.Decimal
	WriteOff            decimal.Decimal
	ProductTotalStock   decimal.Decimal
	COGS                *entity.COGSRecord
}

// RegisterMovement validates, serializes and applies one movement.
func (uc *RegisterMovementUseCase) RegisterMovement(ctx context.Context, in MovementInput) (*MovementResult, error) {
	start := uc.now()
	res, err := uc.registerMovement(ctx, in)
	uc.observe(in.Type, start, err)
	return res, err
}

func (uc *RegisterMovementUseCase) registerMovement(ctx context.Context, in MovementInput) (*MovementResult, error) {
	typ, ok := entity.ParseMovementType(in.Type)
	if !ok {
		return nil, domain.Invalid("type", "is not a known movement type")
	}
	if in.Sale != nil && typ != entity.MovementSale {
		return nil, domain.Invalid("sale", "is only accepted on sale movements")
	}

	now := uc.now()
	m := &entity.StockMovement{
		ID:            uuid.New().String(),
		VariantID:     in.VariantID,
		WarehouseID:   in.WarehouseID,
		Type:          typ,
		QuantityDelta: in.QuantityDelta,
		UnitCost:      in.UnitCost,
		ReferenceID:   in.ReferenceID,
		OccurredAt:    in.OccurredAt,
		CreatedAt:     now,
	}
	if m.OccurredAt.IsZero() {
		m.OccurredAt = now
	}
	if err := costing.ValidateMovement(m); err != nil {
		return nil, err
	}

	variant, err := uc.lookupVariant(ctx, m.VariantID)
	if err != nil {
		return nil, err
	}

	release, err := uc.lockKeys(ctx, m.Key())
	if err != nil {
		return nil, err
	}
	defer release()

	res := &MovementResult{Movement: m}
	err = uc.txRunner.Run(ctx, func(r TxRepos) error {
		state, err := r.Stock.GetForUpdate(ctx, m.Key())
		if err != nil {
			return err
		}
		tr, err := uc.applyLeg(ctx, r, state, m)
		if err != nil {
			return err
		}
		if typ == entity.MovementSale {
			rec, err := recordCOGS(ctx, r, variant, m, tr, in.Sale)
			if err != nil {
				return err
			}
			res.COGS = rec
		}
		total, err := uc.aggregator.recomputeInTx(ctx, r, variant.ProductID, m.QuantityDelta)
		if err != nil {
			return err
		}
		res.QuantityOnHand = tr.After.QuantityOnHand
		res.WeightedAverageCost = tr.After.WeightedAverageCost
		res.WriteOff = tr.WriteOff
		res.ProductTotalStock = total
		return nil
	})
	if err != nil {
		return nil, domain.Storage("register movement", err)
	}

	uc.log.Debug().
		Str("key", m.Key().String()).
		Str("type", string(m.Type)).
		Int64("sequence", m.PerKeySequence).
		Str("qty_after", res.QuantityOnHand.String()).
		Str("wac_after", res.WeightedAverageCost.String()).
		Msg("movement applied")
	return res, nil
}

// applyLeg appends m to the ledger with the key's next sequence and applies it to state.
// It must run inside the key's critical section.
func (uc *RegisterMovementUseCase) applyLeg(ctx context.Context, r TxRepos, state *entity.VariantWarehouseState, m *entity.StockMovement) (costing.Transition, error) {
	dup, err := r.Movements.ExistsReference(ctx, m.Key(), m.ReferenceID, m.Type)
	if err != nil {
		return costing.Transition{}, err
	}
	if dup {
		return costing.Transition{}, &domain.DuplicateMovementError{
			VariantID:   m.VariantID,
			WarehouseID: m.WarehouseID,
			ReferenceID: m.ReferenceID,
			Type:        string(m.Type),
		}
	}

	m.PerKeySequence = state.LastAppliedSequence + 1
	tr, err := costing.ApplyMovement(*state, m, uc.policy)
	if err != nil {
		return costing.Transition{}, err
	}
	tr.Stamp(m)

	if err := r.Movements.Append(ctx, m); err != nil {
		return costing.Transition{}, err
	}
	after := tr.After
	after.UpdatedAt = m.CreatedAt
	if err := r.Stock.Save(ctx, &after); err != nil {
		return costing.Transition{}, err
	}
	return tr, nil
}

// recordCOGS writes the cost basis of a sale line from the transition that decremented stock,
// so the unit cost is the WAC in effect at that instant.
func recordCOGS(ctx context.Context, r TxRepos, variant *entity.ProductVariant, m *entity.StockMovement, tr costing.Transition, sale *entity.SaleLine) (*entity.COGSRecord, error) {
	qty := m.QuantityDelta.Neg()
	saleItemID := m.ReferenceID
	if sale != nil && sale.SaleItemID != "" {
		saleItemID = sale.SaleItemID
	}
	rec := &entity.COGSRecord{
		ID:             uuid.New().String(),
		SaleItemID:     saleItemID,
		VariantID:      m.VariantID,
		ProductID:      variant.ProductID,
		WarehouseID:    m.WarehouseID,
		MovementID:     m.ID,
		QuantitySold:   qty,
		UnitCostAtSale: tr.UnitCost,
		TotalCost:      qty.Mul(tr.UnitCost),
		Revenue:        decimal.Zero,
		SaleDate:       m.OccurredAt,
	}
	if sale != nil {
		rec.SaleID = sale.SaleID
		rec.Revenue = qty.Mul(sale.UnitPrice)
	}
	if err := r.COGS.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (uc *RegisterMovementUseCase) lookupVariant(ctx context.Context, variantID string) (*entity.ProductVariant, error) {
	variant, err := uc.variants.GetVariant(ctx, variantID)
	if err != nil {
		return nil, domain.Storage("get variant", err)
	}
	if variant == nil {
		return nil, fmt.Errorf("variant %s: %w", variantID, domain.ErrNotFound)
	}
	return variant, nil
}

// lockKeys acquires the key locks in StockKey order and returns a release for all of them.
func (uc *RegisterMovementUseCase) lockKeys(ctx context.Context, keys ...entity.StockKey) (func(), error) {
	sorted := append([]entity.StockKey(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	releases := make([]func(), 0, len(sorted))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, k := range sorted {
		release, err := uc.locker.Lock(ctx, k.String())
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

func (uc *RegisterMovementUseCase) observe(typ string, start time.Time, err error) {
	if err == nil {
		uc.metrics.MovementApplied(typ, uc.now().Sub(start))
		return
	}
	reason := RejectionReason(err)
	uc.metrics.MovementRejected(reason)

	ev := uc.log.Info()
	switch reason {
	case "contention":
		ev = uc.log.Warn()
	case "consistency":
		ev = uc.log.Error().Str("alert", "operator")
	case "storage", "internal":
		ev = uc.log.Error()
	}
	ev.Err(err).Str("type", typ).Str("reason", reason).Msg("movement rejected")
}

// RejectionReason classifies an error for metrics and logs.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return "validation"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrDuplicate):
		return "duplicate"
	case errors.Is(err, domain.ErrContention):
		return "contention"
	case errors.Is(err, domain.ErrInconsistent):
		return "consistency"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, domain.ErrStorage):
		return "storage"
	default:
		return "internal"
	}
}
