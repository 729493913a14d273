package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventory-costing/internal/domain"
	"github.com/jhoicas/inventory-costing/internal/domain/entity"
	costing "github.com/jhoicas/inventory-costing/internal/domain/inventory"
)

// TransferInput moves quantity of one variant between two warehouses.
type TransferInput struct {
	VariantID       string
	FromWarehouseID string
	ToWarehouseID   string
	Quantity        decimal.Decimal
	ReferenceID     string
	OccurredAt      time.Time
}

// TransferResult holds both settled legs.
type TransferResult struct {
	Out      *entity.StockMovement
	In       *entity.StockMovement
	UnitCost decimal.Decimal // source WAC carried to the destination
}

// TransferStock records a transfer as a transfer_out on the source key and a transfer_in on the
// destination key sharing one reference. Both keys are locked in StockKey order and both legs
// commit or neither does. The inbound leg is costed at the source WAC at the moment of the out
// leg, so total inventory value is conserved.
func (uc *RegisterMovementUseCase) TransferStock(ctx context.Context, in TransferInput) (*TransferResult, error) {
	start := uc.now()
	res, err := uc.transferStock(ctx, in)
	uc.observe("transfer", start, err)
	return res, err
}

func (uc *RegisterMovementUseCase) transferStock(ctx context.Context, in TransferInput) (*TransferResult, error) {
	if in.FromWarehouseID == in.ToWarehouseID && in.FromWarehouseID != "" {
		return nil, domain.Invalid("to_warehouse_id", "must differ from from_warehouse_id")
	}
	if !in.Quantity.IsPositive() {
		return nil, domain.Invalid("quantity", "must be greater than zero")
	}

	now := uc.now()
	occurred := in.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}
	out := &entity.StockMovement{
		ID:            uuid.New().String(),
		VariantID:     in.VariantID,
		WarehouseID:   in.FromWarehouseID,
		Type:          entity.MovementTransferOut,
		QuantityDelta: in.Quantity.Neg(),
		ReferenceID:   in.ReferenceID,
		OccurredAt:    occurred,
		CreatedAt:     now,
	}
	if err := costing.ValidateMovement(out); err != nil {
		return nil, err
	}
	if in.ToWarehouseID == "" {
		return nil, domain.Invalid("to_warehouse_id", "is required")
	}

	variant, err := uc.lookupVariant(ctx, in.VariantID)
	if err != nil {
		return nil, err
	}

	srcKey := out.Key()
	dstKey := entity.StockKey{VariantID: in.VariantID, WarehouseID: in.ToWarehouseID}
	release, err := uc.lockKeys(ctx, srcKey, dstKey)
	if err != nil {
		return nil, err
	}
	defer release()

	res := &TransferResult{Out: out}
	err = uc.txRunner.Run(ctx, func(r TxRepos) error {
		// Row locks follow the same order as the key locks.
		first, second := srcKey, dstKey
		if dstKey.Less(srcKey) {
			first, second = dstKey, srcKey
		}
		states := make(map[entity.StockKey]*entity.VariantWarehouseState, 2)
		for _, k := range []entity.StockKey{first, second} {
			st, err := r.Stock.GetForUpdate(ctx, k)
			if err != nil {
				return err
			}
			states[k] = st
		}

		outTr, err := uc.applyLeg(ctx, r, states[srcKey], out)
		if err != nil {
			return err
		}

		unitCost := outTr.UnitCost
		inLeg := &entity.StockMovement{
			ID:            uuid.New().String(),
			VariantID:     in.VariantID,
			WarehouseID:   in.ToWarehouseID,
			Type:          entity.MovementTransferIn,
			QuantityDelta: in.Quantity,
			UnitCost:      &unitCost,
			ReferenceID:   in.ReferenceID,
			OccurredAt:    occurred,
			CreatedAt:     now,
		}
		if _, err := uc.applyLeg(ctx, r, states[dstKey], inLeg); err != nil {
			return err
		}
		if _, err := uc.aggregator.recomputeInTx(ctx, r, variant.ProductID, decimal.Zero); err != nil {
			return err
		}
		res.In = inLeg
		res.UnitCost = unitCost
		return nil
	})
	if err != nil {
		return nil, domain.Storage("transfer stock", err)
	}

	uc.log.Debug().
		Str("variant_id", in.VariantID).
		Str("from", in.FromWarehouseID).
		Str("to", in.ToWarehouseID).
		Str("qty", in.Quantity.String()).
		Str("unit_cost", res.UnitCost.String()).
		Msg("transfer applied")
	return res, nil
}
