package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventory-costing/internal/application/inventory"
	"github.com/jhoicas/inventory-costing/internal/domain"
	"github.com/jhoicas/inventory-costing/internal/domain/entity"
	"github.com/jhoicas/inventory-costing/internal/domain/repository"
	"github.com/jhoicas/inventory-costing/internal/infrastructure/memory"
)

var key = entity.StockKey{VariantID: "var-1", WarehouseID: "wh-1"}

func newStore(t *testing.T, rowTimeout time.Duration) *memory.Store {
	t.Helper()
	s := memory.New(rowTimeout)
	s.AddProduct("prod-1", "Coffee beans")
	require.NoError(t, s.AddVariant(entity.ProductVariant{ID: "var-1", ProductID: "prod-1"}))
	require.NoError(t, s.AddVariant(entity.ProductVariant{ID: "var-2", ProductID: "prod-1"}))
	return s
}

func movement(ref string, seq int64) *entity.StockMovement {
	return &entity.StockMovement{
		ID:             "mov-" + ref,
		VariantID:      key.VariantID,
		WarehouseID:    key.WarehouseID,
		Type:           entity.MovementAdjustment,
		QuantityDelta:  decimal.NewFromInt(1),
		ReferenceID:    ref,
		PerKeySequence: seq,
	}
}

func saveQty(ctx context.Context, r inventory.TxRepos, k entity.StockKey, qty int64) error {
	st, err := r.Stock.GetForUpdate(ctx, k)
	if err != nil {
		return err
	}
	st.QuantityOnHand = decimal.NewFromInt(qty)
	return r.Stock.Save(ctx, st)
}

func TestRun_ErrorDiscardsStagedWrites(t *testing.T) {
	s := newStore(t, time.Second)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Run(ctx, func(r inventory.TxRepos) error {
		require.NoError(t, saveQty(ctx, r, key, 5))
		require.NoError(t, r.Movements.Append(ctx, movement("adj-1", 1)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, ok := s.State(key)
	assert.False(t, ok)
	list, err := s.History().List(ctx, entity.MovementFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRun_FailedCommitDiscardsEverything(t *testing.T) {
	s := newStore(t, time.Second)
	ctx := context.Background()
	s.FailCommits(errors.New("disk full"))

	err := s.Run(ctx, func(r inventory.TxRepos) error { return saveQty(ctx, r, key, 5) })
	assert.ErrorContains(t, err, "disk full")
	_, ok := s.State(key)
	assert.False(t, ok)

	s.FailCommits(nil)
	require.NoError(t, s.Run(ctx, func(r inventory.TxRepos) error { return saveQty(ctx, r, key, 5) }))
	st, ok := s.State(key)
	require.True(t, ok)
	assert.True(t, st.QuantityOnHand.Equal(decimal.NewFromInt(5)))
}

func TestRun_RowLockHeldUntilCommit(t *testing.T) {
	s := newStore(t, 30*time.Millisecond)
	ctx := context.Background()

	locked := make(chan struct{})
	finish := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(r inventory.TxRepos) error {
			if _, err := r.Stock.GetForUpdate(ctx, key); err != nil {
				return err
			}
			close(locked)
			<-finish
			return nil
		})
	}()
	<-locked

	err := s.Run(ctx, func(r inventory.TxRepos) error {
		_, err := r.Stock.GetForUpdate(ctx, key)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrContention)

	// Other keys are not blocked.
	require.NoError(t, s.Run(ctx, func(r inventory.TxRepos) error {
		return saveQty(ctx, r, entity.StockKey{VariantID: "var-2", WarehouseID: "wh-1"}, 1)
	}))

	close(finish)
	require.NoError(t, <-done)
	require.NoError(t, s.Run(ctx, func(r inventory.TxRepos) error {
		_, err := r.Stock.GetForUpdate(ctx, key)
		return err
	}))
}

func TestRun_DuplicateReferenceRejectedAtCommit(t *testing.T) {
	s := newStore(t, time.Second)
	ctx := context.Background()

	require.NoError(t, s.Run(ctx, func(r inventory.TxRepos) error {
		return r.Movements.Append(ctx, movement("adj-1", 1))
	}))

	err := s.Run(ctx, func(r inventory.TxRepos) error {
		return r.Movements.Append(ctx, movement("adj-1", 2))
	})
	var dup *domain.DuplicateMovementError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "adj-1", dup.ReferenceID)

	err = s.Run(ctx, func(r inventory.TxRepos) error {
		exists, err := r.Movements.ExistsReference(ctx, key, "adj-1", entity.MovementAdjustment)
		assert.True(t, exists)
		return err
	})
	require.NoError(t, err)
}

func TestRun_SumByProductSeesOwnWrites(t *testing.T) {
	s := newStore(t, time.Second)
	ctx := context.Background()
	require.NoError(t, s.Run(ctx, func(r inventory.TxRepos) error { return saveQty(ctx, r, key, 4) }))

	require.NoError(t, s.Run(ctx, func(r inventory.TxRepos) error {
		if err := saveQty(ctx, r, entity.StockKey{VariantID: "var-2", WarehouseID: "wh-2"}, 3); err != nil {
			return err
		}
		if err := saveQty(ctx, r, key, 6); err != nil {
			return err
		}
		sum, err := r.Stock.SumByProduct(ctx, "prod-1")
		assert.True(t, sum.Equal(decimal.NewFromInt(9)), "sum %s", sum)
		return err
	}))
}

func TestSnapshot_IsolatedFromLaterCommits(t *testing.T) {
	s := newStore(t, time.Second)
	ctx := context.Background()
	require.NoError(t, s.Run(ctx, func(r inventory.TxRepos) error { return saveQty(ctx, r, key, 4) }))

	err := s.Snapshot(ctx, func(repo repository.ValuationRepository) error {
		require.NoError(t, s.Run(ctx, func(r inventory.TxRepos) error { return saveQty(ctx, r, key, 9) }))
		rows, err := repo.ValuationRows(ctx, "")
		require.Len(t, rows, 1)
		assert.True(t, rows[0].QuantityOnHand.Equal(decimal.NewFromInt(4)))
		return err
	})
	require.NoError(t, err)
}

func TestUpsertVariant_NeverMovesToAnotherProduct(t *testing.T) {
	s := newStore(t, time.Second)
	ctx := context.Background()
	require.NoError(t, s.UpsertProduct(ctx, "prod-2", "Green tea"))

	require.NoError(t, s.UpsertVariant(ctx, entity.ProductVariant{ID: "var-1", ProductID: "prod-1", SKU: "COF-250"}))
	assert.Error(t, s.UpsertVariant(ctx, entity.ProductVariant{ID: "var-1", ProductID: "prod-2"}))
	assert.Error(t, s.UpsertVariant(ctx, entity.ProductVariant{ID: "var-9", ProductID: "prod-404"}))

	v, err := s.GetVariant(ctx, "var-1")
	require.NoError(t, err)
	assert.Equal(t, "COF-250", v.SKU)

	ids, err := s.ListProductIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"prod-1", "prod-2"}, ids)
}

func TestCOGS_OneRecordPerMovement(t *testing.T) {
	s := newStore(t, time.Second)
	ctx := context.Background()
	rec := func(movementID string) *entity.COGSRecord {
		return &entity.COGSRecord{
			ID: "cogs-" + movementID, SaleItemID: "sale-77", VariantID: "var-1", ProductID: "prod-1",
			WarehouseID: "wh-1", MovementID: movementID, QuantitySold: decimal.NewFromInt(1),
		}
	}

	require.NoError(t, s.Run(ctx, func(r inventory.TxRepos) error { return r.COGS.Create(ctx, rec("mov-1")) }))
	require.NoError(t, s.Run(ctx, func(r inventory.TxRepos) error { return r.COGS.Create(ctx, rec("mov-2")) }))

	err := s.Run(ctx, func(r inventory.TxRepos) error { return r.COGS.Create(ctx, rec("mov-1")) })
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	got, err := s.COGS().GetBySaleItem(ctx, "sale-77")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "mov-1", got.MovementID)
}
