package inventory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/inventory-costing/internal/application/inventory"
	"github.com/jhoicas/inventory-costing/internal/domain"
	"github.com/jhoicas/inventory-costing/internal/domain/entity"
	"github.com/jhoicas/inventory-costing/internal/domain/repository"
	costing "github.com/jhoicas/inventory-costing/internal/domain/inventory"
	"github.com/jhoicas/inventory-costing/internal/infrastructure/lock"
	"github.com/jhoicas/inventory-costing/internal/infrastructure/memory"
	"github.com/jhoicas/inventory-costing/pkg/logger"
	"github.com/jhoicas/inventory-costing/pkg/metrics"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fixture
// ──────────────────────────────────────────────────────────────────────────────

type fixture struct {
	store   *memory.Store
	locker  *lock.LocalLocker
	metrics *metrics.Metrics
	uc      *inventory.RegisterMovementUseCase
	agg     *inventory.StockAggregator
	val     *inventory.ValuationService
}

func newFixture(t *testing.T, policy costing.Policy) *fixture {
	return newFixtureWithLockTimeout(t, policy, 2*time.Second)
}

func newFixtureWithLockTimeout(t *testing.T, policy costing.Policy, lockTimeout time.Duration) *fixture {
	t.Helper()
	store := memory.New(2 * time.Second)
	store.AddProduct("prod-1", "Coffee beans")
	store.AddProduct("prod-2", "Green tea")
	require.NoError(t, store.AddVariant(entity.ProductVariant{ID: "var-1", ProductID: "prod-1", SKU: "COF-250"}))
	require.NoError(t, store.AddVariant(entity.ProductVariant{ID: "var-2", ProductID: "prod-1", SKU: "COF-1000"}))
	require.NoError(t, store.AddVariant(entity.ProductVariant{ID: "var-3", ProductID: "prod-2", SKU: "TEA-100"}))

	m := metrics.New(prometheus.NewRegistry())
	locker := lock.NewLocalLocker(lockTimeout)
	agg := inventory.NewStockAggregator(store, store, store, logger.Nop(), m, 4)
	return &fixture{
		store:   store,
		locker:  locker,
		metrics: m,
		uc:      inventory.NewRegisterMovementUseCase(store, locker, store, agg, policy, logger.Nop(), m),
		agg:     agg,
		val:     inventory.NewValuationService(store, store.History(), store.COGS()),
	}
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr(v decimal.Decimal) *decimal.Decimal { return &v }

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msg string) {
	t.Helper()
	assert.Truef(t, d(want).Round(8).Equal(got.Round(8)), "%s: want %s, got %s", msg, want, got)
}

func receipt(variant, warehouse, qty, cost, ref string) inventory.MovementInput {
	return inventory.MovementInput{
		VariantID:     variant,
		WarehouseID:   warehouse,
		Type:          string(entity.MovementPurchaseReceipt),
		QuantityDelta: d(qty),
		UnitCost:      ptr(d(cost)),
		ReferenceID:   ref,
	}
}

func sale(variant, warehouse, qty, ref string) inventory.MovementInput {
	return inventory.MovementInput{
		VariantID:     variant,
		WarehouseID:   warehouse,
		Type:          string(entity.MovementSale),
		QuantityDelta: d(qty).Neg(),
		ReferenceID:   ref,
	}
}

func (f *fixture) mustApply(t *testing.T, in inventory.MovementInput) *inventory.MovementResult {
	t.Helper()
	res, err := f.uc.RegisterMovement(context.Background(), in)
	require.NoError(t, err)
	return res
}

func (f *fixture) state(t *testing.T, variant, warehouse string) entity.VariantWarehouseState {
	t.Helper()
	st, ok := f.store.State(entity.StockKey{VariantID: variant, WarehouseID: warehouse})
	require.True(t, ok, "state for %s@%s", variant, warehouse)
	return st
}

func (f *fixture) total(t *testing.T, productID string) decimal.Decimal {
	t.Helper()
	agg, ok := f.store.Aggregate(productID)
	require.True(t, ok, "aggregate for %s", productID)
	return agg.TotalStock
}

// ──────────────────────────────────────────────────────────────────────────────
// Weighted average through the engine
// ──────────────────────────────────────────────────────────────────────────────

func TestRegisterMovement_ReceiptsBlendAndSaleKeepsWAC(t *testing.T) {
	f := newFixture(t, costing.Policy{})

	f.mustApply(t, receipt("var-1", "wh-1", "10", "5", "po-1"))
	res := f.mustApply(t, receipt("var-1", "wh-1", "10", "7", "po-2"))
	assertDecimal(t, "20", res.QuantityOnHand, "qty after receipts")
	assertDecimal(t, "6", res.WeightedAverageCost, "wac after receipts")

	in := sale("var-1", "wh-1", "5", "line-1")
	in.Sale = &entity.SaleLine{SaleID: "sale-1", UnitPrice: d("10")}
	res = f.mustApply(t, in)

	assertDecimal(t, "15", res.QuantityOnHand, "qty after sale")
	assertDecimal(t, "6", res.WeightedAverageCost, "wac unchanged by sale")
	require.NotNil(t, res.COGS)
	assertDecimal(t, "6", res.COGS.UnitCostAtSale, "cogs unit cost")
	assertDecimal(t, "30", res.COGS.TotalCost, "cogs total")
	assertDecimal(t, "50", res.COGS.Revenue, "revenue")
	assert.Equal(t, "prod-1", res.COGS.ProductID)
	assert.Equal(t, "sale-1", res.COGS.SaleID)
	assert.Equal(t, res.Movement.ID, res.COGS.MovementID)

	st := f.state(t, "var-1", "wh-1")
	assert.Equal(t, int64(3), st.LastAppliedSequence)
	assertDecimal(t, "15", f.total(t, "prod-1"), "aggregate")
	assertDecimal(t, "15", res.ProductTotalStock, "result aggregate")
}

func TestRegisterMovement_StampsLedgerRecord(t *testing.T) {
	f := newFixture(t, costing.Policy{})
	f.mustApply(t, receipt("var-1", "wh-1", "8", "2.5", "po-1"))

	adj := inventory.MovementInput{
		VariantID:     "var-1",
		WarehouseID:   "wh-1",
		Type:          string(entity.MovementAdjustment),
		QuantityDelta: d("-2"),
		ReferenceID:   "count-7",
	}
	res := f.mustApply(t, adj)

	assertDecimal(t, "5", res.WriteOff, "write-off")
	m := res.Movement
	assert.Equal(t, int64(2), m.PerKeySequence)
	assertDecimal(t, "2.5", m.AppliedUnitCost, "applied cost")
	assertDecimal(t, "6", m.QuantityAfter, "qty after")
	assertDecimal(t, "2.5", m.WACAfter, "wac after")
	assertDecimal(t, "5", m.WriteOffAmount, "write-off on ledger")
	assert.False(t, m.OccurredAt.IsZero())
}

func TestRegisterMovement_CustomerReturnWithoutCostKeepsWAC(t *testing.T) {
	f := newFixture(t, costing.Policy{})
	f.mustApply(t, receipt("var-1", "wh-1", "10", "4", "po-1"))
	f.mustApply(t, sale("var-1", "wh-1", "3", "line-1"))

	res := f.mustApply(t, inventory.MovementInput{
		VariantID:     "var-1",
		WarehouseID:   "wh-1",
		Type:          string(entity.MovementReturn),
		QuantityDelta: d("1"),
		ReferenceID:   "rma-1",
	})
	assertDecimal(t, "8", res.QuantityOnHand, "qty")
	assertDecimal(t, "4", res.WeightedAverageCost, "wac")
}

// ──────────────────────────────────────────────────────────────────────────────
// Concurrency
// ──────────────────────────────────────────────────────────────────────────────

func TestRegisterMovement_ConcurrentSalesNeverOversell(t *testing.T) {
	f := newFixture(t, costing.Policy{})
	f.mustApply(t, receipt("var-1", "wh-1", "100", "3", "po-1"))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.uc.RegisterMovement(context.Background(), sale("var-1", "wh-1", "60", fmt.Sprintf("line-%d", i)))
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInsufficientStock):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)

	st := f.state(t, "var-1", "wh-1")
	assertDecimal(t, "40", st.QuantityOnHand, "qty")
	assert.Equal(t, int64(2), st.LastAppliedSequence)
	assertDecimal(t, "40", f.total(t, "prod-1"), "aggregate")

	history, err := f.val.ListMovements(context.Background(), entity.MovementFilter{VariantID: "var-1"})
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

// delayedTx widens the read-modify-write window: every GetForUpdate sleeps after reading the row.
type delayedTx struct {
	inventory.TxRunner
	delay time.Duration
}

func (x delayedTx) Run(ctx context.Context, fn func(repos inventory.TxRepos) error) error {
	return x.TxRunner.Run(ctx, func(r inventory.TxRepos) error {
		r.Stock = delayedStock{StockRepository: r.Stock, delay: x.delay}
		return fn(r)
	})
}

type delayedStock struct {
	repository.StockRepository
	delay time.Duration
}

func (s delayedStock) GetForUpdate(ctx context.Context, key entity.StockKey) (*entity.VariantWarehouseState, error) {
	st, err := s.StockRepository.GetForUpdate(ctx, key)
	time.Sleep(s.delay)
	return st, err
}

func TestRegisterMovement_SaleRacingReceiptMatchesASerialOrder(t *testing.T) {
	for run := 0; run < 20; run++ {
		f := newFixture(t, costing.Policy{})
		f.mustApply(t, receipt("var-1", "wh-1", "10", "5", "po-0"))
		uc := inventory.NewRegisterMovementUseCase(
			delayedTx{TxRunner: f.store, delay: 5 * time.Millisecond},
			f.locker, f.store, f.agg, costing.Policy{}, logger.Nop(), f.metrics,
		)

		start := make(chan struct{})
		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, in := range []inventory.MovementInput{
			sale("var-1", "wh-1", "2", "line-1"),
			receipt("var-1", "wh-1", "5", "8", "po-1"),
		} {
			wg.Add(1)
			go func(i int, in inventory.MovementInput) {
				defer wg.Done()
				<-start
				_, errs[i] = uc.RegisterMovement(context.Background(), in)
			}(i, in)
		}
		close(start)
		wg.Wait()
		require.NoError(t, errs[0], "run %d sale", run)
		require.NoError(t, errs[1], "run %d receipt", run)

		// Sale first: 8 @ 5 then +5 @ 8 gives 80/13. Receipt first: 15 @ 6 then -2 keeps 6.
		st := f.state(t, "var-1", "wh-1")
		assertDecimal(t, "13", st.QuantityOnHand, fmt.Sprintf("run %d qty", run))
		saleFirst := d("80").Div(d("13"))
		assert.Truef(t,
			st.WeightedAverageCost.Round(8).Equal(saleFirst.Round(8)) || st.WeightedAverageCost.Round(8).Equal(d("6")),
			"run %d: wac %s matches neither serial order", run, st.WeightedAverageCost)
		assert.Equal(t, int64(3), st.LastAppliedSequence)
		assertDecimal(t, "13", f.total(t, "prod-1"), fmt.Sprintf("run %d aggregate", run))
	}
}

func TestRegisterMovement_ConcurrentVariantsKeepAggregateExact(t *testing.T) {
	f := newFixture(t, costing.Policy{})

	const perKey = 15
	keys := []entity.StockKey{
		{VariantID: "var-1", WarehouseID: "wh-1"},
		{VariantID: "var-1", WarehouseID: "wh-2"},
		{VariantID: "var-2", WarehouseID: "wh-1"},
	}
	var wg sync.WaitGroup
	for _, k := range keys {
		for i := 0; i < perKey; i++ {
			wg.Add(1)
			go func(k entity.StockKey, i int) {
				defer wg.Done()
				in := receipt(k.VariantID, k.WarehouseID, "2", "3", fmt.Sprintf("po-%d", i))
				for {
					_, err := f.uc.RegisterMovement(context.Background(), in)
					if errors.Is(err, domain.ErrContention) {
						continue
					}
					assert.NoError(t, err)
					return
				}
			}(k, i)
		}
	}
	wg.Wait()

	for _, k := range keys {
		st := f.state(t, k.VariantID, k.WarehouseID)
		assertDecimal(t, "30", st.QuantityOnHand, k.String())
		assert.Equal(t, int64(perKey), st.LastAppliedSequence, k.String())
	}
	assertDecimal(t, "90", f.total(t, "prod-1"), "aggregate")

	report, err := f.agg.IntegrityCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Consistent())
}

func TestRegisterMovement_BusyKeyIsContention(t *testing.T) {
	f := newFixtureWithLockTimeout(t, costing.Policy{}, 30*time.Millisecond)

	release, err := f.locker.Lock(context.Background(), "var-1@wh-1")
	require.NoError(t, err)
	defer release()

	_, err = f.uc.RegisterMovement(context.Background(), receipt("var-1", "wh-1", "1", "1", "po-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrContention)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LockContention))

	_, found := f.store.State(entity.StockKey{VariantID: "var-1", WarehouseID: "wh-1"})
	assert.False(t, found)
}

// ──────────────────────────────────────────────────────────────────────────────
// Idempotency and validation
// ──────────────────────────────────────────────────────────────────────────────

func TestRegisterMovement_DuplicateReferenceIsRejected(t *testing.T) {
	f := newFixture(t, costing.Policy{})
	f.mustApply(t, receipt("var-1", "wh-1", "10", "5", "po-1"))

	_, err := f.uc.RegisterMovement(context.Background(), receipt("var-1", "wh-1", "10", "9", "po-1"))
	require.Error(t, err)
	var dup *domain.DuplicateMovementError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "po-1", dup.ReferenceID)

	st := f.state(t, "var-1", "wh-1")
	assertDecimal(t, "10", st.QuantityOnHand, "qty unchanged")
	assertDecimal(t, "5", st.WeightedAverageCost, "wac unchanged")
	assert.Equal(t, int64(1), st.LastAppliedSequence)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MovementsRejected.WithLabelValues("duplicate")))

	// Same reference with another type, or on another key, is a different movement.
	f.mustApply(t, sale("var-1", "wh-1", "1", "po-1"))
	f.mustApply(t, receipt("var-1", "wh-2", "1", "5", "po-1"))
}

func TestRegisterMovement_SaleDocumentSpansSeveralVariants(t *testing.T) {
	f := newFixture(t, costing.Policy{})
	f.mustApply(t, receipt("var-1", "wh-1", "10", "5", "po-1"))
	f.mustApply(t, receipt("var-3", "wh-1", "10", "2", "po-1"))

	first := f.mustApply(t, sale("var-1", "wh-1", "2", "sale-77"))
	second := f.mustApply(t, sale("var-3", "wh-1", "3", "sale-77"))
	require.NotNil(t, first.COGS)
	require.NotNil(t, second.COGS)
	assert.Equal(t, "sale-77", second.COGS.SaleItemID)
	assert.Equal(t, second.Movement.ID, second.COGS.MovementID)
	assertDecimal(t, "6", second.COGS.TotalCost, "second line cogs")
	assertDecimal(t, "7", f.state(t, "var-3", "wh-1").QuantityOnHand, "var-3 qty")

	// Lines carrying their own id are looked up individually.
	in := sale("var-1", "wh-1", "1", "sale-78")
	in.Sale = &entity.SaleLine{SaleID: "sale-78", SaleItemID: "sale-78/1", UnitPrice: d("9")}
	f.mustApply(t, in)
	in = sale("var-3", "wh-1", "1", "sale-78")
	in.Sale = &entity.SaleLine{SaleID: "sale-78", SaleItemID: "sale-78/2", UnitPrice: d("4")}
	f.mustApply(t, in)

	rec, err := f.val.GetCOGSRecord(context.Background(), "sale-78/2")
	require.NoError(t, err)
	assert.Equal(t, "var-3", rec.VariantID)
	assertDecimal(t, "2", rec.TotalCost, "line 2 cogs")

	rec, err = f.val.GetCOGSRecord(context.Background(), "sale-77")
	require.NoError(t, err)
	assert.Equal(t, first.Movement.ID, rec.MovementID, "earliest line for a shared id")
}

func TestRegisterMovement_Validation(t *testing.T) {
	f := newFixture(t, costing.Policy{})

	cases := []struct {
		name string
		in   inventory.MovementInput
		is   error
	}{
		{"unknown type", inventory.MovementInput{VariantID: "var-1", WarehouseID: "wh-1", Type: "gift", QuantityDelta: d("1"), ReferenceID: "r"}, domain.ErrInvalidInput},
		{"zero quantity", receipt("var-1", "wh-1", "0", "1", "r"), domain.ErrInvalidInput},
		{"receipt without cost", inventory.MovementInput{VariantID: "var-1", WarehouseID: "wh-1", Type: "purchase_receipt", QuantityDelta: d("1"), ReferenceID: "r"}, domain.ErrInvalidInput},
		{"sale line on receipt", func() inventory.MovementInput {
			in := receipt("var-1", "wh-1", "1", "1", "r")
			in.Sale = &entity.SaleLine{SaleID: "s"}
			return in
		}(), domain.ErrInvalidInput},
		{"unknown variant", receipt("var-404", "wh-1", "1", "1", "r"), domain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.uc.RegisterMovement(context.Background(), tc.in)
			assert.ErrorIs(t, err, tc.is)
		})
	}
}

func TestRegisterMovement_InsufficientStockAllowedByPolicy(t *testing.T) {
	f := newFixture(t, costing.Policy{AllowNegativeStock: true})

	res := f.mustApply(t, sale("var-1", "wh-1", "3", "line-1"))
	assertDecimal(t, "-3", res.QuantityOnHand, "backorder")
	assertDecimal(t, "-3", f.total(t, "prod-1"), "aggregate")

	res = f.mustApply(t, receipt("var-1", "wh-1", "5", "8", "po-1"))
	assertDecimal(t, "2", res.QuantityOnHand, "qty")
	assertDecimal(t, "8", res.WeightedAverageCost, "cost resets from backorder")
}

// ──────────────────────────────────────────────────────────────────────────────
// Failure atomicity
// ──────────────────────────────────────────────────────────────────────────────

func TestRegisterMovement_StorageFailureCommitsNothing(t *testing.T) {
	f := newFixture(t, costing.Policy{})
	f.mustApply(t, receipt("var-1", "wh-1", "10", "5", "po-1"))

	f.store.FailCommits(errors.New("disk full"))
	_, err := f.uc.RegisterMovement(context.Background(), sale("var-1", "wh-1", "4", "line-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorage)
	f.store.FailCommits(nil)

	st := f.state(t, "var-1", "wh-1")
	assertDecimal(t, "10", st.QuantityOnHand, "qty")
	assert.Equal(t, int64(1), st.LastAppliedSequence)
	assertDecimal(t, "10", f.total(t, "prod-1"), "aggregate")
	_, err = f.val.GetCOGSRecord(context.Background(), "line-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// The same reference can be retried after the failure.
	f.mustApply(t, sale("var-1", "wh-1", "4", "line-1"))
	rec, err := f.val.GetCOGSRecord(context.Background(), "line-1")
	require.NoError(t, err)
	assertDecimal(t, "20", rec.TotalCost, "cogs")
}

// ──────────────────────────────────────────────────────────────────────────────
// Aggregate drift
// ──────────────────────────────────────────────────────────────────────────────

func TestAggregate_DriftRejectsMovementUntilResync(t *testing.T) {
	f := newFixture(t, costing.Policy{})
	f.mustApply(t, receipt("var-1", "wh-1", "10", "5", "po-1"))
	f.mustApply(t, receipt("var-2", "wh-1", "4", "6", "po-1"))

	f.store.PutAggregate("prod-1", d("999"))

	_, err := f.uc.RegisterMovement(context.Background(), receipt("var-1", "wh-1", "1", "5", "po-2"))
	require.Error(t, err)
	var cerr *domain.ConsistencyError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "prod-1", cerr.ProductID)
	assertDecimal(t, "999", cerr.Recorded, "recorded")
	assertDecimal(t, "14", cerr.Computed, "computed")
	assertDecimal(t, "10", f.state(t, "var-1", "wh-1").QuantityOnHand, "movement rolled back")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ConsistencyErrors))

	report, err := f.agg.IntegrityCheck(context.Background())
	assert.ErrorIs(t, err, domain.ErrInconsistent)
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Checked)
	require.Len(t, report.Mismatches, 1)
	assert.Equal(t, "prod-1", report.Mismatches[0].ProductID)
	assertDecimal(t, "999", f.total(t, "prod-1"), "integrity check does not repair")

	res, err := f.agg.Recompute(context.Background(), "prod-1")
	require.NoError(t, err)
	assert.True(t, res.Repaired)
	assertDecimal(t, "999", res.Previous, "previous")
	assertDecimal(t, "14", res.Recomputed, "recomputed")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ResyncProducts.WithLabelValues("repaired")))

	f.mustApply(t, receipt("var-1", "wh-1", "1", "5", "po-2"))
	assertDecimal(t, "15", f.total(t, "prod-1"), "aggregate after repair")
}

func TestAggregate_RecomputeIsIdempotent(t *testing.T) {
	f := newFixture(t, costing.Policy{})
	f.mustApply(t, receipt("var-3", "wh-1", "7", "1", "po-1"))

	for i := 0; i < 2; i++ {
		res, err := f.agg.Recompute(context.Background(), "prod-2")
		require.NoError(t, err)
		assert.False(t, res.Repaired)
		assertDecimal(t, "7", res.Recomputed, "total")
	}
}

func TestAggregate_ResyncAll(t *testing.T) {
	f := newFixture(t, costing.Policy{})
	f.mustApply(t, receipt("var-1", "wh-1", "3", "1", "po-1"))
	f.mustApply(t, receipt("var-3", "wh-2", "5", "1", "po-1"))
	f.store.PutAggregate("prod-2", d("0"))

	results, err := f.agg.ResyncAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	byProduct := map[string]inventory.ResyncResult{}
	for _, r := range results {
		byProduct[r.ProductID] = r
	}
	assert.False(t, byProduct["prod-1"].Repaired)
	assert.True(t, byProduct["prod-2"].Repaired)
	assertDecimal(t, "5", f.total(t, "prod-2"), "repaired total")

	report, err := f.agg.IntegrityCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Consistent())
}

func TestAggregate_RecomputeRequiresProduct(t *testing.T) {
	f := newFixture(t, costing.Policy{})
	_, err := f.agg.Recompute(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
