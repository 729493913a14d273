package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/inventory-costing/internal/domain"
	"github.com/jhoicas/inventory-costing/internal/domain/entity"
	"github.com/jhoicas/inventory-costing/internal/domain/repository"
	"github.com/jhoicas/inventory-costing/pkg/logger"
	"github.com/jhoicas/inventory-costing/pkg/metrics"
)

// StockAggregator maintains ProductAggregate.totalStock as the sum of quantityOnHand over
// every (variant, warehouse) row of the product.
type StockAggregator struct {
	txRunner    TxRunner
	snapshots   SnapshotRunner
	variants    repository.ProductVariantRepository
	log         *logger.Logger
	metrics     *metrics.Metrics
	concurrency int
	now         func() time.Time
}

// NewStockAggregator builds the aggregator. concurrency bounds ResyncAll.
func NewStockAggregator(
	txRunner TxRunner,
	snapshots SnapshotRunner,
	variants repository.ProductVariantRepository,
	log *logger.Logger,
	m *metrics.Metrics,
	concurrency int,
) *StockAggregator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &StockAggregator{
		txRunner:    txRunner,
		snapshots:   snapshots,
		variants:    variants,
		log:         log,
		metrics:     m,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// ResyncResult describes one product after an explicit recompute.
type ResyncResult struct {
	ProductID  string
	Previous   decimal.Decimal
	Recomputed decimal.Decimal
	Repaired   bool
}

// IntegrityReport is the outcome of a read-only aggregate check.
type IntegrityReport struct {
	CheckedAt  time.Time
	Checked    int
	Mismatches []*domain.ConsistencyError
}

// Consistent reports whether every aggregate matched its detail rows.
func (r *IntegrityReport) Consistent() bool { return len(r.Mismatches) == 0 }

// recomputeInTx refreshes the product aggregate inside a movement's transaction. The aggregate
// row is locked before summing so concurrent movements on other variants of the product queue
// behind it. delta is the net quantity change this transaction made to the product; if the
// stored total plus delta is not the fresh sum, the aggregate had already drifted and the whole
// unit is rolled back with a ConsistencyError.
func (a *StockAggregator) recomputeInTx(ctx context.Context, r TxRepos, productID string, delta decimal.Decimal) (decimal.Decimal, error) {
	agg, _, err := r.Aggregates.GetForUpdate(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	sum, err := r.Stock.SumByProduct(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	if !agg.TotalStock.Add(delta).Equal(sum) {
		a.metrics.ConsistencyError()
		cerr := &domain.ConsistencyError{ProductID: productID, Recorded: agg.TotalStock, Computed: sum.Sub(delta)}
		a.log.Error().
			Str("alert", "operator").
			Str("product_id", productID).
			Str("recorded", cerr.Recorded.String()).
			Str("computed", cerr.Computed.String()).
			Msg("aggregate drift detected, movement rolled back; run a resync")
		return decimal.Zero, cerr
	}
	agg.TotalStock = sum
	agg.UpdatedAt = a.now()
	if err := r.Aggregates.Save(ctx, agg); err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

// Recompute rebuilds one product's aggregate from its detail rows. It is idempotent. A repaired
// mismatch is logged for the operator since it means something bypassed the movement path.
func (a *StockAggregator) Recompute(ctx context.Context, productID string) (*ResyncResult, error) {
	if productID == "" {
		return nil, domain.Invalid("product_id", "is required")
	}
	res := &ResyncResult{ProductID: productID}
	err := a.txRunner.Run(ctx, func(r TxRepos) error {
		agg, _, err := r.Aggregates.GetForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		sum, err := r.Stock.SumByProduct(ctx, productID)
		if err != nil {
			return err
		}
		res.Previous = agg.TotalStock
		res.Recomputed = sum
		res.Repaired = !agg.TotalStock.Equal(sum)
		agg.TotalStock = sum
		agg.UpdatedAt = a.now()
		return r.Aggregates.Save(ctx, agg)
	})
	if err != nil {
		a.metrics.ResyncProduct("error")
		return nil, domain.Storage("recompute aggregate", err)
	}
	if res.Repaired {
		a.metrics.ResyncProduct("repaired")
		a.log.Error().
			Str("alert", "operator").
			Str("product_id", productID).
			Str("previous", res.Previous.String()).
			Str("recomputed", res.Recomputed.String()).
			Msg("aggregate repaired by resync")
	} else {
		a.metrics.ResyncProduct("ok")
	}
	return res, nil
}

// ResyncAll recomputes every product's aggregate with bounded parallelism. Products are
// independent so a failure on one does not stop the others; all failures are joined.
func (a *StockAggregator) ResyncAll(ctx context.Context) ([]ResyncResult, error) {
	ids, err := a.variants.ListProductIDs(ctx)
	if err != nil {
		return nil, domain.Storage("list products", err)
	}

	results := make([]ResyncResult, len(ids))
	errs := make([]error, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			res, err := a.Recompute(gctx, id)
			if err != nil {
				errs[i] = fmt.Errorf("product %s: %w", id, err)
				return nil
			}
			results[i] = *res
			return nil
		})
	}
	_ = g.Wait()

	out := results[:0]
	for i := range results {
		if errs[i] == nil {
			out = append(out, results[i])
		}
	}
	return out, errors.Join(errs...)
}

// IntegrityCheck compares every aggregate with the sum of its detail rows on one snapshot and
// reports mismatches without repairing them. The returned error joins one ConsistencyError per
// mismatching product.
func (a *StockAggregator) IntegrityCheck(ctx context.Context) (*IntegrityReport, error) {
	var stocks []entity.ProductStock
	err := a.snapshots.Snapshot(ctx, func(repo repository.ValuationRepository) error {
		var err error
		stocks, err = repo.ProductStocks(ctx)
		return err
	})
	if err != nil {
		return nil, domain.Storage("integrity check", err)
	}

	report := &IntegrityReport{CheckedAt: a.now(), Checked: len(stocks), Mismatches: []*domain.ConsistencyError{}}
	errs := make([]error, 0)
	for _, s := range stocks {
		if s.AggregateQty.Equal(s.DetailQty) {
			continue
		}
		cerr := &domain.ConsistencyError{ProductID: s.ProductID, Recorded: s.AggregateQty, Computed: s.DetailQty}
		report.Mismatches = append(report.Mismatches, cerr)
		errs = append(errs, cerr)
		a.metrics.ConsistencyError()
		a.log.Error().
			Str("alert", "operator").
			Str("product_id", s.ProductID).
			Str("recorded", s.AggregateQty.String()).
			Str("computed", s.DetailQty.String()).
			Msg("aggregate mismatch found by integrity check")
	}
	a.log.Info().Int("checked", report.Checked).Int("mismatches", len(report.Mismatches)).Msg("integrity check finished")
	return report, errors.Join(errs...)
}

// RunIntegrityTicker runs IntegrityCheck every interval until ctx is done.
func (a *StockAggregator) RunIntegrityTicker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := a.IntegrityCheck(ctx); err != nil && !errors.Is(err, domain.ErrInconsistent) {
				a.log.Warn().Err(err).Msg("integrity check failed")
			}
		}
	}
}
