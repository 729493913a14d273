// Package memory is an in-process implementation of the inventory ports. It keeps the same
// transactional contract as the postgres package: writes are staged per transaction, the rows a
// transaction locks stay locked until it commits or rolls back, and readers only see committed
// state. It backs STORE_DRIVER=memory and the application tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventory-costing/internal/application/inventory"
	"github.com/jhoicas/inventory-costing/internal/domain"
	"github.com/jhoicas/inventory-costing/internal/domain/entity"
	"github.com/jhoicas/inventory-costing/internal/domain/repository"
	"github.com/jhoicas/inventory-costing/internal/infrastructure/lock"
)

type refKey struct {
	key  entity.StockKey
	ref  string
	kind entity.MovementType
}

type seqKey struct {
	key entity.StockKey
	seq int64
}

// Store holds committed state behind one RWMutex.
type Store struct {
	mu         sync.RWMutex
	products   map[string]string // id -> name
	variants   map[string]entity.ProductVariant
	states     map[entity.StockKey]entity.VariantWarehouseState
	aggregates map[string]entity.ProductAggregate
	movements  []entity.StockMovement
	refs       map[refKey]struct{}
	seqs       map[seqKey]struct{}
	cogs       map[string]entity.COGSRecord // by movement id
	cogsOrder  []string
	commitErr  error

	rows *lock.LocalLocker
}

// New returns an empty store. rowLockTimeout bounds the wait for a row held by another
// transaction, like lock_timeout in postgres.
func New(rowLockTimeout time.Duration) *Store {
	return &Store{
		products:   make(map[string]string),
		variants:   make(map[string]entity.ProductVariant),
		states:     make(map[entity.StockKey]entity.VariantWarehouseState),
		aggregates: make(map[string]entity.ProductAggregate),
		refs:       make(map[refKey]struct{}),
		seqs:       make(map[seqKey]struct{}),
		cogs:       make(map[string]entity.COGSRecord),
		rows:       lock.NewLocalLocker(rowLockTimeout),
	}
}

// AddProduct registers a product.
func (s *Store) AddProduct(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[id] = name
}

// AddVariant registers a variant of an existing product.
func (s *Store) AddVariant(v entity.ProductVariant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[v.ProductID]; !ok {
		return domain.Invalid("product_id", "is not a known product")
	}
	s.variants[v.ID] = v
	return nil
}

// UpsertProduct implements bootstrap.CatalogWriter.
func (s *Store) UpsertProduct(_ context.Context, id, name string) error {
	s.AddProduct(id, name)
	return nil
}

// UpsertVariant implements bootstrap.CatalogWriter. A variant never moves to another product.
func (s *Store) UpsertVariant(_ context.Context, v entity.ProductVariant) error {
	s.mu.RLock()
	cur, ok := s.variants[v.ID]
	s.mu.RUnlock()
	if ok && cur.ProductID != v.ProductID {
		return fmt.Errorf("upsert variant %s: already belongs to another product", v.ID)
	}
	return s.AddVariant(v)
}

// PutAggregate overwrites a product aggregate outside the movement path. It exists for imports
// and for reproducing drift; the next movement on the product will detect the mismatch.
func (s *Store) PutAggregate(productID string, total decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggregates[productID] = entity.ProductAggregate{ProductID: productID, TotalStock: total, UpdatedAt: time.Now()}
}

// FailCommits makes every later commit fail with err until called with nil.
func (s *Store) FailCommits(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

// State returns the committed state of a key.
func (s *Store) State(key entity.StockKey) (entity.VariantWarehouseState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[key]
	return st, ok
}

// Aggregate returns the committed aggregate of a product.
func (s *Store) Aggregate(productID string) (entity.ProductAggregate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.aggregates[productID]
	return agg, ok
}

// GetVariant implements repository.ProductVariantRepository.
func (s *Store) GetVariant(_ context.Context, variantID string) (*entity.ProductVariant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.variants[variantID]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

// ListProductIDs implements repository.ProductVariantRepository.
func (s *Store) ListProductIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.products))
	for id := range s.products {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Run implements inventory.TxRunner.
func (s *Store) Run(ctx context.Context, fn func(repos inventory.TxRepos) error) error {
	t := &tx{
		store:  s,
		held:   make(map[string]func()),
		states: make(map[entity.StockKey]entity.VariantWarehouseState),
		aggs:   make(map[string]entity.ProductAggregate),
	}
	defer t.releaseRows()

	if err := fn(t.repos()); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.commit()
}

// Snapshot implements inventory.SnapshotRunner on a copy of committed state.
func (s *Store) Snapshot(_ context.Context, fn func(repo repository.ValuationRepository) error) error {
	return fn(s.snapshot())
}

// History returns a ledger repository bound to committed state.
func (s *Store) History() repository.StockMovementRepository { return (*committedMovements)(s) }

// COGS returns a COGS repository bound to committed state.
func (s *Store) COGS() repository.COGSRepository { return (*committedCOGS)(s) }

func (s *Store) productOf(variantID string) (string, bool) {
	v, ok := s.variants[variantID]
	return v.ProductID, ok
}

// tx stages writes and holds row locks until commit or rollback.
type tx struct {
	store     *Store
	held      map[string]func()
	states    map[entity.StockKey]entity.VariantWarehouseState
	aggs      map[string]entity.ProductAggregate
	movements []entity.StockMovement
	cogs      []entity.COGSRecord
}

func (t *tx) repos() inventory.TxRepos {
	return inventory.TxRepos{
		Movements:  (*txMovements)(t),
		Stock:      (*txStock)(t),
		Aggregates: (*txAggregates)(t),
		COGS:       (*txCOGS)(t),
	}
}

func (t *tx) lockRow(ctx context.Context, row string) error {
	if _, ok := t.held[row]; ok {
		return nil
	}
	release, err := t.store.rows.Lock(ctx, row)
	if err != nil {
		return err
	}
	t.held[row] = release
	return nil
}

func (t *tx) releaseRows() {
	for _, release := range t.held {
		release()
	}
}

var errSequenceTaken = errors.New("memory: (key, sequence) already recorded")

func (t *tx) commit() error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.commitErr != nil {
		return s.commitErr
	}
	for _, m := range t.movements {
		if _, ok := s.refs[refKey{m.Key(), m.ReferenceID, m.Type}]; ok {
			return duplicateOf(&m)
		}
		if _, ok := s.seqs[seqKey{m.Key(), m.PerKeySequence}]; ok {
			return errSequenceTaken
		}
	}
	for _, c := range t.cogs {
		if _, ok := s.cogs[c.MovementID]; ok {
			return duplicateCOGS(&c)
		}
	}

	for _, m := range t.movements {
		s.movements = append(s.movements, m)
		s.refs[refKey{m.Key(), m.ReferenceID, m.Type}] = struct{}{}
		s.seqs[seqKey{m.Key(), m.PerKeySequence}] = struct{}{}
	}
	for k, st := range t.states {
		s.states[k] = st
	}
	for id, agg := range t.aggs {
		s.aggregates[id] = agg
	}
	for _, c := range t.cogs {
		s.cogs[c.MovementID] = c
		s.cogsOrder = append(s.cogsOrder, c.MovementID)
	}
	return nil
}

func duplicateOf(m *entity.StockMovement) error {
	return &domain.DuplicateMovementError{
		VariantID:   m.VariantID,
		WarehouseID: m.WarehouseID,
		ReferenceID: m.ReferenceID,
		Type:        string(m.Type),
	}
}

func duplicateCOGS(c *entity.COGSRecord) error {
	return &domain.DuplicateMovementError{
		VariantID:   c.VariantID,
		WarehouseID: c.WarehouseID,
		ReferenceID: c.MovementID,
		Type:        string(entity.MovementSale),
	}
}
