package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/inventory-costing/internal/domain/entity"
	"github.com/jhoicas/inventory-costing/internal/domain/repository"
)

var _ repository.ProductVariantRepository = (*VariantRepo)(nil)

// VariantRepo reads the product catalog.
type VariantRepo struct {
	q Querier
}

// NewVariantRepository builds the catalog adapter.
func NewVariantRepository(q Querier) *VariantRepo {
	return &VariantRepo{q: q}
}

// GetVariant returns nil, nil when the variant does not exist.
func (r *VariantRepo) GetVariant(ctx context.Context, variantID string) (*entity.ProductVariant, error) {
	const query = `SELECT id, product_id, sku, name FROM product_variants WHERE id = $1`
	var v entity.ProductVariant
	err := r.q.QueryRow(ctx, query, variantID).Scan(&v.ID, &v.ProductID, &v.SKU, &v.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get variant: %w", err)
	}
	return &v, nil
}

// ListProductIDs returns every product id in id order.
func (r *VariantRepo) ListProductIDs(ctx context.Context) ([]string, error) {
	rows, err := r.q.Query(ctx, `SELECT id FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list products scan: %w", err)
	}
	return ids, nil
}

// UpsertProduct creates or renames a product.
func (r *VariantRepo) UpsertProduct(ctx context.Context, id, name string) error {
	const query = `
		INSERT INTO products (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`
	if _, err := r.q.Exec(ctx, query, id, name); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

// UpsertVariant creates or updates a variant. A variant never moves to another product.
func (r *VariantRepo) UpsertVariant(ctx context.Context, v entity.ProductVariant) error {
	const query = `
		INSERT INTO product_variants (id, product_id, sku, name) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET sku = EXCLUDED.sku, name = EXCLUDED.name
		WHERE product_variants.product_id = EXCLUDED.product_id`
	tag, err := r.q.Exec(ctx, query, v.ID, v.ProductID, v.SKU, v.Name)
	if err != nil {
		return fmt.Errorf("upsert variant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("upsert variant %s: already belongs to another product", v.ID)
	}
	return nil
}
