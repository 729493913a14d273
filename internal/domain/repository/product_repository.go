package repository

import (
	"context"

	"github.com/jhoicas/inventory-costing/internal/domain/entity"
)

// ProductVariantRepository resolves variants to their owning product.
type ProductVariantRepository interface {
	// GetVariant returns nil, nil when the variant does not exist.
	GetVariant(ctx context.Context, variantID string) (*entity.ProductVariant, error)
	ListProductIDs(ctx context.Context) ([]string, error)
}
