package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Catalog is the product/variant master data the engine needs to resolve a variant's product.
// Owning the catalog is outside this service; the file only seeds it.
type Catalog struct {
	Products []CatalogProduct `mapstructure:"products"`
}

// CatalogProduct is one product and its variants.
type CatalogProduct struct {
	ID       string           `mapstructure:"id"`
	Name     string           `mapstructure:"name"`
	Variants []CatalogVariant `mapstructure:"variants"`
}

// CatalogVariant is one sellable variant.
type CatalogVariant struct {
	ID   string `mapstructure:"id"`
	SKU  string `mapstructure:"sku"`
	Name string `mapstructure:"name"`
}

// LoadCatalog reads a YAML, JSON or TOML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var c Catalog
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("catalog: decode %s: %w", path, err)
	}
	return &c, c.Validate()
}

// Validate rejects missing ids and variants listed under two products.
func (c *Catalog) Validate() error {
	seen := make(map[string]string)
	for i, p := range c.Products {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("catalog: product #%d has no id", i+1)
		}
		for j, v := range p.Variants {
			if strings.TrimSpace(v.ID) == "" {
				return fmt.Errorf("catalog: variant #%d of product %s has no id", j+1, p.ID)
			}
			if owner, dup := seen[v.ID]; dup {
				return fmt.Errorf("catalog: variant %s listed under %s and %s", v.ID, owner, p.ID)
			}
			seen[v.ID] = p.ID
		}
	}
	return nil
}
