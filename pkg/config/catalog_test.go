package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadCatalog_YAML(t *testing.T) {
	path := writeFile(t, "catalog.yaml", `
products:
  - id: prod-1
    name: Coffee beans
    variants:
      - id: var-1
        sku: COF-250
      - id: var-2
        sku: COF-1000
  - id: prod-2
    name: Green tea
    variants:
      - id: var-3
        sku: TEA-100
`)
	c, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, c.Products, 2)
	assert.Equal(t, "Coffee beans", c.Products[0].Name)
	require.Len(t, c.Products[0].Variants, 2)
	assert.Equal(t, "COF-1000", c.Products[0].Variants[1].SKU)
}

func TestLoadCatalog_RejectsSharedVariant(t *testing.T) {
	path := writeFile(t, "catalog.json", `{"products":[
		{"id":"prod-1","variants":[{"id":"var-1"}]},
		{"id":"prod-2","variants":[{"id":"var-1"}]}]}`)
	_, err := LoadCatalog(path)
	assert.ErrorContains(t, err, "var-1")
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
