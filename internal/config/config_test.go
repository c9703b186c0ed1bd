package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogsync/internal/model"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "REDIS_URL", "OPENAI_API_KEY", "METRICS_PORT", "LOG_LEVEL",
		"CATALOG_FILE", "SNAPSHOT_DIR", "ENCODER_URL", "ENCODER_MODEL", "BATCH_SIZE",
		"BATCH_DELAY", "FETCH_MAX_ATTEMPTS", "FETCH_BACKOFF", "FETCH_CONCURRENCY",
		"HTTP_TIMEOUT", "EMBED_WORKERS", "ID_CACHE_TTL", "DB_MAX_CONNS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 3, cfg.FetchMaxAttempts)
	assert.Equal(t, time.Second, cfg.BatchDelay)
	assert.Equal(t, 1, cfg.FetchConcurrency)
	assert.Equal(t, "category_data", cfg.SnapshotDir)
	assert.Equal(t, 24*time.Hour, cfg.IDCacheTTL)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BATCH_SIZE", "20")
	t.Setenv("BATCH_DELAY", "250ms")
	t.Setenv("FETCH_BACKOFF", "2")
	t.Setenv("FETCH_MAX_ATTEMPTS", "not-a-number")

	cfg := Load()

	assert.Equal(t, 20, cfg.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.BatchDelay)
	assert.Equal(t, 2*time.Second, cfg.FetchBackoff)
	assert.Equal(t, 3, cfg.FetchMaxAttempts)
}

const catalogYAML = `
site:
  brand: "Pull & Bear"
  products_url: "https://example.test/productsArray?productIds={product_ids}&categoryId={category_id}"
  product_url_template: "https://example.test/en/p/{product_id}"
categories:
  - id: "100"
    name: men_shoes
    gender: man
  - id: "200"
    name: women_jeans
    gender: WOMAN
category_tags:
  "100": footwear
`

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog(writeCatalog(t, catalogYAML))
	require.NoError(t, err)

	assert.Equal(t, "Pull & Bear", c.Site.Brand)
	assert.Equal(t, model.SourceScraper, c.Site.Source)
	assert.Equal(t, "EUR", c.Site.Currency)
	assert.Equal(t, "productIds", c.Site.IDsPath)
	assert.True(t, c.Site.PriceMinorUnits)
	assert.Equal(t, "footwear", c.CategoryTags["100"])

	cats := c.CategoryList()
	require.Len(t, cats, 2)
	assert.Equal(t, "100", cats[0].ID)
	assert.Equal(t, model.GenderMan, cats[0].Gender)
	assert.Equal(t, "200", cats[1].ID)
}

func TestLoadCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing products url", "site:\n  product_url_template: x/{product_id}\n"},
		{"template without product id", "site:\n  products_url: a\n  product_url_template: b\n"},
		{"template with title slug", "site:\n  products_url: a\n  product_url_template: x/{slug}-l{product_id}\n"},
		{"duplicate category", `
site:
  products_url: a
  product_url_template: b/{product_id}
categories:
  - id: "1"
  - id: "1"
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCatalog(writeCatalog(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestSelect(t *testing.T) {
	cats := []model.Category{{ID: "1", Name: "men_jeans"}, {ID: "2", Name: "women_jeans"}, {ID: "3", Name: "bags"}}

	assert.Len(t, Select(cats, ""), 3)
	assert.Len(t, Select(cats, "all"), 3)

	got := Select(cats, "3, MEN_JEANS")
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID, "declaration order is kept")
	assert.Equal(t, "3", got[1].ID)
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, l)

	l, err = NewLogger("bogus")
	require.NoError(t, err)
	assert.NotNil(t, l)
}
