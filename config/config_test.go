package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PRICEWATCH_CONFIG", "")
	t.Setenv("STORE_DRIVER", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, "laptop", cfg.SearchQuery)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricewatch.yaml")
	body := "store_driver: postgres\npostgres_host: db.internal\nmax_pages: 7\nsearch_query: gaming laptop\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	t.Setenv("PRICEWATCH_CONFIG", path)
	t.Setenv("MAX_PAGES", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, "gaming laptop", cfg.SearchQuery)
	assert.Equal(t, 3, cfg.MaxPages, "env overrides the file")
	assert.Contains(t, cfg.PostgresDSN(), "host=db.internal")
}

func TestLoadBadFile(t *testing.T) {
	t.Setenv("PRICEWATCH_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestGetEnvIntIgnoresGarbage(t *testing.T) {
	t.Setenv("MAX_RETRIES", "lots")
	assert.Equal(t, 4, getEnvInt("MAX_RETRIES", 4))
}

func TestStoreDSN(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "./laptop_prices.db", cfg.StoreDSN())

	cfg.StoreDriver = "mysql"
	cfg.MySQLDSN = "user:pw@tcp(db:3306)/prices?parseTime=true"
	assert.Equal(t, cfg.MySQLDSN, cfg.StoreDSN())

	cfg.StoreDriver = "Postgres"
	assert.Contains(t, cfg.StoreDSN(), "dbname=laptop_prices")
}
