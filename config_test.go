package verp_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verp "github.com/tonyluong2025/verp-sub017"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://verp@localhost:5432/postgres")
	t.Setenv("HOST_ROUTES", "shop.example.com:acme,*.example.com:%d")
	t.Setenv("SESSION_MAX_AGE", "24h")

	cfg, err := verp.LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8069", cfg.Addr)
	assert.Equal(t, "postgres://verp@localhost:5432/postgres", cfg.DB.URL)
	assert.Equal(t, "verp_migrations", cfg.DB.MigrationsTable)
	assert.Equal(t, map[string]string{"shop.example.com": "acme", "*.example.com": "%d"}, cfg.HostRoutes)
	assert.Equal(t, 24*time.Hour, cfg.SessionMaxAge)
	assert.Equal(t, verp.SessionStoreFile, cfg.SessionStore)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "us-east-1", cfg.Storage.Region)
	assert.True(t, cfg.CookieSecure)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DATABASE_URL=postgres://file/postgres\nDB_NAME=acme\n"), 0o600))
	t.Setenv("DB_NAME", "")
	// godotenv never overrides variables that are set, even to empty.
	require.NoError(t, os.Unsetenv("DB_NAME"))
	t.Setenv("DATABASE_URL", "postgres://env/postgres")

	cfg, err := verp.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/postgres", cfg.DB.URL)
	assert.Equal(t, "acme", cfg.DefaultTenant)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/postgres")

	t.Run("redis without url", func(t *testing.T) {
		t.Setenv("SESSION_STORE", "redis")
		_, err := verp.LoadConfig()
		require.ErrorIs(t, err, verp.ErrInvalidConfig)
	})

	t.Run("unknown store", func(t *testing.T) {
		t.Setenv("SESSION_STORE", "memcache")
		_, err := verp.LoadConfig()
		require.ErrorIs(t, err, verp.ErrInvalidConfig)
	})

	t.Run("bad tenant", func(t *testing.T) {
		t.Setenv("DB_NAME", "../etc")
		_, err := verp.LoadConfig()
		require.ErrorIs(t, err, verp.ErrInvalidConfig)
	})
}

func TestLoadConfig_MissingDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	require.NoError(t, os.Unsetenv("DATABASE_URL"))

	_, err := verp.LoadConfig()
	require.Error(t, err)
}
