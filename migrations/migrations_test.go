package migrations_test

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonyluong2025/verp-sub017/internal"
	"github.com/tonyluong2025/verp-sub017/migrations"
)

func TestFS(t *testing.T) {
	t.Parallel()

	names, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	require.Equal(t, []string{"00001_modules.sql", "00002_users.sql"}, names)

	for _, name := range names {
		body, err := fs.ReadFile(migrations.FS, name)
		require.NoError(t, err)
		assert.Contains(t, string(body), "-- +goose Up", name)
		assert.Contains(t, string(body), "-- +goose Down", name)
	}
}

func TestFS_MatchesEngineNames(t *testing.T) {
	t.Parallel()

	modules, err := fs.ReadFile(migrations.FS, "00001_modules.sql")
	require.NoError(t, err)
	assert.Contains(t, string(modules), "pg_notify('"+internal.RegistryChannel+"'")

	users, err := fs.ReadFile(migrations.FS, "00002_users.sql")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(users), "'"+internal.PublicLogin+"'"))
}
