package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonyluong2025/verp-sub017/pkg/session/filestore"
)

func mustFileStore(t *testing.T) *filestore.Store {
	t.Helper()
	store, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	return store
}
