package filestore_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonyluong2025/verp-sub017/pkg/session"
	"github.com/tonyluong2025/verp-sub017/pkg/session/filestore"
)

func newStore(t *testing.T) *filestore.Store {
	t.Helper()
	s, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestStore_SaveAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	sess := s.New()
	sess.SetContext("lang", "fr_FR")
	sess.Authenticate("acme", 2, "admin", "tok")
	require.NoError(t, s.Save(ctx, sess))
	assert.False(t, sess.IsNew())
	assert.False(t, sess.IsDirty())

	got, err := s.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "acme", got.Tenant)
	assert.Equal(t, int64(2), got.UserID())
	assert.Equal(t, "fr_FR", got.Context["lang"])
	assert.False(t, got.IsNew())
}

func TestStore_GetMissingAndInvalid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	_, err := s.Get(ctx, "0123456789abcdef0123")
	require.ErrorIs(t, err, session.ErrNotFound)

	_, err = s.Get(ctx, "../../etc/passwd")
	require.ErrorIs(t, err, session.ErrInvalidID)
}

func TestStore_Rotate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	sess := s.New()
	sess.SetContext("tz", "UTC")
	require.NoError(t, s.Save(ctx, sess))
	oldID := sess.ID

	sess.MarkRotate()
	require.NoError(t, s.Rotate(ctx, sess))
	assert.NotEqual(t, oldID, sess.ID)
	assert.False(t, sess.ShouldRotate())

	_, err := s.Get(ctx, oldID)
	require.ErrorIs(t, err, session.ErrNotFound)

	got, err := s.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "UTC", got.Context["tz"])
}

func TestStore_GC(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	s, err := filestore.New(dir)
	require.NoError(t, err)

	stale := s.New()
	require.NoError(t, s.Save(ctx, stale))
	fresh := s.New()
	require.NoError(t, s.Save(ctx, fresh))

	old := time.Now().Add(-8 * 24 * time.Hour)
	path := filepath.Join(dir, stale.ID[:2], stale.ID+".json")
	require.NoError(t, os.Chtimes(path, old, old))

	removed, err := s.GC(ctx, session.DefaultMaxAge)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.Get(ctx, stale.ID)
	require.ErrorIs(t, err, session.ErrNotFound)
	_, err = s.Get(ctx, fresh.ID)
	require.NoError(t, err)
}

func TestStore_ConcurrentSaves(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	sess := s.New()
	require.NoError(t, s.Save(ctx, sess))

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cp := session.New(sess.ID)
			cp.SetContext("n", float64(i))
			assert.NoError(t, s.Save(ctx, cp))
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Contains(t, got.Context, "n")
}
