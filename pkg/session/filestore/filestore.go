// Package filestore persists sessions as one JSON file per session id.
//
// Files are sharded by the first two characters of the id and written
// atomically (temporary file + rename), so concurrent saves of different
// sessions never interfere and concurrent saves of the same session are
// last-writer-wins without ever exposing a partially written record.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tonyluong2025/verp-sub017/pkg/session"
)

const fileExt = ".json"

// Store is a file-backed session.Store.
type Store struct {
	dir string
}

// New creates the session directory if needed and returns a Store rooted at dir.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("filestore: empty directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("filestore: create dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// New returns a fresh session with a random id. It is not persisted.
func (s *Store) New() *session.Session {
	return session.New(uuid.NewString())
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id[:2], id+fileExt)
}

// Get loads the session stored under id.
func (s *Store) Get(_ context.Context, id string) (*session.Session, error) {
	if !session.ValidID(id) {
		return nil, session.ErrInvalidID
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("filestore: read: %w", err)
	}

	sess := session.New(id)
	if err := json.Unmarshal(data, sess); err != nil {
		// A corrupted record is treated like a missing one; the caller
		// starts a fresh session and the file is overwritten on save.
		return nil, session.ErrNotFound
	}
	sess.ID = id
	sess.ClearNew()
	sess.ClearDirty()
	return sess, nil
}

// Save writes the session atomically.
func (s *Store) Save(_ context.Context, sess *session.Session) error {
	if !session.ValidID(sess.ID) {
		return session.ErrInvalidID
	}
	sess.UpdatedAt = time.Now()

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("filestore: marshal: %w", err)
	}

	target := s.path(sess.ID)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("filestore: create shard: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+sess.ID+".*")
	if err != nil {
		return fmt.Errorf("filestore: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("filestore: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("filestore: close: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("filestore: rename: %w", err)
	}

	sess.ClearNew()
	sess.ClearDirty()
	return nil
}

// Delete removes the session file. Missing files are not an error.
func (s *Store) Delete(_ context.Context, sess *session.Session) error {
	if !session.ValidID(sess.ID) {
		return session.ErrInvalidID
	}
	if err := os.Remove(s.path(sess.ID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("filestore: delete: %w", err)
	}
	return nil
}

// Rotate saves the session under a new id and deletes the previous file.
func (s *Store) Rotate(ctx context.Context, sess *session.Session) error {
	old := *sess
	sess.ID = uuid.NewString()
	if err := s.Save(ctx, sess); err != nil {
		sess.ID = old.ID
		return err
	}
	sess.ClearRotate()
	if old.ID == "" || !session.ValidID(old.ID) {
		return nil
	}
	return s.Delete(ctx, &old)
}

// GC removes session files whose modification time is older than maxAge.
func (s *Store) GC(ctx context.Context, maxAge time.Duration) (int, error) {
	threshold := time.Now().Add(-maxAge)
	removed := 0
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Files can disappear while walking (concurrent delete/rotate).
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), fileExt) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(threshold) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("filestore: gc: %w", err)
	}
	return removed, nil
}

var _ session.Store = (*Store)(nil)
