// Package redisstore keeps sessions in Redis with a sliding TTL.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tonyluong2025/verp-sub017/pkg/session"
)

const defaultPrefix = "verp:session:"

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix. Default: "verp:session:".
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithTTL sets the expiry applied on every save. Default: session.DefaultMaxAge.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// Store is a Redis-backed session.Store. Expiry is delegated to Redis,
// so GC is a no-op.
type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New returns a Store using client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: defaultPrefix,
		ttl:    session.DefaultMaxAge,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

// New returns a fresh, unsaved session.
func (s *Store) New() *session.Session {
	return session.New(uuid.NewString())
}

// Get loads a session by id.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	if !session.ValidID(id) {
		return nil, session.ErrInvalidID
	}
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, session.ErrNotFound
		}
		return nil, errors.Join(errors.New("redisstore: get"), err)
	}
	sess := session.New(id)
	if err := json.Unmarshal(data, sess); err != nil {
		return nil, session.ErrNotFound
	}
	sess.ID = id
	sess.ClearNew()
	sess.ClearDirty()
	return sess, nil
}

// Save writes the session and refreshes its TTL.
func (s *Store) Save(ctx context.Context, sess *session.Session) error {
	if !session.ValidID(sess.ID) {
		return session.ErrInvalidID
	}
	sess.UpdatedAt = time.Now()
	data, err := json.Marshal(sess)
	if err != nil {
		return errors.Join(errors.New("redisstore: marshal"), err)
	}
	if err := s.client.Set(ctx, s.key(sess.ID), data, s.ttl).Err(); err != nil {
		return errors.Join(errors.New("redisstore: set"), err)
	}
	sess.ClearNew()
	sess.ClearDirty()
	return nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, sess *session.Session) error {
	if !session.ValidID(sess.ID) {
		return session.ErrInvalidID
	}
	if err := s.client.Del(ctx, s.key(sess.ID)).Err(); err != nil {
		return errors.Join(errors.New("redisstore: delete"), err)
	}
	return nil
}

// Rotate moves the session to a new id in a single pipeline.
func (s *Store) Rotate(ctx context.Context, sess *session.Session) error {
	oldID := sess.ID
	sess.ID = uuid.NewString()
	sess.UpdatedAt = time.Now()

	data, err := json.Marshal(sess)
	if err != nil {
		sess.ID = oldID
		return errors.Join(errors.New("redisstore: marshal"), err)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.key(sess.ID), data, s.ttl)
		if session.ValidID(oldID) {
			p.Del(ctx, s.key(oldID))
		}
		return nil
	})
	if err != nil {
		sess.ID = oldID
		return errors.Join(errors.New("redisstore: rotate"), err)
	}

	sess.ClearNew()
	sess.ClearDirty()
	sess.ClearRotate()
	return nil
}

// GC is a no-op: keys expire through their TTL.
func (s *Store) GC(context.Context, time.Duration) (int, error) {
	return 0, nil
}

var _ session.Store = (*Store)(nil)
