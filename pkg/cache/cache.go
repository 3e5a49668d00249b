// Package cache is an in-memory TTL cache with optional LRU bounding and
// stampede-free loading.
//
//	sites := cache.New[*Site](cache.WithDefaultTTL(time.Minute), cache.WithMaxEntries(1024))
//	defer sites.Close()
//
//	site, err := sites.GetOrSet(ctx, tenant+"|"+host, func(ctx context.Context) (*Site, time.Duration, error) {
//		s, err := load(ctx, tenant, host)
//		return s, 0, err
//	})
//
// TTL semantics for Set and loaders: positive expires after the duration,
// zero uses the default TTL, negative never expires.
package cache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	ErrNotFound = errors.New("cache: entry not found")
	ErrClosed   = errors.New("cache: closed")
)

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time // zero = never
}

func (e *entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	defaultTTL      time.Duration
	cleanupInterval time.Duration
	maxEntries      int
}

// WithDefaultTTL sets the TTL used when Set is called with zero. Default: 1h.
func WithDefaultTTL(d time.Duration) Option {
	return func(o *options) { o.defaultTTL = d }
}

// WithCleanupInterval sets the janitor period; zero disables it. Default: 1m.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) { o.cleanupInterval = d }
}

// WithMaxEntries bounds the cache, evicting least recently used entries.
// Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(o *options) { o.maxEntries = n }
}

// Cache is safe for concurrent use.
type Cache[V any] struct {
	opts   options
	sf     singleflight.Group
	mu     sync.Mutex
	items  map[string]*list.Element
	lru    *list.List // front = most recently used
	done   chan struct{}
	closed bool
}

// New creates a cache and starts its janitor.
func New[V any](opts ...Option) *Cache[V] {
	o := options{defaultTTL: time.Hour, cleanupInterval: time.Minute}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Cache[V]{
		opts:  o,
		items: make(map[string]*list.Element),
		lru:   list.New(),
		done:  make(chan struct{}),
	}
	if o.cleanupInterval > 0 {
		go c.janitor()
	}
	return c
}

// Get returns the live value for key or ErrNotFound.
func (c *Cache[V]) Get(_ context.Context, key string) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, ErrNotFound
	}
	e := el.Value.(*entry[V])
	if e.expired(time.Now()) {
		c.remove(el)
		return zero, ErrNotFound
	}
	c.lru.MoveToFront(el)
	return e.value, nil
}

// Set stores value under key.
func (c *Cache[V]) Set(_ context.Context, key string, value V, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if ttl == 0 {
		ttl = c.opts.defaultTTL
	}
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[V])
		e.value, e.expiresAt = value, exp
		c.lru.MoveToFront(el)
		return nil
	}
	if c.opts.maxEntries > 0 && len(c.items) >= c.opts.maxEntries {
		if back := c.lru.Back(); back != nil {
			c.remove(back)
		}
	}
	c.items[key] = c.lru.PushFront(&entry[V]{key: key, value: value, expiresAt: exp})
	return nil
}

// Delete removes key.
func (c *Cache[V]) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.remove(el)
	}
	return nil
}

// DeleteFunc removes every key for which match returns true and returns
// how many were removed.
func (c *Cache[V]) DeleteFunc(match func(key string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, el := range c.items {
		if match(key) {
			c.remove(el)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired ones included until
// they are swept.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// GetOrSet returns the cached value for key or loads it with fn.
// Concurrent misses on the same key share one fn call. Errors are not cached.
func (c *Cache[V]) GetOrSet(ctx context.Context, key string, fn func(ctx context.Context) (V, time.Duration, error)) (V, error) {
	if v, err := c.Get(ctx, key); err == nil {
		return v, nil
	}

	type loaded struct {
		val V
		ttl time.Duration
	}
	res, err, _ := c.sf.Do(key, func() (any, error) {
		v, ttl, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return loaded{v, ttl}, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	l := res.(loaded)
	_ = c.Set(ctx, key, l.val, l.ttl)
	return l.val, nil
}

// Close stops the janitor and drops all entries.
func (c *Cache[V]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	c.items = make(map[string]*list.Element)
	c.lru.Init()
	return nil
}

func (c *Cache[V]) remove(el *list.Element) {
	c.lru.Remove(el)
	delete(c.items, el.Value.(*entry[V]).key)
}

func (c *Cache[V]) janitor() {
	t := time.NewTicker(c.opts.cleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			c.sweep()
		}
	}
}

func (c *Cache[V]) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*entry[V]).expired(now) {
			c.remove(el)
		}
		el = prev
	}
}
