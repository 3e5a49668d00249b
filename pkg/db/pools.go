package db

import (
	"context"
	"regexp"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"
)

var tenantNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,62}$`)

// ValidTenant reports whether name is usable as a tenant database name.
func ValidTenant(name string) bool {
	return tenantNameRe.MatchString(name)
}

// Pools lazily opens one connection pool per tenant database.
type Pools struct {
	cfg   Config
	sf    singleflight.Group
	mu    sync.RWMutex
	pools map[string]*pgxpool.Pool
	admin *pgxpool.Pool
}

// NewPools returns an empty pool set. Nothing is opened until first use.
func NewPools(cfg Config) *Pools {
	return &Pools{cfg: cfg, pools: make(map[string]*pgxpool.Pool)}
}

// Get returns the pool of tenant, connecting on first use. Concurrent
// first calls for the same tenant share a single connect.
func (p *Pools) Get(ctx context.Context, tenant string) (*pgxpool.Pool, error) {
	if !ValidTenant(tenant) {
		return nil, ErrInvalidTenant
	}

	p.mu.RLock()
	pool, ok := p.pools[tenant]
	p.mu.RUnlock()
	if ok {
		return pool, nil
	}

	v, err, _ := p.sf.Do(tenant, func() (any, error) {
		p.mu.RLock()
		existing, ok := p.pools[tenant]
		p.mu.RUnlock()
		if ok {
			return existing, nil
		}
		pool, err := Connect(ctx, p.cfg, tenant)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.pools[tenant] = pool
		p.mu.Unlock()
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*pgxpool.Pool), nil
}

// Admin returns the pool on the server-level database of the configuration URL.
func (p *Pools) Admin(ctx context.Context) (*pgxpool.Pool, error) {
	v, err, _ := p.sf.Do("\x00admin", func() (any, error) {
		p.mu.RLock()
		admin := p.admin
		p.mu.RUnlock()
		if admin != nil {
			return admin, nil
		}
		pool, err := Connect(ctx, p.cfg, "")
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.admin = pool
		p.mu.Unlock()
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*pgxpool.Pool), nil
}

// Databases lists non-template databases visible on the server, sorted.
func (p *Pools) Databases(ctx context.Context) ([]string, error) {
	admin, err := p.Admin(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := admin.Query(ctx,
		`SELECT datname FROM pg_database WHERE NOT datistemplate AND datallowconn AND datname <> 'postgres'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if ValidTenant(name) {
			names = append(names, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Close closes every opened pool.
func (p *Pools) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, pool := range p.pools {
		pool.Close()
		delete(p.pools, name)
	}
	if p.admin != nil {
		p.admin.Close()
		p.admin = nil
	}
}

// Shutdown returns a shutdown hook closing all pools.
func (p *Pools) Shutdown() func(context.Context) error {
	return func(context.Context) error {
		p.Close()
		return nil
	}
}
