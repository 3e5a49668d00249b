package internal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// RegistryChannel is the PostgreSQL NOTIFY channel carrying routing
// invalidations. The payload is a tenant name, or "*" for every tenant.
const RegistryChannel = "verp_registry"

// maxBuildAttempts bounds rebuilds when invalidations race a build.
const maxBuildAttempts = 3

type tableEntry struct {
	table *RoutingTable
	gen   uint64
}

// RoutingCache lazily builds one RoutingTable per tenant and keeps it until
// explicitly invalidated. Tables are immutable and published atomically;
// concurrent misses for one tenant share a single build.
type RoutingCache struct {
	collector  *Collector
	modules    ModuleSource
	converters *ConverterRegistry
	metrics    *Metrics
	logger     *slog.Logger
	tables     sync.Map // tenant -> tableEntry
	gens       sync.Map // tenant -> *atomic.Uint64
	sf         singleflight.Group
	epoch      atomic.Uint64
	serverWide []string
}

// NewRoutingCache creates a cache. The no-tenant table ("" key) holds the
// auth-none routes of serverWide modules.
func NewRoutingCache(collector *Collector, modules ModuleSource, converters *ConverterRegistry, serverWide []string, logger *slog.Logger, metrics *Metrics) *RoutingCache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RoutingCache{
		collector:  collector,
		modules:    modules,
		converters: converters,
		serverWide: serverWide,
		logger:     logger,
		metrics:    metrics,
	}
}

func (c *RoutingCache) generation(tenant string) uint64 {
	v, _ := c.gens.LoadOrStore(tenant, new(atomic.Uint64))
	return v.(*atomic.Uint64).Load() + c.epoch.Load()
}

// Get returns the routing table of tenant, building it on a miss.
func (c *RoutingCache) Get(ctx context.Context, tenant string) (*RoutingTable, error) {
	if v, ok := c.tables.Load(tenant); ok {
		c.metrics.cacheHit()
		return v.(tableEntry).table, nil
	}
	c.metrics.cacheMiss()

	res, err, _ := c.sf.Do(tenant, func() (any, error) {
		var last *RoutingTable
		for range maxBuildAttempts {
			gen := c.generation(tenant)
			t, err := c.build(ctx, tenant)
			if err != nil {
				return nil, err
			}
			last = t
			if c.generation(tenant) == gen {
				e := tableEntry{table: t, gen: gen}
				c.tables.Store(tenant, e)
				if c.generation(tenant) == gen {
					return t, nil
				}
				// Invalidate ran between the check and the store.
				c.tables.CompareAndDelete(tenant, e)
				continue
			}
			// Invalidated while building: the table may be stale.
		}
		c.logger.Warn("routing table invalidated during every build attempt", slog.String("tenant", tenant))
		return last, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*RoutingTable), nil
}

func (c *RoutingCache) build(ctx context.Context, tenant string) (*RoutingTable, error) {
	c.metrics.cacheBuild()
	var rules []Rule
	if tenant == "" {
		rules = c.collector.CollectNoDB(c.serverWide)
	} else {
		mods, err := c.modules.ActiveModules(ctx, tenant)
		if err != nil {
			return nil, fmt.Errorf("list modules of %s: %w", tenant, err)
		}
		rules = c.collector.Collect(mods)
	}
	t, err := BuildTable(tenant, rules, c.converters, c.logger)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("routing table built", slog.String("tenant", tenant), slog.Int("rules", len(t.rules)))
	return t, nil
}

// Invalidate drops the table of tenant. The next Get rebuilds it, and a
// build already in flight will not publish its result.
func (c *RoutingCache) Invalidate(tenant string) {
	v, _ := c.gens.LoadOrStore(tenant, new(atomic.Uint64))
	v.(*atomic.Uint64).Add(1)
	c.tables.Delete(tenant)
	c.sf.Forget(tenant)
	c.logger.Info("routing table invalidated", slog.String("tenant", tenant))
}

// InvalidateAll drops every table.
func (c *RoutingCache) InvalidateAll() {
	c.epoch.Add(1)
	c.tables.Range(func(k, _ any) bool {
		c.tables.Delete(k)
		c.sf.Forget(k.(string))
		return true
	})
	c.logger.Info("all routing tables invalidated")
}

// HandleSignal applies a RegistryChannel payload.
func (c *RoutingCache) HandleSignal(payload string) {
	if payload == "*" || payload == "" {
		c.InvalidateAll()
		return
	}
	c.Invalidate(payload)
}
