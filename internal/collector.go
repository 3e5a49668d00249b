package internal

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// declaration is one link of a route chain.
type declaration struct {
	handler HandlerFunc
	module  string
	opts    []RouteOption
	seq     int
	base    bool
}

// Rule is a collected (pattern, endpoint) pair.
type Rule struct {
	Endpoint *Endpoint
	Pattern  string
}

// Collector gathers route declarations from modules and resolves override
// chains against a set of active modules. Precedence follows module load
// order, then registration order.
type Collector struct {
	logger    *slog.Logger
	chains    map[string][]*declaration
	endpoints map[string]*Endpoint // interned by chain identity
	order     []string
	seq       int
	mu        sync.Mutex
}

// NewCollector creates an empty collector.
func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{
		logger:    logger,
		chains:    make(map[string][]*declaration),
		endpoints: make(map[string]*Endpoint),
	}
}

func chainKey(controller, method string) string {
	return controller + "." + method
}

// Register declares the base of the chain controller.method for module.
func (c *Collector) Register(module, controller, method string, h HandlerFunc, opts ...RouteOption) error {
	if h == nil {
		return fmt.Errorf("route %s: nil handler", chainKey(controller, method))
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := chainKey(controller, method)
	if _, ok := c.chains[key]; !ok {
		c.order = append(c.order, key)
	}
	c.seq++
	c.chains[key] = append(c.chains[key], &declaration{
		handler: h, module: module, opts: opts, seq: c.seq, base: true,
	})
	return nil
}

// Override extends the chain controller.method from module. A nil handler
// keeps the previous implementation.
func (c *Collector) Override(module, controller, method string, h HandlerFunc, opts ...RouteOption) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := chainKey(controller, method)
	if _, ok := c.chains[key]; !ok {
		return fmt.Errorf("%w: %s from module %s", ErrNoBaseRoute, key, module)
	}
	c.seq++
	c.chains[key] = append(c.chains[key], &declaration{
		handler: h, module: module, opts: opts, seq: c.seq,
	})
	return nil
}

// Registrar returns the declaration surface bound to module. Errors are
// collected and reported by Err.
func (c *Collector) Registrar(module string) *ModuleRegistrar {
	return &ModuleRegistrar{collector: c, module: module}
}

// Collect yields the rules of every chain with an active declaration.
// activeModules is in load order.
func (c *Collector) Collect(activeModules []string) []Rule {
	return c.collect(activeModules, false)
}

// CollectNoDB yields only the auth-none rules of serverWide modules. They
// form the table used when no tenant is selected.
func (c *Collector) CollectNoDB(serverWide []string) []Rule {
	return c.collect(serverWide, true)
}

func (c *Collector) collect(activeModules []string, noDB bool) []Rule {
	rank := make(map[string]int, len(activeModules))
	for i, m := range activeModules {
		rank[m] = i
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var rules []Rule
	for _, key := range c.order {
		var active []*declaration
		for _, d := range c.chains[key] {
			if _, ok := rank[d.module]; ok {
				active = append(active, d)
			}
		}
		if len(active) == 0 {
			continue
		}
		slices.SortStableFunc(active, func(a, b *declaration) int {
			if ra, rb := rank[a.module], rank[b.module]; ra != rb {
				return ra - rb
			}
			return a.seq - b.seq
		})
		if !active[0].base {
			// The module that declared the base is not installed.
			continue
		}

		ep := c.intern(key, active)
		if ep == nil || (noDB && ep.Meta.Auth != AuthNone) {
			continue
		}
		for _, p := range ep.Meta.Routes {
			rules = append(rules, Rule{Pattern: p, Endpoint: ep})
		}
	}
	return rules
}

// intern returns the endpoint of an active chain, building it once per
// distinct chain.
func (c *Collector) intern(key string, chain []*declaration) *Endpoint {
	ids := make([]string, len(chain))
	for i, d := range chain {
		ids[i] = strconv.Itoa(d.seq)
	}
	identity := key + "|" + strings.Join(ids, ",")
	if ep, ok := c.endpoints[identity]; ok {
		return ep
	}

	var (
		meta     RouteMeta
		live     *declaration
		baseType RouteType
	)
	for i, d := range chain {
		before := meta.Type
		for _, opt := range d.opts {
			opt(&meta)
		}
		switch {
		case i == 0:
			if meta.Type == "" {
				meta.Type = TypeHTTP
			}
			baseType = meta.Type
		case meta.Type != before:
			if c.logger != nil {
				c.logger.Warn("route type mismatch in override, keeping base type",
					slog.String("route", key),
					slog.String("module", d.module),
					slog.String("base_type", string(baseType)),
					slog.String("override_type", string(meta.Type)),
				)
			}
			meta.Type = before
		}
		if d.handler != nil {
			live = d
		}
	}
	if len(meta.Routes) == 0 {
		if c.logger != nil {
			c.logger.Warn("route chain declares no pattern", slog.String("route", key))
		}
		return nil
	}

	controller, _, _ := strings.Cut(key, ".")
	ep := &Endpoint{
		handler:    live.handler,
		Key:        key,
		Module:     live.module,
		Controller: controller,
		Meta:       meta.withDefaults(),
	}
	c.endpoints[identity] = ep
	return ep
}

// ModuleRegistrar implements Registrar for one module.
type ModuleRegistrar struct {
	collector *Collector
	module    string
	errs      []error
}

func (r *ModuleRegistrar) Route(controller, method string, h HandlerFunc, opts ...RouteOption) {
	if err := r.collector.Register(r.module, controller, method, h, opts...); err != nil {
		r.errs = append(r.errs, err)
	}
}

func (r *ModuleRegistrar) Override(controller, method string, h HandlerFunc, opts ...RouteOption) {
	if err := r.collector.Override(r.module, controller, method, h, opts...); err != nil {
		r.errs = append(r.errs, err)
	}
}

// Errs returns the registration errors of the module.
func (r *ModuleRegistrar) Errs() []error {
	return r.errs
}
