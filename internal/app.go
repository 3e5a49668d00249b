package internal

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tonyluong2025/verp-sub017/pkg/cache"
	"github.com/tonyluong2025/verp-sub017/pkg/cookie"
	"github.com/tonyluong2025/verp-sub017/pkg/db"
	"github.com/tonyluong2025/verp-sub017/pkg/hostrouter"
	"github.com/tonyluong2025/verp-sub017/pkg/logger"
	"github.com/tonyluong2025/verp-sub017/pkg/session"
	"github.com/tonyluong2025/verp-sub017/pkg/session/filestore"
)

// Default server timeouts (hardcoded, opinionated).
const (
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 60 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second
	defaultMaxHeaderBytes    = 1 << 20 // 1MB
	defaultShutdownTimeout   = 30 * time.Second
)

// App is the request-dispatch engine. It owns the route collector, the
// routing cache and the session manager, and serves every request through
// the lifecycle. App is immutable after creation.
type App struct {
	logger        *slog.Logger
	cookies       *cookie.Manager
	sessions      *SessionManager
	sessionStore  session.Store
	registry      Registry
	directory     Directory
	modules       ModuleSource
	tenants       TenantLister
	renderer      Renderer
	hosts         *hostrouter.Router
	sites         *Sites
	converters    *ConverterRegistry
	collector     *Collector
	cache         *RoutingCache
	canonical     *Canonicalizer
	csrf          *CSRF
	metrics       *Metrics
	dbList        *cache.Cache[[]string]
	retryIf       func(error) bool
	router        chi.Router
	fallbacks     []Fallback
	mods          []Module
	serverWide    []string
	middlewares   []func(http.Handler) http.Handler
	staticRoutes  []staticRoute
	sessionOpts   []SessionOption
	botSignatures []string
	errs          []error
	defaultTenant string
	csrfSecret    string
	csrfTTL       time.Duration
	retryDelay    time.Duration
	retryAttempts uint
	maxReroutes   int
	devMode       bool
}

// staticRoute represents a static file handler mount point.
type staticRoute struct {
	handler http.Handler
	pattern string
}

// New creates an engine. Module registration errors and invalid options
// are reported together.
//
// Example:
//
//	app, err := verp.New(
//	    verp.WithModules(web.Module{}, shop.Module{}),
//	    verp.WithRegistry(registry),
//	    verp.WithDefaultTenant("acme"),
//	)
func New(opts ...Option) (*App, error) {
	a := &App{
		logger:        logger.NewNope(),
		cookies:       cookie.New(),
		converters:    NewConverterRegistry(),
		retryIf:       db.IsSerializationFailure,
		retryAttempts: DefaultRetryAttempts,
		retryDelay:    DefaultRetryDelay,
		csrfTTL:       DefaultCSRFTTL,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.renderer == nil {
		a.renderer = NewTemplRenderer()
	}
	if a.sessionStore == nil {
		dir := filepath.Join(os.TempDir(), "verp-sessions")
		store, err := filestore.New(dir)
		if err != nil {
			return nil, fmt.Errorf("default session store: %w", err)
		}
		a.sessionStore = store
	}
	a.sessions = NewSessionManager(a.sessionStore, a.cookies, a.sessionOpts...)
	a.sessions.SetLogger(a.logger, a.metrics)

	if a.csrfSecret == "" {
		a.csrfSecret = randomSecret()
		a.logger.Warn("no csrf secret configured, tokens will not survive a restart")
	}
	a.csrf = NewCSRF(a.csrfSecret)
	a.canonical = NewCanonicalizer(a.maxReroutes, a.botSignatures)

	a.collector = NewCollector(a.logger)
	names := make([]string, 0, len(a.mods))
	for _, m := range a.mods {
		reg := a.collector.Registrar(m.Name())
		m.Routes(reg)
		a.errs = append(a.errs, reg.Errs()...)
		names = append(names, m.Name())
	}
	if a.modules == nil {
		a.modules = StaticModules(names)
	}
	if a.serverWide == nil {
		a.serverWide = names
	}
	a.cache = NewRoutingCache(a.collector, a.modules, a.converters, a.serverWide, a.logger, a.metrics)
	if err := errors.Join(a.errs...); err != nil {
		return nil, err
	}
	a.dbList = cache.New[[]string](cache.WithDefaultTTL(dbListTTL), cache.WithMaxEntries(1024))
	a.router = a.setupRoutes()
	return a, nil
}

func randomSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// setupRoutes wraps the engine in the transport middlewares. Static files
// are served before the engine sees the request.
func (a *App) setupRoutes() chi.Router {
	r := chi.NewRouter()
	for _, mw := range a.middlewares {
		r.Use(mw)
	}
	for _, sr := range a.staticRoutes {
		r.Mount(sr.pattern, sr.handler)
	}
	r.Handle("/*", a)
	r.NotFound(a.ServeHTTP)
	r.MethodNotAllowed(a.ServeHTTP)
	return r
}

// Router returns the transport handler: middlewares, static files and the
// engine.
func (a *App) Router() http.Handler {
	return a.router
}

// Logger returns the engine logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Cache returns the routing cache.
func (a *App) Cache() *RoutingCache {
	return a.cache
}

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager {
	return a.sessions
}

// Metrics returns the collectors, or nil when metrics are disabled.
func (a *App) Metrics() *Metrics {
	return a.metrics
}

// Sites returns the configured websites.
func (a *App) Sites() *Sites {
	return a.sites
}

// Routes returns the compiled rules of tenant, building its table if
// needed. The empty tenant selects the no-database table.
func (a *App) Routes(ctx context.Context, tenant string) ([]Rule, error) {
	t, err := a.cache.Get(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return t.Rules(), nil
}

// Invalidate drops the routing table of tenant, or of every tenant for
// "*", and forgets the cached database lists.
func (a *App) Invalidate(tenant string) {
	a.cache.HandleSignal(tenant)
	a.dbList.DeleteFunc(func(string) bool { return true })
}

// Close releases the resources owned by the engine.
func (a *App) Close() error {
	return a.dbList.Close()
}
