package verp

import (
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/tonyluong2025/verp-sub017/internal"
	"github.com/tonyluong2025/verp-sub017/pkg/cookie"
	"github.com/tonyluong2025/verp-sub017/pkg/hostrouter"
)

// Engine options

// WithLogger sets the engine logger.
//
// Example:
//
//	log := logger.New(cfg.Log, middlewares.RequestIDExtractor())
//	verp.New(verp.WithLogger(log))
func WithLogger(l *slog.Logger) Option {
	return internal.WithLogger(l)
}

// WithModules registers route modules in load order.
// Later modules override the routes of earlier ones.
func WithModules(mods ...Module) Option {
	return internal.WithModules(mods...)
}

// WithServerWideModules names the modules served without a database.
func WithServerWideModules(names ...string) Option {
	return internal.WithServerWideModules(names...)
}

// WithModuleSource sets where the active modules of a tenant come from.
func WithModuleSource(src ModuleSource) Option {
	return internal.WithModuleSource(src)
}

// WithRegistry sets the data layer.
func WithRegistry(r Registry) Option {
	return internal.WithRegistry(r)
}

// WithDirectory sets the identity provider.
func WithDirectory(d Directory) Option {
	return internal.WithDirectory(d)
}

// WithTenantLister enables database selection among the listed tenants.
func WithTenantLister(l TenantLister) Option {
	return internal.WithTenantLister(l)
}

// WithDefaultTenant sets the tenant served when nothing else selects one.
func WithDefaultTenant(name string) Option {
	return internal.WithDefaultTenant(name)
}

// WithHostRoutes routes hosts to tenants and sets the database filter.
//
// Example:
//
//	verp.WithHostRoutes(hostrouter.Routes{"*.example.com": "%d"}, "^%d$")
func WithHostRoutes(routes hostrouter.Routes, filter string) Option {
	return internal.WithHostRoutes(routes, filter)
}

// WithSites configures the websites and their languages.
func WithSites(s *Sites) Option {
	return internal.WithSites(s)
}

// WithRenderer sets the template renderer.
func WithRenderer(r Renderer) Option {
	return internal.WithRenderer(r)
}

// WithFallbacks appends fallbacks for unrouted paths.
func WithFallbacks(f ...Fallback) Option {
	return internal.WithFallbacks(f...)
}

// WithConverter registers a custom URL converter.
func WithConverter(name string, f ConverterFactory) Option {
	return internal.WithConverter(name, f)
}

// WithCookieOptions configures the cookie manager.
func WithCookieOptions(opts ...cookie.Option) Option {
	return internal.WithCookieOptions(opts...)
}

// WithSession sets the session store.
//
// Example:
//
//	verp.WithSession(redisstore.New(client), verp.WithSessionMaxAge(7*24*time.Hour))
func WithSession(store SessionStore, opts ...SessionOption) Option {
	return internal.WithSession(store, opts...)
}

// WithCSRF sets the CSRF secret and the default token lifetime.
func WithCSRF(secret string, ttl time.Duration) Option {
	return internal.WithCSRF(secret, ttl)
}

// WithDevMode exposes debug details in error responses.
func WithDevMode(enabled bool) Option {
	return internal.WithDevMode(enabled)
}

// WithMaxReroutes bounds internal reroutes per request.
func WithMaxReroutes(n int) Option {
	return internal.WithMaxReroutes(n)
}

// WithBotSignatures replaces the user agent substrings identifying crawlers.
func WithBotSignatures(sigs ...string) Option {
	return internal.WithBotSignatures(sigs...)
}

// WithRetry sets the serialization failure retry budget.
func WithRetry(attempts uint, delay time.Duration) Option {
	return internal.WithRetry(attempts, delay)
}

// WithRetryIf replaces the predicate selecting retryable errors.
func WithRetryIf(fn func(error) bool) Option {
	return internal.WithRetryIf(fn)
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return internal.WithMetrics(m)
}

// WithMiddleware adds transport middleware wrapping the engine.
func WithMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return internal.WithMiddleware(mw...)
}

// WithStaticFiles mounts a static file handler at the given pattern.
//
// Example:
//
//	//go:embed public
//	var assets embed.FS
//
//	verp.New(verp.WithStaticFiles("/web/static/", assets, "public"))
func WithStaticFiles(pattern string, fsys fs.FS, subDir string) Option {
	return internal.WithStaticFiles(pattern, fsys, subDir)
}

// Session options

// WithSessionCookieName sets the session cookie name.
func WithSessionCookieName(name string) SessionOption {
	return internal.WithSessionCookieName(name)
}

// WithSessionMaxAge sets how long an idle session lives.
func WithSessionMaxAge(d time.Duration) SessionOption {
	return internal.WithSessionMaxAge(d)
}

// WithSessionGCProbability sets the chance a request sweeps expired sessions.
func WithSessionGCProbability(p float64) SessionOption {
	return internal.WithSessionGCProbability(p)
}

// Route options

// Routes sets the URL patterns of a route.
func Routes(patterns ...string) RouteOption {
	return internal.Routes(patterns...)
}

// Methods restricts the HTTP methods of a route.
func Methods(methods ...string) RouteOption {
	return internal.Methods(methods...)
}

// Auth sets the authentication mode.
func Auth(mode AuthMode) RouteOption {
	return internal.Auth(mode)
}

// Type sets the route type.
func Type(t RouteType) RouteOption {
	return internal.Type(t)
}

// CSRF toggles CSRF checks on unsafe methods.
func CSRF(enabled bool) RouteOption {
	return internal.CheckCSRF(enabled)
}

// CORS sets the allowed origin.
func CORS(origin string) RouteOption {
	return internal.CORS(origin)
}

// Website marks a frontend route.
func Website(enabled bool) RouteOption {
	return internal.Website(enabled)
}

// Multilang toggles language prefixes on a website route.
func Multilang(enabled bool) RouteOption {
	return internal.Multilang(enabled)
}

// SaveSession toggles persisting the session after the request.
func SaveSession(enabled bool) RouteOption {
	return internal.SaveSession(enabled)
}

// ReadOnly opens a read-only transaction.
func ReadOnly(enabled bool) RouteOption {
	return internal.ReadOnly(enabled)
}

// Use adds endpoint middleware.
func Use(mw ...Middleware) RouteOption {
	return internal.Use(mw...)
}
