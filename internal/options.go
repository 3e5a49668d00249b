package internal

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tonyluong2025/verp-sub017/pkg/cookie"
	"github.com/tonyluong2025/verp-sub017/pkg/hostrouter"
	"github.com/tonyluong2025/verp-sub017/pkg/session"
)

// Option configures the application.
type Option func(*App)

// WithLogger sets the engine logger.
//
// Example:
//
//	log := logger.New(cfg.Log, middlewares.RequestIDExtractor())
//	verp.New(verp.WithLogger(log))
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithModules registers route modules in load order. Later modules
// override the routes of earlier ones.
func WithModules(mods ...Module) Option {
	return func(a *App) {
		a.mods = append(a.mods, mods...)
	}
}

// WithServerWideModules names the modules whose auth-none routes are served
// without a database. Defaults to every registered module.
func WithServerWideModules(names ...string) Option {
	return func(a *App) {
		a.serverWide = append([]string{}, names...)
	}
}

// WithModuleSource sets where the active modules of a tenant come from.
// Defaults to every registered module.
func WithModuleSource(src ModuleSource) Option {
	return func(a *App) {
		a.modules = src
	}
}

// WithRegistry sets the data layer opening cursors and environments.
func WithRegistry(r Registry) Option {
	return func(a *App) {
		a.registry = r
	}
}

// WithDirectory sets the identity provider used for login, public users
// and session token checks.
func WithDirectory(d Directory) Option {
	return func(a *App) {
		a.directory = d
	}
}

// WithTenantLister enables database selection among the listed tenants.
func WithTenantLister(l TenantLister) Option {
	return func(a *App) {
		a.tenants = l
	}
}

// WithDefaultTenant sets the tenant served when nothing else selects one.
func WithDefaultTenant(name string) Option {
	return func(a *App) {
		a.defaultTenant = name
	}
}

// WithHostRoutes routes hosts to tenants and restricts the databases a
// host may select with filter ("%h" is the host, "%d" its first label).
//
// Example:
//
//	verp.WithHostRoutes(hostrouter.Routes{"*.example.com": "%d"}, "^%d$")
func WithHostRoutes(routes hostrouter.Routes, filter string) Option {
	return func(a *App) {
		a.hosts = hostrouter.New(routes, filter)
	}
}

// WithSites configures the websites and their languages.
func WithSites(s *Sites) Option {
	return func(a *App) {
		a.sites = s
	}
}

// WithRenderer sets the template renderer. Defaults to a TemplRenderer
// with the built-in error pages.
func WithRenderer(r Renderer) Option {
	return func(a *App) {
		a.renderer = r
	}
}

// WithFallbacks appends fallbacks consulted, in order, for unrouted paths.
func WithFallbacks(f ...Fallback) Option {
	return func(a *App) {
		a.fallbacks = append(a.fallbacks, f...)
	}
}

// WithConverter registers a custom URL converter.
//
// Example:
//
//	verp.WithConverter("lang", func(args []string) (verp.Converter, error) {
//	    return langConverter{}, nil
//	})
func WithConverter(name string, f ConverterFactory) Option {
	return func(a *App) {
		a.converters.Register(name, f)
	}
}

// WithCookieOptions configures the cookie manager.
//
// Example:
//
//	verp.New(
//	    verp.WithCookieOptions(
//	        cookie.WithSecret(os.Getenv("COOKIE_SECRET")),
//	        cookie.WithSecure(true),
//	    ),
//	)
func WithCookieOptions(opts ...cookie.Option) Option {
	return func(a *App) {
		a.cookies = cookie.New(opts...)
	}
}

// WithSession sets the session store. Without it sessions are kept in
// files under the temporary directory.
//
// Example:
//
//	verp.New(
//	    verp.WithSession(redisstore.New(client),
//	        verp.WithSessionMaxAge(7*24*time.Hour),
//	    ),
//	)
func WithSession(store session.Store, opts ...SessionOption) Option {
	return func(a *App) {
		a.sessionStore = store
		a.sessionOpts = opts
	}
}

// WithCSRF sets the CSRF secret and the default token lifetime.
func WithCSRF(secret string, ttl time.Duration) Option {
	return func(a *App) {
		a.csrfSecret = secret
		if ttl > 0 {
			a.csrfTTL = ttl
		}
	}
}

// WithDevMode exposes debug details in error responses.
func WithDevMode(enabled bool) Option {
	return func(a *App) {
		a.devMode = enabled
	}
}

// WithMaxReroutes bounds internal reroutes per request.
func WithMaxReroutes(n int) Option {
	return func(a *App) {
		a.maxReroutes = n
	}
}

// WithBotSignatures replaces the user agent substrings identifying
// crawlers, which are never redirected to their preferred language.
func WithBotSignatures(sigs ...string) Option {
	return func(a *App) {
		a.botSignatures = append([]string{}, sigs...)
	}
}

// WithRetry sets how often a handler is re-run after a serialization
// failure, and the base delay between attempts.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(a *App) {
		if attempts > 0 {
			a.retryAttempts = attempts
		}
		if delay > 0 {
			a.retryDelay = delay
		}
	}
}

// WithRetryIf replaces the predicate selecting retryable errors. Defaults
// to PostgreSQL serialization failures and deadlocks.
func WithRetryIf(fn func(error) bool) Option {
	return func(a *App) {
		if fn != nil {
			a.retryIf = fn
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(a *App) {
		a.metrics = m
	}
}

// WithMiddleware adds transport middleware wrapping the engine.
// Middleware is applied in the order provided.
func WithMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(a *App) {
		a.middlewares = append(a.middlewares, mw...)
	}
}

// WithStaticFiles mounts a static file handler at the given pattern.
// Directory listings are disabled. Files are served with default cache headers.
//
// Example:
//
//	//go:embed public
//	var assets embed.FS
//
//	verp.New(
//	    verp.WithStaticFiles("/web/static/", assets, "public"),
//	)
func WithStaticFiles(pattern string, fsys fs.FS, subDir string) Option {
	return func(a *App) {
		subFS, err := fs.Sub(fsys, subDir)
		if err != nil {
			a.errs = append(a.errs, fmt.Errorf("static files %s: %w", pattern, err))
			return
		}

		fileServer := http.StripPrefix(strings.TrimSuffix(pattern, "/"), http.FileServerFS(subFS))

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Block directory listings
			if strings.HasSuffix(r.URL.Path, "/") {
				http.NotFound(w, r)
				return
			}

			w.Header().Set("Cache-Control", "public, max-age=3600")
			w.Header().Set("X-Content-Type-Options", "nosniff")

			fileServer.ServeHTTP(w, r)
		})

		a.staticRoutes = append(a.staticRoutes, staticRoute{handler, pattern})
	}
}
