package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	goredis "github.com/redis/go-redis/v9"

	verp "github.com/tonyluong2025/verp-sub017"
	"github.com/tonyluong2025/verp-sub017/middlewares"
	"github.com/tonyluong2025/verp-sub017/modules/web"
	"github.com/tonyluong2025/verp-sub017/modules/website"
	"github.com/tonyluong2025/verp-sub017/pkg/cookie"
	"github.com/tonyluong2025/verp-sub017/pkg/db"
	"github.com/tonyluong2025/verp-sub017/pkg/health"
	"github.com/tonyluong2025/verp-sub017/pkg/redis"
	"github.com/tonyluong2025/verp-sub017/pkg/session"
	"github.com/tonyluong2025/verp-sub017/pkg/session/filestore"
	"github.com/tonyluong2025/verp-sub017/pkg/session/redisstore"
	"github.com/tonyluong2025/verp-sub017/pkg/storage"
)

// server is an engine with the resources it owns.
type server struct {
	app      *verp.App
	pools    *db.Pools
	registry *verp.PGRegistry
	redis    goredis.UniversalClient
	log      *slog.Logger
}

// close releases what build opened, in reverse order.
func (s *server) close(ctx context.Context) error {
	var errs []error
	if s.app != nil {
		errs = append(errs, s.app.Close())
	}
	if s.redis != nil {
		errs = append(errs, redis.Shutdown(s.redis)(ctx))
	}
	s.pools.Close()
	return errors.Join(errs...)
}

// build wires the engine from cfg. Nothing connects to PostgreSQL until a
// request or a hook needs it.
func build(ctx context.Context, cfg verp.Config, log *slog.Logger) (*server, error) {
	s := &server{pools: db.NewPools(cfg.DB), log: log}
	s.registry = verp.NewPGRegistry(s.pools)

	store, err := s.sessionStore(ctx, cfg)
	if err != nil {
		_ = s.close(ctx)
		return nil, err
	}

	checks := health.Checks{
		"postgres": func(ctx context.Context) error {
			admin, err := s.pools.Admin(ctx)
			if err != nil {
				return err
			}
			return db.Healthcheck(admin)(ctx)
		},
	}
	if s.redis != nil {
		checks["redis"] = redis.Healthcheck(s.redis)
	}

	opts := []verp.Option{
		verp.WithLogger(log),
		verp.WithRegistry(s.registry),
		verp.WithModuleSource(s.registry),
		verp.WithTenantLister(s.registry),
		verp.WithDirectory(verp.NewPGDirectory(cfg.TokenSecret)),
		verp.WithDefaultTenant(cfg.DefaultTenant),
		verp.WithServerWideModules(web.Name),
		verp.WithCookieOptions(
			cookie.WithSecret(cfg.CookieSecret),
			cookie.WithDomain(cfg.CookieDomain),
			cookie.WithSecure(cfg.CookieSecure),
		),
		verp.WithSession(store, verp.WithSessionMaxAge(cfg.SessionMaxAge)),
		verp.WithCSRF(cfg.CSRFSecret, 0),
		verp.WithDevMode(cfg.DevMode),
		verp.WithRetry(cfg.RetryAttempts, 0),
		verp.WithMaxReroutes(cfg.MaxReroutes),
		verp.WithFallbacks(verp.RewriteFallback{}),
		verp.WithMiddleware(
			middlewares.RequestID(),
			middlewares.AccessLog(log),
			middlewares.Recover(log),
			middlewares.Timeout(cfg.RequestTimeout, log),
		),
	}
	if len(cfg.HostRoutes) > 0 || cfg.DBFilter != "" {
		opts = append(opts, verp.WithHostRoutes(cfg.HostRoutes, cfg.DBFilter))
	}

	webCfg := web.Config{Version: version, Checks: checks}
	if cfg.Metrics {
		m := verp.NewMetrics()
		opts = append(opts, verp.WithMetrics(m))
		webCfg.Metrics = m.Handler()
	}
	opts = append(opts, verp.WithModules(web.New(webCfg), website.Module{}))

	if cfg.SitesFile != "" {
		sites, err := loadSites(cfg.SitesFile)
		if err != nil {
			_ = s.close(ctx)
			return nil, err
		}
		opts = append(opts, verp.WithSites(sites))
	}

	if cfg.Storage.Enabled() {
		assets, err := storage.New(cfg.Storage)
		if err != nil {
			_ = s.close(ctx)
			return nil, fmt.Errorf("asset storage: %w", err)
		}
		opts = append(opts, verp.WithFallbacks(verp.NewAssetFallback(assets)))
	}

	app, err := verp.New(opts...)
	if err != nil {
		_ = s.close(ctx)
		return nil, fmt.Errorf("build engine: %w", err)
	}
	s.app = app
	return s, nil
}

func (s *server) sessionStore(ctx context.Context, cfg verp.Config) (session.Store, error) {
	if cfg.SessionStore == verp.SessionStoreRedis {
		client, err := redis.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("session redis: %w", err)
		}
		s.redis = client
		return redisstore.New(client, redisstore.WithTTL(cfg.SessionMaxAge)), nil
	}
	dir := cfg.SessionDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "verp-sessions")
	}
	store, err := filestore.New(dir)
	if err != nil {
		return nil, fmt.Errorf("session directory: %w", err)
	}
	return store, nil
}

func loadSites(path string) (*verp.Sites, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sites: %w", err)
	}
	defer f.Close()
	sites, err := verp.LoadSites(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sites, nil
}
