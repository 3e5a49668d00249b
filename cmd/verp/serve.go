package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	verp "github.com/tonyluong2025/verp-sub017"
	"github.com/tonyluong2025/verp-sub017/pkg/db"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := flags.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg verp.Config, log *slog.Logger) error {
	s, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}

	gc, err := s.sessionGC(cfg.SessionGCSchedule)
	if err != nil {
		_ = s.close(ctx)
		return err
	}

	opts := []verp.RunOption{
		verp.Logger(log),
		verp.WithContext(ctx),
		verp.ShutdownTimeout(cfg.ShutdownTimeout),
		verp.StartupHook(s.listen),
		verp.StartupHook(func(context.Context) error {
			gc.Start()
			return nil
		}),
		verp.ShutdownHook(func(ctx context.Context) error {
			select {
			case <-gc.Stop().Done():
			case <-ctx.Done():
			}
			return nil
		}),
		verp.ShutdownHook(s.close),
	}
	if cfg.DefaultTenant != "" {
		opts = append(opts, verp.Preload(cfg.DefaultTenant))
	}
	return s.app.Run(cfg.Addr, opts...)
}

// sessionGC schedules the sweep of expired sessions.
func (s *server) sessionGC(spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		n, err := s.app.Sessions().GC(context.Background())
		if err != nil {
			s.log.Error("session gc failed", slog.Any("error", err))
			return
		}
		if n > 0 {
			s.log.Info("session gc", slog.Int("removed", n))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("session gc schedule %q: %w", spec, err)
	}
	return c, nil
}

// listen subscribes to routing invalidations: on the server-level database,
// where `verp invalidate` publishes, and on every tenant database, where the
// module table triggers publish. Tenants created later are reached through
// the server-level channel.
func (s *server) listen(ctx context.Context) error {
	admin, err := s.pools.Admin(ctx)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	go s.listenOn(ctx, admin, "")

	tenants, err := s.registry.Databases(ctx)
	if err != nil {
		s.log.WarnContext(ctx, "listen: list databases", slog.Any("error", err))
		return nil
	}
	for _, tenant := range tenants {
		pool, err := s.pools.Get(ctx, tenant)
		if err != nil {
			s.log.WarnContext(ctx, "listen: connect tenant", slog.String("tenant", tenant), slog.Any("error", err))
			continue
		}
		go s.listenOn(ctx, pool, tenant)
	}
	return nil
}

func (s *server) listenOn(ctx context.Context, pool *pgxpool.Pool, tenant string) {
	log := s.log.With(slog.String("listen_db", tenant))
	if err := db.Listen(ctx, pool, verp.RegistryChannel, log, func(payload string) {
		log.InfoContext(ctx, "routing invalidated", slog.String("tenant", payload))
		s.app.Invalidate(payload)
	}); err != nil {
		log.ErrorContext(ctx, "listen stopped", slog.Any("error", err))
	}
}
