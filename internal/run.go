package internal

import "context"

// Run starts a single-engine HTTP server and blocks until shutdown.
//
// Example:
//
//	err := app.Run(":8069", verp.Logger(log), verp.ShutdownHook(pools.Shutdown()))
func (a *App) Run(addr string, opts ...RunOption) error {
	cfg := buildRunConfig(opts...)
	logger := cfg.logger
	if logger == nil {
		logger = a.logger
	}
	return runServer(runtimeConfig{
		handler:         a.router,
		address:         addr,
		logger:          logger,
		shutdownTimeout: cfg.shutdownTimeout,
		startupHooks:    cfg.startupHooks,
		shutdownHooks:   append(cfg.shutdownHooks, func(context.Context) error { return a.Close() }),
		baseCtx:         cfg.baseCtx,
		preload:         cfg.preload,
		warm: func(ctx context.Context, tenant string) error {
			_, err := a.cache.Get(ctx, tenant)
			return err
		},
		ready: cfg.ready,
	})
}
