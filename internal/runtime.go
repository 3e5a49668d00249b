package internal

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const defaultAddress = ":8069"

// runtimeConfig holds configuration for running the HTTP server.
type runtimeConfig struct {
	handler         http.Handler
	address         string
	logger          *slog.Logger
	shutdownTimeout time.Duration
	startupHooks    []func(context.Context) error
	shutdownHooks   []func(context.Context) error
	baseCtx         context.Context

	// preload builds the routing table of each listed tenant before the
	// listener opens. Failures are logged; the tenant is built lazily later.
	preload []string
	warm    func(ctx context.Context, tenant string) error

	// ready, when set, receives the bound address once the server accepts
	// connections.
	ready func(net.Addr)
}

// runServer starts the HTTP server and blocks until the context is done
// or a signal arrives, then drains in-flight requests and runs the
// shutdown hooks in order.
func runServer(cfg runtimeConfig) error {
	if cfg.address == "" {
		cfg.address = defaultAddress
	}
	if cfg.shutdownTimeout <= 0 {
		cfg.shutdownTimeout = defaultShutdownTimeout
	}
	log := cfg.logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	server := &http.Server{
		Addr:              cfg.address,
		Handler:           cfg.handler,
		ReadTimeout:       defaultReadTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		MaxHeaderBytes:    defaultMaxHeaderBytes,
		ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelWarn),
	}

	baseCtx := cfg.baseCtx
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(baseCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for _, hook := range cfg.startupHooks {
		if err := hook(ctx); err != nil {
			// Hooks that already ran may hold pools or listeners.
			return errors.Join(err, shutdown(nil, cfg, log))
		}
	}

	if cfg.warm != nil {
		for _, tenant := range cfg.preload {
			start := time.Now()
			if err := cfg.warm(ctx, tenant); err != nil {
				log.WarnContext(ctx, "routing table preload failed",
					slog.String("tenant", tenant), slog.Any("error", err))
				continue
			}
			log.InfoContext(ctx, "routing table preloaded",
				slog.String("tenant", tenant), slog.Duration("duration", time.Since(start)))
		}
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return errors.Join(err, shutdown(nil, cfg, log))
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", slog.String("address", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	if cfg.ready != nil {
		cfg.ready(ln.Addr())
	}

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	return errors.Join(serveErr, shutdown(server, cfg, log))
}

// shutdown stops the server, when one was started, then runs every
// shutdown hook even if earlier ones fail.
func shutdown(server *http.Server, cfg runtimeConfig, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
	defer cancel()

	var errs []error
	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, hook := range cfg.shutdownHooks {
		if err := hook(ctx); err != nil {
			errs = append(errs, err)
			log.Error("shutdown hook failed", slog.Any("error", err))
		}
	}

	if len(errs) > 0 {
		log.Error("shutdown completed with errors")
		return errors.Join(errs...)
	}
	log.Info("shutdown completed")
	return nil
}
