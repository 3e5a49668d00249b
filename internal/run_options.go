package internal

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// RunOption configures the server runtime.
type RunOption func(*runConfig)

// runConfig holds runtime configuration for the server.
type runConfig struct {
	logger          *slog.Logger
	baseCtx         context.Context
	startupHooks    []func(context.Context) error
	shutdownHooks   []func(context.Context) error
	shutdownTimeout time.Duration
	preload         []string
	ready           func(net.Addr)
}

// buildRunConfig creates a runConfig from the provided options.
func buildRunConfig(opts ...RunOption) *runConfig {
	cfg := &runConfig{
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Logger sets the server logger. Defaults to the engine logger.
func Logger(l *slog.Logger) RunOption {
	return func(c *runConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// ShutdownTimeout sets the timeout for graceful shutdown.
// This applies to both the HTTP server and shutdown hooks.
// Defaults to 30 seconds.
func ShutdownTimeout(d time.Duration) RunOption {
	return func(c *runConfig) {
		if d > 0 {
			c.shutdownTimeout = d
		}
	}
}

// StartupHook registers a function run before the server accepts
// connections. It receives the server lifetime context; long-running
// work must be started in its own goroutine.
//
// Example:
//
//	verp.StartupHook(func(ctx context.Context) error {
//	    go db.Listen(ctx, admin, verp.RegistryChannel, log, app.Invalidate)
//	    return nil
//	})
func StartupHook(fn func(context.Context) error) RunOption {
	return func(c *runConfig) {
		if fn != nil {
			c.startupHooks = append(c.startupHooks, fn)
		}
	}
}

// ShutdownHook registers a cleanup function to run during shutdown.
// Hooks are called in the order they were registered.
// Each hook receives a context with the shutdown timeout.
//
// Example:
//
//	verp.ShutdownHook(pools.Shutdown())
func ShutdownHook(fn func(context.Context) error) RunOption {
	return func(c *runConfig) {
		if fn != nil {
			c.shutdownHooks = append(c.shutdownHooks, fn)
		}
	}
}

// WithContext sets a custom base context for signal handling.
// Useful for testing or when integrating with existing context hierarchies.
// Defaults to context.Background() if not set.
func WithContext(ctx context.Context) RunOption {
	return func(c *runConfig) {
		if ctx != nil {
			c.baseCtx = ctx
		}
	}
}

// Preload builds the routing tables of the given tenants before the server
// accepts connections, so their first requests skip the build.
func Preload(tenants ...string) RunOption {
	return func(c *runConfig) {
		c.preload = append(c.preload, tenants...)
	}
}

// OnReady registers a callback receiving the bound listener address.
func OnReady(fn func(net.Addr)) RunOption {
	return func(c *runConfig) {
		c.ready = fn
	}
}
