package verp

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/tonyluong2025/verp-sub017/internal"
)

// Logger sets the server logger. Defaults to the engine logger.
func Logger(l *slog.Logger) RunOption {
	return internal.Logger(l)
}

// ShutdownTimeout sets the timeout for graceful shutdown.
func ShutdownTimeout(d time.Duration) RunOption {
	return internal.ShutdownTimeout(d)
}

// StartupHook registers a function run before the server accepts connections.
//
// Example:
//
//	verp.StartupHook(func(ctx context.Context) error {
//	    go db.Listen(ctx, admin, verp.RegistryChannel, log, app.Invalidate)
//	    return nil
//	})
func StartupHook(fn func(context.Context) error) RunOption {
	return internal.StartupHook(fn)
}

// ShutdownHook registers a cleanup function to run during shutdown.
// Hooks are called in the order they were registered.
func ShutdownHook(fn func(context.Context) error) RunOption {
	return internal.ShutdownHook(fn)
}

// WithContext sets a custom base context for signal handling.
func WithContext(ctx context.Context) RunOption {
	return internal.WithContext(ctx)
}

// Preload builds the routing tables of the given tenants before the server
// accepts connections.
func Preload(tenants ...string) RunOption {
	return internal.Preload(tenants...)
}

// OnReady registers a callback receiving the bound listener address.
func OnReady(fn func(net.Addr)) RunOption {
	return internal.OnReady(fn)
}
