package middlewares

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/tonyluong2025/verp-sub017/internal"
)

// DefaultStackSize is the default maximum stack trace size in bytes.
const DefaultStackSize = 4096

// RecoverConfig configures the recover middleware.
type RecoverConfig struct {
	Logger            *slog.Logger
	OnPanic           func(w http.ResponseWriter, r *http.Request, pe *PanicError)
	StackSize         int  // Max stack trace size (default: 4096)
	DisablePrintStack bool // Disable stack trace in logs
}

// RecoverOption configures RecoverConfig.
type RecoverOption func(*RecoverConfig)

// WithRecoverStackSize sets the maximum stack trace size.
func WithRecoverStackSize(size int) RecoverOption {
	return func(cfg *RecoverConfig) {
		cfg.StackSize = size
	}
}

// WithRecoverDisablePrintStack disables including stack trace in logs.
func WithRecoverDisablePrintStack() RecoverOption {
	return func(cfg *RecoverConfig) {
		cfg.DisablePrintStack = true
	}
}

// WithRecoverHandler replaces the default 500 response written after a panic.
func WithRecoverHandler(fn func(w http.ResponseWriter, r *http.Request, pe *PanicError)) RecoverOption {
	return func(cfg *RecoverConfig) {
		cfg.OnPanic = fn
	}
}

// Recover returns middleware that recovers from panics raised outside the
// engine, in static file handlers and other middlewares. The engine
// recovers handler panics itself. A response is written only when none
// was started. http.ErrAbortHandler is re-raised.
// Request ID is automatically included via RequestIDExtractor() if configured.
func Recover(log *slog.Logger, opts ...RecoverOption) func(http.Handler) http.Handler {
	cfg := &RecoverConfig{
		Logger:    log,
		StackSize: DefaultStackSize,
		OnPanic: func(w http.ResponseWriter, _ *http.Request, _ *PanicError) {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		},
	}

	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := internal.NewResponseWriter(w)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				var stack []byte
				// Allocate buffer only if stack traces are enabled
				if !cfg.DisablePrintStack {
					stack = make([]byte, cfg.StackSize)
					n := runtime.Stack(stack, false)
					stack = stack[:n]
				}

				attrs := []any{slog.Any("panic", rec), slog.String("path", r.URL.Path)}
				if stack != nil {
					attrs = append(attrs, slog.String("stack", string(stack)))
				}
				cfg.Logger.ErrorContext(r.Context(), "panic recovered", attrs...)

				if !rw.Written() {
					cfg.OnPanic(rw, r, &PanicError{Value: rec, Stack: stack})
				}
			}()

			next.ServeHTTP(rw, r)
		})
	}
}
