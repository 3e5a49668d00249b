package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// DefaultTimeout is the default request timeout.
const DefaultTimeout = 30 * time.Second

// Timeout returns middleware that bounds the request context. Database
// calls, serialization retries and outgoing requests made by handlers stop
// once the deadline passes; the engine then answers through the error
// translator. Requests that overran are logged.
func Timeout(timeout time.Duration, log *slog.Logger) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))

			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				log.WarnContext(ctx, "request timeout",
					slog.String("path", r.URL.Path),
					slog.Duration("timeout", timeout),
				)
			}
		})
	}
}
