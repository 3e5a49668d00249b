package middlewares

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tonyluong2025/verp-sub017/internal"
)

// AccessLog returns middleware that logs one line per request with its
// status, size and duration. Server errors are logged at error level,
// client errors at warn level.
func AccessLog(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := internal.NewResponseWriter(w)
			next.ServeHTTP(rw, r)

			status := rw.Status()
			level := slog.LevelInfo
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}
			log.Log(r.Context(), level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("host", r.Host),
				slog.Int("status", status),
				slog.Int64("size", rw.Size()),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote", r.RemoteAddr),
			)
		})
	}
}
