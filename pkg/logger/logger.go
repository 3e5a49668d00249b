// Package logger builds slog loggers that enrich records with
// request-scoped attributes and optionally fan out to Sentry.
//
//	log := logger.New(logger.Config{Level: "debug", Format: "text"},
//		func(ctx context.Context) (slog.Attr, bool) {
//			if rid, ok := ctx.Value(ridKey{}).(string); ok {
//				return slog.String("request_id", rid), true
//			}
//			return slog.Attr{}, false
//		},
//	)
//
// With a Sentry DSN configured, error records create Sentry issues and
// warnings are kept as breadcrumbs. Without one, or when Sentry fails to
// initialise, logging continues to stdout only.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
)

// Config selects level, output format and Sentry reporting.
type Config struct {
	Level             string `env:"LOG_LEVEL" envDefault:"info"`   // debug, info, warn, error
	Format            string `env:"LOG_FORMAT" envDefault:"json"`  // json, text
	SentryDSN         string `env:"SENTRY_DSN"`
	SentryEnvironment string `env:"SENTRY_ENVIRONMENT" envDefault:"production"`
}

// New returns a logger writing to stdout.
func New(cfg Config, extractors ...ContextExtractor) *slog.Logger {
	return NewWithWriter(os.Stdout, cfg, extractors...)
}

// NewWithWriter returns a logger writing to w.
func NewWithWriter(w io.Writer, cfg Config, extractors ...ContextExtractor) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.SentryEnvironment,
			EnableLogs:  true,
		}); err != nil {
			slog.New(h).Error("failed to initialize sentry", slog.String("error", err.Error()))
		} else {
			sh := sentryslog.Option{
				EventLevel: []slog.Level{slog.LevelError},
				LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelError},
			}.NewSentryHandler(context.Background())
			h = fanout{h, sh}
		}
	}

	return slog.New(NewLogHandlerDecorator(h, extractors...))
}

// ParseLevel maps a level name to slog.Level. Unknown names mean info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// NewNope returns a logger that discards everything.
func NewNope() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fanout forwards records to every handler enabled for their level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, rec slog.Record) error {
	for _, h := range f {
		if h.Enabled(ctx, rec.Level) {
			if err := h.Handle(ctx, rec.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
