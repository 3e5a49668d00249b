// Package health runs named readiness checks concurrently under a shared
// timeout and reports the aggregate status.
//
//	rep := health.Run(ctx, health.Checks{
//		"postgres": db.Healthcheck(pool),
//		"redis":    redis.Healthcheck(client),
//	}, health.WithTimeout(3*time.Second))
package health

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultTimeout = 5 * time.Second

	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

var (
	ErrCheckFailed  = errors.New("health: check failed")
	ErrCheckTimeout = errors.New("health: check timeout")
)

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

// Checks maps check names to probes.
type Checks map[string]CheckFunc

// Report is the aggregated result.
type Report struct {
	Checks map[string]Check `json:"checks,omitempty"`
	Status string           `json:"status"`
}

// Healthy reports whether every check passed.
func (r *Report) Healthy() bool {
	return r.Status == StatusHealthy
}

// Check is the result of a single probe.
type Check struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type config struct {
	logger  *slog.Logger
	timeout time.Duration
}

// Option configures Run.
type Option func(*config)

// WithTimeout bounds all checks together. Default: 5s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger logs failing checks at warn level.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// Run executes checks in parallel.
func Run(ctx context.Context, checks Checks, opts ...Option) *Report {
	cfg := &config{timeout: defaultTimeout, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(checks) == 0 {
		return &Report{Status: StatusHealthy}
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	var (
		mu  sync.Mutex
		g   errgroup.Group
		rep = &Report{Status: StatusHealthy, Checks: make(map[string]Check, len(checks))}
	)
	for name, check := range checks {
		g.Go(func() error {
			res := Check{Status: StatusHealthy}
			if err := check(ctx); err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					err = errors.Join(ErrCheckTimeout, err)
				}
				res = Check{Status: StatusUnhealthy, Error: err.Error()}
				cfg.logger.WarnContext(ctx, "health check failed",
					slog.String("check", name),
					slog.String("error", err.Error()),
				)
			}
			mu.Lock()
			rep.Checks[name] = res
			if res.Status == StatusUnhealthy {
				rep.Status = StatusUnhealthy
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return rep
}
