package db

import (
	"context"
	"errors"

	"github.com/avast/retry-go/v4"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pool on database (empty = the database of cfg.URL),
// retrying the initial ping with backoff.
func Connect(ctx context.Context, cfg Config, database string) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	if database != "" {
		pc.ConnConfig.Database = database
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	if cfg.HealthCheckPeriod > 0 {
		pc.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}

	var pool *pgxpool.Pool
	err = retry.Do(
		func() error {
			p, err := pgxpool.NewWithConfig(ctx, pc)
			if err != nil {
				return err
			}
			// Ping catches authentication and missing-database errors early.
			if err := p.Ping(ctx); err != nil {
				p.Close()
				return err
			}
			pool = p
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(max(cfg.RetryAttempts, 1)),
		retry.Delay(cfg.RetryInterval),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	return pool, nil
}

// Healthcheck returns a readiness probe pinging pool.
func Healthcheck(pool *pgxpool.Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		if pool == nil {
			return ErrHealthcheckFailed
		}
		if err := pool.Ping(ctx); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}
