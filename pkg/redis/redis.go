// Package redis opens go-redis clients for the session store.
//
//	client, err := redis.Open(ctx, cfg.RedisURL, redis.WithPoolSize(20))
//	if err != nil {
//		return err
//	}
//	store := redisstore.New(client)
package redis

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/redis/go-redis/v9"
)

var (
	ErrEmptyURL          = errors.New("redis: empty connection URL")
	ErrInvalidURL        = errors.New("redis: invalid connection URL")
	ErrConnectionFailed  = errors.New("redis: failed to establish connection")
	ErrHealthcheckFailed = errors.New("redis: healthcheck failed")
)

// Option configures a connection.
type Option func(*options)

type options struct {
	poolSize      int
	minIdleConns  int
	retryAttempts uint
	retryDelay    time.Duration
	timeout       time.Duration
}

func defaultOptions() *options {
	return &options{
		poolSize:      10,
		minIdleConns:  2,
		retryAttempts: 3,
		retryDelay:    time.Second,
		timeout:       3 * time.Second,
	}
}

// WithPoolSize sets the maximum number of pooled connections. Default: 10.
func WithPoolSize(n int) Option {
	return func(o *options) { o.poolSize = n }
}

// WithMinIdleConns sets the number of idle connections kept open. Default: 2.
func WithMinIdleConns(n int) Option {
	return func(o *options) { o.minIdleConns = n }
}

// WithRetry sets the startup ping attempts and the base delay between them.
// Default: 3 attempts, 1s.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(o *options) {
		o.retryAttempts = attempts
		o.retryDelay = delay
	}
}

// WithTimeout sets dial, read and write timeouts. Default: 3s.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// Open parses a redis:// or rediss:// URL and pings the server until it
// answers or the retry budget is spent.
func Open(ctx context.Context, url string, opts ...Option) (redis.UniversalClient, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}
	if !strings.HasPrefix(url, "redis://") && !strings.HasPrefix(url, "rediss://") {
		return nil, ErrInvalidURL
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	ro, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Join(ErrInvalidURL, err)
	}
	ro.PoolSize = o.poolSize
	ro.MinIdleConns = o.minIdleConns
	ro.DialTimeout = o.timeout
	ro.ReadTimeout = o.timeout
	ro.WriteTimeout = o.timeout

	client := redis.NewClient(ro)
	err = retry.Do(
		func() error { return client.Ping(ctx).Err() },
		retry.Context(ctx),
		retry.Attempts(max(o.retryAttempts, 1)),
		retry.Delay(o.retryDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		_ = client.Close()
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	return client, nil
}

// Healthcheck returns a readiness probe pinging client.
func Healthcheck(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		if client == nil {
			return ErrHealthcheckFailed
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}

// Shutdown returns a shutdown hook closing client.
func Shutdown(client io.Closer) func(context.Context) error {
	return func(context.Context) error {
		return client.Close()
	}
}
