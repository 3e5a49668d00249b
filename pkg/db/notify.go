package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Notify sends payload on channel.
func Notify(ctx context.Context, pool *pgxpool.Pool, channel, payload string) error {
	_, err := pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, payload)
	return err
}

// Listen blocks until ctx is done, calling fn for every notification on
// channel. A lost connection is re-acquired with backoff; fn must not block.
func Listen(ctx context.Context, pool *pgxpool.Pool, channel string, log *slog.Logger, fn func(payload string)) error {
	for {
		err := listenOnce(ctx, pool, channel, fn)
		if ctx.Err() != nil {
			return nil
		}
		log.WarnContext(ctx, "listen connection lost", "channel", channel, "error", err)

		err = retry.Do(
			func() error {
				conn, err := pool.Acquire(ctx)
				if err != nil {
					return err
				}
				conn.Release()
				return nil
			},
			retry.Context(ctx),
			retry.Attempts(0),
			retry.Delay(time.Second),
			retry.MaxDelay(30*time.Second),
		)
		if err != nil && ctx.Err() != nil {
			return nil
		}
	}
}

func listenOnce(ctx context.Context, pool *pgxpool.Pool, channel string, fn func(string)) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return err
	}
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				// Leave the connection clean for the next pool user.
				_, _ = conn.Exec(context.Background(), "UNLISTEN *")
			}
			return err
		}
		fn(n.Payload)
	}
}
