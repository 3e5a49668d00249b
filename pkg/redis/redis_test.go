package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpen_Validation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	_, err := Open(ctx, "")
	require.ErrorIs(t, err, ErrEmptyURL)

	for _, url := range []string{
		"http://localhost:6379",
		"localhost:6379",
		"redis://localhost:notaport",
	} {
		client, err := Open(ctx, url)
		require.Nil(t, client)
		require.ErrorIs(t, err, ErrInvalidURL, url)
	}
}

func TestHealthcheck_NilClient(t *testing.T) {
	t.Parallel()

	err := Healthcheck(nil)(context.Background())
	require.ErrorIs(t, err, ErrHealthcheckFailed)
}

type closer struct {
	closed bool
	err    error
}

func (c *closer) Close() error {
	c.closed = true
	return c.err
}

func TestShutdown(t *testing.T) {
	t.Parallel()

	c := &closer{err: errors.New("boom")}
	err := Shutdown(c)(context.Background())
	require.EqualError(t, err, "boom")
	require.True(t, c.closed)
}

func TestOptions(t *testing.T) {
	t.Parallel()

	o := defaultOptions()
	WithPoolSize(25)(o)
	WithMinIdleConns(4)(o)
	WithRetry(5, 2*time.Second)(o)
	WithTimeout(time.Second)(o)

	require.Equal(t, 25, o.poolSize)
	require.Equal(t, 4, o.minIdleConns)
	require.Equal(t, uint(5), o.retryAttempts)
	require.Equal(t, 2*time.Second, o.retryDelay)
	require.Equal(t, time.Second, o.timeout)
}
