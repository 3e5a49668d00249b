package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Beginner starts transactions. *pgxpool.Pool and *pgx.Conn satisfy it.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Cursor is a single repeatable-read transaction. It ends with exactly one
// Commit or Rollback; Close rolls back a transaction that is still open.
type Cursor struct {
	tx     pgx.Tx
	ended  bool
	closed bool
}

// Begin opens a cursor on b.
func Begin(ctx context.Context, b Beginner, readonly bool) (*Cursor, error) {
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead}
	if readonly {
		opts.AccessMode = pgx.ReadOnly
	}
	tx, err := b.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return NewCursor(tx), nil
}

// NewCursor wraps an already started transaction.
func NewCursor(tx pgx.Tx) *Cursor {
	return &Cursor{tx: tx}
}

// Tx exposes the underlying transaction for queries.
func (c *Cursor) Tx() pgx.Tx {
	return c.tx
}

// Exec runs sql inside the transaction.
func (c *Cursor) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return c.tx.Exec(ctx, sql, args...)
}

// Query runs sql inside the transaction.
func (c *Cursor) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return c.tx.Query(ctx, sql, args...)
}

// QueryRow runs sql inside the transaction.
func (c *Cursor) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return c.tx.QueryRow(ctx, sql, args...)
}

// Commit commits the transaction.
func (c *Cursor) Commit(ctx context.Context) error {
	if c.ended {
		return ErrCursorClosed
	}
	c.ended = true
	return c.tx.Commit(ctx)
}

// Rollback aborts the transaction.
func (c *Cursor) Rollback(ctx context.Context) error {
	if c.ended {
		return ErrCursorClosed
	}
	c.ended = true
	return c.tx.Rollback(ctx)
}

// Close releases the cursor, rolling back if it was neither committed nor
// rolled back. Closing twice is a no-op.
func (c *Cursor) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.ended {
		return nil
	}
	c.ended = true
	return c.tx.Rollback(ctx)
}

// Ended reports whether Commit or Rollback already ran.
func (c *Cursor) Ended() bool {
	return c.ended
}

// WithTx runs fn in a new cursor, committing on success and rolling back
// on error or panic.
func WithTx(ctx context.Context, b Beginner, fn func(*Cursor) error) error {
	cr, err := Begin(ctx, b, false)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = cr.Close(ctx)
			panic(p)
		}
	}()

	if err := fn(cr); err != nil {
		return errors.Join(err, cr.Close(ctx))
	}
	return cr.Commit(ctx)
}

// Serialization-class SQLSTATEs: the transaction may succeed when replayed.
var retryableCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

// IsSerializationFailure reports whether err is a concurrency conflict that
// can be retried on a fresh cursor.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	_, ok := retryableCodes[pgErr.Code]
	return ok
}
