// Package db manages PostgreSQL access for a multi-tenant server: one
// [github.com/jackc/pgx/v5/pgxpool] pool per tenant database, opened on
// first use, plus transactional cursors, LISTEN/NOTIFY helpers and goose
// migrations.
//
// # Configuration
//
//	DATABASE_URL                - server URL; its database is used for server-level queries (required)
//	DATABASE_MAX_CONNS          - per tenant pool size (default: 8)
//	DATABASE_MIN_CONNS          - idle connections kept per tenant (default: 0)
//	DATABASE_HEALTHCHECK_PERIOD - pool health check interval (default: 1m)
//	DATABASE_MAX_CONN_IDLE_TIME - maximum connection idle time (default: 10m)
//	DATABASE_MAX_CONN_LIFETIME  - maximum connection lifetime (default: 30m)
//	DATABASE_RETRY_ATTEMPTS     - connect attempts (default: 3)
//	DATABASE_RETRY_INTERVAL     - base retry delay (default: 2s)
//	DATABASE_MIGRATIONS_TABLE   - goose version table (default: verp_migrations)
//
// # Cursors
//
//	cr, err := db.Begin(ctx, pool, false)
//	if err != nil {
//		return err
//	}
//	defer cr.Close(ctx) // rolls back unless committed
//	...
//	return cr.Commit(ctx)
//
// [IsSerializationFailure] classifies the SQLSTATEs (40001, 40P01, 55P03)
// for which replaying the whole transaction on a fresh cursor is safe.
package db
