package db

import "time"

// Config holds the PostgreSQL server parameters shared by every tenant pool.
// The database named in URL is only used for server-level queries (listing
// tenants, LISTEN/NOTIFY); each tenant gets its own pool on the database of
// the same name.
type Config struct {
	URL string `env:"DATABASE_URL,required"`

	MigrationsTable string `env:"DATABASE_MIGRATIONS_TABLE" envDefault:"verp_migrations"`

	HealthCheckPeriod time.Duration `env:"DATABASE_HEALTHCHECK_PERIOD" envDefault:"1m"`
	MaxConnIdleTime   time.Duration `env:"DATABASE_MAX_CONN_IDLE_TIME" envDefault:"10m"`
	MaxConnLifetime   time.Duration `env:"DATABASE_MAX_CONN_LIFETIME" envDefault:"30m"`

	RetryAttempts uint          `env:"DATABASE_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"DATABASE_RETRY_INTERVAL" envDefault:"2s"`

	// Per tenant pool limits.
	MaxConns int32 `env:"DATABASE_MAX_CONNS" envDefault:"8"`
	MinConns int32 `env:"DATABASE_MIN_CONNS" envDefault:"0"`
}
