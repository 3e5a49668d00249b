package db

import "errors"

var (
	ErrInvalidConfig     = errors.New("db: failed to parse database configuration")
	ErrConnectionFailed  = errors.New("db: failed to open database connection")
	ErrInvalidTenant     = errors.New("db: invalid tenant database name")
	ErrHealthcheckFailed = errors.New("db: healthcheck failed")
	ErrCursorClosed      = errors.New("db: cursor already closed")
	ErrSetDialect        = errors.New("db migrator: failed to set dialect")
	ErrApplyMigrations   = errors.New("db migrator: failed to apply migrations")
)
