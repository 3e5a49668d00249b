// Package migrations embeds the SQL migrations creating the tables the
// engine reads on every tenant database: installed modules and users.
//
//	err := db.Migrate(ctx, pool, migrations.FS, cfg.DB.MigrationsTable, log)
package migrations

import "embed"

// FS holds the goose migrations.
//
//go:embed *.sql
var FS embed.FS
