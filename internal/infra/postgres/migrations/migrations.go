// Package migrations holds the Postgres schema, applied with the bun migrator.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
