// Package migrations holds the Postgres schema for challenge content, applied with bun/migrate.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
