package db

import "embed"

// MigrationFS holds the numbered up/down SQL files applied by internal/db/migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
