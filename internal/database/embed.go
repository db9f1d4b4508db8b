package database

import "embed"

// MigrationFS holds the versioned schema migrations
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
