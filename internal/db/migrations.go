package db

import "embed"

// Migrations holds the golang-migrate SQL files applied by cmd/migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS
