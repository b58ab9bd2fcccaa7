// Package db embeds the SQL migrations so the migrate binary carries them.
package db

import "embed"

// Migrations holds db/migrations/*.sql in golang-migrate naming.
//
//go:embed migrations/*.sql
var Migrations embed.FS
