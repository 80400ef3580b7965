// Package migrations embeds the SQL schema migrations applied by cmd/migrate.
package migrations

import "embed"

// FS holds the versioned up and down scripts
//
//go:embed *.sql
var FS embed.FS
