// Package migrations embeds the SQL migrations applied at server startup.
package migrations

import "embed"

// FS holds the goose migration files.
//
//go:embed *.sql
var FS embed.FS
