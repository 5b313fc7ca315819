// Package migrations embeds the SQLite schema migrations into the binary.
//
// Pass FS to (*database.DB).Migrate at startup and in repository tests.
package migrations

import "embed"

// FS holds every *.up.sql and *.down.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
