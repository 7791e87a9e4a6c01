package migrations

import "embed"

// FS contains embedded SQLite migrations for space storage.
//
//go:embed *.sql
var FS embed.FS
