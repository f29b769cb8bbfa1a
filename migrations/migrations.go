// Package migrations embeds the Postgres schema for the pgvector index
// backend.
package migrations

import "embed"

// FS holds the golang-migrate up/down files.
//
//go:embed *.sql
var FS embed.FS
