// Package migrations embeds the SQL schema migrations.
package migrations

import "embed"

// FS holds every *.sql migration, named NNN_description.sql
//
//go:embed *.sql
var FS embed.FS
