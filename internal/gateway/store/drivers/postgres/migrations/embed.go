// Package migrations embeds the postgres audit schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
