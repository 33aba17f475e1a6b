// Package migrations embeds the sqlite audit schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
