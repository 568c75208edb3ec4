// Package migrations embeds the Postgres schema for the optional lead mirror.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
