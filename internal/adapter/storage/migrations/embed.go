// Package migrations embeds the schema of each supported SQL dialect.
package migrations

import "embed"

//go:embed mysql/*.sql sqlite/*.sql
var FS embed.FS
