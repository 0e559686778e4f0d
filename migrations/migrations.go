// Package migrations embeds the definitions-store schema, one directory per
// database dialect, so the binary carries its own migrations.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

//go:embed postgres/*.sql
var PostgresMigrations embed.FS

// For returns the migration files and their directory for a database/sql
// driver name. The result is false for drivers without migrations.
func For(driver string) (fs.FS, string, bool) {
	switch driver {
	case "sqlite3":
		return SqliteMigrations, "sqlite", true
	case "postgres":
		return PostgresMigrations, "postgres", true
	}
	return nil, "", false
}
