// Package migrations embeds SQL migration files for use at runtime.
// Migrations are embedded so they work regardless of working directory.
// Each supported database dialect has its own directory.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed postgres/*.sql
var postgresFS embed.FS

//go:embed sqlite/*.sql
var sqliteFS embed.FS

// ForDriver returns the migration filesystem for a storage driver, rooted at
// the directory containing the .sql files.
func ForDriver(driver string) (fs.FS, error) {
	switch driver {
	case "postgres":
		return fs.Sub(postgresFS, "postgres")
	case "sqlite":
		return fs.Sub(sqliteFS, "sqlite")
	default:
		return nil, fmt.Errorf("migrations: unknown driver %q", driver)
	}
}
