// Package migrations compiles the SQL migration files into the binary,
// so a deployed latchd never depends on loose .sql files next to the
// executable.
package migrations

import (
	"embed"

	"github.com/nerrad567/latch-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

// The database package runs whatever filesystem is registered here;
// importing this package for side effects is what arms Migrate.
func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
