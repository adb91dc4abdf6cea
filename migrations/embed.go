// Package migrations embeds SQL migration files into the binary.
//
// SQLite migrations live at the root of this directory and are registered
// with the database package on import. PostgreSQL migrations live under
// postgres/ and are handed to the postgres package explicitly.
package migrations

import (
	"embed"

	"github.com/nerrad567/equipment-status/internal/infrastructure/database"
)

//go:embed *.sql
var sqliteFS embed.FS

// Postgres holds the PostgreSQL migrations under PostgresDir.
//
//go:embed postgres/*.sql
var Postgres embed.FS

// PostgresDir is the directory within Postgres containing migration files.
const PostgresDir = "postgres"

func init() {
	database.MigrationsFS = sqliteFS
	database.MigrationsDir = "." // Files are at root of embedded FS
}
