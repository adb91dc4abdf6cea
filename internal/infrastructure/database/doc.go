// Package database provides SQLite connectivity for the equipment status service.
//
// This package manages:
//   - Database connection with WAL mode and a busy timeout
//   - Schema migrations embedded into the binary
//   - Connection lifecycle and health checks
//
// All queries use parameterised statements and the database file is
// created with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql. RunMigrations is shared with the PostgreSQL backend,
// which supplies its own VersionStore and its own set of files.
package database
