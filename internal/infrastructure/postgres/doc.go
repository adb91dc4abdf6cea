// Package postgres provides the PostgreSQL connection pool used by the
// postgres storage driver, plus a migration runner sharing the SQLite
// runner's file format.
//
// Usage:
//
//	db, err := postgres.Connect(ctx, cfg.Postgres)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.Postgres, migrations.PostgresDir); err != nil {
//	    return err
//	}
package postgres
