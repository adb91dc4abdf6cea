package postgres

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nerrad567/equipment-status/internal/infrastructure/config"
	"github.com/nerrad567/equipment-status/internal/infrastructure/database"
)

// connectTimeout bounds the initial ping.
const connectTimeout = 10 * time.Second

// DB wraps a pgx connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// Connect creates a connection pool and verifies it with a ping.
//
// Parameters:
//   - ctx: Context for the initial connection
//   - cfg: PostgreSQL configuration
//
// Returns:
//   - *DB: Connected pool wrapper
//   - error: If the DSN is invalid or the server is unreachable
func Connect(ctx context.Context, cfg config.PostgresConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = time.Duration(cfg.MaxConnLifetime) * time.Second
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = time.Duration(cfg.MaxConnIdleTime) * time.Second
	}
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// HealthCheck pings the server.
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	return nil
}

// Migrate applies pending migrations from dir in fsys through
// database.RunMigrations, each in its own transaction.
//
// Returns:
//   - int: Number of migrations applied
//   - error: The first failing migration
func (db *DB) Migrate(ctx context.Context, fsys fs.FS, dir string) (int, error) {
	return database.RunMigrations(ctx, pgVersions{db.Pool}, fsys, dir)
}

// pgVersions keeps schema_migrations in PostgreSQL.
type pgVersions struct {
	pool *pgxpool.Pool
}

func (p pgVersions) EnsureVersionTable(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

func (p pgVersions) AppliedVersions(ctx context.Context) ([]database.MigrationRecord, error) {
	rows, err := p.pool.Query(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (database.MigrationRecord, error) {
		var r database.MigrationRecord
		err := row.Scan(&r.Version, &r.AppliedAt)
		return r, err
	})
}

func (p pgVersions) Apply(ctx context.Context, m database.Migration) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, m.UpSQL); err != nil {
			return fmt.Errorf("executing SQL: %w", err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Version); err != nil {
			return fmt.Errorf("recording migration: %w", err)
		}
		return nil
	})
}
