package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// MigrationsFS holds the SQLite migration files. The migrations package
// sets it on import.
var MigrationsFS fs.FS

// MigrationsDir is the directory inside MigrationsFS holding the files.
var MigrationsDir = "."

// Migration is one versioned schema step loaded from a
// YYYYMMDD_HHMMSS_name.up.sql file and its optional .down.sql partner.
type Migration struct {
	Version string // YYYYMMDD_HHMMSS
	Name    string
	UpSQL   string
	DownSQL string // not run by the service; kept for manual rollback
}

// MigrationRecord is a row of schema_migrations.
type MigrationRecord struct {
	Version   string
	AppliedAt time.Time
}

// VersionStore is the engine-specific half of a migration run. SQLite and
// PostgreSQL each provide one; the ordering and bookkeeping rules live in
// RunMigrations and MigrationStatus.
type VersionStore interface {
	// EnsureVersionTable creates schema_migrations when it is missing.
	EnsureVersionTable(ctx context.Context) error

	// AppliedVersions lists recorded migrations in ascending version order.
	AppliedVersions(ctx context.Context) ([]MigrationRecord, error)

	// Apply runs m.UpSQL and records m.Version atomically.
	Apply(ctx context.Context, m Migration) error
}

// RunMigrations applies every migration in dir of fsys that target has not
// recorded, oldest first. A failing migration is rolled back; earlier ones
// stay applied and later ones are not attempted.
//
// Returns:
//   - int: Number of migrations applied by this call
//   - error: The first failure, naming the migration
func RunMigrations(ctx context.Context, target VersionStore, fsys fs.FS, dir string) (int, error) {
	if err := target.EnsureVersionTable(ctx); err != nil {
		return 0, fmt.Errorf("creating migrations table: %w", err)
	}

	_, pending, err := MigrationStatus(ctx, target, fsys, dir)
	if err != nil {
		return 0, err
	}

	for i, m := range pending {
		if err := target.Apply(ctx, m); err != nil {
			return i, fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return len(pending), nil
}

// MigrationStatus splits the migrations in dir of fsys into those target
// has recorded and those still pending. The version table must exist.
func MigrationStatus(ctx context.Context, target VersionStore, fsys fs.FS, dir string) ([]MigrationRecord, []Migration, error) {
	all, err := LoadMigrations(fsys, dir)
	if err != nil {
		return nil, nil, fmt.Errorf("loading migrations: %w", err)
	}
	applied, err := target.AppliedVersions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("reading applied migrations: %w", err)
	}
	return applied, Pending(all, applied), nil
}

// Migrate brings the SQLite schema up to date from MigrationsFS.
func (db *DB) Migrate(ctx context.Context) error {
	_, err := RunMigrations(ctx, sqliteVersions{db.DB}, MigrationsFS, MigrationsDir)
	return err
}

// GetMigrationStatus returns applied and pending SQLite migrations.
func (db *DB) GetMigrationStatus(ctx context.Context) ([]MigrationRecord, []Migration, error) {
	target := sqliteVersions{db.DB}
	if err := target.EnsureVersionTable(ctx); err != nil {
		return nil, nil, fmt.Errorf("creating migrations table: %w", err)
	}
	return MigrationStatus(ctx, target, MigrationsFS, MigrationsDir)
}

// sqliteVersions keeps schema_migrations in SQLite with RFC 3339 text times.
type sqliteVersions struct {
	db *sql.DB
}

func (s sqliteVersions) EnsureVersionTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	return err
}

func (s sqliteVersions) AppliedVersions(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []MigrationRecord
	for rows.Next() {
		var (
			r         MigrationRecord
			appliedAt string
		)
		if err := rows.Scan(&r.Version, &appliedAt); err != nil {
			return nil, err
		}
		r.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt) //nolint:errcheck // written by Apply below
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s sqliteVersions) Apply(ctx context.Context, m Migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
		return fmt.Errorf("executing SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		m.Version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	return tx.Commit()
}

// LoadMigrations reads the migrations in dir of fsys, ordered by version.
// Files that do not follow the naming scheme are ignored. A nil fsys or a
// missing dir yields none.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	if fsys == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, nil //nolint:nilerr // no directory means no migrations
	}

	byVersion := make(map[string]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, up, ok := parseMigrationFilename(entry.Name())
		if !ok {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		m := byVersion[version]
		if m == nil {
			m = &Migration{Version: version}
			byVersion[version] = m
		}
		if up {
			m.Name, m.UpSQL = name, string(data)
		} else {
			m.DownSQL = string(data)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" && m.Name == "" {
			continue // a .down.sql without its .up.sql
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Pending returns the migrations whose version is not in applied, keeping order.
func Pending(migrations []Migration, applied []MigrationRecord) []Migration {
	done := make(map[string]bool, len(applied))
	for _, r := range applied {
		done[r.Version] = true
	}

	var pending []Migration
	for _, m := range migrations {
		if !done[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending
}

// parseMigrationFilename splits "20261017_090000_equipment_states.up.sql"
// into version "20261017_090000", name "equipment_states" and up=true.
func parseMigrationFilename(filename string) (version, name string, up, ok bool) {
	base, found := strings.CutSuffix(filename, ".sql")
	if !found {
		return "", "", false, false
	}
	switch {
	case strings.HasSuffix(base, ".up"):
		base, up = strings.TrimSuffix(base, ".up"), true
	case strings.HasSuffix(base, ".down"):
		base = strings.TrimSuffix(base, ".down")
	default:
		return "", "", false, false
	}

	parts := strings.SplitN(base, "_", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false, false
	}
	version = parts[0] + "_" + parts[1]
	name = base
	if len(parts) == 3 {
		name = parts[2]
	}
	return version, name, up, true
}
