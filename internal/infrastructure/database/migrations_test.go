package database

import (
	"context"
	"testing"
	"testing/fstest"
	"time"
)

// testMigrations is a two-step schema history.
var testMigrations = fstest.MapFS{
	"20261001_100000_create_machines.up.sql": {Data: []byte(
		"CREATE TABLE machines (id TEXT PRIMARY KEY) STRICT;",
	)},
	"20261001_100000_create_machines.down.sql": {Data: []byte(
		"DROP TABLE machines;",
	)},
	"20261002_100000_add_readings.up.sql": {Data: []byte(
		"CREATE TABLE readings (machine_id TEXT NOT NULL, value REAL NOT NULL) STRICT;",
	)},
	"20261002_100000_add_readings.down.sql": {Data: []byte(
		"DROP TABLE readings;",
	)},
	"README.md": {Data: []byte("ignored")},
}

// useMigrations swaps the package migration source for the test.
func useMigrations(t *testing.T, fsys fstest.MapFS) {
	t.Helper()

	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = origFS, origDir
	})
	MigrationsFS, MigrationsDir = fsys, "."
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()

	var count int
	if err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count); err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	return count == 1
}

// TestMigrate verifies migration application.
func TestMigrate(t *testing.T) {
	useMigrations(t, testMigrations)
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	for _, table := range []string{"machines", "readings"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s not created", table)
		}
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("expected 2 applied migrations, got %d", len(applied))
	}
	if len(pending) != 0 {
		t.Errorf("expected 0 pending migrations, got %d", len(pending))
	}

	// Running again should be idempotent
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

// TestMigrateNoMigrations verifies an unset source is a no-op.
func TestMigrateNoMigrations(t *testing.T) {
	origFS := MigrationsFS
	t.Cleanup(func() { MigrationsFS = origFS })
	MigrationsFS = nil

	db := openTestDB(t)
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() with no migrations error = %v", err)
	}
}

// TestMigrateFailureRollsBack verifies a broken migration leaves earlier ones applied.
func TestMigrateFailureRollsBack(t *testing.T) {
	broken := fstest.MapFS{
		"20261001_100000_create_machines.up.sql": testMigrations["20261001_100000_create_machines.up.sql"],
		"20261002_100000_broken.up.sql":          {Data: []byte("CREATE TABLE oops (;")},
	}
	useMigrations(t, broken)
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err == nil {
		t.Fatal("Migrate() with broken SQL succeeded, want error")
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 {
		t.Errorf("applied = %d, pending = %d, want 1 and 1", len(applied), len(pending))
	}
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := LoadMigrations(testMigrations, ".")
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("LoadMigrations() returned %d, want 2", len(migrations))
	}
	if migrations[0].Version != "20261001_100000" || migrations[1].Version != "20261002_100000" {
		t.Errorf("versions = %s, %s, want ascending", migrations[0].Version, migrations[1].Version)
	}
	if migrations[0].DownSQL == "" {
		t.Error("DownSQL not loaded")
	}

	missing, err := LoadMigrations(testMigrations, "nope")
	if err != nil || len(missing) != 0 {
		t.Errorf("LoadMigrations(missing dir) = %v, %v, want empty, nil", missing, err)
	}
}

func TestPending(t *testing.T) {
	migrations := []Migration{{Version: "1"}, {Version: "2"}, {Version: "3"}}
	applied := []MigrationRecord{{Version: "2"}}

	got := Pending(migrations, applied)
	if len(got) != 2 || got[0].Version != "1" || got[1].Version != "3" {
		t.Errorf("Pending() = %+v, want versions 1 and 3", got)
	}
}

// TestParseMigrationFilename verifies filename parsing.
func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantUp      bool
		wantOk      bool
	}{
		{"20261017_090000_equipment_states.up.sql", "20261017_090000", "equipment_states", true, true},
		{"20261017_090000_equipment_states.down.sql", "20261017_090000", "equipment_states", false, true},
		{"20261020_080000_add_source_to_states.up.sql", "20261020_080000", "add_source_to_states", true, true},
		{"readme.txt", "", "", false, false},
		{"20261017_090000_equipment_states.sql", "", "", false, false},
		{"invalid.up.sql", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, up, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion || name != tt.wantName || up != tt.wantUp {
				t.Errorf("parseMigrationFilename(%q) = %q, %q, %v, want %q, %q, %v",
					tt.filename, version, name, up, tt.wantVersion, tt.wantName, tt.wantUp)
			}
		})
	}
}
