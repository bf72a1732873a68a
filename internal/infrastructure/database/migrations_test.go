package database

import (
	"context"
	"embed"
	"testing"
)

//go:embed testdata/*.sql
var testMigrationsFS embed.FS

// useTestMigrations points the package at the testdata fixtures and
// restores the registered filesystem when the test finishes.
func useTestMigrations(t *testing.T) {
	t.Helper()

	origFS := MigrationsFS
	origDir := MigrationsDir
	MigrationsFS = testMigrationsFS
	MigrationsDir = "testdata"

	t.Cleanup(func() {
		MigrationsFS = origFS
		MigrationsDir = origDir
	})
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()

	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("checking for table %s: %v", name, err)
	}
	return count > 0
}

func TestMigrate(t *testing.T) {
	useTestMigrations(t)

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	if !tableExists(t, db, "test_entries") {
		t.Error("expected test_entries table after migration")
	}

	var version string
	err := db.QueryRowContext(ctx, "SELECT version FROM schema_migrations").Scan(&version)
	if err != nil {
		t.Fatalf("reading migration record: %v", err)
	}
	if version != "20260118_120000" {
		t.Errorf("recorded version = %q, want %q", version, "20260118_120000")
	}

	// A second run has nothing to do and must not error.
	if err := db.Migrate(ctx); err != nil {
		t.Errorf("re-running Migrate failed: %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	useTestMigrations(t)

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}

	if tableExists(t, db, "test_entries") {
		t.Error("expected test_entries table to be dropped")
	}

	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	if err != nil {
		t.Fatalf("counting migration records: %v", err)
	}
	if count != 0 {
		t.Errorf("schema_migrations has %d records after rollback, want 0", count)
	}

	// Rolling back with nothing applied is a no-op.
	if err := db.MigrateDown(ctx); err != nil {
		t.Errorf("MigrateDown on empty schema failed: %v", err)
	}
}

func TestMigrateNoFilesystem(t *testing.T) {
	origFS := MigrationsFS
	origDir := MigrationsDir
	MigrationsFS = embed.FS{}
	MigrationsDir = "migrations"
	t.Cleanup(func() {
		MigrationsFS = origFS
		MigrationsDir = origDir
	})

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	// No registered filesystem means nothing to apply, not an error.
	if err := db.Migrate(context.Background()); err != nil {
		t.Errorf("Migrate with no filesystem failed: %v", err)
	}
}

func TestGetMigrationStatus(t *testing.T) {
	useTestMigrations(t)

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if err := db.createMigrationsTable(ctx); err != nil {
		t.Fatalf("creating migrations table: %v", err)
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("applied = %d before migrating, want 0", len(applied))
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d before migrating, want 1", len(pending))
	}
	if pending[0].Name != "create_test_entries" {
		t.Errorf("pending migration name = %q, want %q", pending[0].Name, "create_test_entries")
	}

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	applied, pending, err = db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if len(applied) != 1 {
		t.Errorf("applied = %d after migrating, want 1", len(applied))
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d after migrating, want 0", len(pending))
	}
}

func TestParseFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantUp      bool
		wantOK      bool
	}{
		{"20260112_090000_create_door_events.up.sql", "20260112_090000", true, true},
		{"20260112_090000_create_door_events.down.sql", "20260112_090000", false, true},
		{"20260118_120000_add_index.up.sql", "20260118_120000", true, true},
		{"README.md", "", false, false},
		{"notes.sql", "", false, false},
		{"20260112_create.up.sql", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, up, ok := parseFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("parseFilename(%q) ok = %v, want %v", tt.filename, ok, tt.wantOK)
			}
			if !tt.wantOK {
				return
			}
			if version != tt.wantVersion {
				t.Errorf("version = %q, want %q", version, tt.wantVersion)
			}
			if up != tt.wantUp {
				t.Errorf("up = %v, want %v", up, tt.wantUp)
			}
		})
	}
}

func TestMigrationName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"20260112_090000_create_door_events.up.sql", "create_door_events"},
		{"20260118_120000_create_test_entries.down.sql", "create_test_entries"},
		{"short.sql", "short"},
	}

	for _, tt := range tests {
		if got := migrationName(tt.filename); got != tt.want {
			t.Errorf("migrationName(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}
