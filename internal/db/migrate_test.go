package db

import (
	"testing"
)

func newMigratedDB(t *testing.T) *DB {
	t.Helper()

	database, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	m := NewMigrator(database.DB)
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := m.Up(); err != nil {
		t.Fatalf("Up failed: %v", err)
	}
	return database
}

// TestMigrateUp tests that all migrations apply on a fresh database.
func TestMigrateUp(t *testing.T) {
	database := newMigratedDB(t)

	m := NewMigrator(database.DB)
	version, err := m.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != len(schemaMigrations) {
		t.Errorf("Expected version %d, got %d", len(schemaMigrations), version)
	}

	for _, table := range []string{"students", "attendance", "merit_points", "notes", "sync_queue", "classes", "schools", "kv_store"} {
		var count int
		err := database.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if count != 1 {
			t.Errorf("Expected table %s to exist", table)
		}
	}
}

// TestMigrateUpIsIdempotent tests that a second Up applies nothing.
func TestMigrateUpIsIdempotent(t *testing.T) {
	database := newMigratedDB(t)

	m := NewMigrator(database.DB)
	if err := m.Up(); err != nil {
		t.Fatalf("Second Up failed: %v", err)
	}

	applied, err := m.GetAppliedMigrations()
	if err != nil {
		t.Fatalf("GetAppliedMigrations failed: %v", err)
	}
	if len(applied) != len(schemaMigrations) {
		t.Errorf("Expected %d applied migrations, got %d", len(schemaMigrations), len(applied))
	}
	for _, mig := range applied {
		if len(mig.Checksum) != 64 {
			t.Errorf("Expected 64-char checksum for V%d, got %q", mig.Version, mig.Checksum)
		}
	}
}

// TestMigrateDown tests rolling back the last migration.
func TestMigrateDown(t *testing.T) {
	database := newMigratedDB(t)

	m := NewMigrator(database.DB)
	if err := m.Down(); err != nil {
		t.Fatalf("Down failed: %v", err)
	}

	version, err := m.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != len(schemaMigrations)-1 {
		t.Errorf("Expected version %d after rollback, got %d", len(schemaMigrations)-1, version)
	}

	var count int
	err = database.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='kv_store'").Scan(&count)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if count != 0 {
		t.Error("Expected kv_store table to be dropped")
	}
}

// TestMigrateDownOnEmpty tests that rollback without applied migrations fails.
func TestMigrateDownOnEmpty(t *testing.T) {
	database, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer database.Close()

	m := NewMigrator(database.DB)
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := m.Down(); err == nil {
		t.Error("Expected error rolling back with no applied migrations")
	}
}
