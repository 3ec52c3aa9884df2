package sqlite

import (
	"path/filepath"
	"testing"
)

func TestMigrationsApply(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "migrate.db")
	client := NewSQLiteClient(dbPath)
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopening the same file must be a no-op migration, not a failure.
	client = NewSQLiteClient(dbPath)
	if err := client.Close(); err != nil {
		t.Fatalf("close after reopen: %v", err)
	}
}
