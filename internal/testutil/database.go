package testutil

import (
	"testing"

	"blustash/internal/blustash"
	"blustash/internal/database"
)

// NewTestDatabase creates a new in-memory SQLite index with schema applied.
// The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T) blustash.Database {
	t.Helper()

	sqlDB, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if _, err := sqlDB.Exec(database.Schema); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	db := database.NewSQLiteIndexFromDB(sqlDB)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
