package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ndewijer/brokerage-sync/internal/database"
)

// syncTables lists the tables a sync writes to, children first so deletes
// respect foreign keys. The seeded lookup tables are not included.
var syncTables = []string{
	"dividends",
	"activities",
	"account_snapshots",
	"positions",
	"securities",
	"accounts",
	"sync_runs",
}

// SetupTestDB creates a migrated SQLite database in the test's temp dir.
// The database is closed automatically when the test completes.
//
// Example usage:
//
//	func TestSomething(t *testing.T) {
//	    db := testutil.SetupTestDB(t)
//	    // db is ready to use with schema created
//	}
func SetupTestDB(t *testing.T) *database.DB {
	t.Helper()

	// A file keeps the schema alive if database/sql replaces the connection.
	db, err := database.Open(filepath.Join(t.TempDir(), "brokersync_test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	if _, err := database.Migrate(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// CleanDatabase removes all synced data while keeping the schema and the
// seeded lookup tables.
//
// Example usage:
//
//	func TestMultipleThings(t *testing.T) {
//	    db := testutil.SetupTestDB(t)
//
//	    t.Run("First test", func(t *testing.T) {
//	        defer testutil.CleanDatabase(t, db)
//	        // test code
//	    })
//	}
func CleanDatabase(t *testing.T, db *database.DB) {
	t.Helper()

	for _, table := range syncTables {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("Failed to clean table %s: %v", table, err)
		}
	}
}

// CountRows returns the number of rows in a table.
//
// Example usage:
//
//	count := testutil.CountRows(t, db, "positions")
func CountRows(t *testing.T, db *database.DB, table string) int {
	t.Helper()

	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if err := db.QueryRow(query).Scan(&count); err != nil {
		t.Fatalf("Failed to count rows in %s: %v", table, err)
	}
	return count
}

// AssertRowCount fails the test if a table does not hold expected rows.
//
// Example usage:
//
//	testutil.AssertRowCount(t, db, "accounts", 2)
func AssertRowCount(t *testing.T, db *database.DB, table string, expected int) {
	t.Helper()

	if actual := CountRows(t, db, table); actual != expected {
		t.Errorf("Expected %d rows in %s, got %d", expected, table, actual)
	}
}
