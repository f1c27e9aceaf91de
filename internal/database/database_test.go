package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/brokerage-sync/internal/apperrors"
	"github.com/ndewijer/brokerage-sync/internal/database"
)

func TestParseDSN(t *testing.T) {
	tests := []struct {
		name    string
		dsn     string
		dialect database.Dialect
		driver  string
		source  string
	}{
		{"postgres url", "postgres://u:p@localhost/db", database.Postgres, "pgx", "postgres://u:p@localhost/db"},
		{"postgresql url", "postgresql://localhost/db", database.Postgres, "pgx", "postgresql://localhost/db"},
		{"sqlite url", "sqlite:///tmp/x.db", database.SQLite, "sqlite", "/tmp/x.db"},
		{"plain path", "./data/sync.db", database.SQLite, "sqlite", "./data/sync.db"},
		{"file dsn", "file:sync.db?_pragma=busy_timeout(5000)", database.SQLite, "sqlite", "file:sync.db?_pragma=busy_timeout(5000)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dialect, driver, source, err := database.ParseDSN(tt.dsn)
			require.NoError(t, err)
			assert.Equal(t, tt.dialect, dialect)
			assert.Equal(t, tt.driver, driver)
			assert.Equal(t, tt.source, source)
		})
	}

	t.Run("unsupported scheme", func(t *testing.T) {
		_, _, _, err := database.ParseDSN("mysql://localhost/db")
		assert.ErrorIs(t, err, apperrors.ErrUnsupportedDatabase)
	})
}

func TestRebind(t *testing.T) {
	q := "INSERT INTO t (a, b, c) VALUES (?, ?, '?') ON CONFLICT (a) DO UPDATE SET b = ?"

	assert.Equal(t, q, database.Rebind(database.SQLite, q))
	assert.Equal(t,
		"INSERT INTO t (a, b, c) VALUES ($1, $2, '?') ON CONFLICT (a) DO UPDATE SET b = $3",
		database.Rebind(database.Postgres, q))
}

// TestMigrate applies the embedded SQLite migrations to a fresh file database.
//
// WHY: every subcommand relies on Migrate bringing an empty database to the
// latest schema, and a second call must be a no-op.
func TestMigrate(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	applied, err := database.Migrate(ctx, db)
	require.NoError(t, err)
	assert.Positive(t, applied)

	status, err := database.Status(ctx, db)
	require.NoError(t, err)
	assert.False(t, status.Pending())
	assert.Equal(t, status.Latest, status.Current)

	again, err := database.Migrate(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, again)

	for _, table := range []string{"accounts", "positions", "account_snapshots", "activities", "dividends", "securities", "sync_runs"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, table)
	}
}

func TestOpen_Empty(t *testing.T) {
	_, err := database.Open("  ")
	assert.Error(t, err)
}
