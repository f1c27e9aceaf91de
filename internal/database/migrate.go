package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// MigrationStatus reports where the schema stands.
type MigrationStatus struct {
	Current int64
	Latest  int64
}

// Pending reports whether Migrate would apply anything.
func (s MigrationStatus) Pending() bool {
	return s.Current < s.Latest
}

func newProvider(db *DB) (*goose.Provider, error) {
	gooseDialect := goose.DialectSQLite3
	if db.Dialect == Postgres {
		gooseDialect = goose.DialectPostgres
	}

	fsys, err := fs.Sub(migrationsFS, "migrations/"+string(db.Dialect))
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	provider, err := goose.NewProvider(gooseDialect, db.DB, fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return provider, nil
}

// Migrate applies every pending migration for the database's dialect and
// returns the number applied.
func Migrate(ctx context.Context, db *DB) (int, error) {
	provider, err := newProvider(db)
	if err != nil {
		return 0, err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return len(results), fmt.Errorf("failed to apply migrations: %w", err)
	}
	return len(results), nil
}

// Status returns the applied and latest available schema versions.
func Status(ctx context.Context, db *DB) (MigrationStatus, error) {
	provider, err := newProvider(db)
	if err != nil {
		return MigrationStatus{}, err
	}

	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("failed to read schema version: %w", err)
	}

	var latest int64
	for _, src := range provider.ListSources() {
		if src.Version > latest {
			latest = src.Version
		}
	}

	return MigrationStatus{Current: current, Latest: latest}, nil
}
