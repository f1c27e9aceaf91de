package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ndewijer/brokerage-sync/internal/database"
)

// Store bundles the repositories over one database.
type Store struct {
	db         *database.DB
	Accounts   *AccountRepository
	Positions  *PositionRepository
	Snapshots  *SnapshotRepository
	Activities *ActivityRepository
	Dividends  *DividendRepository
	Securities *SecurityRepository
	Runs       *SyncRunRepository
}

// NewStore creates a Store with repositories bound to db.
func NewStore(db *database.DB) *Store {
	return &Store{
		db:         db,
		Accounts:   NewAccountRepository(db),
		Positions:  NewPositionRepository(db),
		Snapshots:  NewSnapshotRepository(db),
		Activities: NewActivityRepository(db),
		Dividends:  NewDividendRepository(db),
		Securities: NewSecurityRepository(db),
		Runs:       NewSyncRunRepository(db),
	}
}

// DB returns the underlying database.
func (s *Store) DB() *database.DB {
	return s.db
}

// WriteUnit is a set of writes committed or rolled back together.
type WriteUnit struct {
	tx         *sql.Tx
	Accounts   *AccountRepository
	Positions  *PositionRepository
	Snapshots  *SnapshotRepository
	Activities *ActivityRepository
	Dividends  *DividendRepository
	Securities *SecurityRepository
}

// Begin starts a write unit. Callers must Commit or Rollback it.
func (s *Store) Begin(ctx context.Context) (*WriteUnit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &WriteUnit{
		tx:         tx,
		Accounts:   s.Accounts.WithTx(tx),
		Positions:  s.Positions.WithTx(tx),
		Snapshots:  s.Snapshots.WithTx(tx),
		Activities: s.Activities.WithTx(tx),
		Dividends:  s.Dividends.WithTx(tx),
		Securities: s.Securities.WithTx(tx),
	}, nil
}

// Commit makes the unit's writes durable.
func (u *WriteUnit) Commit() error {
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback discards the unit's writes. Rolling back a finished unit is a no-op.
func (u *WriteUnit) Rollback() error {
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}
