package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ndewijer/brokerage-sync/internal/database"
)

// timestampLayout is fixed-width so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

const dateLayout = "2006-01-02"

// ParseTime parses a date string in "2006-01-02", RFC3339 or the SQLite
// CURRENT_TIMESTAMP format.
func ParseTime(str string) (time.Time, error) {
	for _, layout := range []string{dateLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, str); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse date: %q", str)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// base carries the connection and optional transaction shared by every
// repository.
type base struct {
	db *database.DB
	tx *sql.Tx
}

func (b base) withTx(tx *sql.Tx) base {
	return base{db: b.db, tx: tx}
}

// getQuerier returns the active transaction if one is set, otherwise the database connection.
func (b base) getQuerier() querier {
	if b.tx != nil {
		return b.tx
	}
	return b.db.DB
}

func (b base) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return b.getQuerier().ExecContext(ctx, database.Rebind(b.db.Dialect, query), args...)
}

func (b base) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return b.getQuerier().QueryContext(ctx, database.Rebind(b.db.Dialect, query), args...)
}

func (b base) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return b.getQuerier().QueryRowContext(ctx, database.Rebind(b.db.Dialect, query), args...)
}

// timeArg encodes a timestamp for the dialect: fixed-width UTC text for
// SQLite, a native value for Postgres.
func (b base) timeArg(t time.Time) any {
	if b.db.Dialect == database.Postgres {
		return t.UTC()
	}
	return t.UTC().Format(timestampLayout)
}

func (b base) nullTimeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return b.timeArg(*t)
}

func (b base) dateArg(t time.Time) any {
	if b.db.Dialect == database.Postgres {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return t.Format(dateLayout)
}

// timeValue scans a timestamp or date column stored either natively or as text.
type timeValue struct {
	Time  time.Time
	Valid bool
}

func (v *timeValue) Scan(src any) error {
	switch s := src.(type) {
	case nil:
		v.Time, v.Valid = time.Time{}, false
		return nil
	case time.Time:
		v.Time, v.Valid = s.UTC(), true
		return nil
	case string:
		return v.parse(s)
	case []byte:
		return v.parse(string(s))
	default:
		return fmt.Errorf("cannot scan %T into time", src)
	}
}

func (v *timeValue) parse(s string) error {
	t, err := ParseTime(s)
	if err != nil {
		return err
	}
	v.Time, v.Valid = t, true
	return nil
}

func (v timeValue) ptr() *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
