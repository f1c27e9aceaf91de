package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver
	_ "modernc.org/sqlite"             // SQLite driver

	"github.com/ndewijer/brokerage-sync/internal/apperrors"
)

// Dialect identifies the SQL flavour behind a DB.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// DB is a *sql.DB tagged with its dialect so repositories can rebind
// placeholders.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// ParseDSN maps a DATABASE_URL onto a dialect, driver name and driver source.
// postgres:// and postgresql:// URLs go to pgx; a plain path, a file: DSN or a
// sqlite:// URL (prefix stripped) go to SQLite. Other schemes are rejected.
func ParseDSN(dsn string) (Dialect, string, string, error) {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return Postgres, "pgx", dsn, nil
	case strings.HasPrefix(lower, "sqlite://"):
		return SQLite, "sqlite", dsn[len("sqlite://"):], nil
	case strings.Contains(lower, "://"):
		scheme := lower[:strings.Index(lower, "://")]
		return "", "", "", fmt.Errorf("%w: scheme %q", apperrors.ErrUnsupportedDatabase, scheme)
	default:
		return SQLite, "sqlite", dsn, nil
	}
}

// Open opens a connection to the database named by dsn
func Open(dsn string) (*DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("failed to open database: empty DSN")
	}

	dialect, driver, source, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	// Open database connection
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == SQLite {
		// One writer; also keeps :memory: databases on a single connection.
		db.SetMaxOpenConns(1)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if dialect == SQLite {
		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &DB{DB: db, Dialect: dialect}, nil
}

func applyPragmas(db *sql.DB) error {
	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return nil
}

// Rebind rewrites ? placeholders to $1..$n for Postgres. Question marks inside
// single-quoted literals are left alone.
func Rebind(dialect Dialect, query string) string {
	if dialect != Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// HealthCheck performs a simple health check on the database
func HealthCheck(ctx context.Context, db *sql.DB) error {
	return db.PingContext(ctx)
}
