package testutil

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ndewijer/brokerage-sync/internal/brokerage"
	"github.com/ndewijer/brokerage-sync/internal/database"
	"github.com/ndewijer/brokerage-sync/internal/notify"
	"github.com/ndewijer/brokerage-sync/internal/repository"
	"github.com/ndewijer/brokerage-sync/internal/service"
	"github.com/ndewijer/brokerage-sync/internal/yahoo"
)

// TestLogger returns a logger that writes through t.Log.
func TestLogger(t *testing.T) zerolog.Logger {
	t.Helper()
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
}

func NewTestStore(t *testing.T, db *database.DB) *repository.Store {
	t.Helper()

	return repository.NewStore(db)
}

func NewTestSyncService(t *testing.T, db *database.DB) *service.SyncService {
	t.Helper()

	return NewTestSyncServiceWith(t, db, nil, service.SyncOptions{FetchConcurrency: 2})
}

// NewTestSyncServiceWith creates a SyncService with a custom publisher and options.
func NewTestSyncServiceWith(t *testing.T, db *database.DB, publisher notify.Publisher, opts service.SyncOptions) *service.SyncService {
	t.Helper()

	return service.NewSyncService(
		NewTestStore(t, db),
		publisher,
		opts,
		TestLogger(t),
	)
}

func NewTestEnrichmentService(t *testing.T, db *database.DB, descriptions brokerage.SecuritySource, quotes yahoo.Client) *service.EnrichmentService {
	t.Helper()

	return service.NewEnrichmentService(
		NewTestStore(t, db),
		descriptions,
		quotes,
		"CAD",
		TestLogger(t),
	)
}

func NewTestSystemService(t *testing.T, db *database.DB) *service.SystemService {
	t.Helper()

	return service.NewSystemService(db)
}

// MakeID generates a UUID string for use in tests.
//
// Example usage:
//
//	id := testutil.MakeID()
//	// Returns: "550e8400-e29b-41d4-a716-446655440000"
func MakeID() string {
	return uuid.New().String()
}

// MakeAccountID generates a brokerage-style account identifier.
//
// Example usage:
//
//	id := testutil.MakeAccountID("tfsa")
//	// Returns: "tfsa-1A2B3C4D"
func MakeAccountID(prefix string) string {
	if prefix == "" {
		prefix = "acc"
	}
	return prefix + "-" + randomAlphanumeric(8)
}

// MakeSymbol generates a stock ticker symbol for testing.
//
// Example usage:
//
//	symbol := testutil.MakeSymbol("XEQT")
//	// Returns: "XEQT1A2B"
func MakeSymbol(base string) string {
	if base == "" {
		base = "TEST"
	}
	return base + randomAlphanumeric(4)
}

// randomAlphanumeric generates a random alphanumeric string of specified length.
func randomAlphanumeric(length int) string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := range result {
		//nolint:gosec // G404: Using math/rand for test data generation is acceptable
		result[i] = charset[rand.Intn(len(charset))]
	}
	return string(result)
}
