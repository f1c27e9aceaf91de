// Package brokerage holds the capability the sync engine consumes from the
// external data source: typed fetch operations returning raw records, plus the
// HTTP client and session handling that produce it.
package brokerage

import "context"

// RawRecord is one heterogeneous record as decoded from the brokerage.
// Optional fields may be missing, null, a bare number or an
// {amount, currency} object. Only the normalize package reads it.
type RawRecord map[string]any

// DefaultHistoryRange is the valuation history window requested per account.
const DefaultHistoryRange = "1y"

// Source is the authenticated capability the sync engine fetches from.
// Implementations must honour ctx cancellation and deadlines.
type Source interface {
	ListAccounts(ctx context.Context) ([]RawRecord, error)
	ListPositions(ctx context.Context, accountID string) ([]RawRecord, error)
	ListHistoricalValuations(ctx context.Context, accountID, rangeSpec string) ([]RawRecord, error)
	ListActivities(ctx context.Context, accountID string) ([]RawRecord, error)
}

// SecuritySource is implemented by sources that can describe a security.
// It is used by the enrichment path only.
type SecuritySource interface {
	GetSecurity(ctx context.Context, securityID string) (RawRecord, error)
}

// Authenticator performs the session handshake and returns a Source.
type Authenticator interface {
	Authenticate(ctx context.Context) (Source, error)
}
