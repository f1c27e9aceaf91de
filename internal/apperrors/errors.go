package apperrors

import "errors"

// Startup errors are fatal before a sync run is created.
var (
	// ErrMissingConfig indicates that a required configuration value is not set.
	ErrMissingConfig = errors.New("missing required configuration")

	// ErrAuthentication indicates that the brokerage rejected the login.
	ErrAuthentication = errors.New("authentication failed")

	// ErrSecondFactorRequired indicates that the brokerage asked for a one-time
	// code and none was supplied.
	ErrSecondFactorRequired = errors.New("second factor required")

	// ErrUnsupportedDatabase indicates a DATABASE_URL scheme no driver is registered for.
	ErrUnsupportedDatabase = errors.New("unsupported database url")
)

// Entity errors represent missing rows.
var (
	// ErrSyncRunNotFound indicates that no sync run exists with the given ID,
	// or that it already reached a terminal state when an update was attempted.
	ErrSyncRunNotFound = errors.New("sync run not found")

	// ErrSecurityNotFound indicates that no security exists with the given ID.
	ErrSecurityNotFound = errors.New("security not found")

	// ErrAccountNotFound indicates that no account exists with the given ID.
	ErrAccountNotFound = errors.New("account not found")
)

// Operation errors.
var (
	// ErrRunInProgress indicates that this process is already running a sync.
	ErrRunInProgress = errors.New("sync run already in progress")

	// ErrBrokerageUnavailable indicates the brokerage kept answering with a
	// retryable status until the attempt budget ran out.
	ErrBrokerageUnavailable = errors.New("brokerage unavailable")

	// ErrQuoteUnavailable indicates that no quote could be retrieved for a symbol.
	ErrQuoteUnavailable = errors.New("quote unavailable")

	ErrInvalidLimit = errors.New("invalid limit")
)
