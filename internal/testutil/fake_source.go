package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/ndewijer/brokerage-sync/internal/apperrors"
	"github.com/ndewijer/brokerage-sync/internal/brokerage"
)

// FakeSource is an in-memory brokerage.Source and brokerage.SecuritySource.
// Records are returned as configured; errors and panics can be injected per
// account and per call kind.
//
// Example usage:
//
//	src := testutil.NewFakeSource().
//	    WithAccounts(testutil.AccountRecord("acc-1", "TFSA")).
//	    WithPositions("acc-1", testutil.PositionRecord("XEQT", "100", "120")).
//	    WithPositionsError("acc-2", errors.New("boom"))
type FakeSource struct {
	mu sync.Mutex

	Accounts   []brokerage.RawRecord
	Positions  map[string][]brokerage.RawRecord
	History    map[string][]brokerage.RawRecord
	Activities map[string][]brokerage.RawRecord
	Securities map[string]brokerage.RawRecord

	AccountsError   error
	PositionsErrors map[string]error
	HistoryErrors   map[string]error
	ActivityErrors  map[string]error
	SecurityErrors  map[string]error
	PanicOn         map[string]bool

	// Calls counts invocations per method name.
	Calls map[string]int
	// Ranges records the range passed to ListHistoricalValuations per account.
	Ranges map[string]string
}

// NewFakeSource creates an empty FakeSource.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		Positions:       map[string][]brokerage.RawRecord{},
		History:         map[string][]brokerage.RawRecord{},
		Activities:      map[string][]brokerage.RawRecord{},
		Securities:      map[string]brokerage.RawRecord{},
		PositionsErrors: map[string]error{},
		HistoryErrors:   map[string]error{},
		ActivityErrors:  map[string]error{},
		SecurityErrors:  map[string]error{},
		PanicOn:         map[string]bool{},
		Calls:           map[string]int{},
		Ranges:          map[string]string{},
	}
}

// WithAccounts sets the account records.
func (f *FakeSource) WithAccounts(records ...brokerage.RawRecord) *FakeSource {
	f.Accounts = records
	return f
}

// WithAccountsError makes ListAccounts fail.
func (f *FakeSource) WithAccountsError(err error) *FakeSource {
	f.AccountsError = err
	return f
}

// WithPositions sets the position records of an account.
func (f *FakeSource) WithPositions(accountID string, records ...brokerage.RawRecord) *FakeSource {
	f.Positions[accountID] = records
	return f
}

// WithPositionsError makes ListPositions fail for an account.
func (f *FakeSource) WithPositionsError(accountID string, err error) *FakeSource {
	f.PositionsErrors[accountID] = err
	return f
}

// WithHistory sets the valuation history of an account.
func (f *FakeSource) WithHistory(accountID string, records ...brokerage.RawRecord) *FakeSource {
	f.History[accountID] = records
	return f
}

// WithHistoryError makes ListHistoricalValuations fail for an account.
func (f *FakeSource) WithHistoryError(accountID string, err error) *FakeSource {
	f.HistoryErrors[accountID] = err
	return f
}

// WithActivities sets the activity records of an account.
func (f *FakeSource) WithActivities(accountID string, records ...brokerage.RawRecord) *FakeSource {
	f.Activities[accountID] = records
	return f
}

// WithActivitiesError makes ListActivities fail for an account.
func (f *FakeSource) WithActivitiesError(accountID string, err error) *FakeSource {
	f.ActivityErrors[accountID] = err
	return f
}

// WithSecurity sets the description returned for a security id.
func (f *FakeSource) WithSecurity(id string, record brokerage.RawRecord) *FakeSource {
	f.Securities[id] = record
	return f
}

// WithSecurityError makes GetSecurity fail for a security id.
func (f *FakeSource) WithSecurityError(id string, err error) *FakeSource {
	f.SecurityErrors[id] = err
	return f
}

// WithPanic makes the named method panic for an account, e.g.
// WithPanic("ListPositions", "acc-1").
func (f *FakeSource) WithPanic(method, accountID string) *FakeSource {
	f.PanicOn[method+":"+accountID] = true
	return f
}

// CallCount returns how often a method was called.
func (f *FakeSource) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[method]
}

func (f *FakeSource) enter(method, accountID string) {
	f.mu.Lock()
	f.Calls[method]++
	shouldPanic := f.PanicOn[method+":"+accountID]
	f.mu.Unlock()

	if shouldPanic {
		panic(fmt.Sprintf("fake %s panic for %s", method, accountID))
	}
}

// ListAccounts implements brokerage.Source.
func (f *FakeSource) ListAccounts(ctx context.Context) ([]brokerage.RawRecord, error) {
	f.enter("ListAccounts", "")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.AccountsError != nil {
		return nil, f.AccountsError
	}
	return f.Accounts, nil
}

// ListPositions implements brokerage.Source.
func (f *FakeSource) ListPositions(ctx context.Context, accountID string) ([]brokerage.RawRecord, error) {
	f.enter("ListPositions", accountID)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.PositionsErrors[accountID]; err != nil {
		return nil, err
	}
	return f.Positions[accountID], nil
}

// ListHistoricalValuations implements brokerage.Source.
func (f *FakeSource) ListHistoricalValuations(ctx context.Context, accountID, rangeSpec string) ([]brokerage.RawRecord, error) {
	f.enter("ListHistoricalValuations", accountID)
	f.mu.Lock()
	f.Ranges[accountID] = rangeSpec
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.HistoryErrors[accountID]; err != nil {
		return nil, err
	}
	return f.History[accountID], nil
}

// ListActivities implements brokerage.Source.
func (f *FakeSource) ListActivities(ctx context.Context, accountID string) ([]brokerage.RawRecord, error) {
	f.enter("ListActivities", accountID)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.ActivityErrors[accountID]; err != nil {
		return nil, err
	}
	return f.Activities[accountID], nil
}

// GetSecurity implements brokerage.SecuritySource.
func (f *FakeSource) GetSecurity(ctx context.Context, id string) (brokerage.RawRecord, error) {
	f.enter("GetSecurity", id)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.SecurityErrors[id]; err != nil {
		return nil, err
	}
	record, ok := f.Securities[id]
	if !ok {
		return nil, fmt.Errorf("security %s: not found", id)
	}
	return record, nil
}

// FakeAuthenticator hands out a fixed Source, or fails.
type FakeAuthenticator struct {
	Source brokerage.Source
	Err    error
	mu     sync.Mutex
	calls  int
}

// NewFakeAuthenticator creates an authenticator that always returns src.
func NewFakeAuthenticator(src brokerage.Source) *FakeAuthenticator {
	return &FakeAuthenticator{Source: src}
}

// WithError makes Authenticate fail. Errors that do not already wrap
// apperrors.ErrAuthentication are returned as-is.
func (a *FakeAuthenticator) WithError(err error) *FakeAuthenticator {
	a.Err = err
	return a
}

// Rejected makes Authenticate fail the way a bad password does.
func (a *FakeAuthenticator) Rejected() *FakeAuthenticator {
	a.Err = fmt.Errorf("%w: invalid credentials", apperrors.ErrAuthentication)
	return a
}

// Calls returns how often Authenticate was called.
func (a *FakeAuthenticator) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// Authenticate implements brokerage.Authenticator.
func (a *FakeAuthenticator) Authenticate(_ context.Context) (brokerage.Source, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()

	if a.Err != nil {
		return nil, a.Err
	}
	return a.Source, nil
}
