package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/brokerage-sync/internal/database"
	"github.com/ndewijer/brokerage-sync/internal/model"
	"github.com/ndewijer/brokerage-sync/internal/repository"
)

// AccountBuilder provides a fluent interface for creating test accounts.
//
// Example usage:
//
//	// Simple creation with defaults
//	account := testutil.NewAccount().Build(t, db)
//
//	// Customized account
//	account := testutil.NewAccount().
//	    WithID("tfsa-1").
//	    WithType(model.AccountTypeTFSA).
//	    WithNickname("Retirement").
//	    Build(t, db)
type AccountBuilder struct {
	ID             string
	Type           model.AccountType
	Nickname       *string
	Currency       string
	Status         string
	NetLiquidation decimal.Decimal
}

// NewAccount creates an AccountBuilder with sensible defaults.
func NewAccount() *AccountBuilder {
	return &AccountBuilder{
		ID:             MakeAccountID("acc"),
		Type:           model.AccountTypeTFSA,
		Currency:       "CAD",
		Status:         model.DefaultAccountStatus,
		NetLiquidation: decimal.NewFromInt(1000),
	}
}

// WithID sets a custom ID.
func (b *AccountBuilder) WithID(id string) *AccountBuilder {
	b.ID = id
	return b
}

// WithType sets the account type.
func (b *AccountBuilder) WithType(t model.AccountType) *AccountBuilder {
	b.Type = t
	return b
}

// WithNickname sets a nickname.
func (b *AccountBuilder) WithNickname(name string) *AccountBuilder {
	b.Nickname = &name
	return b
}

// WithCurrency sets the account currency.
func (b *AccountBuilder) WithCurrency(currency string) *AccountBuilder {
	b.Currency = currency
	return b
}

// Model returns the account without persisting it.
func (b *AccountBuilder) Model() model.Account {
	return model.Account{
		ID:             b.ID,
		Type:           b.Type,
		Nickname:       b.Nickname,
		Currency:       b.Currency,
		Status:         b.Status,
		NetLiquidation: b.NetLiquidation,
		UpdatedAt:      time.Now().UTC(),
	}
}

// Build persists the account and returns it.
func (b *AccountBuilder) Build(t *testing.T, db *database.DB) model.Account {
	t.Helper()

	account := b.Model()
	if err := repository.NewAccountRepository(db).Upsert(context.Background(), account); err != nil {
		t.Fatalf("Failed to create test account: %v", err)
	}
	return account
}

// PositionBuilder provides a fluent interface for creating test positions.
//
// Example usage:
//
//	position := testutil.NewPosition(account.ID).
//	    WithSymbol("XEQT").
//	    WithValues("1000", "1250").
//	    Build(t, db)
type PositionBuilder struct {
	AccountID   string
	SecurityID  *string
	Symbol      string
	Name        string
	Quantity    decimal.Decimal
	BookValue   decimal.Decimal
	MarketValue decimal.Decimal
	Currency    string
}

// NewPosition creates a PositionBuilder for an existing account.
func NewPosition(accountID string) *PositionBuilder {
	symbol := MakeSymbol("TST")
	securityID := "sec-" + symbol
	return &PositionBuilder{
		AccountID:   accountID,
		SecurityID:  &securityID,
		Symbol:      symbol,
		Name:        symbol + " Holdings",
		Quantity:    decimal.NewFromInt(10),
		BookValue:   decimal.NewFromInt(100),
		MarketValue: decimal.NewFromInt(110),
		Currency:    "CAD",
	}
}

// WithSymbol sets the symbol; the security id follows it.
func (b *PositionBuilder) WithSymbol(symbol string) *PositionBuilder {
	b.Symbol = symbol
	b.Name = symbol + " Holdings"
	securityID := "sec-" + symbol
	b.SecurityID = &securityID
	return b
}

// WithSecurityID sets the security id. nil leaves the position unlinked.
func (b *PositionBuilder) WithSecurityID(id *string) *PositionBuilder {
	b.SecurityID = id
	return b
}

// WithValues sets book and market value.
func (b *PositionBuilder) WithValues(bookValue, marketValue string) *PositionBuilder {
	b.BookValue = decimal.RequireFromString(bookValue)
	b.MarketValue = decimal.RequireFromString(marketValue)
	return b
}

// Build persists the position and returns it with its assigned id.
func (b *PositionBuilder) Build(t *testing.T, db *database.DB) model.Position {
	t.Helper()

	p := model.Position{
		AccountID:   b.AccountID,
		SecurityID:  b.SecurityID,
		Symbol:      b.Symbol,
		Name:        b.Name,
		Quantity:    b.Quantity,
		BookValue:   b.BookValue,
		MarketValue: b.MarketValue,
		Currency:    b.Currency,
		UpdatedAt:   time.Now().UTC(),
	}
	p.Recompute()

	if err := repository.NewPositionRepository(db).Upsert(context.Background(), &p); err != nil {
		t.Fatalf("Failed to create test position: %v", err)
	}
	return p
}

// DividendBuilder provides a fluent interface for creating test dividends.
//
// Example usage:
//
//	testutil.NewDividend(account.ID, "XEQT").
//	    WithPaymentDate(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)).
//	    WithAmount("12.34").
//	    Build(t, db)
type DividendBuilder struct {
	AccountID   string
	Symbol      string
	Amount      decimal.Decimal
	Currency    string
	PaymentDate time.Time
	Frequency   *model.DividendFrequency
}

// NewDividend creates a DividendBuilder paying 10 CAD on 2024-01-01.
func NewDividend(accountID, symbol string) *DividendBuilder {
	return &DividendBuilder{
		AccountID:   accountID,
		Symbol:      symbol,
		Amount:      decimal.NewFromInt(10),
		Currency:    "CAD",
		PaymentDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// WithAmount sets the amount.
func (b *DividendBuilder) WithAmount(amount string) *DividendBuilder {
	b.Amount = decimal.RequireFromString(amount)
	return b
}

// WithPaymentDate sets the payment date.
func (b *DividendBuilder) WithPaymentDate(date time.Time) *DividendBuilder {
	b.PaymentDate = date
	return b
}

// WithFrequency sets a frequency.
func (b *DividendBuilder) WithFrequency(f model.DividendFrequency) *DividendBuilder {
	b.Frequency = &f
	return b
}

// Build persists the dividend and returns it with its assigned id.
func (b *DividendBuilder) Build(t *testing.T, db *database.DB) model.Dividend {
	t.Helper()

	d := model.Dividend{
		AccountID:   b.AccountID,
		Symbol:      b.Symbol,
		Amount:      b.Amount,
		Currency:    b.Currency,
		PaymentDate: b.PaymentDate,
		Frequency:   b.Frequency,
	}
	if err := repository.NewDividendRepository(db).Upsert(context.Background(), &d); err != nil {
		t.Fatalf("Failed to create test dividend: %v", err)
	}
	return d
}

// SyncRunBuilder creates finished runs for history tests.
//
// Example usage:
//
//	run := testutil.NewSyncRun().
//	    StartedAt(time.Now().Add(-time.Hour)).
//	    Failed("login failed").
//	    Build(t, db)
type SyncRunBuilder struct {
	startedAt time.Time
	status    model.SyncStatus
	counts    model.SyncCounts
	err       *string
}

// NewSyncRun creates a SyncRunBuilder for a successful run started now.
func NewSyncRun() *SyncRunBuilder {
	return &SyncRunBuilder{
		startedAt: time.Now().UTC(),
		status:    model.SyncSuccess,
	}
}

// StartedAt sets the start time.
func (b *SyncRunBuilder) StartedAt(t time.Time) *SyncRunBuilder {
	b.startedAt = t.UTC()
	return b
}

// WithCounts sets the row counts.
func (b *SyncRunBuilder) WithCounts(counts model.SyncCounts) *SyncRunBuilder {
	b.counts = counts
	return b
}

// Failed marks the run as an error run.
func (b *SyncRunBuilder) Failed(msg string) *SyncRunBuilder {
	b.status = model.SyncError
	b.err = &msg
	return b
}

// Running leaves the run unfinished.
func (b *SyncRunBuilder) Running() *SyncRunBuilder {
	b.status = model.SyncRunning
	return b
}

// Build persists the run, finishing it unless Running was called.
func (b *SyncRunBuilder) Build(t *testing.T, db *database.DB) model.SyncRun {
	t.Helper()

	ctx := context.Background()
	repo := repository.NewSyncRunRepository(db)

	run, err := repo.Create(ctx, b.startedAt)
	if err != nil {
		t.Fatalf("Failed to create test sync run: %v", err)
	}
	if b.status == model.SyncRunning {
		return run
	}

	completedAt := b.startedAt.Add(time.Minute)
	run.Status = b.status
	run.Counts = b.counts
	run.Error = b.err
	run.CompletedAt = &completedAt
	if err := repo.Finish(ctx, run); err != nil {
		t.Fatalf("Failed to finish test sync run: %v", err)
	}
	return run
}
