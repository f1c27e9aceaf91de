// Package normalize maps raw brokerage records onto the canonical model.
// Functions here are pure: no I/O and no errors other than ErrSkip. Malformed
// field values fall back to defaults instead of failing the record.
package normalize

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/brokerage-sync/internal/brokerage"
	"github.com/ndewijer/brokerage-sync/internal/model"
)

// ErrSkip marks a record that lacks its identifying key. Callers count it as
// skipped, never as a failure.
var ErrSkip = errors.New("record skipped")

// DefaultCurrency applies when neither the record nor its account carries one.
const DefaultCurrency = "CAD"

const dateLayout = "2006-01-02"

// Defaults are the fallbacks applied while normalizing.
type Defaults struct {
	Currency string
	Now      func() time.Time
}

func (d Defaults) currency() string {
	if d.Currency == "" {
		return DefaultCurrency
	}
	return d.Currency
}

func (d Defaults) now() time.Time {
	if d.Now == nil {
		return time.Now().UTC()
	}
	return d.Now().UTC()
}

// Account normalizes an account record.
func Account(raw brokerage.RawRecord, d Defaults) (model.Account, error) {
	id, ok := accountIDRule.FirstString(raw)
	if !ok {
		return model.Account{}, fmt.Errorf("%w: account without id", ErrSkip)
	}

	accountType := model.AccountTypeUnknown
	if code, ok := accountTypeRule.FirstString(raw); ok {
		accountType = AccountType(code)
	}

	status := model.DefaultAccountStatus
	if s, ok := accountStatusRule.FirstString(raw); ok {
		status = s
	}

	return model.Account{
		ID:               id,
		Type:             accountType,
		Nickname:         accountNicknameRule.optionalString(raw),
		Currency:         currencyOf(raw, d.currency()),
		Status:           status,
		NetLiquidation:   moneyOf(accountBalanceRule, raw),
		BuyingPower:      moneyOf(accountBuyingRule, raw),
		TotalDeposits:    moneyOf(depositsRule, raw),
		TotalWithdrawals: moneyOf(withdrawalsRule, raw),
		UpdatedAt:        d.now(),
	}, nil
}

// Position normalizes a holding of account. Positions are never skipped: a
// record without any symbol is stored under model.UnknownSymbol.
func Position(raw brokerage.RawRecord, account model.Account, d Defaults) model.Position {
	symbol, ok := positionSymbolRule.FirstString(raw)
	if !ok {
		symbol = model.UnknownSymbol
	}

	name, ok := positionNameRule.FirstString(raw)
	if !ok {
		name = symbol
	}

	fallback := account.Currency
	if fallback == "" {
		fallback = d.currency()
	}

	p := model.Position{
		AccountID:   account.ID,
		SecurityID:  positionSecurityIDRule.optionalString(raw),
		Symbol:      symbol,
		Name:        name,
		Quantity:    moneyOf(quantityRule, raw),
		BookValue:   moneyOf(bookValueRule, raw),
		MarketValue: moneyOf(marketValueRule, raw),
		Currency:    currencyOf(raw, fallback),
		UpdatedAt:   d.now(),
	}
	p.Recompute()
	return p
}

// Snapshot normalizes one valuation point. Records without a parseable date
// are skipped.
func Snapshot(raw brokerage.RawRecord, accountID string) (model.AccountSnapshot, error) {
	s, ok := snapshotDateRule.FirstString(raw)
	if !ok {
		return model.AccountSnapshot{}, fmt.Errorf("%w: snapshot without date", ErrSkip)
	}
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	date, err := time.Parse(dateLayout, s)
	if err != nil {
		return model.AccountSnapshot{}, fmt.Errorf("%w: snapshot date %q", ErrSkip, s)
	}

	return model.AccountSnapshot{
		AccountID:      accountID,
		Date:           date,
		NetLiquidation: moneyOf(snapshotValueRule, raw),
		Deposits:       moneyOf(depositsRule, raw),
		Withdrawals:    moneyOf(withdrawalsRule, raw),
		Earnings:       moneyOf(snapshotEarningsRule, raw),
	}, nil
}

// Activity normalizes an activity of account. Records without an id are
// skipped. A missing or short timestamp defaults to the ingestion time.
func Activity(raw brokerage.RawRecord, account model.Account, d Defaults) (model.Activity, error) {
	id, ok := activityIDRule.FirstString(raw)
	if !ok {
		return model.Activity{}, fmt.Errorf("%w: activity without id", ErrSkip)
	}

	activityType := model.ActivityUnknown
	if code, ok := activityTypeRule.FirstString(raw); ok {
		activityType = ActivityType(code)
	}

	fallback := account.Currency
	if fallback == "" {
		fallback = d.currency()
	}

	amountRaw, _ := activityAmountRule.First(raw)
	priceRaw, _ := activityPriceRule.First(raw)
	quantityRaw, _ := quantityRule.First(raw)

	return model.Activity{
		ID:          id,
		AccountID:   account.ID,
		Type:        activityType,
		Symbol:      activitySymbolRule.optionalString(raw),
		Description: activityDescriptionRule.optionalString(raw),
		Quantity:    OptionalMoney(quantityRaw),
		Price:       OptionalMoney(priceRaw),
		Amount:      Money(amountRaw, decimal.Zero),
		Currency:    Currency(amountRaw, fallback),
		OccurredAt:  occurredAt(raw, d),
	}, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func occurredAt(raw brokerage.RawRecord, d Defaults) time.Time {
	s, ok := activityOccurredRule.FirstString(raw)
	if !ok || len(s) < len(dateLayout) {
		return d.now()
	}
	// The source offset is kept so the payment date is the day as written.
	// Storage converts to UTC.
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	if t, err := time.Parse(dateLayout, s[:len(dateLayout)]); err == nil {
		return t
	}
	return d.now()
}

// DividendFromActivity derives a dividend from a dividend activity with a
// symbol and a non-zero amount. The amount is stored unsigned and the payment
// date is the calendar date of the activity.
func DividendFromActivity(a model.Activity) (model.Dividend, bool) {
	if a.Type != model.ActivityDividend || a.Symbol == nil || *a.Symbol == "" || a.Amount.IsZero() {
		return model.Dividend{}, false
	}

	return model.Dividend{
		AccountID:   a.AccountID,
		Symbol:      *a.Symbol,
		Amount:      a.Amount.Abs(),
		Currency:    a.Currency,
		PaymentDate: DateOf(a.OccurredAt),
	}, true
}

// Security normalizes a security description. Records without an id are
// skipped.
func Security(raw brokerage.RawRecord, d Defaults) (model.Security, error) {
	id, ok := securityIDRule.FirstString(raw)
	if !ok {
		return model.Security{}, fmt.Errorf("%w: security without id", ErrSkip)
	}

	symbol, ok := securitySymbolRule.FirstString(raw)
	if !ok {
		symbol = model.UnknownSymbol
	}
	name, ok := securityNameRule.FirstString(raw)
	if !ok {
		name = symbol
	}

	currencyRaw, _ := FieldRule{"$.stock.currency", "$.currency"}.First(raw)
	priceRaw, _ := securityPriceRule.First(raw)
	yieldRaw, _ := securityYieldRule.First(raw)
	merRaw, _ := securityMERRule.First(raw)
	peRaw, _ := securityPERule.First(raw)
	capRaw, _ := securityCapRule.First(raw)

	sec := model.Security{
		ID:            id,
		Symbol:        strings.ToUpper(symbol),
		Name:          name,
		Type:          securityTypeRule.optionalString(raw),
		Exchange:      securityExchangeRule.optionalString(raw),
		Currency:      Currency(currencyRaw, d.currency()),
		DividendYield: OptionalMoney(yieldRaw),
		MER:           OptionalMoney(merRaw),
		PERatio:       OptionalMoney(peRaw),
		MarketCap:     OptionalMoney(capRaw),
		CurrentPrice:  OptionalMoney(priceRaw),
		UpdatedAt:     d.now(),
	}
	if sec.CurrentPrice.Valid {
		at := d.now()
		sec.PriceUpdatedAt = &at
	}
	return sec, nil
}

// DateOf returns the calendar date of t in t's own location, as UTC
// midnight. 2024-03-15T22:00:00-05:00 is 2024-03-15.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func moneyOf(rule FieldRule, raw brokerage.RawRecord) decimal.Decimal {
	v, _ := rule.First(raw)
	return Money(v, decimal.Zero)
}

func currencyOf(raw brokerage.RawRecord, fallback string) string {
	v, _ := currencyRule.First(raw)
	return Currency(v, fallback)
}
