package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DividendFrequency is the payment cadence inferred from payment gaps.
type DividendFrequency string

const (
	FrequencyMonthly    DividendFrequency = "monthly"
	FrequencyQuarterly  DividendFrequency = "quarterly"
	FrequencySemiAnnual DividendFrequency = "semi-annual"
	FrequencyAnnual     DividendFrequency = "annual"
)

// Dividend is derived from a dividend activity, never fetched directly.
// Natural key: (AccountID, Symbol, PaymentDate). Frequency stays nil until the
// inference step has at least two payments for the account and symbol.
type Dividend struct {
	ID          string             `json:"id"`
	AccountID   string             `json:"accountId"`
	Symbol      string             `json:"symbol"`
	Amount      decimal.Decimal    `json:"amount"`
	Currency    string             `json:"currency"`
	PaymentDate time.Time          `json:"paymentDate"`
	Frequency   *DividendFrequency `json:"frequency,omitempty"`
}

// DividendGroup identifies the series a frequency is inferred for.
type DividendGroup struct {
	AccountID string
	Symbol    string
}

// Group returns the series this dividend belongs to.
func (d Dividend) Group() DividendGroup {
	return DividendGroup{AccountID: d.AccountID, Symbol: d.Symbol}
}
