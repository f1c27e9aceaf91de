package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnknownSymbol is used for positions the brokerage reports without any symbol.
const UnknownSymbol = "UNKNOWN"

var hundred = decimal.NewFromInt(100)

// Position represents a holding within an account.
// The natural key is (AccountID, Symbol); ID is a surrogate assigned on first
// insert because brokerage position identifiers are not stable across fetches.
type Position struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"accountId"`
	SecurityID  *string         `json:"securityId,omitempty"`
	Symbol      string          `json:"symbol"`
	Name        string          `json:"name"`
	Quantity    decimal.Decimal `json:"quantity"`
	BookValue   decimal.Decimal `json:"bookValue"`
	MarketValue decimal.Decimal `json:"marketValue"`
	GainLoss    decimal.Decimal `json:"gainLoss"`
	GainLossPct decimal.Decimal `json:"gainLossPct"`
	Currency    string          `json:"currency"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Recompute derives GainLoss and GainLossPct from BookValue and MarketValue.
// GainLossPct is zero when BookValue is zero.
func (p *Position) Recompute() {
	p.GainLoss = p.MarketValue.Sub(p.BookValue)
	if p.BookValue.IsZero() {
		p.GainLossPct = decimal.Zero
		return
	}
	p.GainLossPct = p.GainLoss.Div(p.BookValue).Mul(hundred)
}
