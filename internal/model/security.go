package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Security holds descriptive data for an instrument referenced by positions.
// It is populated by the enrichment path, not by the account sync phases.
type Security struct {
	ID             string              `json:"id"`
	Symbol         string              `json:"symbol"`
	Name           string              `json:"name"`
	Type           *string             `json:"type,omitempty"`
	Exchange       *string             `json:"exchange,omitempty"`
	Currency       string              `json:"currency"`
	DividendYield  decimal.NullDecimal `json:"dividendYield"`
	MER            decimal.NullDecimal `json:"mer"`
	PERatio        decimal.NullDecimal `json:"peRatio"`
	MarketCap      decimal.NullDecimal `json:"marketCap"`
	CurrentPrice   decimal.NullDecimal `json:"currentPrice"`
	PriceUpdatedAt *time.Time          `json:"priceUpdatedAt,omitempty"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

// SecurityRef is the minimal security information carried by positions.
type SecurityRef struct {
	ID       string
	Symbol   string
	Name     string
	Currency string
}
