package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActivityType is the normalized activity classification.
// Unmapped brokerage codes pass through lower-cased.
type ActivityType string

const (
	ActivityBuy          ActivityType = "buy"
	ActivitySell         ActivityType = "sell"
	ActivityDividend     ActivityType = "dividend"
	ActivityDeposit      ActivityType = "deposit"
	ActivityWithdrawal   ActivityType = "withdrawal"
	ActivityTransfer     ActivityType = "transfer"
	ActivityFee          ActivityType = "fee"
	ActivityInterest     ActivityType = "interest"
	ActivityContribution ActivityType = "contribution"
	ActivityRefund       ActivityType = "refund"
	ActivityUnknown      ActivityType = "unknown"
)

// Activity is a single account transaction keyed by the brokerage's canonical id.
type Activity struct {
	ID          string              `json:"id"`
	AccountID   string              `json:"accountId"`
	Type        ActivityType        `json:"type"`
	Symbol      *string             `json:"symbol,omitempty"`
	Description *string             `json:"description,omitempty"`
	Quantity    decimal.NullDecimal `json:"quantity"`
	Price       decimal.NullDecimal `json:"price"`
	Amount      decimal.Decimal     `json:"amount"`
	Currency    string              `json:"currency"`
	OccurredAt  time.Time           `json:"occurredAt"`
}
