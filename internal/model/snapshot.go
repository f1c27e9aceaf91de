package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountSnapshot is one point of an account's valuation history.
// There is at most one snapshot per account per calendar day.
type AccountSnapshot struct {
	ID             string          `json:"id"`
	AccountID      string          `json:"accountId"`
	Date           time.Time       `json:"date"`
	NetLiquidation decimal.Decimal `json:"netLiquidation"`
	Deposits       decimal.Decimal `json:"deposits"`
	Withdrawals    decimal.Decimal `json:"withdrawals"`
	Earnings       decimal.Decimal `json:"earnings"`
}
