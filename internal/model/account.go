package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType is the canonical account classification stored in accounts.type.
// Codes the brokerage reports that are not in the lookup table are stored
// upper-cased as-is, so the set of values is open.
type AccountType string

const (
	AccountTypeTFSA    AccountType = "TFSA"    // tax-advantaged savings
	AccountTypeRRSP    AccountType = "RRSP"    // tax-advantaged retirement
	AccountTypeFHSA    AccountType = "FHSA"    // first-home savings
	AccountTypeNonReg  AccountType = "NON_REG" // non-registered taxable
	AccountTypeCrypto  AccountType = "CRYPTO"  // non-registered crypto
	AccountTypeUSD     AccountType = "USD"     // non-registered, USD denominated
	AccountTypeRESP    AccountType = "RESP"    // education savings
	AccountTypeLIRA    AccountType = "LIRA"    // locked retirement
	AccountTypeUnknown AccountType = "UNKNOWN"
)

// DefaultAccountStatus is used when the brokerage omits an account status.
const DefaultAccountStatus = "open"

// Account represents a brokerage account as stored in the accounts table.
// ID is the brokerage's own identifier and is stable across runs; it is both
// the upsert key and the foreign key target for every per-account entity.
type Account struct {
	ID               string          `json:"id"`
	Type             AccountType     `json:"type"`
	Nickname         *string         `json:"nickname,omitempty"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	NetLiquidation   decimal.Decimal `json:"netLiquidation"`
	BuyingPower      decimal.Decimal `json:"buyingPower"`
	TotalDeposits    decimal.Decimal `json:"totalDeposits"`
	TotalWithdrawals decimal.Decimal `json:"totalWithdrawals"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// DisplayName returns the nickname when one is set, otherwise the account ID.
func (a Account) DisplayName() string {
	if a.Nickname != nil && *a.Nickname != "" {
		return *a.Nickname
	}
	return a.ID
}
