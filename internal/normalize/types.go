package normalize

import (
	"strings"

	"github.com/ndewijer/brokerage-sync/internal/model"
)

var accountTypes = map[string]model.AccountType{
	"ca_tfsa":                  model.AccountTypeTFSA,
	"ca_rrsp":                  model.AccountTypeRRSP,
	"ca_fhsa":                  model.AccountTypeFHSA,
	"ca_non_registered":        model.AccountTypeNonReg,
	"ca_non_registered_crypto": model.AccountTypeCrypto,
	"us_non_registered":        model.AccountTypeUSD,
	"ca_resp":                  model.AccountTypeRESP,
	"ca_lira":                  model.AccountTypeLIRA,
}

var activityTypes = map[string]model.ActivityType{
	"diy_buy":                model.ActivityBuy,
	"diy_sell":               model.ActivitySell,
	"dividend":               model.ActivityDividend,
	"deposit":                model.ActivityDeposit,
	"withdrawal":             model.ActivityWithdrawal,
	"institutional_transfer": model.ActivityTransfer,
	"fee":                    model.ActivityFee,
	"interest":               model.ActivityInterest,
	"contribution":           model.ActivityContribution,
	"refund":                 model.ActivityRefund,
	"payment_transfer_in":    model.ActivityDeposit,
	"payment_transfer_out":   model.ActivityWithdrawal,
	"referral_bonus":         model.ActivityDeposit,
	"giveaway_bonus":         model.ActivityDeposit,
}

// AccountType maps a brokerage account code onto the canonical type.
// Lookup is case-insensitive; unmapped codes pass through upper-cased.
func AccountType(code string) model.AccountType {
	code = strings.TrimSpace(code)
	if code == "" {
		return model.AccountTypeUnknown
	}
	if t, ok := accountTypes[strings.ToLower(code)]; ok {
		return t
	}
	return model.AccountType(strings.ToUpper(code))
}

// ActivityType maps a brokerage activity code onto the canonical type.
// Unmapped codes pass through lower-cased.
func ActivityType(code string) model.ActivityType {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return model.ActivityUnknown
	}
	if t, ok := activityTypes[code]; ok {
		return t
	}
	return model.ActivityType(code)
}
