package testutil

import (
	"github.com/ndewijer/brokerage-sync/internal/brokerage"
)

// Record helpers build raw brokerage records in the shape the live API uses.
// Money fields are {amount, currency} objects, as the brokerage sends them.

// AccountRecord returns an account record with a balance of 1000 CAD.
//
// Example usage:
//
//	rec := testutil.AccountRecord("acc-1", "ca_tfsa")
func AccountRecord(id, accountType string) brokerage.RawRecord {
	return brokerage.RawRecord{
		"id":             id,
		"accountType":    accountType,
		"status":         "open",
		"currency":       "CAD",
		"currentBalance": MoneyValue("1000.00", "CAD"),
		"buyingPower":    MoneyValue("250.00", "CAD"),
		"deposits":       MoneyValue("900.00", "CAD"),
		"withdrawals":    MoneyValue("0", "CAD"),
	}
}

// PositionRecord returns a position record for symbol.
//
// Example usage:
//
//	rec := testutil.PositionRecord("XEQT", "1000", "1250")
func PositionRecord(symbol, bookValue, marketValue string) brokerage.RawRecord {
	return brokerage.RawRecord{
		"stock": map[string]any{
			"symbol":     symbol,
			"securityId": "sec-" + symbol,
			"name":       symbol + " Holdings",
		},
		"quantity":    "10",
		"bookValue":   MoneyValue(bookValue, "CAD"),
		"marketValue": MoneyValue(marketValue, "CAD"),
		"currency":    "CAD",
	}
}

// SnapshotRecord returns one valuation point for date (YYYY-MM-DD).
func SnapshotRecord(date, value string) brokerage.RawRecord {
	return brokerage.RawRecord{
		"date":        date,
		"value":       MoneyValue(value, "CAD"),
		"deposits":    MoneyValue("100", "CAD"),
		"withdrawals": MoneyValue("0", "CAD"),
		"earnings":    MoneyValue("5", "CAD"),
	}
}

// ActivityRecord returns an activity record.
//
// Example usage:
//
//	rec := testutil.ActivityRecord("act-1", "buy", "XEQT", "-500", "2024-01-15T14:30:00Z")
func ActivityRecord(id, activityType, symbol, amount, occurredAt string) brokerage.RawRecord {
	rec := brokerage.RawRecord{
		"id":         id,
		"type":       activityType,
		"amount":     MoneyValue(amount, "CAD"),
		"occurredAt": occurredAt,
	}
	if symbol != "" {
		rec["symbol"] = symbol
	}
	return rec
}

// DividendRecord returns a dividend activity paid on date (YYYY-MM-DD).
func DividendRecord(id, symbol, amount, date string) brokerage.RawRecord {
	return ActivityRecord(id, "DIVIDEND", symbol, amount, date+"T12:00:00Z")
}

// SecurityRecord returns a security description record.
func SecurityRecord(id, symbol, exchange string) brokerage.RawRecord {
	return brokerage.RawRecord{
		"id": id,
		"stock": map[string]any{
			"symbol":          symbol,
			"name":            symbol + " Holdings",
			"primaryExchange": exchange,
			"currency":        "CAD",
		},
		"securityType": "exchange_traded_fund",
		"fundamentals": map[string]any{
			"yield": "2.1",
			"mer":   "0.2",
		},
	}
}

// MoneyValue returns an {amount, currency} object.
func MoneyValue(amount, currency string) map[string]any {
	return map[string]any{"amount": amount, "currency": currency}
}
