package normalize

import (
	"encoding/json"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Money converts a money-like value into a decimal. It accepts a bare number,
// a numeric string or an object carrying "amount"; the object form is read
// through its amount. Null, malformed or unsupported input yields def.
func Money(raw any, def decimal.Decimal) decimal.Decimal {
	d, ok := parseMoney(raw)
	if !ok {
		return def
	}
	return d
}

// OptionalMoney is Money for nullable fields: absent, zero or malformed input
// is null.
func OptionalMoney(raw any) decimal.NullDecimal {
	if !present(raw) {
		return decimal.NullDecimal{}
	}
	d, ok := parseMoney(raw)
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func parseMoney(raw any) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case map[string]any:
		amount, ok := v["amount"]
		if !ok {
			return decimal.Zero, false
		}
		if _, nested := amount.(map[string]any); nested {
			return decimal.Zero, false
		}
		return parseMoney(amount)
	case json.Number:
		return parseDecimal(v.String())
	case string:
		return parseDecimal(strings.TrimSpace(v))
	case float64:
		return decimal.NewFromFloat(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	default:
		return decimal.Zero, false
	}
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Currency extracts a currency code from an {amount, currency} object or a
// bare code. Codes that are not ISO 4217 yield fallback.
func Currency(raw any, fallback string) string {
	var code string
	switch v := raw.(type) {
	case map[string]any:
		s, ok := v["currency"].(string)
		if !ok {
			return fallback
		}
		code = s
	case string:
		code = v
	default:
		return fallback
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || money.GetCurrency(code) == nil {
		return fallback
	}
	return code
}
