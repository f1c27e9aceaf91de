package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"

	"github.com/ndewijer/brokerage-sync/internal/brokerage"
)

// FieldRule is an ordered list of JSONPath expressions tried in turn.
// The first expression yielding a present value wins.
type FieldRule []string

// Field rules for every source field the normalizer reads.
var (
	accountIDRule       = FieldRule{"$.id", "$.unifiedAccountId"}
	accountTypeRule     = FieldRule{"$.accountType", "$.type"}
	accountNicknameRule = FieldRule{"$.nickname", "$.accountName"}
	accountStatusRule   = FieldRule{"$.status"}
	accountBalanceRule  = FieldRule{"$.currentBalance"}
	accountBuyingRule   = FieldRule{"$.buyingPower"}
	depositsRule        = FieldRule{"$.deposits"}
	withdrawalsRule     = FieldRule{"$.withdrawals"}
	currencyRule        = FieldRule{"$.currency"}

	positionSymbolRule     = FieldRule{"$.stock.symbol", "$.symbol", "$.securitySymbol"}
	positionSecurityIDRule = FieldRule{"$.stock.securityId", "$.securityId"}
	positionNameRule       = FieldRule{"$.stock.name", "$.securityName"}
	quantityRule           = FieldRule{"$.quantity"}
	bookValueRule          = FieldRule{"$.bookValue"}
	marketValueRule        = FieldRule{"$.marketValue"}

	snapshotDateRule     = FieldRule{"$.date"}
	snapshotValueRule    = FieldRule{"$.value"}
	snapshotEarningsRule = FieldRule{"$.earnings"}

	activityIDRule          = FieldRule{"$.id", "$.canonicalId"}
	activityTypeRule        = FieldRule{"$.type", "$.activityType"}
	activitySymbolRule      = FieldRule{"$.symbol", "$.securitySymbol"}
	activityAmountRule      = FieldRule{"$.amount", "$.netAmount"}
	activityOccurredRule    = FieldRule{"$.occurredAt", "$.processDate", "$.createdAt"}
	activityPriceRule       = FieldRule{"$.price", "$.marketPrice"}
	activityDescriptionRule = FieldRule{"$.description", "$.subHeader"}

	securityIDRule       = FieldRule{"$.id", "$.securityId"}
	securitySymbolRule   = FieldRule{"$.stock.symbol", "$.symbol"}
	securityNameRule     = FieldRule{"$.stock.name", "$.name", "$.securityName"}
	securityTypeRule     = FieldRule{"$.securityType", "$.type"}
	securityExchangeRule = FieldRule{"$.stock.primaryExchange", "$.exchange"}
	securityYieldRule    = FieldRule{"$.fundamentals.yield", "$.dividendYield"}
	securityMERRule      = FieldRule{"$.fundamentals.mer", "$.mer"}
	securityPERule       = FieldRule{"$.fundamentals.peRatio", "$.peRatio"}
	securityCapRule      = FieldRule{"$.fundamentals.marketCap", "$.marketCap"}
	securityPriceRule    = FieldRule{"$.quote.price", "$.price"}
)

// First returns the first present value. A value that is null, an empty
// string, zero, false or an empty object or list counts as absent.
func (r FieldRule) First(raw brokerage.RawRecord) (any, bool) {
	doc := map[string]any(raw)
	for _, path := range r {
		v, err := jsonpath.Get(path, doc)
		if err != nil {
			continue
		}
		if present(v) {
			return v, true
		}
	}
	return nil, false
}

// FirstString returns the first present value rendered as a trimmed string.
func (r FieldRule) FirstString(raw brokerage.RawRecord) (string, bool) {
	v, ok := r.First(raw)
	if !ok {
		return "", false
	}
	s := strings.TrimSpace(stringify(v))
	if s == "" {
		return "", false
	}
	return s, true
}

func (r FieldRule) optionalString(raw brokerage.RawRecord) *string {
	s, ok := r.FirstString(raw)
	if !ok {
		return nil
	}
	return &s
}

func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	default:
		return true
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
