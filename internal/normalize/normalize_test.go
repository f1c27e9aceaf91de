package normalize_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/brokerage-sync/internal/brokerage"
	"github.com/ndewijer/brokerage-sync/internal/model"
	"github.com/ndewijer/brokerage-sync/internal/normalize"
)

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func defaults() normalize.Defaults {
	return normalize.Defaults{Currency: "CAD", Now: func() time.Time { return fixedNow }}
}

// record decodes JSON the same way the brokerage client does, so tests see
// json.Number values rather than float64.
func record(t *testing.T, s string) brokerage.RawRecord {
	t.Helper()
	rec, err := brokerage.DecodeRecord([]byte(s))
	require.NoError(t, err)
	return rec
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAccount(t *testing.T) {
	t.Run("full record", func(t *testing.T) {
		raw := record(t, `{
			"id": "tfsa-1",
			"accountType": "ca_tfsa",
			"nickname": "Long term",
			"currency": "cad",
			"status": "open",
			"currentBalance": {"amount": "1234.56", "currency": "CAD"},
			"buyingPower": 10.5,
			"deposits": {"amount": "1000"},
			"withdrawals": null
		}`)

		acc, err := normalize.Account(raw, defaults())
		require.NoError(t, err)

		assert.Equal(t, "tfsa-1", acc.ID)
		assert.Equal(t, model.AccountTypeTFSA, acc.Type)
		require.NotNil(t, acc.Nickname)
		assert.Equal(t, "Long term", *acc.Nickname)
		assert.Equal(t, "CAD", acc.Currency)
		assert.True(t, acc.NetLiquidation.Equal(dec("1234.56")))
		assert.True(t, acc.BuyingPower.Equal(dec("10.5")))
		assert.True(t, acc.TotalDeposits.Equal(dec("1000")))
		assert.True(t, acc.TotalWithdrawals.IsZero())
		assert.Equal(t, fixedNow, acc.UpdatedAt)
	})

	t.Run("fallback id and defaults", func(t *testing.T) {
		raw := record(t, `{"unifiedAccountId": "u-1", "type": "ca_mystery", "accountName": "Play"}`)

		acc, err := normalize.Account(raw, defaults())
		require.NoError(t, err)

		assert.Equal(t, "u-1", acc.ID)
		assert.Equal(t, model.AccountType("CA_MYSTERY"), acc.Type)
		assert.Equal(t, "Play", *acc.Nickname)
		assert.Equal(t, "CAD", acc.Currency)
		assert.Equal(t, model.DefaultAccountStatus, acc.Status)
	})

	t.Run("missing type", func(t *testing.T) {
		acc, err := normalize.Account(record(t, `{"id": "x"}`), defaults())
		require.NoError(t, err)
		assert.Equal(t, model.AccountTypeUnknown, acc.Type)
		assert.Nil(t, acc.Nickname)
	})

	t.Run("empty id is skipped", func(t *testing.T) {
		_, err := normalize.Account(record(t, `{"id": "", "accountType": "ca_tfsa"}`), defaults())
		assert.True(t, errors.Is(err, normalize.ErrSkip))
	})

	t.Run("malformed money defaults to zero", func(t *testing.T) {
		acc, err := normalize.Account(record(t, `{"id": "x", "currentBalance": "lots"}`), defaults())
		require.NoError(t, err)
		assert.True(t, acc.NetLiquidation.IsZero())
	})
}

func TestPosition(t *testing.T) {
	account := model.Account{ID: "acc-1", Currency: "USD"}

	t.Run("nested stock fields", func(t *testing.T) {
		raw := record(t, `{
			"stock": {"symbol": "VFV", "securityId": "sec-vfv", "name": "Vanguard S&P 500"},
			"quantity": "10",
			"bookValue": {"amount": "1000", "currency": "CAD"},
			"marketValue": {"amount": "1100", "currency": "CAD"},
			"currency": "CAD"
		}`)

		p := normalize.Position(raw, account, defaults())

		assert.Equal(t, "VFV", p.Symbol)
		require.NotNil(t, p.SecurityID)
		assert.Equal(t, "sec-vfv", *p.SecurityID)
		assert.Equal(t, "Vanguard S&P 500", p.Name)
		assert.True(t, p.GainLoss.Equal(dec("100")))
		assert.True(t, p.GainLossPct.Equal(dec("10")))
		assert.Equal(t, "CAD", p.Currency)
	})

	t.Run("missing symbol is stored as UNKNOWN", func(t *testing.T) {
		p := normalize.Position(record(t, `{"quantity": 3, "marketValue": 30}`), account, defaults())

		assert.Equal(t, model.UnknownSymbol, p.Symbol)
		assert.Equal(t, model.UnknownSymbol, p.Name)
		assert.Equal(t, "acc-1", p.AccountID)
		assert.Equal(t, "USD", p.Currency)
		assert.True(t, p.GainLossPct.IsZero())
	})

	t.Run("flat symbol fields", func(t *testing.T) {
		p := normalize.Position(record(t, `{"securitySymbol": "XEQT", "securityName": "iShares"}`), account, defaults())
		assert.Equal(t, "XEQT", p.Symbol)
		assert.Equal(t, "iShares", p.Name)
	})
}

func TestSnapshot(t *testing.T) {
	t.Run("truncates timestamp to date", func(t *testing.T) {
		s, err := normalize.Snapshot(record(t, `{"date": "2024-01-31T23:59:59Z", "value": {"amount": "500"}, "earnings": -3}`), "acc-1")
		require.NoError(t, err)

		assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), s.Date)
		assert.True(t, s.NetLiquidation.Equal(dec("500")))
		assert.True(t, s.Earnings.Equal(dec("-3")))
	})

	t.Run("missing date is skipped", func(t *testing.T) {
		_, err := normalize.Snapshot(record(t, `{"value": 1}`), "acc-1")
		assert.ErrorIs(t, err, normalize.ErrSkip)
	})

	t.Run("unparseable date is skipped", func(t *testing.T) {
		_, err := normalize.Snapshot(record(t, `{"date": "yesterday"}`), "acc-1")
		assert.ErrorIs(t, err, normalize.ErrSkip)
	})
}

func TestActivity(t *testing.T) {
	account := model.Account{ID: "acc-1", Currency: "CAD"}

	t.Run("dividend", func(t *testing.T) {
		raw := record(t, `{
			"canonicalId": "act-1",
			"activityType": "DIVIDEND",
			"securitySymbol": "ENB",
			"netAmount": {"amount": "-12.34", "currency": "USD"},
			"occurredAt": "2024-02-01T14:30:00.000Z",
			"subHeader": "Dividend ENB"
		}`)

		a, err := normalize.Activity(raw, account, defaults())
		require.NoError(t, err)

		assert.Equal(t, "act-1", a.ID)
		assert.Equal(t, model.ActivityDividend, a.Type)
		assert.Equal(t, "ENB", *a.Symbol)
		assert.Equal(t, "Dividend ENB", *a.Description)
		assert.True(t, a.Amount.Equal(dec("-12.34")))
		assert.Equal(t, "USD", a.Currency)
		assert.Equal(t, time.Date(2024, 2, 1, 14, 30, 0, 0, time.UTC), a.OccurredAt)
		assert.False(t, a.Quantity.Valid)
		assert.False(t, a.Price.Valid)

		d, ok := normalize.DividendFromActivity(a)
		require.True(t, ok)
		assert.True(t, d.Amount.Equal(dec("12.34")))
		assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), d.PaymentDate)
		assert.Equal(t, "USD", d.Currency)
		assert.Nil(t, d.Frequency)
	})

	t.Run("trade", func(t *testing.T) {
		raw := record(t, `{"id": "act-2", "type": "diy_buy", "symbol": "VFV", "quantity": "2", "marketPrice": {"amount": "120.5"}, "amount": 241, "processDate": "2024-02-02"}`)

		a, err := normalize.Activity(raw, account, defaults())
		require.NoError(t, err)

		assert.Equal(t, model.ActivityBuy, a.Type)
		assert.True(t, a.Quantity.Decimal.Equal(dec("2")))
		assert.True(t, a.Price.Decimal.Equal(dec("120.5")))
		assert.Equal(t, "CAD", a.Currency)
		assert.Equal(t, time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC), a.OccurredAt)

		_, ok := normalize.DividendFromActivity(a)
		assert.False(t, ok)
	})

	t.Run("missing or short timestamp defaults to now", func(t *testing.T) {
		for _, body := range []string{`{"id": "a"}`, `{"id": "a", "occurredAt": "2024"}`} {
			a, err := normalize.Activity(record(t, body), account, defaults())
			require.NoError(t, err)
			assert.Equal(t, fixedNow, a.OccurredAt)
			assert.Equal(t, model.ActivityUnknown, a.Type)
		}
	})

	t.Run("payment date is the calendar day as written", func(t *testing.T) {
		tests := []struct {
			occurredAt string
			want       time.Time
		}{
			{"2024-03-15T22:00:00-05:00", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
			{"2024-03-15T00:30:00+09:00", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
			{"2024-03-15T23:59:59Z", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
			{"2024-03-15", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		}

		for _, tt := range tests {
			raw := record(t, `{"id": "div-1", "type": "dividend", "symbol": "ENB", "amount": 5, "occurredAt": "`+tt.occurredAt+`"}`)

			a, err := normalize.Activity(raw, account, defaults())
			require.NoError(t, err)

			d, ok := normalize.DividendFromActivity(a)
			require.True(t, ok, tt.occurredAt)
			assert.Equal(t, tt.want, d.PaymentDate, tt.occurredAt)
		}

		a, err := normalize.Activity(record(t, `{"id": "a", "occurredAt": "2024-03-15T22:00:00-05:00"}`), account, defaults())
		require.NoError(t, err)
		assert.True(t, a.OccurredAt.Equal(time.Date(2024, 3, 16, 3, 0, 0, 0, time.UTC)))
	})

	t.Run("unmapped type passes through lower-cased", func(t *testing.T) {
		a, err := normalize.Activity(record(t, `{"id": "a", "type": "CRYPTO_STAKING_REWARD"}`), account, defaults())
		require.NoError(t, err)
		assert.Equal(t, model.ActivityType("crypto_staking_reward"), a.Type)
	})

	t.Run("missing id is skipped", func(t *testing.T) {
		_, err := normalize.Activity(record(t, `{"type": "deposit", "amount": 5}`), account, defaults())
		assert.ErrorIs(t, err, normalize.ErrSkip)
	})
}

func TestDividendFromActivity_Rejects(t *testing.T) {
	sym := "ENB"
	empty := ""
	tests := []struct {
		name string
		act  model.Activity
	}{
		{"not a dividend", model.Activity{Type: model.ActivityInterest, Symbol: &sym, Amount: dec("1")}},
		{"no symbol", model.Activity{Type: model.ActivityDividend, Amount: dec("1")}},
		{"empty symbol", model.Activity{Type: model.ActivityDividend, Symbol: &empty, Amount: dec("1")}},
		{"zero amount", model.Activity{Type: model.ActivityDividend, Symbol: &sym}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := normalize.DividendFromActivity(tt.act)
			assert.False(t, ok)
		})
	}
}

func TestMoney(t *testing.T) {
	def := dec("-1")
	tests := []struct {
		name string
		raw  any
		want string
	}{
		{"nil", nil, "-1"},
		{"json number", json.Number("12.5"), "12.5"},
		{"float", 0.25, "0.25"},
		{"int", 7, "7"},
		{"string", " 3.10 ", "3.1"},
		{"bad string", "abc", "-1"},
		{"object", map[string]any{"amount": "9.99", "currency": "USD"}, "9.99"},
		{"object without amount", map[string]any{"currency": "USD"}, "-1"},
		{"object with null amount", map[string]any{"amount": nil}, "-1"},
		{"bool", true, "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalize.Money(tt.raw, def)
			assert.True(t, got.Equal(dec(tt.want)), "got %s", got)
		})
	}
}

func TestCurrency(t *testing.T) {
	assert.Equal(t, "USD", normalize.Currency(map[string]any{"amount": 1, "currency": "usd"}, "CAD"))
	assert.Equal(t, "EUR", normalize.Currency("EUR", "CAD"))
	assert.Equal(t, "CAD", normalize.Currency("XYZ1", "CAD"))
	assert.Equal(t, "CAD", normalize.Currency(nil, "CAD"))
	assert.Equal(t, "CAD", normalize.Currency(map[string]any{"amount": 1}, "CAD"))
}

func TestTypeLookups(t *testing.T) {
	assert.Equal(t, model.AccountTypeNonReg, normalize.AccountType("CA_NON_REGISTERED"))
	assert.Equal(t, model.AccountTypeCrypto, normalize.AccountType("ca_non_registered_crypto"))
	assert.Equal(t, model.AccountType("CA_MYSTERY"), normalize.AccountType("ca_mystery"))
	assert.Equal(t, model.AccountTypeUnknown, normalize.AccountType(""))

	assert.Equal(t, model.ActivityDeposit, normalize.ActivityType("referral_bonus"))
	assert.Equal(t, model.ActivityWithdrawal, normalize.ActivityType("PAYMENT_TRANSFER_OUT"))
	assert.Equal(t, model.ActivityTransfer, normalize.ActivityType("institutional_transfer"))
}

func TestSecurity(t *testing.T) {
	raw := record(t, `{
		"id": "sec-1",
		"stock": {"symbol": "vfv", "name": "Vanguard S&P 500", "primaryExchange": "TSX", "currency": "CAD"},
		"securityType": "exchange_traded_fund",
		"fundamentals": {"yield": "1.1", "mer": "0.09"},
		"quote": {"price": {"amount": "120.10", "currency": "CAD"}}
	}`)

	sec, err := normalize.Security(raw, defaults())
	require.NoError(t, err)

	assert.Equal(t, "VFV", sec.Symbol)
	assert.Equal(t, "TSX", *sec.Exchange)
	assert.Equal(t, "exchange_traded_fund", *sec.Type)
	assert.True(t, sec.MER.Decimal.Equal(dec("0.09")))
	assert.False(t, sec.PERatio.Valid)
	assert.True(t, sec.CurrentPrice.Decimal.Equal(dec("120.10")))
	require.NotNil(t, sec.PriceUpdatedAt)

	_, err = normalize.Security(record(t, `{"symbol": "X"}`), defaults())
	assert.ErrorIs(t, err, normalize.ErrSkip)
}
