package yahoo_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/brokerage-sync/internal/apperrors"
	"github.com/ndewijer/brokerage-sync/internal/yahoo"
)

const chartBody = `{"chart":{"result":[{"meta":{"currency":"CAD","symbol":"VFV.TO","exchangeName":"TOR","longName":"Vanguard S&P 500 Index ETF","instrumentType":"ETF"},
"timestamp":[1704205800,1704292200,1704378600],
"indicators":{"quote":[{"open":[120.1,121.0,null],"close":[120.5,121.4,null],"high":[121,122,null],"low":[119.9,120.8,null],"volume":[1000,2000,null]}]}}],"error":null}}`

func newServer(t *testing.T, status int, body string) *yahoo.FinanceClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return yahoo.NewFinanceClient().WithBaseURL(srv.URL)
}

// TestQueryFiveDay_ParseChart covers the happy path used by enrichment.
//
// WHY: the latest close must skip the null trailing point Yahoo returns for
// the current, not yet closed, session.
func TestQueryFiveDay_ParseChart(t *testing.T) {
	client := newServer(t, http.StatusOK, chartBody)

	resp, err := client.QueryFiveDay(context.Background(), "VFV.TO")
	require.NoError(t, err)

	chart, err := client.ParseChart(resp)
	require.NoError(t, err)

	assert.Equal(t, "VFV.TO", chart.Symbol)
	assert.Equal(t, "CAD", chart.Currency)
	assert.Equal(t, "ETF", chart.InstrumentType)
	assert.Len(t, chart.Indicators, 2)

	latest, ok := chart.LatestClose()
	require.True(t, ok)
	assert.InDelta(t, 121.4, latest.PriceClose, 0.0001)
}

func TestQueryFiveDay_Errors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		client := newServer(t, http.StatusNotFound, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`)

		_, err := client.QueryFiveDay(context.Background(), "NOPE")
		assert.ErrorIs(t, err, apperrors.ErrQuoteUnavailable)
	})

	t.Run("empty result", func(t *testing.T) {
		client := newServer(t, http.StatusOK, `{"chart":{"result":[],"error":null}}`)

		_, err := client.QueryFiveDay(context.Background(), "NOPE")
		assert.ErrorIs(t, err, apperrors.ErrQuoteUnavailable)
	})

	t.Run("not json", func(t *testing.T) {
		client := newServer(t, http.StatusBadGateway, `<html>`)

		_, err := client.QueryFiveDay(context.Background(), "X")
		assert.Error(t, err)
	})
}

func TestParseChart_Validation(t *testing.T) {
	client := yahoo.NewFinanceClient()
	closePrice := 1.0

	tests := []struct {
		name string
		resp yahoo.Response
	}{
		{"no result", yahoo.Response{}},
		{"no timestamps", yahoo.Response{Chart: yahoo.Chart{Result: []yahoo.Result{{}}}}},
		{"no quotes", yahoo.Response{Chart: yahoo.Chart{Result: []yahoo.Result{{Timestamp: []int64{1}}}}}},
		{"mismatched lengths", yahoo.Response{Chart: yahoo.Chart{Result: []yahoo.Result{{
			Timestamp:  []int64{1, 2},
			Indicators: yahoo.IndicatorsContainer{Quote: []yahoo.Quote{{Close: []*float64{&closePrice}}}},
		}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.ParseChart(tt.resp)
			assert.Error(t, err)
		})
	}
}

func TestLatestClose_Empty(t *testing.T) {
	_, ok := yahoo.PriceChart{}.LatestClose()
	assert.False(t, ok)
}
