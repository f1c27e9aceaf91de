package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/ndewijer/brokerage-sync/internal/yahoo"
)

// MockYahooClient is a yahoo.Client that serves canned charts.
//
// Example usage:
//
//	quotes := testutil.NewMockYahooClient().
//	    WithSymbolResponse("XEQT.TO", testutil.CreateMockYahooResponseForDate(day, 31.2)).
//	    WithError(errors.New("rate limited"))
type MockYahooClient struct {
	// Response is served for symbols without their own entry.
	Response yahoo.Response
	// Err, when set, fails every query.
	Err error
	// Symbols records the symbols queried, in order.
	Symbols []string

	bySymbol map[string]yahoo.Response
	mu       sync.Mutex
}

// NewMockYahooClient returns a client serving five daily closes ending
// yesterday. The latest close is 102.25.
func NewMockYahooClient() *MockYahooClient {
	return &MockYahooClient{
		Response: CreateMockYahooResponse(5),
		bySymbol: map[string]yahoo.Response{},
	}
}

// QueryFiveDay implements yahoo.Client.
func (m *MockYahooClient) QueryFiveDay(_ context.Context, symbol string) (yahoo.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Symbols = append(m.Symbols, symbol)
	if m.Err != nil {
		return yahoo.Response{}, m.Err
	}
	if resp, ok := m.bySymbol[symbol]; ok {
		return resp, nil
	}
	return m.Response, nil
}

// ParseChart uses the real parser.
func (m *MockYahooClient) ParseChart(resp yahoo.Response) (yahoo.PriceChart, error) {
	return yahoo.NewFinanceClient().ParseChart(resp)
}

// WithError fails every query with err.
func (m *MockYahooClient) WithError(err error) *MockYahooClient {
	m.Err = err
	return m
}

// WithResponse sets the fallback response.
func (m *MockYahooClient) WithResponse(resp yahoo.Response) *MockYahooClient {
	m.Response = resp
	return m
}

// WithSymbolResponse serves resp for one quote symbol only.
func (m *MockYahooClient) WithSymbolResponse(symbol string, resp yahoo.Response) *MockYahooClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bySymbol[symbol] = resp
	return m
}

// WithEmptyResponse serves a chart with no results.
func (m *MockYahooClient) WithEmptyResponse() *MockYahooClient {
	m.Response = yahoo.Response{Chart: yahoo.Chart{Result: []yahoo.Result{}}}
	return m
}

// chartPoint is one daily bar of a mock chart.
type chartPoint struct {
	at     time.Time
	close  float64
	volume int64
}

// mockMeta describes the listing every mock chart belongs to.
var mockMeta = yahoo.Meta{
	Symbol:           "TEST",
	Currency:         "USD",
	ExchangeName:     "NMS",
	FullExchangeName: "NASDAQ",
	InstrumentType:   "ETF",
	LongName:         "Test Fund Inc.",
	Shortname:        "TEST",
}

func chartResponse(points []chartPoint) yahoo.Response {
	quote := yahoo.Quote{}
	timestamps := make([]int64, 0, len(points))
	for _, p := range points {
		open, high, low, closePrice, volume := p.close-0.25, p.close+0.75, p.close-0.75, p.close, p.volume
		timestamps = append(timestamps, p.at.Unix())
		quote.Open = append(quote.Open, &open)
		quote.High = append(quote.High, &high)
		quote.Low = append(quote.Low, &low)
		quote.Close = append(quote.Close, &closePrice)
		quote.Volume = append(quote.Volume, &volume)
	}

	return yahoo.Response{
		Chart: yahoo.Chart{
			Result: []yahoo.Result{{
				Meta:       mockMeta,
				Timestamp:  timestamps,
				Indicators: yahoo.IndicatorsContainer{Quote: []yahoo.Quote{quote}},
			}},
		},
	}
}

// CreateMockYahooResponse returns `days` daily bars ending yesterday, closing
// at 100.25 and rising 0.5 a day.
func CreateMockYahooResponse(days int) yahoo.Response {
	now := time.Now().UTC()
	yesterday := time.Date(now.Year(), now.Month(), now.Day()-1, 0, 0, 0, 0, time.UTC)

	points := make([]chartPoint, days)
	for i := range points {
		points[i] = chartPoint{
			at:     yesterday.AddDate(0, 0, i-days+1),
			close:  100.25 + float64(i)*0.5,
			volume: int64(1000000 + i*10000),
		}
	}
	return chartResponse(points)
}

// CreateMockYahooResponseForDate returns a single bar closing at price.
func CreateMockYahooResponseForDate(date time.Time, price float64) yahoo.Response {
	return chartResponse([]chartPoint{{at: date, close: price, volume: 1000000}})
}

// CreateMockYahooErrorResponse returns a chart carrying an API error and no
// results.
func CreateMockYahooErrorResponse(errorMsg string) yahoo.Response {
	return yahoo.Response{
		Chart: yahoo.Chart{
			Result: []yahoo.Result{},
			Error:  &yahoo.ChartError{Code: "Not Found", Description: errorMsg},
		},
	}
}
