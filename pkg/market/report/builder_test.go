package report

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/pkg/market"
	"marketpulse/pkg/market/exchanges"
	"marketpulse/pkg/market/fundingcache"
	"marketpulse/pkg/market/rest"
	"marketpulse/pkg/market/stream"
)

// testVenue is a fake Binance UM-futures API serving ramped 3m bars and
// flat 4h bars, with per-endpoint failure switches.
type testVenue struct {
	server       *httptest.Server
	fundingCalls int32
	failOI       bool
	failFunding  bool
}

func newTestVenue(t *testing.T) *testVenue {
	t.Helper()
	v := &testVenue{}
	v.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v1/klines":
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			interval := r.URL.Query().Get("interval")
			rows := make([][]interface{}, limit)
			for i := 0; i < limit; i++ {
				px := 200.0
				if interval == "3m" {
					px = 100 + float64(i)
				}
				open := int64(i) * 180_000
				rows[i] = []interface{}{
					open,
					fmt.Sprintf("%.2f", px-0.5),
					fmt.Sprintf("%.2f", px+1),
					fmt.Sprintf("%.2f", px-1),
					fmt.Sprintf("%.2f", px),
					"12.5",
					open + 179_999,
					"1000.0",
					42,
					"6.25",
					"500.0",
				}
			}
			json.NewEncoder(w).Encode(rows)
		case "/fapi/v1/openInterest":
			if v.failOI {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"symbol": "BTCUSDT", "openInterest": "52100.75", "time": 1700000000000,
			})
		case "/fapi/v1/premiumIndex":
			atomic.AddInt32(&v.fundingCalls, 1)
			if v.failFunding {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"symbol": "BTCUSDT", "lastFundingRate": "0.0001", "nextFundingTime": 1700000000000,
			})
		case "/fapi/v1/ticker/price":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"symbol": "BTCUSDT", "price": "45000.50",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(v.server.Close)
	return v
}

func newTestBuilder(t *testing.T, venue *testVenue, opts ...Option) (*Builder, *stream.Monitor) {
	t.Helper()
	profile := exchanges.Select("binance", "")
	restClient := rest.NewClient(profile,
		rest.WithBaseURL(venue.server.URL),
		rest.WithMaxRetries(0),
	)
	streamClient := stream.NewClient(profile)
	monitor := stream.NewMonitor(streamClient, restClient, 120)
	t.Cleanup(monitor.Close)
	return NewBuilder(monitor, restClient, opts...), monitor
}

func watchBoth(t *testing.T, monitor *stream.Monitor) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, monitor.Watch(ctx, "BTCUSDT", "3m"))
	require.NoError(t, monitor.Watch(ctx, "BTCUSDT", "4h"))
}

func TestBuilderGet(t *testing.T) {
	venue := newTestVenue(t)
	builder, monitor := newTestBuilder(t, venue)
	watchBoth(t, monitor)

	data, err := builder.Get(context.Background(), "btc")
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", data.Symbol)
	assert.InDelta(t, 219.0, data.CurrentPrice, 1e-9, "last intraday close")
	// 21 intraday bars back: close 199.
	assert.InDelta(t, (219.0-199.0)/199.0*100, data.PriceChange1h, 1e-9)
	// One longer-term bar back: flat 200.
	assert.InDelta(t, (219.0-200.0)/200.0*100, data.PriceChange4h, 1e-9)

	require.NotNil(t, data.OpenInterest)
	assert.InDelta(t, 52100.75, data.OpenInterest.Latest, 1e-9)
	assert.InDelta(t, 52100.75*0.999, data.OpenInterest.Average, 1e-6)
	assert.InDelta(t, 0.0001, data.FundingRate, 1e-12)

	require.NotNil(t, data.IntradaySeries)
	assert.Len(t, data.IntradaySeries.MidPrices, 10)
	assert.Len(t, data.IntradaySeries.EMA20Values, 10)
	assert.Len(t, data.IntradaySeries.RSI7Values, 10)
	assert.InDelta(t, 219.0, data.IntradaySeries.MidPrices[9], 1e-9)
	assert.Greater(t, data.IntradaySeries.ATR14, 0.0)
	assert.Greater(t, data.CurrentEMA20, 0.0)
	assert.Greater(t, data.CurrentRSI7, 50.0, "steady uptrend")

	require.NotNil(t, data.LongerTermContext)
	assert.InDelta(t, 200.0, data.LongerTermContext.EMA20, 1e-9, "flat longer-term window")
	assert.InDelta(t, 12.5, data.LongerTermContext.CurrentVolume, 1e-9)
}

func TestBuilderGetRequiresBothWindows(t *testing.T) {
	venue := newTestVenue(t)
	builder, monitor := newTestBuilder(t, venue)
	require.NoError(t, monitor.Watch(context.Background(), "BTCUSDT", "3m"))

	_, err := builder.Get(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, market.ErrInsufficientData)
}

func TestBuilderGetDegradesOnDerivativesFailures(t *testing.T) {
	venue := newTestVenue(t)
	venue.failOI = true
	venue.failFunding = true
	builder, monitor := newTestBuilder(t, venue)
	watchBoth(t, monitor)

	data, err := builder.Get(context.Background(), "BTCUSDT")
	require.NoError(t, err, "derivatives endpoints are auxiliary")
	require.NotNil(t, data.OpenInterest)
	assert.Zero(t, data.OpenInterest.Latest)
	assert.Zero(t, data.OpenInterest.Average)
	assert.Zero(t, data.FundingRate)
}

func TestBuilderFundingRateIsCached(t *testing.T) {
	venue := newTestVenue(t)
	builder, monitor := newTestBuilder(t, venue)
	watchBoth(t, monitor)

	ctx := context.Background()
	_, err := builder.Get(ctx, "BTCUSDT")
	require.NoError(t, err)
	_, err = builder.Get(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&venue.fundingCalls), "second snapshot served from cache")
}

func TestBuilderWithFundingCacheOption(t *testing.T) {
	venue := newTestVenue(t)
	cache := fundingcache.New[float64]()
	builder, monitor := newTestBuilder(t, venue, WithFundingCache(cache))
	watchBoth(t, monitor)

	_, err := builder.Get(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	rate, ok := cache.Peek("BTCUSDT")
	require.True(t, ok, "builder populated the injected cache")
	assert.InDelta(t, 0.0001, rate, 1e-12)
}

// recordingPersistence captures RecordSnapshot calls.
type recordingPersistence struct {
	exchanges []string
	symbols   []string
}

func (r *recordingPersistence) UpsertSymbols(ctx context.Context, exchange string, symbols []market.SymbolInfo) error {
	return nil
}

func (r *recordingPersistence) RecordSnapshot(ctx context.Context, exchange string, data *market.Data) error {
	r.exchanges = append(r.exchanges, exchange)
	r.symbols = append(r.symbols, data.Symbol)
	return nil
}

func TestBuilderRecordsSnapshots(t *testing.T) {
	venue := newTestVenue(t)
	sink := &recordingPersistence{}
	builder, monitor := newTestBuilder(t, venue, WithPersistence(sink))
	watchBoth(t, monitor)

	_, err := builder.Get(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, sink.symbols, 1)
	assert.Equal(t, "BTCUSDT", sink.symbols[0])
	assert.Equal(t, "binance", sink.exchanges[0])
}

func TestGetCurrentPriceFallsBackToREST(t *testing.T) {
	venue := newTestVenue(t)
	builder, _ := newTestBuilder(t, venue)

	price, err := builder.GetCurrentPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 45000.50, price, 1e-9)
}

func TestGetCurrentPricePrefersStream(t *testing.T) {
	venue := newTestVenue(t)
	builder, monitor := newTestBuilder(t, venue)
	require.NoError(t, monitor.Watch(context.Background(), "BTCUSDT", "3m"))

	price, err := builder.GetCurrentPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 219.0, price, 1e-9, "warm buffer beats the REST lookup")
}
