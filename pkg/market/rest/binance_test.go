package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/pkg/market"
	"marketpulse/pkg/market/exchanges"
)

func binanceKlineRow(openTime int64, open, high, low, close, volume float64) []interface{} {
	return []interface{}{
		openTime,
		fmt.Sprintf("%v", open), fmt.Sprintf("%v", high),
		fmt.Sprintf("%v", low), fmt.Sprintf("%v", close),
		fmt.Sprintf("%v", volume),
		openTime + 180_000 - 1,
		fmt.Sprintf("%v", volume*close),
		42,
		fmt.Sprintf("%v", volume/2), fmt.Sprintf("%v", volume*close/2),
		"0",
	}
}

func newBinanceClient(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	server := httptest.NewServer(handler)
	client := NewClient(exchanges.Select("binance", ""), WithBaseURL(server.URL), WithMaxRetries(0))
	return server, client
}

func TestBinanceGetKlines(t *testing.T) {
	server, client := newBinanceClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fapi/v1/klines", r.URL.Path)
		require.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		require.Equal(t, "3m", r.URL.Query().Get("interval"))
		require.Equal(t, "2", r.URL.Query().Get("limit"))
		rows := [][]interface{}{
			binanceKlineRow(1_700_000_000_000, 100, 110, 95, 105, 12.5),
			binanceKlineRow(1_700_000_180_000, 105, 112, 104, 111, 9.25),
		}
		json.NewEncoder(w).Encode(rows)
	})
	defer server.Close()

	klines, err := client.GetKlines(context.Background(), "BTCUSDT", "3m", 2)
	require.NoError(t, err)
	require.Len(t, klines, 2)
	assert.Equal(t, int64(1_700_000_000_000), klines[0].OpenTime)
	assert.InDelta(t, 105.0, klines[0].Close, 1e-9)
	assert.InDelta(t, 12.5, klines[0].Volume, 1e-9)
	assert.Equal(t, 42, klines[0].TradeCount)
	assert.InDelta(t, 6.25, klines[0].TakerBuyBaseVolume, 1e-9)
	assert.InDelta(t, 111.0, klines[1].Close, 1e-9)
}

func TestBinanceGetKlinesShortRow(t *testing.T) {
	server, client := newBinanceClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([][]interface{}{{1, "2", "3"}})
	})
	defer server.Close()

	_, err := client.GetKlines(context.Background(), "BTCUSDT", "3m", 1)
	require.Error(t, err)
	var decodeErr *market.DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}

func TestBinanceGetCurrentPrice(t *testing.T) {
	server, client := newBinanceClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fapi/v1/ticker/price", r.URL.Path)
		fmt.Fprintf(w, `{"symbol":"BTCUSDT","price":"45678.91"}`)
	})
	defer server.Close()

	price, err := client.GetCurrentPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 45678.91, price, 1e-9)
}

func TestBinanceGetOpenInterest(t *testing.T) {
	server, client := newBinanceClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fapi/v1/openInterest", r.URL.Path)
		fmt.Fprintf(w, `{"openInterest":"82750.112","symbol":"BTCUSDT","time":1700000000000}`)
	})
	defer server.Close()

	oi, err := client.GetOpenInterest(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, oi)
	assert.InDelta(t, 82750.112, oi.Latest, 1e-9)
	assert.InDelta(t, 82750.112*0.999, oi.Average, 1e-6)
}

func TestBinanceGetFundingRate(t *testing.T) {
	server, client := newBinanceClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fapi/v1/premiumIndex", r.URL.Path)
		fmt.Fprintf(w, `{"symbol":"BTCUSDT","lastFundingRate":"0.00010000","nextFundingTime":1700000000000}`)
	})
	defer server.Close()

	rate, err := client.GetFundingRate(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 0.0001, rate, 1e-12)
}

func TestBinanceGetExchangeInfo(t *testing.T) {
	server, client := newBinanceClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fapi/v1/exchangeInfo", r.URL.Path)
		fmt.Fprintf(w, `{"symbols":[
			{"symbol":"BTCUSDT","status":"TRADING","contractType":"PERPETUAL","baseAsset":"BTC","quoteAsset":"USDT"},
			{"symbol":"ETHUSDT","status":"TRADING","contractType":"PERPETUAL","baseAsset":"ETH","quoteAsset":"USDT"}
		]}`)
	})
	defer server.Close()

	info, err := client.GetExchangeInfo(context.Background())
	require.NoError(t, err)
	require.Len(t, info.Symbols, 2)
	assert.Equal(t, "BTCUSDT", info.Symbols[0].Symbol)
	assert.Equal(t, "PERPETUAL", info.Symbols[0].ContractType)
}

func TestBinanceUSOpenInterestUnsupported(t *testing.T) {
	client := NewClient(exchanges.Select("binance_us", ""), WithMaxRetries(0))
	_, err := client.GetOpenInterest(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.True(t, errors.Is(err, market.ErrUnsupportedFeature))

	_, err = client.GetFundingRate(context.Background(), "BTCUSDT")
	assert.True(t, errors.Is(err, market.ErrUnsupportedFeature))
}

func TestRetryOnServerError(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			http.Error(w, "upstream busy", http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, `{"symbol":"BTCUSDT","price":"100"}`)
	}))
	defer server.Close()

	client := NewClient(exchanges.Select("binance", ""), WithBaseURL(server.URL), WithMaxRetries(3))
	price, err := client.GetCurrentPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, price, 1e-9)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestStatusErrorAfterRetriesExhausted(t *testing.T) {
	server, client := newBinanceClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "teapot", http.StatusTeapot)
	})
	defer server.Close()

	_, err := client.GetCurrentPrice(context.Background(), "BTCUSDT")
	require.Error(t, err)
	var statusErr *market.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTeapot, statusErr.Status)
}

func TestContextCancelledStopsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(exchanges.Select("binance", ""), WithBaseURL(server.URL), WithMaxRetries(5))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetCurrentPrice(ctx, "BTCUSDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
