package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/pkg/market/exchanges"
)

func newFinnhubClient(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	server := httptest.NewServer(handler)
	client := NewClient(exchanges.Select("finnhub", "test-key"), WithBaseURL(server.URL), WithMaxRetries(0))
	return server, client
}

func TestFinnhubGetKlines(t *testing.T) {
	server, client := newFinnhubClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/crypto/candle", r.URL.Path)
		require.Equal(t, "BINANCE:BTCUSDT", r.URL.Query().Get("symbol"))
		require.Equal(t, "test-key", r.URL.Query().Get("token"))
		fmt.Fprintf(w, `{"s":"ok",
			"t":[1700000000,1700000180],
			"o":[100,105],"h":[110,112],"l":[95,104],"c":[105,111],"v":[12.5,9.25]}`)
	})
	defer server.Close()

	klines, err := client.GetKlines(context.Background(), "BTCUSDT", "3m", 2)
	require.NoError(t, err)
	require.Len(t, klines, 2)
	assert.Equal(t, int64(1_700_000_000_000), klines[0].OpenTime, "seconds converted to ms")
	assert.InDelta(t, 105.0, klines[0].Close, 1e-9)
	assert.InDelta(t, 105.0*12.5, klines[0].QuoteVolume, 1e-9)
	assert.Equal(t, klines[0].OpenTime+exchanges.IntervalMillis("3m"), klines[0].CloseTime)
}

func TestFinnhubGetKlinesNoData(t *testing.T) {
	server, client := newFinnhubClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"s":"no_data"}`)
	})
	defer server.Close()

	_, err := client.GetKlines(context.Background(), "BTCUSDT", "3m", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_data")
}

func TestFinnhubGetKlinesErrorObject(t *testing.T) {
	server, client := newFinnhubClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"error":"API limit reached"}`)
	})
	defer server.Close()

	_, err := client.GetKlines(context.Background(), "BTCUSDT", "3m", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API limit reached")
}

func TestFinnhubRequiresAPIKey(t *testing.T) {
	client := NewClient(exchanges.Select("finnhub", ""), WithMaxRetries(0))
	_, err := client.GetKlines(context.Background(), "BTCUSDT", "3m", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")

	_, err = client.GetCurrentPrice(context.Background(), "BTCUSDT")
	require.Error(t, err)
}

func TestFinnhubGetCurrentPrice(t *testing.T) {
	server, client := newFinnhubClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/quote", r.URL.Path)
		fmt.Fprintf(w, `{"c":0.00002070,"h":0.000021,"l":0.00002,"o":0.0000205,"pc":0.0000206,"t":1700000000}`)
	})
	defer server.Close()

	price, err := client.GetCurrentPrice(context.Background(), "SHIBUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 0.0000207, price, 1e-12)
}

func TestFinnhubZeroPriceIsError(t *testing.T) {
	server, client := newFinnhubClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"c":0}`)
	})
	defer server.Close()

	_, err := client.GetCurrentPrice(context.Background(), "BTCUSDT")
	require.Error(t, err)
}

func TestFinnhubExchangeInfoIsEmpty(t *testing.T) {
	client := NewClient(exchanges.Select("finnhub", "test-key"), WithMaxRetries(0))
	info, err := client.GetExchangeInfo(context.Background())
	require.NoError(t, err)
	assert.Empty(t, info.Symbols)
}
