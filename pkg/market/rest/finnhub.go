package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"marketpulse/pkg/market"
	"marketpulse/pkg/market/exchanges"
)

// errFinnhubKeyMissing is returned before any network call when the
// profile carries no API key; every Finnhub endpoint requires one.
var errFinnhubKeyMissing = fmt.Errorf("market: finnhub API key not configured")

func (c *Client) finnhubKlines(ctx context.Context, symbol, interval string, limit int) ([]market.Kline, error) {
	if c.profile.APIKey == "" {
		return nil, errFinnhubKeyMissing
	}

	to := time.Now().Unix()
	from := to - int64(limit)*int64(exchanges.IntervalDuration(interval)/time.Second)
	q := url.Values{}
	q.Set("symbol", "BINANCE:"+symbol)
	q.Set("resolution", exchanges.ToFinnhubResolution(interval))
	q.Set("from", strconv.FormatInt(from, 10))
	q.Set("to", strconv.FormatInt(to, 10))
	q.Set("token", c.profile.APIKey)

	body, err := c.doGet(ctx, c.profile.KlinesURL()+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return nil, fmt.Errorf("market: finnhub API error: %s", errResp.Error)
	}

	// Parallel arrays keyed by single letters; s is "ok", "no_data" or
	// "error".
	var response struct {
		S string    `json:"s"`
		O []float64 `json:"o"`
		H []float64 `json:"h"`
		L []float64 `json:"l"`
		C []float64 `json:"c"`
		V []float64 `json:"v"`
		T []int64   `json:"t"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, c.decodeErr(body, err)
	}
	if response.S != "ok" && response.S != "" {
		return nil, fmt.Errorf("market: finnhub API error: %s", response.S)
	}
	if len(response.T) == 0 {
		return nil, fmt.Errorf("market: finnhub returned no kline data for %s", symbol)
	}
	n := len(response.T)
	if len(response.O) < n || len(response.H) < n || len(response.L) < n ||
		len(response.C) < n || len(response.V) < n {
		return nil, c.decodeErr(body, fmt.Errorf("kline arrays are not the same length"))
	}

	intervalMs := exchanges.IntervalMillis(interval)
	klines := make([]market.Kline, 0, n)
	for i := 0; i < n; i++ {
		openTime := response.T[i] * 1000
		klines = append(klines, market.Kline{
			OpenTime:  openTime,
			Open:      response.O[i],
			High:      response.H[i],
			Low:       response.L[i],
			Close:     response.C[i],
			Volume:    response.V[i],
			CloseTime: openTime + intervalMs,
			// Finnhub reports no turnover; approximate from close.
			QuoteVolume: response.C[i] * response.V[i],
		})
	}
	return klines, nil
}

func (c *Client) finnhubPrice(ctx context.Context, symbol string) (float64, error) {
	if c.profile.APIKey == "" {
		return 0, errFinnhubKeyMissing
	}
	u := fmt.Sprintf("%s?symbol=BINANCE:%s&token=%s",
		c.profile.PriceURL(), url.QueryEscape(symbol), url.QueryEscape(c.profile.APIKey))
	body, err := c.doGet(ctx, u)
	if err != nil {
		return 0, err
	}

	var response struct {
		C  float64 `json:"c"`
		H  float64 `json:"h"`
		L  float64 `json:"l"`
		O  float64 `json:"o"`
		PC float64 `json:"pc"`
		T  int64   `json:"t"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return 0, c.decodeErr(body, err)
	}
	if response.C == 0 {
		return 0, fmt.Errorf("market: finnhub returned a zero price for %s", symbol)
	}
	return response.C, nil
}
