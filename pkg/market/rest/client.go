// Package rest fetches market data snapshots over the exchanges' REST
// APIs and converts every venue-specific payload into the canonical
// market types.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"marketpulse/pkg/market"
	"marketpulse/pkg/market/exchanges"
)

const (
	defaultHTTPTimeout      = 30 * time.Second
	defaultMaxRetries       = 3
	defaultRetryBackoffBase = 150 * time.Millisecond
)

// Client issues REST requests against a single exchange profile.
type Client struct {
	profile    exchanges.Profile
	httpClient *http.Client
	maxRetries int
}

// Option configures a new Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the profile's base URL. Used in tests against
// httptest servers.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.profile.BaseURL = base
		}
	}
}

// WithTimeout adjusts the per-request timeout on the underlying
// http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 && c.httpClient != nil {
			c.httpClient.Timeout = d
		}
	}
}

// WithMaxRetries adjusts the retry budget.
func WithMaxRetries(max int) Option {
	return func(c *Client) {
		if max >= 0 {
			c.maxRetries = max
		}
	}
}

// NewClient constructs a REST client for the given exchange profile.
// An HTTPS/HTTP proxy is picked up from the environment when set.
func NewClient(profile exchanges.Profile, opts ...Option) *Client {
	httpClient := &http.Client{Timeout: defaultHTTPTimeout}
	if proxyURL := proxyFromEnv(); proxyURL != nil {
		httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		logx.Infof("market: using proxy server %s", proxyURL.Host)
	}

	client := &Client{
		profile:    profile,
		httpClient: httpClient,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = httpClient
	}
	return client
}

// Profile returns the exchange profile this client talks to.
func (c *Client) Profile() exchanges.Profile { return c.profile }

// proxyFromEnv reads HTTPS_PROXY / HTTP_PROXY (both cases, HTTPS
// preferred since the exchange APIs are HTTPS). A malformed value is
// logged and skipped rather than failing construction.
func proxyFromEnv() *url.URL {
	proxyStr := os.Getenv("HTTPS_PROXY")
	if proxyStr == "" {
		proxyStr = os.Getenv("https_proxy")
	}
	if proxyStr == "" {
		proxyStr = os.Getenv("HTTP_PROXY")
	}
	if proxyStr == "" {
		proxyStr = os.Getenv("http_proxy")
	}
	if proxyStr == "" {
		return nil
	}
	proxyURL, err := url.Parse(proxyStr)
	if err != nil {
		logx.Errorf("market: malformed proxy URL %q: %v", proxyStr, err)
		return nil
	}
	return proxyURL
}

// doGet issues a GET with retries and returns the response body.
func (c *Client) doGet(ctx context.Context, rawURL string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, rawURL, nil)
}

// doPostJSON issues a POST with a JSON body and retries, returning the
// response body. Hyperliquid serves everything through POST /info.
func (c *Client) doPostJSON(ctx context.Context, rawURL string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &market.DecodeError{Exchange: string(c.profile.ID), Err: err}
	}
	return c.do(ctx, http.MethodPost, rawURL, body)
}

func (c *Client) do(ctx context.Context, method, rawURL string, payload []byte) ([]byte, error) {
	var lastErr error
	backoff := defaultRetryBackoffBase
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = readErr
			case resp.StatusCode < 200 || resp.StatusCode >= 300:
				lastErr = &market.HTTPStatusError{
					Exchange: string(c.profile.ID),
					Status:   resp.StatusCode,
					Body:     body,
				}
			default:
				return body, nil
			}
		}

		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}
	return nil, lastErr
}

func (c *Client) decodeErr(body []byte, err error) error {
	return &market.DecodeError{Exchange: string(c.profile.ID), Body: body, Err: err}
}

// GetKlines fetches up to limit klines for symbol at the given interval
// (Binance notation, e.g. "3m", "4h"), oldest first.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]market.Kline, error) {
	switch c.profile.ID {
	case exchanges.Bybit:
		return c.bybitKlines(ctx, symbol, interval, limit)
	case exchanges.Finnhub:
		return c.finnhubKlines(ctx, symbol, interval, limit)
	case exchanges.Hyperliquid:
		return c.hyperliquidKlines(ctx, symbol, interval, limit)
	default:
		return c.binanceKlines(ctx, symbol, interval, limit)
	}
}

// GetCurrentPrice fetches the latest trade or mid price for symbol.
func (c *Client) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	switch c.profile.ID {
	case exchanges.Bybit:
		return c.bybitPrice(ctx, symbol)
	case exchanges.Finnhub:
		return c.finnhubPrice(ctx, symbol)
	case exchanges.Hyperliquid:
		return c.hyperliquidPrice(ctx, symbol)
	default:
		return c.binancePrice(ctx, symbol)
	}
}

// GetOpenInterest fetches derivatives open interest for symbol. Venues
// without an open interest endpoint return market.ErrUnsupportedFeature.
// The average is approximated from the latest reading; the exchanges
// expose no historical average on these endpoints.
func (c *Client) GetOpenInterest(ctx context.Context, symbol string) (*market.OpenInterest, error) {
	var (
		oi  float64
		err error
	)
	switch c.profile.ID {
	case exchanges.Bybit:
		oi, err = c.bybitOpenInterest(ctx, symbol)
	case exchanges.Hyperliquid:
		oi, err = c.hyperliquidOpenInterest(ctx, symbol)
	case exchanges.Binance:
		oi, err = c.binanceOpenInterest(ctx, symbol)
	default:
		return nil, c.unsupported("open interest")
	}
	if err != nil {
		return nil, err
	}
	if oi == 0 {
		logx.Infof("market: open interest for %s is 0 (bad data or untraded symbol)", symbol)
	}
	return &market.OpenInterest{
		Latest:  oi,
		Average: oi * 0.999,
	}, nil
}

// GetFundingRate fetches the latest funding rate for symbol. Venues
// without funding data return market.ErrUnsupportedFeature.
func (c *Client) GetFundingRate(ctx context.Context, symbol string) (float64, error) {
	switch c.profile.ID {
	case exchanges.Bybit:
		return c.bybitFundingRate(ctx, symbol)
	case exchanges.Hyperliquid:
		return c.hyperliquidFundingRate(ctx, symbol)
	case exchanges.Binance:
		return c.binanceFundingRate(ctx, symbol)
	default:
		return 0, c.unsupported("funding rate")
	}
}

// GetExchangeInfo fetches the instrument directory. Finnhub has no such
// endpoint and yields an empty listing.
func (c *Client) GetExchangeInfo(ctx context.Context) (*market.ExchangeInfo, error) {
	switch c.profile.ID {
	case exchanges.Bybit:
		return c.bybitExchangeInfo(ctx)
	case exchanges.Finnhub:
		return &market.ExchangeInfo{Symbols: []market.SymbolInfo{}}, nil
	case exchanges.Hyperliquid:
		return c.hyperliquidExchangeInfo(ctx)
	default:
		return c.binanceExchangeInfo(ctx)
	}
}

func (c *Client) unsupported(feature string) error {
	return &unsupportedError{exchange: string(c.profile.ID), feature: feature}
}

type unsupportedError struct {
	exchange string
	feature  string
}

func (e *unsupportedError) Error() string {
	return "market: " + e.exchange + " does not provide " + e.feature
}

func (e *unsupportedError) Unwrap() error { return market.ErrUnsupportedFeature }
