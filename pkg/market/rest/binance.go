package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"marketpulse/pkg/market"
	"marketpulse/pkg/market/exchanges"
)

// klineRow is the Binance kline wire format: an 11+ element array of
// mixed numbers and numeric strings.
type klineRow []interface{}

func parseBinanceKline(row klineRow) (market.Kline, error) {
	var k market.Kline
	if len(row) < 11 {
		return k, fmt.Errorf("kline row has %d fields, want 11", len(row))
	}
	openTime, ok := row[0].(float64)
	if !ok {
		return k, fmt.Errorf("kline open time is not a number")
	}
	closeTime, ok := row[6].(float64)
	if !ok {
		return k, fmt.Errorf("kline close time is not a number")
	}
	trades, ok := row[8].(float64)
	if !ok {
		return k, fmt.Errorf("kline trade count is not a number")
	}

	k.OpenTime = int64(openTime)
	k.CloseTime = int64(closeTime)
	k.TradeCount = int(trades)
	for _, field := range []struct {
		idx int
		dst *float64
	}{
		{1, &k.Open}, {2, &k.High}, {3, &k.Low}, {4, &k.Close},
		{5, &k.Volume}, {7, &k.QuoteVolume},
		{9, &k.TakerBuyBaseVolume}, {10, &k.TakerBuyQuoteVolume},
	} {
		s, ok := row[field.idx].(string)
		if !ok {
			return k, fmt.Errorf("kline field %d is not a string", field.idx)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return k, fmt.Errorf("kline field %d: %w", field.idx, err)
		}
		*field.dst = v
	}
	return k, nil
}

// binanceKlines serves both Binance futures and the Binance.US spot
// API; their kline schemas are identical.
func (c *Client) binanceKlines(ctx context.Context, symbol, interval string, limit int) ([]market.Kline, error) {
	u := fmt.Sprintf("%s?symbol=%s&interval=%s&limit=%d",
		c.profile.KlinesURL(), url.QueryEscape(symbol), url.QueryEscape(interval), limit)
	body, err := c.doGet(ctx, u)
	if err != nil {
		return nil, err
	}

	var rows []klineRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, c.decodeErr(body, err)
	}
	klines := make([]market.Kline, 0, len(rows))
	for _, row := range rows {
		k, err := parseBinanceKline(row)
		if err != nil {
			return nil, c.decodeErr(body, err)
		}
		klines = append(klines, k)
	}
	return klines, nil
}

func (c *Client) binancePrice(ctx context.Context, symbol string) (float64, error) {
	u := fmt.Sprintf("%s?symbol=%s", c.profile.PriceURL(), url.QueryEscape(symbol))
	body, err := c.doGet(ctx, u)
	if err != nil {
		return 0, err
	}

	var ticker struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &ticker); err != nil {
		return 0, c.decodeErr(body, err)
	}
	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, c.decodeErr(body, err)
	}
	return price, nil
}

func (c *Client) binanceOpenInterest(ctx context.Context, symbol string) (float64, error) {
	u, err := c.oiURL(symbol)
	if err != nil {
		return 0, err
	}
	body, err := c.doGet(ctx, u)
	if err != nil {
		return 0, err
	}

	var result struct {
		OpenInterest string `json:"openInterest"`
		Symbol       string `json:"symbol"`
		Time         int64  `json:"time"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, c.decodeErr(body, err)
	}
	oi, err := strconv.ParseFloat(result.OpenInterest, 64)
	if err != nil {
		return 0, c.decodeErr(body, err)
	}
	return oi, nil
}

func (c *Client) binanceFundingRate(ctx context.Context, symbol string) (float64, error) {
	u, err := c.fundingURL(symbol)
	if err != nil {
		return 0, err
	}
	body, err := c.doGet(ctx, u)
	if err != nil {
		return 0, err
	}

	var result struct {
		Symbol          string `json:"symbol"`
		MarkPrice       string `json:"markPrice"`
		IndexPrice      string `json:"indexPrice"`
		LastFundingRate string `json:"lastFundingRate"`
		NextFundingTime int64  `json:"nextFundingTime"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, c.decodeErr(body, err)
	}
	rate, err := strconv.ParseFloat(result.LastFundingRate, 64)
	if err != nil {
		return 0, c.decodeErr(body, err)
	}
	return rate, nil
}

func (c *Client) binanceExchangeInfo(ctx context.Context) (*market.ExchangeInfo, error) {
	path := "/fapi/v1/exchangeInfo"
	if c.profile.ID == exchanges.BinanceUS {
		path = "/api/v3/exchangeInfo"
	}
	body, err := c.doGet(ctx, c.profile.BaseURL+path)
	if err != nil {
		return nil, err
	}

	var info market.ExchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, c.decodeErr(body, err)
	}
	return &info, nil
}

func (c *Client) oiURL(symbol string) (string, error) {
	u, err := c.profile.OpenInterestURL(symbol)
	if err != nil {
		return "", err
	}
	return u, nil
}

func (c *Client) fundingURL(symbol string) (string, error) {
	u, err := c.profile.FundingURL(symbol)
	if err != nil {
		return "", err
	}
	return u, nil
}
