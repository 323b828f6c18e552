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

// bybitError surfaces the retCode/retMsg envelope Bybit wraps every v5
// response in.
func bybitError(retCode int, retMsg string) error {
	return fmt.Errorf("market: bybit API error: %s (code %d)", retMsg, retCode)
}

func (c *Client) bybitKlines(ctx context.Context, symbol, interval string, limit int) ([]market.Kline, error) {
	u := fmt.Sprintf("%s?category=linear&symbol=%s&interval=%s&limit=%d",
		c.profile.KlinesURL(), url.QueryEscape(symbol),
		url.QueryEscape(exchanges.ToBybitInterval(interval)), limit)
	body, err := c.doGet(ctx, u)
	if err != nil {
		return nil, err
	}

	var response struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			Category string     `json:"category"`
			List     [][]string `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, c.decodeErr(body, err)
	}
	if response.RetCode != 0 {
		return nil, bybitError(response.RetCode, response.RetMsg)
	}

	intervalMs := exchanges.IntervalMillis(interval)
	klines := make([]market.Kline, 0, len(response.Result.List))
	// Bybit lists bars newest first: [startTime, open, high, low,
	// close, volume, turnover].
	for i := len(response.Result.List) - 1; i >= 0; i-- {
		row := response.Result.List[i]
		if len(row) < 7 {
			return nil, c.decodeErr(body, fmt.Errorf("kline row has %d fields, want 7", len(row)))
		}
		openTime, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, c.decodeErr(body, err)
		}
		k := market.Kline{
			OpenTime:  openTime,
			CloseTime: openTime + intervalMs,
		}
		for _, field := range []struct {
			idx int
			dst *float64
		}{
			{1, &k.Open}, {2, &k.High}, {3, &k.Low}, {4, &k.Close},
			{5, &k.Volume}, {6, &k.QuoteVolume},
		} {
			v, err := strconv.ParseFloat(row[field.idx], 64)
			if err != nil {
				return nil, c.decodeErr(body, err)
			}
			*field.dst = v
		}
		klines = append(klines, k)
	}
	return klines, nil
}

func (c *Client) bybitPrice(ctx context.Context, symbol string) (float64, error) {
	u := fmt.Sprintf("%s?category=linear&symbol=%s", c.profile.PriceURL(), url.QueryEscape(symbol))
	body, err := c.doGet(ctx, u)
	if err != nil {
		return 0, err
	}

	var response struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List []struct {
				LastPrice string `json:"lastPrice"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return 0, c.decodeErr(body, err)
	}
	if response.RetCode != 0 || len(response.Result.List) == 0 {
		return 0, bybitError(response.RetCode, response.RetMsg)
	}
	price, err := strconv.ParseFloat(response.Result.List[0].LastPrice, 64)
	if err != nil {
		return 0, c.decodeErr(body, err)
	}
	return price, nil
}

func (c *Client) bybitOpenInterest(ctx context.Context, symbol string) (float64, error) {
	u, err := c.profile.OpenInterestURL(symbol)
	if err != nil {
		return 0, err
	}
	body, err := c.doGet(ctx, u)
	if err != nil {
		return 0, err
	}

	var response struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			Symbol       string `json:"symbol"`
			OpenInterest string `json:"openInterest"`
			List         []struct {
				OpenInterest string `json:"openInterest"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return 0, c.decodeErr(body, err)
	}
	if response.RetCode != 0 {
		return 0, bybitError(response.RetCode, response.RetMsg)
	}
	raw := response.Result.OpenInterest
	if raw == "" && len(response.Result.List) > 0 {
		raw = response.Result.List[0].OpenInterest
	}
	oi, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, c.decodeErr(body, err)
	}
	return oi, nil
}

func (c *Client) bybitFundingRate(ctx context.Context, symbol string) (float64, error) {
	u, err := c.profile.FundingURL(symbol)
	if err != nil {
		return 0, err
	}
	body, err := c.doGet(ctx, u)
	if err != nil {
		return 0, err
	}

	var response struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List []struct {
				Symbol      string `json:"symbol"`
				FundingRate string `json:"fundingRate"`
				MarkPrice   string `json:"markPrice"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return 0, c.decodeErr(body, err)
	}
	if response.RetCode != 0 || len(response.Result.List) == 0 {
		return 0, bybitError(response.RetCode, response.RetMsg)
	}
	rate, err := strconv.ParseFloat(response.Result.List[0].FundingRate, 64)
	if err != nil {
		return 0, c.decodeErr(body, err)
	}
	return rate, nil
}

func (c *Client) bybitExchangeInfo(ctx context.Context) (*market.ExchangeInfo, error) {
	u := c.profile.BaseURL + "/v5/market/instruments-info?category=linear"
	body, err := c.doGet(ctx, u)
	if err != nil {
		return nil, err
	}

	var response struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List []struct {
				Symbol       string `json:"symbol"`
				Status       string `json:"status"`
				ContractType string `json:"contractType"`
				BaseCoin     string `json:"baseCoin"`
				QuoteCoin    string `json:"quoteCoin"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, c.decodeErr(body, err)
	}
	if response.RetCode != 0 {
		return nil, bybitError(response.RetCode, response.RetMsg)
	}

	info := &market.ExchangeInfo{}
	for _, item := range response.Result.List {
		status := item.Status
		if status == "Trading" {
			status = "TRADING"
		}
		contractType := item.ContractType
		if contractType == "LinearPerpetual" {
			contractType = "PERPETUAL"
		}
		info.Symbols = append(info.Symbols, market.SymbolInfo{
			Symbol:       item.Symbol,
			Status:       status,
			ContractType: contractType,
			BaseAsset:    item.BaseCoin,
			QuoteAsset:   item.QuoteCoin,
		})
	}
	return info, nil
}
