package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"marketpulse/pkg/market"
	"marketpulse/pkg/market/exchanges"
)

// infoRequest is the shared envelope for Hyperliquid /info requests.
type infoRequest struct {
	Type string      `json:"type"`
	Req  interface{} `json:"req,omitempty"`
}

type candleSnapshotRequest struct {
	Coin      string `json:"coin"`
	Interval  string `json:"interval"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
}

type hlCandle struct {
	T      int64   `json:"t"`        // Open timestamp (ms)
	TClose int64   `json:"T"`        // Close timestamp (ms)
	S      string  `json:"s"`        // Symbol
	I      string  `json:"i"`        // Interval
	O      float64 `json:"o,string"` // Open price
	C      float64 `json:"c,string"` // Close price
	H      float64 `json:"h,string"` // High price
	L      float64 `json:"l,string"` // Low price
	V      float64 `json:"v,string"` // Volume (base asset)
	N      float64 `json:"n"`        // Trade count, 0 when absent
}

type hlUniverseEntry struct {
	Name         string `json:"name"`
	SzDecimals   int    `json:"szDecimals"`
	IsDelisted   bool   `json:"isDelisted"`
	OnlyIsolated bool   `json:"onlyIsolated"`
}

type hlAssetCtx struct {
	Funding      string `json:"funding"`
	OpenInterest string `json:"openInterest"`
	MarkPx       string `json:"markPx"`
	MidPx        string `json:"midPx"`
}

// hlMetaAndAssetCtxs handles both documented payload shapes: a single
// object and a two-element [meta, assetCtxs] array.
type hlMetaAndAssetCtxs struct {
	Universe  []hlUniverseEntry
	AssetCtxs []hlAssetCtx
}

func (m *hlMetaAndAssetCtxs) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch len(raw) {
	case 0:
		return fmt.Errorf("unexpected metaAndAssetCtxs payload: empty array")
	case 1:
		var meta struct {
			Universe  []hlUniverseEntry `json:"universe"`
			AssetCtxs []hlAssetCtx      `json:"assetCtxs"`
		}
		if err := json.Unmarshal(raw[0], &meta); err != nil {
			return err
		}
		m.Universe = meta.Universe
		m.AssetCtxs = meta.AssetCtxs
	default:
		var meta struct {
			Universe []hlUniverseEntry `json:"universe"`
		}
		if err := json.Unmarshal(raw[0], &meta); err != nil {
			return err
		}
		var assetCtxs []hlAssetCtx
		if err := json.Unmarshal(raw[1], &assetCtxs); err != nil {
			return err
		}
		m.Universe = meta.Universe
		m.AssetCtxs = assetCtxs
	}
	return nil
}

func (c *Client) infoURL() string { return c.profile.BaseURL + "/info" }

func (c *Client) hyperliquidKlines(ctx context.Context, symbol, interval string, limit int) ([]market.Kline, error) {
	coin := market.StripQuote(symbol)
	endTime := time.Now().UnixMilli()
	startTime := endTime - int64(limit)*exchanges.IntervalMillis(interval)

	req := infoRequest{
		Type: "candleSnapshot",
		Req: candleSnapshotRequest{
			Coin:      coin,
			Interval:  exchanges.ToHyperliquidInterval(interval),
			StartTime: startTime,
			EndTime:   endTime,
		},
	}
	body, err := c.doPostJSON(ctx, c.infoURL(), req)
	if err != nil {
		return nil, err
	}

	var candles []hlCandle
	if err := json.Unmarshal(body, &candles); err != nil {
		return nil, c.decodeErr(body, err)
	}
	klines := make([]market.Kline, 0, len(candles))
	for _, candle := range candles {
		closeTime := candle.TClose
		if closeTime == 0 {
			closeTime = candle.T + exchanges.IntervalMillis(interval)
		}
		klines = append(klines, market.Kline{
			OpenTime:   candle.T,
			Open:       candle.O,
			High:       candle.H,
			Low:        candle.L,
			Close:      candle.C,
			Volume:     candle.V,
			CloseTime:  closeTime,
			TradeCount: int(candle.N),
			// Volume is base asset; approximate turnover from close.
			QuoteVolume: candle.V * candle.C,
		})
	}
	return klines, nil
}

func (c *Client) hyperliquidPrice(ctx context.Context, symbol string) (float64, error) {
	body, err := c.doPostJSON(ctx, c.infoURL(), infoRequest{Type: "allMids"})
	if err != nil {
		return 0, err
	}

	var allMids map[string]string
	if err := json.Unmarshal(body, &allMids); err != nil {
		return 0, c.decodeErr(body, err)
	}
	coin := market.StripQuote(symbol)
	priceStr, ok := allMids[coin]
	if !ok {
		return 0, fmt.Errorf("market: hyperliquid has no mid price for %s", coin)
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, c.decodeErr(body, err)
	}
	return price, nil
}

// hyperliquidAssetCtx resolves the per-asset context carrying funding
// and open interest for symbol.
func (c *Client) hyperliquidAssetCtx(ctx context.Context, symbol string) (hlAssetCtx, error) {
	body, err := c.doPostJSON(ctx, c.infoURL(), infoRequest{Type: "metaAndAssetCtxs"})
	if err != nil {
		return hlAssetCtx{}, err
	}

	var payload hlMetaAndAssetCtxs
	if err := json.Unmarshal(body, &payload); err != nil {
		return hlAssetCtx{}, c.decodeErr(body, err)
	}
	coin := market.StripQuote(symbol)
	for i, entry := range payload.Universe {
		if entry.Name == coin && i < len(payload.AssetCtxs) {
			return payload.AssetCtxs[i], nil
		}
	}
	return hlAssetCtx{}, fmt.Errorf("market: hyperliquid does not list %s", coin)
}

func (c *Client) hyperliquidOpenInterest(ctx context.Context, symbol string) (float64, error) {
	assetCtx, err := c.hyperliquidAssetCtx(ctx, symbol)
	if err != nil {
		return 0, err
	}
	oi, err := strconv.ParseFloat(assetCtx.OpenInterest, 64)
	if err != nil {
		return 0, fmt.Errorf("market: parse hyperliquid open interest: %w", err)
	}
	return oi, nil
}

func (c *Client) hyperliquidFundingRate(ctx context.Context, symbol string) (float64, error) {
	assetCtx, err := c.hyperliquidAssetCtx(ctx, symbol)
	if err != nil {
		return 0, err
	}
	rate, err := strconv.ParseFloat(assetCtx.Funding, 64)
	if err != nil {
		return 0, fmt.Errorf("market: parse hyperliquid funding rate: %w", err)
	}
	return rate, nil
}

// hyperliquidExchangeInfo maps the asset universe into the canonical
// listing; coins are reported bare ("BTC") and get the default quote
// suffix appended for consistency with the rest of the system.
func (c *Client) hyperliquidExchangeInfo(ctx context.Context) (*market.ExchangeInfo, error) {
	body, err := c.doPostJSON(ctx, c.infoURL(), infoRequest{Type: "meta"})
	if err != nil {
		return nil, err
	}

	var meta struct {
		Universe []hlUniverseEntry `json:"universe"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, c.decodeErr(body, err)
	}

	info := &market.ExchangeInfo{}
	for _, asset := range meta.Universe {
		if asset.IsDelisted {
			continue
		}
		info.Symbols = append(info.Symbols, market.SymbolInfo{
			Symbol:       asset.Name + market.DefaultQuoteAsset,
			Status:       "TRADING",
			ContractType: "PERPETUAL",
			BaseAsset:    asset.Name,
			QuoteAsset:   market.DefaultQuoteAsset,
		})
	}
	return info, nil
}
