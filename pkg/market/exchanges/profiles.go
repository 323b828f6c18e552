// Package exchanges holds the endpoint profiles for every supported
// venue. A Profile is pure configuration: clients receive one by value
// at construction time and never consult process-wide state.
package exchanges

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"marketpulse/pkg/market"
)

// ID identifies a supported exchange.
type ID string

const (
	Binance     ID = "binance"     // default; blocked for some US IPs
	Bybit       ID = "bybit"       // recommended fallback for US users
	BinanceUS   ID = "binance_us"  // spot only: no open interest or funding
	Finnhub     ID = "finnhub"     // needs an API key; no derivatives data
	Hyperliquid ID = "hyperliquid" // DEX; POST /info for all REST data
)

// Profile describes one exchange's endpoints. Immutable once selected.
type Profile struct {
	ID          ID
	BaseURL     string
	KlinesPath  string
	PricePath   string
	OIPath      string
	FundingPath string
	WSStreamURL string
	APIKey      string
}

var profiles = map[ID]Profile{
	Binance: {
		ID:          Binance,
		BaseURL:     "https://fapi.binance.com",
		KlinesPath:  "/fapi/v1/klines",
		PricePath:   "/fapi/v1/ticker/price",
		OIPath:      "/fapi/v1/openInterest",
		FundingPath: "/fapi/v1/premiumIndex",
		WSStreamURL: "wss://fstream.binance.com/stream",
	},
	Bybit: {
		ID:          Bybit,
		BaseURL:     "https://api.bybit.com",
		KlinesPath:  "/v5/market/kline",
		PricePath:   "/v5/market/tickers",
		OIPath:      "/v5/market/open-interest",
		FundingPath: "/v5/market/tickers",
		WSStreamURL: "wss://stream.bybit.com/v5/public/linear",
	},
	BinanceUS: {
		ID:          BinanceUS,
		BaseURL:     "https://api.binance.us",
		KlinesPath:  "/api/v3/klines",
		PricePath:   "/api/v3/ticker/price",
		WSStreamURL: "wss://stream.binance.us:9443/stream",
	},
	Finnhub: {
		ID:         Finnhub,
		BaseURL:    "https://finnhub.io",
		KlinesPath: "/api/v1/crypto/candle",
		PricePath:  "/api/v1/quote",
	},
	Hyperliquid: {
		ID:          Hyperliquid,
		BaseURL:     "https://api.hyperliquid.xyz",
		KlinesPath:  "/info",
		PricePath:   "/info",
		OIPath:      "/info",
		FundingPath: "/info",
		WSStreamURL: "wss://api.hyperliquid.xyz/ws",
	},
}

// Select resolves an exchange id to its profile. Unknown ids fall back
// to the Binance default with a warning; selection never fails.
func Select(id string, apiKey string) Profile {
	key := ID(strings.ToLower(strings.TrimSpace(id)))
	profile, ok := profiles[key]
	if !ok {
		if key != "" {
			logx.Infof("market: unknown exchange %q, falling back to %s", id, Binance)
		}
		profile = profiles[Binance]
	}
	profile.APIKey = apiKey
	switch profile.ID {
	case BinanceUS:
		logx.Infof("market: %s provides spot data only; open interest and funding are unavailable", profile.ID)
	case Finnhub:
		if apiKey == "" {
			logx.Infof("market: %s requires an API key; configure api_key in market.yaml", profile.ID)
		}
	}
	return profile
}

// KlinesURL returns the kline snapshot endpoint.
func (p Profile) KlinesURL() string {
	return p.BaseURL + p.KlinesPath
}

// PriceURL returns the ticker price endpoint.
func (p Profile) PriceURL() string {
	return p.BaseURL + p.PricePath
}

// OpenInterestURL resolves the open interest endpoint for a symbol, or
// market.ErrUnsupportedFeature when the venue has none.
func (p Profile) OpenInterestURL(symbol string) (string, error) {
	if p.OIPath == "" {
		return "", fmt.Errorf("%w: %s has no open interest endpoint", market.ErrUnsupportedFeature, p.ID)
	}
	switch p.ID {
	case Bybit:
		return fmt.Sprintf("%s%s?category=linear&symbol=%s", p.BaseURL, p.OIPath, symbol), nil
	case Hyperliquid:
		// POST /info; the caller supplies the request body.
		return p.BaseURL + p.OIPath, nil
	default:
		return fmt.Sprintf("%s%s?symbol=%s", p.BaseURL, p.OIPath, symbol), nil
	}
}

// FundingURL resolves the funding rate endpoint for a symbol, or
// market.ErrUnsupportedFeature when the venue has none.
func (p Profile) FundingURL(symbol string) (string, error) {
	if p.FundingPath == "" {
		return "", fmt.Errorf("%w: %s has no funding rate endpoint", market.ErrUnsupportedFeature, p.ID)
	}
	switch p.ID {
	case Bybit:
		return fmt.Sprintf("%s%s?category=linear&symbol=%s", p.BaseURL, p.FundingPath, symbol), nil
	case Hyperliquid:
		return p.BaseURL + p.FundingPath, nil
	default:
		return fmt.Sprintf("%s%s?symbol=%s", p.BaseURL, p.FundingPath, symbol), nil
	}
}
