// Package stream maintains live websocket subscriptions against the
// configured exchange and republishes every venue's messages as
// canonical (Binance-style) events.
package stream

import (
	"fmt"
	"strings"
)

// KlineEvent is the canonical kline push message. Payloads from other
// venues are translated into this shape before dispatch so consumers
// decode exactly one format.
type KlineEvent struct {
	EventType string       `json:"e"`
	EventTime int64        `json:"E"`
	Symbol    string       `json:"s"`
	Kline     KlinePayload `json:"k"`
}

// KlinePayload carries the bar itself. Prices and volumes are numeric
// strings on the wire.
type KlinePayload struct {
	StartTime           int64  `json:"t"`
	CloseTime           int64  `json:"T"`
	Symbol              string `json:"s"`
	Interval            string `json:"i"`
	FirstTradeID        int64  `json:"f"`
	LastTradeID         int64  `json:"L"`
	OpenPrice           string `json:"o"`
	ClosePrice          string `json:"c"`
	HighPrice           string `json:"h"`
	LowPrice            string `json:"l"`
	Volume              string `json:"v"`
	NumberOfTrades      int    `json:"n"`
	IsFinal             bool   `json:"x"`
	QuoteVolume         string `json:"q"`
	TakerBuyBaseVolume  string `json:"V"`
	TakerBuyQuoteVolume string `json:"Q"`
}

// TickerEvent is the canonical 24h rolling ticker push message.
type TickerEvent struct {
	EventType          string `json:"e"`
	EventTime          int64  `json:"E"`
	Symbol             string `json:"s"`
	PriceChange        string `json:"p"`
	PriceChangePercent string `json:"P"`
	WeightedAvgPrice   string `json:"w"`
	LastPrice          string `json:"c"`
	LastQty            string `json:"Q"`
	OpenPrice          string `json:"o"`
	HighPrice          string `json:"h"`
	LowPrice           string `json:"l"`
	Volume             string `json:"v"`
	QuoteVolume        string `json:"q"`
	OpenTime           int64  `json:"O"`
	CloseTime          int64  `json:"C"`
	FirstID            int64  `json:"F"`
	LastID             int64  `json:"L"`
	Count              int    `json:"n"`
}

// KlineStreamName builds the canonical stream key, e.g.
// "btcusdt@kline_3m". All venue topics are normalized to this key
// before subscriber lookup.
func KlineStreamName(symbol, interval string) string {
	return fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), interval)
}

// TickerStreamName builds the canonical ticker stream key.
func TickerStreamName(symbol string) string {
	return fmt.Sprintf("%s@ticker", strings.ToLower(symbol))
}

// MiniTickerStreamName builds the canonical mini ticker stream key.
func MiniTickerStreamName(symbol string) string {
	return fmt.Sprintf("%s@miniTicker", strings.ToLower(symbol))
}
