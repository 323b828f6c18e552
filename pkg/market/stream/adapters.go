package stream

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"marketpulse/pkg/market"
	"marketpulse/pkg/market/exchanges"
)

// sendKlineSubscribe builds the venue-specific subscribe message for a
// batch of symbols on one interval.
func (c *Client) sendKlineSubscribe(symbols []string, interval string) error {
	switch c.profile.ID {
	case exchanges.Bybit:
		args := make([]string, len(symbols))
		code := exchanges.ToBybitInterval(interval)
		for i, symbol := range symbols {
			args[i] = "kline." + code + "." + strings.ToUpper(symbol)
		}
		return c.sendJSON(map[string]interface{}{
			"op":   "subscribe",
			"args": args,
		})
	case exchanges.Hyperliquid:
		// Hyperliquid takes one subscription per message.
		for _, symbol := range symbols {
			msg := map[string]interface{}{
				"method": "subscribe",
				"subscription": map[string]string{
					"type":     "candle",
					"coin":     market.StripQuote(symbol),
					"interval": exchanges.ToHyperliquidInterval(interval),
				},
			}
			if err := c.sendJSON(msg); err != nil {
				return err
			}
		}
		return nil
	default:
		streams := make([]string, len(symbols))
		for i, symbol := range symbols {
			streams[i] = KlineStreamName(symbol, interval)
		}
		return c.sendRawSubscribe(streams)
	}
}

// sendRawSubscribe issues a Binance-style SUBSCRIBE for pre-built
// stream names.
func (c *Client) sendRawSubscribe(streams []string) error {
	return c.sendJSON(map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": streams,
		"id":     time.Now().UnixNano(),
	})
}

// dispatch routes one raw frame to its subscriber, translating venue
// payloads into the canonical shape first. Unrecognized frames
// (subscribe acks, pings, heartbeats) are dropped silently.
func (c *Client) dispatch(message []byte) {
	switch c.profile.ID {
	case exchanges.Bybit:
		c.dispatchBybit(message)
	case exchanges.Hyperliquid:
		c.dispatchHyperliquid(message)
	default:
		c.dispatchBinance(message)
	}
}

// dispatchBinance handles the combined-stream envelope
// {"stream": "...", "data": {...}}; the payload is already canonical.
func (c *Client) dispatchBinance(message []byte) {
	var envelope struct {
		Stream string          `json:"stream"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(message, &envelope); err != nil || envelope.Stream == "" {
		return
	}
	c.deliver(envelope.Stream, envelope.Data)
}

// dispatchBybit translates topic "kline.<code>.<SYMBOL>" frames into
// canonical kline events keyed by "<symbol>@kline_<interval>".
func (c *Client) dispatchBybit(message []byte) {
	var frame struct {
		Topic string          `json:"topic"`
		Type  string          `json:"type"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(message, &frame); err != nil || frame.Topic == "" {
		c.logBybitAck(message)
		return
	}
	if !strings.HasPrefix(frame.Topic, "kline.") {
		return
	}
	parts := strings.Split(frame.Topic, ".")
	if len(parts) < 3 {
		return
	}
	interval := exchanges.FromBybitInterval(parts[1])
	symbol := strings.ToUpper(parts[2])
	stream := KlineStreamName(symbol, interval)

	// Bybit wraps the bar in a one-element array.
	var bars []struct {
		Start    int64  `json:"start"`
		Open     string `json:"open"`
		High     string `json:"high"`
		Low      string `json:"low"`
		Close    string `json:"close"`
		Volume   string `json:"volume"`
		Turnover string `json:"turnover"`
		Confirm  bool   `json:"confirm"`
	}
	if err := json.Unmarshal(frame.Data, &bars); err != nil || len(bars) == 0 {
		return
	}
	bar := bars[0]

	event := KlineEvent{
		EventType: "kline",
		EventTime: time.Now().UnixMilli(),
		Symbol:    symbol,
		Kline: KlinePayload{
			StartTime:           bar.Start,
			CloseTime:           bar.Start + exchanges.IntervalMillis(interval),
			Symbol:              symbol,
			Interval:            interval,
			OpenPrice:           bar.Open,
			ClosePrice:          bar.Close,
			HighPrice:           bar.High,
			LowPrice:            bar.Low,
			Volume:              bar.Volume,
			IsFinal:             bar.Confirm,
			QuoteVolume:         bar.Turnover,
			TakerBuyBaseVolume:  "0",
			TakerBuyQuoteVolume: "0",
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	c.deliver(stream, payload)
}

// logBybitAck reports subscribe acks so failed subscriptions show up in
// the logs instead of vanishing.
func (c *Client) logBybitAck(message []byte) {
	var ack struct {
		Op      string `json:"op"`
		Success *bool  `json:"success"`
		RetMsg  string `json:"ret_msg"`
	}
	if err := json.Unmarshal(message, &ack); err != nil || ack.Op != "subscribe" || ack.Success == nil {
		return
	}
	if !*ack.Success {
		logx.Errorf("market: bybit subscribe rejected: %s", ack.RetMsg)
	}
}

// dispatchHyperliquid translates candle channel frames. Coins arrive
// bare ("BTC") and are normalized back to the canonical symbol before
// subscriber lookup.
func (c *Client) dispatchHyperliquid(message []byte) {
	var frame struct {
		Channel string `json:"channel"`
		Data    struct {
			T  int64   `json:"t"`
			T2 int64   `json:"T"`
			S  string  `json:"s"`
			I  string  `json:"i"`
			O  string  `json:"o"`
			C  string  `json:"c"`
			H  string  `json:"h"`
			L  string  `json:"l"`
			V  string  `json:"v"`
			N  float64 `json:"n"`
		} `json:"data"`
	}
	if err := json.Unmarshal(message, &frame); err != nil || frame.Channel != "candle" {
		return
	}
	coin := frame.Data.S
	interval := frame.Data.I
	if coin == "" || interval == "" {
		return
	}
	symbol := market.Normalize(coin)
	stream := KlineStreamName(symbol, interval)

	closeTime := frame.Data.T2
	if closeTime == 0 {
		closeTime = frame.Data.T + exchanges.IntervalMillis(interval)
	}
	event := KlineEvent{
		EventType: "kline",
		EventTime: frame.Data.T,
		Symbol:    symbol,
		Kline: KlinePayload{
			StartTime:           frame.Data.T,
			CloseTime:           closeTime,
			Symbol:              symbol,
			Interval:            interval,
			OpenPrice:           frame.Data.O,
			ClosePrice:          frame.Data.C,
			HighPrice:           frame.Data.H,
			LowPrice:            frame.Data.L,
			Volume:              frame.Data.V,
			NumberOfTrades:      int(frame.Data.N),
			IsFinal:             true,
			QuoteVolume:         approximateTurnover(frame.Data.V, frame.Data.C),
			TakerBuyBaseVolume:  "0",
			TakerBuyQuoteVolume: "0",
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	c.deliver(stream, payload)
}

// approximateTurnover estimates quote volume from base volume and the
// close; Hyperliquid only reports base volume.
func approximateTurnover(volume, close string) string {
	v, err1 := strconv.ParseFloat(volume, 64)
	c, err2 := strconv.ParseFloat(close, 64)
	if err1 != nil || err2 != nil {
		return "0"
	}
	return strconv.FormatFloat(v*c, 'f', -1, 64)
}
