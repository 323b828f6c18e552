package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/pkg/market"
	"marketpulse/pkg/market/exchanges"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// wsTestServer accepts one websocket connection at a time and exposes
// the received control messages plus a way to push frames down.
type wsTestServer struct {
	server *httptest.Server

	mu        sync.Mutex
	conn      *websocket.Conn
	received  []map[string]interface{}
	connected chan struct{}
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()
	ws := &wsTestServer{connected: make(chan struct{}, 4)}
	ws.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.mu.Lock()
		ws.conn = conn
		ws.mu.Unlock()
		ws.connected <- struct{}{}
		for {
			var msg map[string]interface{}
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			ws.mu.Lock()
			ws.received = append(ws.received, msg)
			ws.mu.Unlock()
		}
	}))
	t.Cleanup(ws.server.Close)
	return ws
}

func (ws *wsTestServer) url() string {
	return "ws" + strings.TrimPrefix(ws.server.URL, "http")
}

func (ws *wsTestServer) push(t *testing.T, payload interface{}) {
	t.Helper()
	ws.mu.Lock()
	conn := ws.conn
	ws.mu.Unlock()
	require.NotNil(t, conn)
	require.NoError(t, conn.WriteJSON(payload))
}

func (ws *wsTestServer) messages() []map[string]interface{} {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return append([]map[string]interface{}(nil), ws.received...)
}

func (ws *wsTestServer) dropConnection() {
	ws.mu.Lock()
	conn := ws.conn
	ws.conn = nil
	ws.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func newConnectedClient(t *testing.T, ws *wsTestServer, exchange string) *Client {
	t.Helper()
	client := NewClient(exchanges.Select(exchange, ""), WithURL(ws.url()))
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(client.Close)
	<-ws.connected
	require.Equal(t, Connected, client.State())
	return client
}

func TestConnectStateTransitions(t *testing.T) {
	ws := newWSTestServer(t)
	client := NewClient(exchanges.Select("binance", ""), WithURL(ws.url()))
	assert.Equal(t, Disconnected, client.State())

	require.NoError(t, client.Connect(context.Background()))
	assert.Equal(t, Connected, client.State())

	client.Close()
	assert.Equal(t, Closed, client.State())

	err := client.Connect(context.Background())
	require.Error(t, err, "closed client cannot reconnect")
}

func TestConnectWithoutEndpointIsUnsupported(t *testing.T) {
	client := NewClient(exchanges.Select("finnhub", "key"))
	err := client.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, market.ErrUnsupportedFeature)
}

func TestSubscribeKlineBinanceMessageShape(t *testing.T) {
	ws := newWSTestServer(t)
	client := newConnectedClient(t, ws, "binance")

	require.NoError(t, client.SubscribeKline("BTCUSDT", "3m"))
	waitFor(t, func() bool { return len(ws.messages()) == 1 }, "subscribe frame not received")

	msg := ws.messages()[0]
	assert.Equal(t, "SUBSCRIBE", msg["method"])
	params, ok := msg["params"].([]interface{})
	require.True(t, ok)
	require.Len(t, params, 1)
	assert.Equal(t, "btcusdt@kline_3m", params[0])
}

func TestSubscribeKlineBybitMessageShape(t *testing.T) {
	ws := newWSTestServer(t)
	client := newConnectedClient(t, ws, "bybit")

	require.NoError(t, client.SubscribeKline("btcusdt", "3m"))
	waitFor(t, func() bool { return len(ws.messages()) == 1 }, "subscribe frame not received")

	msg := ws.messages()[0]
	assert.Equal(t, "subscribe", msg["op"])
	args, ok := msg["args"].([]interface{})
	require.True(t, ok)
	require.Len(t, args, 1)
	assert.Equal(t, "kline.3.BTCUSDT", args[0])
}

func TestSubscribeKlineHyperliquidMessageShape(t *testing.T) {
	ws := newWSTestServer(t)
	client := newConnectedClient(t, ws, "hyperliquid")

	require.NoError(t, client.SubscribeKline("BTCUSDT", "3m"))
	waitFor(t, func() bool { return len(ws.messages()) == 1 }, "subscribe frame not received")

	msg := ws.messages()[0]
	assert.Equal(t, "subscribe", msg["method"])
	sub, ok := msg["subscription"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "candle", sub["type"])
	assert.Equal(t, "BTC", sub["coin"])
	assert.Equal(t, "3m", sub["interval"])
}

func TestBatchSubscribeSplitsBatches(t *testing.T) {
	ws := newWSTestServer(t)
	client := NewClient(exchanges.Select("binance", ""), WithURL(ws.url()), WithBatchSize(2))
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(client.Close)
	<-ws.connected

	require.NoError(t, client.BatchSubscribeKlines([]string{"AUSDT", "BUSDT", "CUSDT"}, "3m"))
	waitFor(t, func() bool { return len(ws.messages()) == 2 }, "expected two subscribe frames")

	first := ws.messages()[0]["params"].([]interface{})
	second := ws.messages()[1]["params"].([]interface{})
	assert.Len(t, first, 2)
	assert.Len(t, second, 1)
}

func TestDispatchBinanceDeliversCombinedStream(t *testing.T) {
	ws := newWSTestServer(t)
	client := newConnectedClient(t, ws, "binance")

	ch := client.AddSubscriber("btcusdt@kline_3m", 4)
	ws.push(t, map[string]interface{}{
		"stream": "btcusdt@kline_3m",
		"data": map[string]interface{}{
			"e": "kline", "E": 1700000000123, "s": "BTCUSDT",
			"k": map[string]interface{}{
				"t": 1700000000000, "T": 1700000179999, "s": "BTCUSDT", "i": "3m",
				"o": "100", "c": "105", "h": "110", "l": "95", "v": "12.5", "n": 42,
				"x": true, "q": "1312.5", "V": "6", "Q": "630",
			},
		},
	})

	select {
	case payload := <-ch:
		var event KlineEvent
		require.NoError(t, json.Unmarshal(payload, &event))
		assert.Equal(t, "kline", event.EventType)
		assert.Equal(t, "BTCUSDT", event.Kline.Symbol)
		assert.Equal(t, "105", event.Kline.ClosePrice)
		assert.True(t, event.Kline.IsFinal)
	case <-time.After(5 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestDispatchBybitTranslatesTopic(t *testing.T) {
	ws := newWSTestServer(t)
	client := newConnectedClient(t, ws, "bybit")

	ch := client.AddSubscriber("btcusdt@kline_3m", 4)
	ws.push(t, map[string]interface{}{
		"topic": "kline.3.BTCUSDT",
		"type":  "snapshot",
		"data": []map[string]interface{}{{
			"start": 1700000000000, "open": "100", "high": "110", "low": "95",
			"close": "105", "volume": "12.5", "turnover": "1312.5", "confirm": true,
		}},
	})

	select {
	case payload := <-ch:
		var event KlineEvent
		require.NoError(t, json.Unmarshal(payload, &event))
		assert.Equal(t, "kline", event.EventType)
		assert.Equal(t, "BTCUSDT", event.Symbol)
		assert.Equal(t, "3m", event.Kline.Interval)
		assert.Equal(t, int64(1700000000000), event.Kline.StartTime)
		assert.Equal(t, int64(1700000000000)+exchanges.IntervalMillis("3m"), event.Kline.CloseTime)
		assert.True(t, event.Kline.IsFinal)
	case <-time.After(5 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestDispatchHyperliquidNormalizesCoin(t *testing.T) {
	ws := newWSTestServer(t)
	client := newConnectedClient(t, ws, "hyperliquid")

	ch := client.AddSubscriber("btcusdt@kline_3m", 4)
	ws.push(t, map[string]interface{}{
		"channel": "candle",
		"data": map[string]interface{}{
			"t": 1700000000000, "T": 1700000179999, "s": "BTC", "i": "3m",
			"o": "100", "c": "105", "h": "110", "l": "95", "v": "12.5", "n": 42,
		},
	})

	select {
	case payload := <-ch:
		var event KlineEvent
		require.NoError(t, json.Unmarshal(payload, &event))
		assert.Equal(t, "BTCUSDT", event.Symbol, "bare coin normalized")
		assert.Equal(t, "12.5", event.Kline.Volume)
		assert.True(t, event.Kline.IsFinal)
	case <-time.After(5 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestDeliverDropsWhenSubscriberFull(t *testing.T) {
	ws := newWSTestServer(t)
	client := newConnectedClient(t, ws, "binance")

	// Capacity one and nobody reading: the second frame must be dropped
	// without stalling the read loop.
	ch := client.AddSubscriber("btcusdt@kline_3m", 1)
	frame := map[string]interface{}{
		"stream": "btcusdt@kline_3m",
		"data":   map[string]interface{}{"e": "kline"},
	}
	ws.push(t, frame)
	ws.push(t, frame)
	ws.push(t, frame)

	waitFor(t, func() bool { return len(ch) == 1 }, "first frame should be buffered")
	// A subsequent frame still arrives after draining, proving the read
	// loop survived the overflow.
	<-ch
	ws.push(t, frame)
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("read loop stalled after drop")
	}
}

func TestReconnectReplaysSubscriptions(t *testing.T) {
	ws := newWSTestServer(t)
	client := newConnectedClient(t, ws, "binance")

	require.NoError(t, client.SubscribeKline("BTCUSDT", "3m"))
	waitFor(t, func() bool { return len(ws.messages()) == 1 }, "initial subscribe not received")

	ws.dropConnection()
	select {
	case <-ws.connected:
	case <-time.After(10 * time.Second):
		t.Fatal("client did not reconnect")
	}
	waitFor(t, func() bool { return client.State() == Connected }, "client not connected after reconnect")
	waitFor(t, func() bool { return len(ws.messages()) == 2 }, "subscription not replayed")

	replayed := ws.messages()[1]
	params := replayed["params"].([]interface{})
	assert.Equal(t, "btcusdt@kline_3m", params[0])
}

func TestRemoveSubscriberIsIdempotent(t *testing.T) {
	ws := newWSTestServer(t)
	client := newConnectedClient(t, ws, "binance")

	ch := client.AddSubscriber("btcusdt@kline_3m", 1)
	client.RemoveSubscriber("btcusdt@kline_3m")
	_, open := <-ch
	assert.False(t, open, "channel closed on removal")

	client.RemoveSubscriber("btcusdt@kline_3m") // no-op
	client.RemoveSubscriber("never-added")      // no-op
}

func TestCloseClosesSubscriberChannels(t *testing.T) {
	ws := newWSTestServer(t)
	client := newConnectedClient(t, ws, "binance")

	ch := client.AddSubscriber("btcusdt@kline_3m", 1)
	client.Close()
	client.Close() // safe to repeat

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, Closed, client.State())
}

func TestSendWithoutConnection(t *testing.T) {
	client := NewClient(exchanges.Select("binance", ""))
	err := client.SubscribeKline("BTCUSDT", "3m")
	require.Error(t, err)
	assert.ErrorIs(t, err, market.ErrNotConnected)
}

func TestStreamNames(t *testing.T) {
	assert.Equal(t, "btcusdt@kline_3m", KlineStreamName("BTCUSDT", "3m"))
	assert.Equal(t, "ethusdt@ticker", TickerStreamName("ETHUSDT"))
	assert.Equal(t, "ethusdt@miniTicker", MiniTickerStreamName("ethusdt"))
}

func TestReconnectReplaysTickerSubscriptions(t *testing.T) {
	ws := newWSTestServer(t)
	client := newConnectedClient(t, ws, "binance")

	require.NoError(t, client.SubscribeKline("BTCUSDT", "3m"))
	require.NoError(t, client.SubscribeTicker("BTCUSDT"))
	waitFor(t, func() bool { return len(ws.messages()) == 2 }, "initial subscribes not received")

	ws.dropConnection()
	select {
	case <-ws.connected:
	case <-time.After(10 * time.Second):
		t.Fatal("client did not reconnect")
	}
	waitFor(t, func() bool { return len(ws.messages()) == 4 }, "not all subscriptions replayed")

	var streams []string
	for _, msg := range ws.messages()[2:] {
		for _, p := range msg["params"].([]interface{}) {
			streams = append(streams, p.(string))
		}
	}
	assert.ElementsMatch(t, []string{"btcusdt@kline_3m", "btcusdt@ticker"}, streams)
}

// Removal closes the channel under the write lock while the read loop
// may be mid-delivery; the send must never hit a closed channel.
func TestDeliverDuringRemoveSubscriber(t *testing.T) {
	ws := newWSTestServer(t)
	client := newConnectedClient(t, ws, "binance")

	const stream = "btcusdt@kline_3m"
	payload := []byte(`{"e":"kline"}`)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			client.deliver(stream, payload)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			client.AddSubscriber(stream, 1)
			client.RemoveSubscriber(stream)
		}
	}()
	wg.Wait()
}

func TestDeliverDuringClose(t *testing.T) {
	ws := newWSTestServer(t)
	client := newConnectedClient(t, ws, "binance")

	const stream = "btcusdt@kline_3m"
	client.AddSubscriber(stream, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			client.deliver(stream, []byte(`{"e":"kline"}`))
		}
	}()
	client.Close()
	wg.Wait()
}
