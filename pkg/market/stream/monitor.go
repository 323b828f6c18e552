package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/zeromicro/go-zero/core/logx"

	"marketpulse/pkg/market"
)

// KlineSource backfills historical bars for a freshly watched stream,
// typically the REST client.
type KlineSource interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]market.Kline, error)
}

// DefaultWindow is how many bars a watched stream retains.
const DefaultWindow = 120

// Monitor keeps rolling kline buffers fed by the stream client. Each
// watched (symbol, interval) pair is backfilled over REST once and then
// maintained from live pushes: a repeated open time replaces the
// in-progress bar, a newer one appends and trims the window.
type Monitor struct {
	client *Client
	source KlineSource
	window int

	mu      sync.RWMutex
	buffers map[string][]market.Kline

	wg   sync.WaitGroup
	done chan struct{}
	once sync.Once
}

// NewMonitor builds a monitor over an existing stream client. window <=
// 0 uses DefaultWindow.
func NewMonitor(client *Client, source KlineSource, window int) *Monitor {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Monitor{
		client:  client,
		source:  source,
		window:  window,
		buffers: make(map[string][]market.Kline),
		done:    make(chan struct{}),
	}
}

// Watch backfills the buffer for symbol/interval and starts consuming
// live updates. Watching an already watched stream is a no-op.
func (m *Monitor) Watch(ctx context.Context, symbol, interval string) error {
	symbol = market.Normalize(symbol)
	key := KlineStreamName(symbol, interval)

	m.mu.Lock()
	if _, ok := m.buffers[key]; ok {
		m.mu.Unlock()
		return nil
	}
	m.buffers[key] = nil
	m.mu.Unlock()

	if m.source != nil {
		klines, err := m.source.GetKlines(ctx, symbol, interval, m.window)
		if err != nil {
			m.mu.Lock()
			delete(m.buffers, key)
			m.mu.Unlock()
			return fmt.Errorf("market: backfill %s %s: %w", symbol, interval, err)
		}
		if len(klines) > m.window {
			klines = klines[len(klines)-m.window:]
		}
		m.mu.Lock()
		m.buffers[key] = append([]market.Kline(nil), klines...)
		m.mu.Unlock()
	}

	ch := m.client.AddSubscriber(key, 0)
	if err := m.client.SubscribeKline(symbol, interval); err != nil {
		logx.Errorf("market: subscribe %s failed, buffer will go stale until reconnect: %v", key, err)
	}

	m.wg.Add(1)
	go m.consume(key, ch)
	return nil
}

func (m *Monitor) consume(key string, ch <-chan []byte) {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			var event KlineEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				continue
			}
			if event.EventType != "kline" {
				continue
			}
			kline, err := klineFromEvent(event)
			if err != nil {
				logx.Errorf("market: malformed kline on %s: %v", key, err)
				continue
			}
			m.apply(key, kline)
		}
	}
}

// apply merges one bar into the buffer under the window bound.
func (m *Monitor) apply(key string, kline market.Kline) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := m.buffers[key]
	if n := len(buf); n > 0 && buf[n-1].OpenTime == kline.OpenTime {
		buf[n-1] = kline
		m.buffers[key] = buf
		return
	}
	if n := len(buf); n > 0 && buf[n-1].OpenTime > kline.OpenTime {
		// Late bar from before the buffer head; ignore it.
		return
	}
	buf = append(buf, kline)
	if len(buf) > m.window {
		buf = buf[len(buf)-m.window:]
	}
	m.buffers[key] = buf
}

func klineFromEvent(event KlineEvent) (market.Kline, error) {
	var k market.Kline
	k.OpenTime = event.Kline.StartTime
	k.CloseTime = event.Kline.CloseTime
	k.TradeCount = event.Kline.NumberOfTrades
	for _, field := range []struct {
		raw string
		dst *float64
	}{
		{event.Kline.OpenPrice, &k.Open},
		{event.Kline.HighPrice, &k.High},
		{event.Kline.LowPrice, &k.Low},
		{event.Kline.ClosePrice, &k.Close},
		{event.Kline.Volume, &k.Volume},
		{event.Kline.QuoteVolume, &k.QuoteVolume},
		{event.Kline.TakerBuyBaseVolume, &k.TakerBuyBaseVolume},
		{event.Kline.TakerBuyQuoteVolume, &k.TakerBuyQuoteVolume},
	} {
		if field.raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(field.raw, 64)
		if err != nil {
			return k, err
		}
		*field.dst = v
	}
	return k, nil
}

// CurrentKlines returns a copy of the window for symbol/interval,
// oldest first. An unwatched or still-empty stream yields
// market.ErrInsufficientData.
func (m *Monitor) CurrentKlines(symbol, interval string) ([]market.Kline, error) {
	key := KlineStreamName(market.Normalize(symbol), interval)
	m.mu.RLock()
	defer m.mu.RUnlock()
	buf, ok := m.buffers[key]
	if !ok || len(buf) == 0 {
		return nil, fmt.Errorf("%w: no klines buffered for %s", market.ErrInsufficientData, key)
	}
	// Copy while still holding the lock; apply rewrites the tail bar in
	// place on every in-progress update.
	return append([]market.Kline(nil), buf...), nil
}

// LatestClose returns the most recent close in the window.
func (m *Monitor) LatestClose(symbol, interval string) (float64, error) {
	klines, err := m.CurrentKlines(symbol, interval)
	if err != nil {
		return 0, err
	}
	return klines[len(klines)-1].Close, nil
}

// Unwatch drops the stream subscription and its buffer.
func (m *Monitor) Unwatch(symbol, interval string) {
	key := KlineStreamName(market.Normalize(symbol), interval)
	m.client.RemoveSubscriber(key)
	m.mu.Lock()
	delete(m.buffers, key)
	m.mu.Unlock()
}

// Close stops all consumers. The stream client itself is left to its
// owner.
func (m *Monitor) Close() {
	m.once.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
}
