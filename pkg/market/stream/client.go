package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zeromicro/go-zero/core/logx"

	"marketpulse/pkg/market"
	"marketpulse/pkg/market/exchanges"
)

// State describes the connection lifecycle. Closed is terminal and only
// reachable through Close.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultBatchSize        = 40
	defaultSubscriberBuffer = 64

	reconnectBackoffBase = time.Second
	reconnectBackoffMax  = 30 * time.Second
	batchSubscribeDelay  = 100 * time.Millisecond
)

// subscription records a stream so it can be replayed after a
// reconnect. Kline streams carry symbol+interval so the venue frame
// can be rebuilt; ticker streams carry the pre-built stream name.
type subscription struct {
	symbol   string
	interval string
	stream   string
}

// Client multiplexes exchange websocket streams to in-process
// subscribers. Messages are translated to the canonical event shapes
// and fanned out non-blocking: a full subscriber channel drops the
// message rather than stalling the read loop.
type Client struct {
	profile   exchanges.Profile
	url       string
	batchSize int
	bufSize   int
	dialer    websocket.Dialer

	state int32

	mu            sync.RWMutex
	conn          *websocket.Conn
	subscribers   map[string]chan []byte
	subscriptions map[string]subscription

	done      chan struct{}
	closeOnce sync.Once
	readerWG  sync.WaitGroup
}

// Option configures a new Client.
type Option func(*Client)

// WithURL overrides the profile's websocket endpoint. Used in tests.
func WithURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.url = url
		}
	}
}

// WithBatchSize bounds how many streams go into one subscribe message.
func WithBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithSubscriberBuffer sets the default channel depth handed to
// AddSubscriber callers.
func WithSubscriberBuffer(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.bufSize = n
		}
	}
}

// NewClient builds a stream client for the given exchange profile. The
// client starts Disconnected; call Connect to dial.
func NewClient(profile exchanges.Profile, opts ...Option) *Client {
	c := &Client{
		profile:       profile,
		url:           profile.WSStreamURL,
		batchSize:     defaultBatchSize,
		bufSize:       defaultSubscriberBuffer,
		dialer:        websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout},
		subscribers:   make(map[string]chan []byte),
		subscriptions: make(map[string]subscription),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports the current connection state.
func (c *Client) State() State {
	return State(atomic.LoadInt32(&c.state))
}

func (c *Client) setState(s State) {
	atomic.StoreInt32(&c.state, int32(s))
}

// Connect dials the exchange and starts the read loop. Reconnection
// after a dropped connection is handled internally; Connect only
// returns an error when the initial dial fails.
func (c *Client) Connect(ctx context.Context) error {
	if c.State() == Closed {
		return fmt.Errorf("market: stream client is closed")
	}
	if c.url == "" {
		return fmt.Errorf("%w: %s has no websocket endpoint", market.ErrUnsupportedFeature, c.profile.ID)
	}

	c.setState(Connecting)
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.setState(Disconnected)
		return fmt.Errorf("market: websocket dial %s: %w", c.profile.ID, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(Connected)
	logx.Infof("market: websocket connected to %s", c.profile.ID)

	c.readerWG.Add(1)
	go c.readLoop(conn)
	return nil
}

// readLoop consumes messages until the connection drops, then hands
// off to the reconnect supervisor.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.readerWG.Done()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			logx.Errorf("market: websocket read (%s): %v", c.profile.ID, err)
			c.supervise()
			return
		}
		c.dispatch(message)
	}
}

// supervise retries the connection with exponential backoff until it
// succeeds or the client is closed. Registered kline subscriptions are
// replayed after each successful dial.
func (c *Client) supervise() {
	c.setState(Reconnecting)
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	backoff := reconnectBackoffBase
	for {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		conn, _, err := c.dialer.Dial(c.url, nil)
		if err != nil {
			logx.Errorf("market: websocket reconnect %s: %v (retrying in %s)", c.profile.ID, err, backoff)
			backoff *= 2
			if backoff > reconnectBackoffMax {
				backoff = reconnectBackoffMax
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		subs := make([]subscription, 0, len(c.subscriptions))
		for _, sub := range c.subscriptions {
			subs = append(subs, sub)
		}
		c.mu.Unlock()
		c.setState(Connected)
		logx.Infof("market: websocket reconnected to %s, replaying %d subscriptions", c.profile.ID, len(subs))

		for _, sub := range subs {
			var err error
			name := sub.stream
			if name == "" {
				name = KlineStreamName(sub.symbol, sub.interval)
				err = c.sendKlineSubscribe([]string{sub.symbol}, sub.interval)
			} else {
				err = c.sendRawSubscribe([]string{name})
			}
			if err != nil {
				logx.Errorf("market: resubscribe %s: %v", name, err)
			}
		}

		c.readerWG.Add(1)
		go c.readLoop(conn)
		return
	}
}

// SubscribeKline registers a kline stream for symbol at the given
// interval (Binance notation) and sends the venue's subscribe message.
func (c *Client) SubscribeKline(symbol, interval string) error {
	key := KlineStreamName(symbol, interval)
	c.mu.Lock()
	c.subscriptions[key] = subscription{symbol: symbol, interval: interval}
	c.mu.Unlock()
	return c.sendKlineSubscribe([]string{symbol}, interval)
}

// BatchSubscribeKlines subscribes many symbols to one interval in
// batches, pausing between batches to stay under the venues' message
// rate limits.
func (c *Client) BatchSubscribeKlines(symbols []string, interval string) error {
	c.mu.Lock()
	for _, symbol := range symbols {
		key := KlineStreamName(symbol, interval)
		c.subscriptions[key] = subscription{symbol: symbol, interval: interval}
	}
	c.mu.Unlock()

	for i := 0; i < len(symbols); i += c.batchSize {
		end := i + c.batchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		batch := symbols[i:end]
		if err := c.sendKlineSubscribe(batch, interval); err != nil {
			return fmt.Errorf("market: subscribe batch %d: %w", i/c.batchSize+1, err)
		}
		if end < len(symbols) {
			time.Sleep(batchSubscribeDelay)
		}
	}
	return nil
}

// SubscribeTicker subscribes the 24h rolling ticker stream. Only the
// Binance-family venues carry this stream.
func (c *Client) SubscribeTicker(symbol string) error {
	return c.subscribeRaw(TickerStreamName(symbol))
}

// SubscribeMiniTicker subscribes the compact ticker stream.
func (c *Client) SubscribeMiniTicker(symbol string) error {
	return c.subscribeRaw(MiniTickerStreamName(symbol))
}

// subscribeRaw registers a pre-built stream name so reconnects replay
// it alongside the kline streams, then sends the subscribe frame.
func (c *Client) subscribeRaw(stream string) error {
	c.mu.Lock()
	c.subscriptions[stream] = subscription{stream: stream}
	c.mu.Unlock()
	return c.sendRawSubscribe([]string{stream})
}

// AddSubscriber registers a consumer channel for the canonical stream
// key and returns its receive side. bufferSize <= 0 uses the client
// default. Re-adding a stream replaces the previous channel.
func (c *Client) AddSubscriber(stream string, bufferSize int) <-chan []byte {
	if bufferSize <= 0 {
		bufferSize = c.bufSize
	}
	ch := make(chan []byte, bufferSize)
	c.mu.Lock()
	if old, ok := c.subscribers[stream]; ok {
		close(old)
	}
	c.subscribers[stream] = ch
	c.mu.Unlock()
	return ch
}

// RemoveSubscriber drops and closes the consumer channel for stream.
// Removing an unknown stream is a no-op.
func (c *Client) RemoveSubscriber(stream string) {
	c.mu.Lock()
	if ch, ok := c.subscribers[stream]; ok {
		close(ch)
		delete(c.subscribers, stream)
	}
	delete(c.subscriptions, stream)
	c.mu.Unlock()
}

// deliver hands data to the stream's subscriber without blocking the
// read loop; a full channel drops the message and logs once per drop.
func (c *Client) deliver(stream string, data []byte) {
	// The send must stay inside the read lock: RemoveSubscriber and
	// Close close the channel under the write lock, so sending after
	// RUnlock could hit a freshly closed channel and panic. The send is
	// non-blocking, so the lock is held only briefly.
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.subscribers[stream]
	if !ok {
		return
	}
	select {
	case ch <- data:
	default:
		logx.Sloww("market: subscriber channel full, dropping message",
			logx.Field("stream", stream))
	}
}

// sendJSON writes one control message to the connection.
func (c *Client) sendJSON(msg interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return market.ErrNotConnected
	}
	return c.conn.WriteJSON(msg)
}

// Close tears the connection down, closes every subscriber channel and
// moves the client to the terminal Closed state. Safe to call more
// than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.setState(Closed)
		close(c.done)

		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		for stream, ch := range c.subscribers {
			close(ch)
			delete(c.subscribers, stream)
		}
		c.subscriptions = make(map[string]subscription)
		c.mu.Unlock()
	})
}
