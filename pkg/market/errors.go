package market

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFeature indicates the selected exchange has no endpoint
// for the requested data (e.g. spot-only venues lack open interest).
var ErrUnsupportedFeature = errors.New("market: feature not supported by exchange")

// ErrInsufficientData indicates the kline window is too short to serve
// the request; the caller should wait for the stream to fill or backfill.
var ErrInsufficientData = errors.New("market: insufficient kline data")

// ErrNotConnected indicates a stream operation was attempted before the
// websocket connection was established.
var ErrNotConnected = errors.New("market: websocket not connected")

// HTTPStatusError reports a non-2xx response from an exchange REST
// endpoint. The raw body is retained for diagnostics.
type HTTPStatusError struct {
	Exchange string
	Status   int
	Body     []byte
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("market: %s returned status %d: %s", e.Exchange, e.Status, string(e.Body))
}

// DecodeError reports a malformed or unexpected exchange payload. The
// raw body is retained for diagnostics; there is no partial recovery.
type DecodeError struct {
	Exchange string
	Body     []byte
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("market: decode %s response: %v (body: %s)", e.Exchange, e.Err, string(e.Body))
}

func (e *DecodeError) Unwrap() error { return e.Err }
