package exchanges

import "time"

// Interval names follow the canonical Binance convention ("3m", "4h").
// The maps below translate to and from each venue's own notation.

var intervalDurations = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

var toBybit = map[string]string{
	"1m": "1", "3m": "3", "5m": "5", "15m": "15", "30m": "30",
	"1h": "60", "2h": "120", "4h": "240", "6h": "360", "12h": "720",
	"1d": "D", "1w": "W", "1M": "M",
}

var fromBybit = map[string]string{
	"1": "1m", "3": "3m", "5": "5m", "15": "15m", "30": "30m",
	"60": "1h", "120": "2h", "240": "4h", "360": "6h", "720": "12h",
	"D": "1d", "W": "1w", "M": "1M",
}

// Finnhub only supports a coarse resolution grid; finer canonical
// intervals map to the nearest available bucket.
var toFinnhub = map[string]string{
	"1m": "1", "3m": "5", "5m": "5", "15m": "15", "30m": "30",
	"1h": "60", "2h": "60", "4h": "60", "6h": "60", "12h": "60",
	"1d": "D", "1w": "W", "1M": "M",
}

// IntervalDuration returns the bar duration for a canonical interval,
// defaulting to 3m for unknown names.
func IntervalDuration(interval string) time.Duration {
	if d, ok := intervalDurations[interval]; ok {
		return d
	}
	return 3 * time.Minute
}

// IntervalMillis returns the bar duration in milliseconds.
func IntervalMillis(interval string) int64 {
	return IntervalDuration(interval).Milliseconds()
}

// ToBybitInterval translates a canonical interval into Bybit's numeric
// notation; unrecognised values pass through unchanged.
func ToBybitInterval(interval string) string {
	if v, ok := toBybit[interval]; ok {
		return v
	}
	return interval
}

// FromBybitInterval translates a Bybit interval code back into the
// canonical form; unrecognised values are assumed to be minutes.
func FromBybitInterval(code string) string {
	if v, ok := fromBybit[code]; ok {
		return v
	}
	return code + "m"
}

// ToFinnhubResolution translates a canonical interval into a Finnhub
// resolution, defaulting to 5 minutes.
func ToFinnhubResolution(interval string) string {
	if v, ok := toFinnhub[interval]; ok {
		return v
	}
	return "5"
}

// ToHyperliquidInterval translates a canonical interval for the
// Hyperliquid API, which shares the Binance naming for the intervals
// this pipeline uses.
func ToHyperliquidInterval(interval string) string {
	return interval
}
