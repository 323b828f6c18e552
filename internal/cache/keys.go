package cache

import (
	"fmt"
	"strings"
	"time"

	"marketpulse/internal/config"
)

// Namespace is the Redis key prefix for the marketpulse application.
const Namespace = "marketpulse"

// TTLClass represents a config-driven TTL bucket.
type TTLClass string

const (
	TTLShort  TTLClass = "short"
	TTLMedium TTLClass = "medium"
	TTLLong   TTLClass = "long"
)

// TTLSet normalises cache TTLs from config into time.Duration values.
type TTLSet struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// NewTTLSet converts config TTLs (in seconds) into durations.
func NewTTLSet(cfg config.CacheTTL) TTLSet {
	return TTLSet{
		Short:  durationOrDefault(cfg.Short, 10*time.Second),
		Medium: durationOrDefault(cfg.Medium, time.Minute),
		Long:   durationOrDefault(cfg.Long, 5*time.Minute),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds < 0 {
		return 0
	}
	if seconds == 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// Duration returns the configured duration for the given TTL class.
func (t TTLSet) Duration(class TTLClass) time.Duration {
	switch class {
	case TTLShort:
		return t.Short
	case TTLMedium:
		return t.Medium
	case TTLLong:
		return t.Long
	default:
		return 0
	}
}

// Scaled applies a multiplier to a TTL class, useful for half/double TTL variants.
func (t TTLSet) Scaled(class TTLClass, factor float64) time.Duration {
	base := t.Duration(class)
	if base <= 0 || factor <= 0 {
		return base
	}
	return time.Duration(float64(base) * factor)
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// --- Price & Market Keys ----------------------------------------------------

// PriceLatestKey returns the default latest price key without exchange scoping.
func PriceLatestKey(symbol string) string {
	return formatKey("price", "latest", symbol)
}

// PriceLatestByExchangeKey returns the latest price key scoped by exchange.
func PriceLatestByExchangeKey(exchange, symbol string) string {
	return formatKey("price", "latest", exchange, symbol)
}

// CryptoPricesKey holds the aggregated prices map payload.
func CryptoPricesKey() string {
	return formatKey("crypto_prices")
}

// SymbolDirectoryKey stores the instrument listing for an exchange.
func SymbolDirectoryKey(exchange string) string {
	return formatKey("symbols", exchange)
}

// MarketSnapshotKey stores the latest assembled snapshot per symbol.
func MarketSnapshotKey(exchange, symbol string) string {
	return formatKey("market", "snapshot", exchange, symbol)
}

// FundingRateKey stores the last funding rate per symbol.
func FundingRateKey(exchange, symbol string) string {
	return formatKey("funding", exchange, symbol)
}

// ReportKey caches a rendered report text per symbol.
func ReportKey(exchange, symbol string) string {
	return formatKey("report", exchange, symbol)
}

// --- TTL Helpers ------------------------------------------------------------

// PriceTTL returns short-lived TTL for individual price keys.
func PriceTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLShort)
}

// CryptoPricesTTL returns the TTL for bundled prices.
func CryptoPricesTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLShort)
}

// SymbolDirectoryTTL returns the TTL for instrument listings.
func SymbolDirectoryTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLLong)
}

// MarketSnapshotTTL returns the TTL for assembled snapshots.
func MarketSnapshotTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLMedium)
}

// FundingRateTTL returns the TTL for cached funding rates. Funding
// updates every 8 hours, so double the long class is still fresh.
func FundingRateTTL(ttl TTLSet) time.Duration {
	return ttl.Scaled(TTLLong, 2)
}

// ReportTTL returns the TTL for rendered reports.
func ReportTTL(ttl TTLSet) time.Duration {
	return ttl.Scaled(TTLMedium, 0.5)
}

// FormatCacheKey is exported for dynamic key construction when patterns
// are not covered by helpers.
func FormatCacheKey(parts ...string) string {
	return formatKey(parts...)
}

// BuildKeyWithSuffix appends an arbitrary suffix to an existing key.
func BuildKeyWithSuffix(baseKey, suffix string) string {
	if strings.TrimSpace(suffix) == "" {
		return baseKey
	}
	return fmt.Sprintf("%s:%s", baseKey, strings.TrimSpace(suffix))
}
