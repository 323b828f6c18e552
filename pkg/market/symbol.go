package market

import "strings"

// DefaultQuoteAsset is appended to bare symbols during normalization.
const DefaultQuoteAsset = "USDT"

// Normalize converts a symbol to its canonical quoted form: uppercase
// with the default quote asset appended when absent. The operation is
// idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if strings.HasSuffix(symbol, DefaultQuoteAsset) {
		return symbol
	}
	return symbol + DefaultQuoteAsset
}

// StripQuote removes the default quote asset suffix, yielding the bare
// coin name used by venues such as Hyperliquid ("BTCUSDT" -> "BTC").
func StripQuote(symbol string) string {
	if len(symbol) > len(DefaultQuoteAsset) && strings.HasSuffix(symbol, DefaultQuoteAsset) {
		return symbol[:len(symbol)-len(DefaultQuoteAsset)]
	}
	return symbol
}
