package market

// Kline is one OHLCV candlestick bar in the canonical (Binance-style)
// schema. Every exchange-specific payload is converted into this form
// before it reaches consumers.
type Kline struct {
	OpenTime            int64   // Bar open time in milliseconds
	Open                float64 // Open price
	High                float64 // High price
	Low                 float64 // Low price
	Close               float64 // Close price
	Volume              float64 // Base-asset volume
	CloseTime           int64   // Bar close time in milliseconds
	QuoteVolume         float64 // Quote-asset volume
	TradeCount          int     // Number of trades in the bar
	TakerBuyBaseVolume  float64 // Taker buy volume, base asset
	TakerBuyQuoteVolume float64 // Taker buy volume, quote asset
}

// OpenInterest reports derivatives open interest for a symbol.
type OpenInterest struct {
	Latest  float64
	Average float64
}

// IntradaySeries bundles the short-timeframe context series
// (oldest to latest) used by downstream analysis.
type IntradaySeries struct {
	MidPrices   []float64
	EMA20Values []float64
	MACDValues  []float64
	RSI7Values  []float64
	RSI14Values []float64
	Volume      []float64
	ATR14       float64
}

// LongerTermContext carries the longer-timeframe indicator snapshot.
type LongerTermContext struct {
	EMA20         float64
	EMA50         float64
	ATR3          float64
	ATR14         float64
	CurrentVolume float64
	AverageVolume float64
	MACDValues    []float64
	RSI14Values   []float64
}

// Data is the full market snapshot assembled for one symbol: current
// price and momentum indicators on the short timeframe, context series
// on both timeframes, derivatives data, and the composite signal set.
// It is built fresh on every request and never cached beyond the
// funding-rate cache.
type Data struct {
	Symbol        string
	CurrentPrice  float64
	PriceChange1h float64
	PriceChange4h float64
	CurrentEMA20  float64
	CurrentMACD   float64
	CurrentRSI7   float64

	OpenInterest      *OpenInterest
	FundingRate       float64
	IntradaySeries    *IntradaySeries
	LongerTermContext *LongerTermContext

	// Composite signals derived from the intraday window.
	CurrentTSI       float64
	CurrentTSISignal float64

	KEMADTrend int
	KEMADEMA   float64
	KEMADATR   float64

	VGBTrend int
	VGBAvg   float64
	VGBUpper float64
	VGBLower float64
	VGBScore float64

	SSLExitSignal int
	SSLBaseline   float64
	SSLUpperK     float64
	SSLLowerK     float64

	ZeroLagTrend      int
	ZeroLagZLEMA      float64
	ZeroLagVolatility float64

	QQETrend  int
	QQEFastTL float64
	QQEUpper  float64
	QQELower  float64

	RangeKalman        float64
	RangeTrend         int
	RangeKTrend        int
	RangeCombinedTrend int

	DPSDTrend   int
	DPSDPT      float64
	DPSDEMA     float64
	DPSDPerUp   float64
	DPSDPerDown float64

	UltimateRSI           float64
	UltimateRSISignal     float64
	UltimateRSIOverbought bool
	UltimateRSIOversold   bool

	RSIValue      float64
	RSIBuySignal  bool
	RSISellSignal bool
}

// SymbolInfo describes one tradeable instrument as reported by the
// exchange metadata endpoint.
type SymbolInfo struct {
	Symbol       string `json:"symbol"`
	Status       string `json:"status"`
	ContractType string `json:"contractType"`
	BaseAsset    string `json:"baseAsset"`
	QuoteAsset   string `json:"quoteAsset"`
}

// ExchangeInfo is the normalized exchange metadata response.
type ExchangeInfo struct {
	Symbols []SymbolInfo `json:"symbols"`
}
