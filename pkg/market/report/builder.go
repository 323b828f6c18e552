// Package report assembles the full market snapshot for a symbol from
// the live kline windows and renders it as the plain-text report handed
// to downstream consumers.
package report

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/logx"

	"marketpulse/pkg/market"
	"marketpulse/pkg/market/fundingcache"
	"marketpulse/pkg/market/indicators"
	"marketpulse/pkg/market/rest"
	"marketpulse/pkg/market/stream"
)

const (
	intradayInterval   = "3m"
	longerTermInterval = "4h"
	seriesLength       = 10
)

// Builder computes market.Data snapshots. Klines come from the stream
// monitor's windows, derivatives data from REST with the funding rate
// behind a TTL cache. Snapshots are optionally recorded to persistence.
type Builder struct {
	monitor     *stream.Monitor
	rest        *rest.Client
	funding     *fundingcache.Cache[float64]
	persistence market.Persistence
}

// Option configures a Builder.
type Option func(*Builder)

// WithFundingCache overrides the default funding rate cache.
func WithFundingCache(cache *fundingcache.Cache[float64]) Option {
	return func(b *Builder) {
		if cache != nil {
			b.funding = cache
		}
	}
}

// WithPersistence enables best-effort snapshot recording.
func WithPersistence(p market.Persistence) Option {
	return func(b *Builder) {
		b.persistence = p
	}
}

// NewBuilder wires a Builder over the monitor and REST client.
func NewBuilder(monitor *stream.Monitor, restClient *rest.Client, opts ...Option) *Builder {
	b := &Builder{
		monitor: monitor,
		rest:    restClient,
		funding: fundingcache.New[float64](),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Get assembles the full snapshot for symbol. Both kline windows must
// be populated; open interest failures degrade to a zero reading and
// funding rate failures to a zero rate, neither fails the snapshot.
func (b *Builder) Get(ctx context.Context, symbol string) (*market.Data, error) {
	symbol = market.Normalize(symbol)

	klines3m, err := b.monitor.CurrentKlines(symbol, intradayInterval)
	if err != nil {
		return nil, fmt.Errorf("market: fetch %s klines: %w", intradayInterval, err)
	}
	klines4h, err := b.monitor.CurrentKlines(symbol, longerTermInterval)
	if err != nil {
		return nil, fmt.Errorf("market: fetch %s klines: %w", longerTermInterval, err)
	}

	ik3m := toIndicatorKlines(klines3m)
	ik4h := toIndicatorKlines(klines4h)

	currentPrice := klines3m[len(klines3m)-1].Close

	// 1h change looks 20 intraday bars back, 4h change one longer-term
	// bar back; both stay zero until enough history accumulates.
	priceChange1h := 0.0
	if len(klines3m) >= 21 {
		price1hAgo := klines3m[len(klines3m)-21].Close
		if price1hAgo > 0 {
			priceChange1h = ((currentPrice - price1hAgo) / price1hAgo) * 100
		}
	}
	priceChange4h := 0.0
	if len(klines4h) >= 2 {
		price4hAgo := klines4h[len(klines4h)-2].Close
		if price4hAgo > 0 {
			priceChange4h = ((currentPrice - price4hAgo) / price4hAgo) * 100
		}
	}

	oi, err := b.rest.GetOpenInterest(ctx, symbol)
	if err != nil {
		// OI is auxiliary; substitute zeros rather than failing.
		oi = &market.OpenInterest{}
	}

	fundingRate, err := b.funding.GetOrRefresh(ctx, symbol, func(ctx context.Context) (float64, error) {
		return b.rest.GetFundingRate(ctx, symbol)
	})
	if err != nil {
		fundingRate = 0
	}

	tsi, tsiSignal := indicators.TSI(ik3m, 35, 35, 13)
	kemadTrend, kema, kemadATR := indicators.KEMAD(ik3m)
	vgbTrend, vgbAvg, vgbUpper, vgbLower, vgbScore := indicators.VolatilityGaussianBands(ik3m, 20, 2.0)
	sslExit, sslBaseline, sslUpperK, sslLowerK := indicators.SSLHybridExit(ik3m, 20, 60)
	zlTrend, zlema, zlVol := indicators.ZeroLagTrend(ik3m, 34)
	qqeTrend, qqeFastTL, qqeUpper, qqeLower := indicators.QQEModHybrid(ik3m)
	rfKalman, rfTrend, rfKTrend, rfCombined := indicators.RangeFilteredTrend(ik3m)
	dpsdTrend, dpsdPT, dpsdDEMA, dpsdPerUp, dpsdPerDown := indicators.DPSD(ik3m, 20)
	ursi, ursiSignal, ursiOB, ursiOS := indicators.UltimateRSI(ik3m, 14)
	rsiVal, rsiBuy, rsiSell := indicators.RSIWithPatterns(ik3m, 14)

	data := &market.Data{
		Symbol:        symbol,
		CurrentPrice:  currentPrice,
		PriceChange1h: priceChange1h,
		PriceChange4h: priceChange4h,
		CurrentEMA20:  indicators.EMA(ik3m, 20),
		CurrentMACD:   indicators.MACD(ik3m),
		CurrentRSI7:   indicators.RSI(ik3m, 7),

		OpenInterest:      oi,
		FundingRate:       fundingRate,
		IntradaySeries:    buildIntradaySeries(ik3m),
		LongerTermContext: buildLongerTermContext(ik4h),

		CurrentTSI:       tsi,
		CurrentTSISignal: tsiSignal,

		KEMADTrend: kemadTrend,
		KEMADEMA:   kema,
		KEMADATR:   kemadATR,

		VGBTrend: vgbTrend,
		VGBAvg:   vgbAvg,
		VGBUpper: vgbUpper,
		VGBLower: vgbLower,
		VGBScore: vgbScore,

		SSLExitSignal: sslExit,
		SSLBaseline:   sslBaseline,
		SSLUpperK:     sslUpperK,
		SSLLowerK:     sslLowerK,

		ZeroLagTrend:      zlTrend,
		ZeroLagZLEMA:      zlema,
		ZeroLagVolatility: zlVol,

		QQETrend:  qqeTrend,
		QQEFastTL: qqeFastTL,
		QQEUpper:  qqeUpper,
		QQELower:  qqeLower,

		RangeKalman:        rfKalman,
		RangeTrend:         rfTrend,
		RangeKTrend:        rfKTrend,
		RangeCombinedTrend: rfCombined,

		DPSDTrend:   dpsdTrend,
		DPSDPT:      dpsdPT,
		DPSDEMA:     dpsdDEMA,
		DPSDPerUp:   dpsdPerUp,
		DPSDPerDown: dpsdPerDown,

		UltimateRSI:           ursi,
		UltimateRSISignal:     ursiSignal,
		UltimateRSIOverbought: ursiOB,
		UltimateRSIOversold:   ursiOS,

		RSIValue:      rsiVal,
		RSIBuySignal:  rsiBuy,
		RSISellSignal: rsiSell,
	}

	if b.persistence != nil {
		if err := b.persistence.RecordSnapshot(ctx, string(b.rest.Profile().ID), data); err != nil {
			logx.Errorf("market: record snapshot for %s: %v", symbol, err)
		}
	}
	return data, nil
}

// GetCurrentPrice reads the latest intraday close, falling back to a
// REST lookup when the stream buffer is cold.
func (b *Builder) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	symbol = market.Normalize(symbol)
	if price, err := b.monitor.LatestClose(symbol, intradayInterval); err == nil {
		return price, nil
	}
	return b.rest.GetCurrentPrice(ctx, symbol)
}

func toIndicatorKlines(klines []market.Kline) []indicators.Kline {
	out := make([]indicators.Kline, len(klines))
	for i, k := range klines {
		out[i] = indicators.Kline{
			Open:   k.Open,
			High:   k.High,
			Low:    k.Low,
			Close:  k.Close,
			Volume: k.Volume,
		}
	}
	return out
}

// buildIntradaySeries collects the last ten closes, volumes and
// indicator values. Per-bar values are only emitted once the bar index
// clears the indicator's lookback, so early series may be shorter than
// the price series.
func buildIntradaySeries(klines []indicators.Kline) *market.IntradaySeries {
	series := &market.IntradaySeries{
		MidPrices:   make([]float64, 0, seriesLength),
		EMA20Values: make([]float64, 0, seriesLength),
		MACDValues:  make([]float64, 0, seriesLength),
		RSI7Values:  make([]float64, 0, seriesLength),
		RSI14Values: make([]float64, 0, seriesLength),
		Volume:      make([]float64, 0, seriesLength),
	}

	ema20 := indicators.EMASeries(klines, 20)
	macd := indicators.MACDSeries(klines)
	rsi7 := indicators.RSISeries(klines, 7)
	rsi14 := indicators.RSISeries(klines, 14)

	start := len(klines) - seriesLength
	if start < 0 {
		start = 0
	}
	for i := start; i < len(klines); i++ {
		series.MidPrices = append(series.MidPrices, klines[i].Close)
		series.Volume = append(series.Volume, klines[i].Volume)
		if i >= 19 {
			series.EMA20Values = append(series.EMA20Values, ema20[i])
		}
		if i >= 25 {
			series.MACDValues = append(series.MACDValues, macd[i])
		}
		if i >= 7 {
			series.RSI7Values = append(series.RSI7Values, rsi7[i])
		}
		if i >= 14 {
			series.RSI14Values = append(series.RSI14Values, rsi14[i])
		}
	}
	series.ATR14 = indicators.ATR(klines, 14)
	return series
}

func buildLongerTermContext(klines []indicators.Kline) *market.LongerTermContext {
	data := &market.LongerTermContext{
		MACDValues:  make([]float64, 0, seriesLength),
		RSI14Values: make([]float64, 0, seriesLength),
	}

	data.EMA20 = indicators.EMA(klines, 20)
	data.EMA50 = indicators.EMA(klines, 50)
	data.ATR3 = indicators.ATR(klines, 3)
	data.ATR14 = indicators.ATR(klines, 14)

	if len(klines) > 0 {
		data.CurrentVolume = klines[len(klines)-1].Volume
		sum := 0.0
		for _, k := range klines {
			sum += k.Volume
		}
		data.AverageVolume = sum / float64(len(klines))
	}

	macd := indicators.MACDSeries(klines)
	rsi14 := indicators.RSISeries(klines, 14)
	start := len(klines) - seriesLength
	if start < 0 {
		start = 0
	}
	for i := start; i < len(klines); i++ {
		if i >= 25 {
			data.MACDValues = append(data.MACDValues, macd[i])
		}
		if i >= 14 {
			data.RSI14Values = append(data.RSI14Values, rsi14[i])
		}
	}
	return data
}
