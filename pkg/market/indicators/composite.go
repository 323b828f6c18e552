package indicators

import "math"

// Fixed noise parameters shared by the Kalman-based signals.
const (
	kalmanProcessNoise     = 0.01
	kalmanMeasurementNoise = 1.0
)

// TSI computes the true strength index: price change double-smoothed by
// long- then short-period EMAs, divided by the equally smoothed
// absolute price change, scaled to ±100. The signal line is an EMA of
// the TSI series. Both values are 0 below the minimum lookback.
func TSI(klines []Kline, longPeriod, shortPeriod, signalPeriod int) (tsi, signal float64) {
	if len(klines) < longPeriod+shortPeriod || len(klines) < 2 {
		return 0, 0
	}

	pc := make([]float64, 0, len(klines)-1)
	absPC := make([]float64, 0, len(klines)-1)
	for i := 1; i < len(klines); i++ {
		change := klines[i].Close - klines[i-1].Close
		pc = append(pc, change)
		absPC = append(absPC, math.Abs(change))
	}

	longPC := emaCompact(pc, longPeriod)
	longAbs := emaCompact(absPC, longPeriod)
	if len(longPC) == 0 || len(longAbs) == 0 {
		return 0, 0
	}
	shortPC := emaCompact(longPC, shortPeriod)
	shortAbs := emaCompact(longAbs, shortPeriod)
	if len(shortPC) == 0 || len(shortAbs) == 0 {
		return 0, 0
	}

	length := min(len(shortPC), len(shortAbs))
	tsiSeries := make([]float64, length)
	for i := 0; i < length; i++ {
		if shortAbs[i] == 0 {
			tsiSeries[i] = 0
		} else {
			tsiSeries[i] = 100.0 * (shortPC[i] / shortAbs[i])
		}
	}

	signalSeries := emaCompact(tsiSeries, signalPeriod)
	tsi = tsiSeries[length-1]
	if len(signalSeries) > 0 {
		signal = signalSeries[len(signalSeries)-1]
	}
	return tsi, signal
}

// KEMAD smooths the closes with a one-dimensional Kalman filter and
// derives the trend from the last close relative to the filtered value:
// +1 above, -1 below, 0 at parity or on empty input.
func KEMAD(klines []Kline) (trend int, kema, atr float64) {
	if len(klines) == 0 {
		return 0, 0, 0
	}
	kema = kalmanFilter(klines, kalmanProcessNoise, kalmanMeasurementNoise)
	atr = ATR(klines, 14)
	last := klines[len(klines)-1].Close
	if last > kema {
		trend = 1
	} else if last < kema {
		trend = -1
	}
	return trend, kema, atr
}

// VolatilityGaussianBands builds EMA(length) +/- mult*stdev(length)
// bands. Trend is +1 above the upper band, -1 below the lower, else 0;
// score is the z-score of the last close against the band center.
func VolatilityGaussianBands(klines []Kline, length int, mult float64) (trend int, avg, upper, lower, score float64) {
	if len(klines) < length {
		return 0, 0, 0, 0, 0
	}
	cs := closes(klines)
	avg = EMA(klines, length)
	sd := stdev(cs, length)
	upper = avg + mult*sd
	lower = avg - mult*sd
	last := cs[len(cs)-1]
	if sd > 0 {
		score = (last - avg) / sd
	}
	if last > upper {
		trend = 1
	} else if last < lower {
		trend = -1
	}
	return trend, avg, upper, lower, score
}

// SSLHybridExit builds an SSL channel from SMA(high, chLen) and
// SMA(low, chLen) plus an EMA baseline. The exit signal is +1 when the
// close breaks up through the upper channel (previous close at or below
// the previous upper channel, current close above the current one) and
// -1 on the mirrored downward breakout.
func SSLHybridExit(klines []Kline, chLen, baselineLen int) (exitSignal int, baseline, upperK, lowerK float64) {
	if len(klines) < chLen || len(klines) < 2 {
		return 0, 0, 0, 0
	}
	highs := make([]float64, len(klines))
	lows := make([]float64, len(klines))
	for i := range klines {
		highs[i] = klines[i].High
		lows[i] = klines[i].Low
	}
	cs := closes(klines)

	upperK = sma(highs, chLen)
	lowerK = sma(lows, chLen)
	baseline = EMA(klines, baselineLen)

	prevUpper := upperK
	prevLower := lowerK
	if len(klines) > chLen+1 {
		prevUpper = sma(highs[:len(highs)-1], chLen)
		prevLower = sma(lows[:len(lows)-1], chLen)
	}
	prevClose := cs[len(cs)-2]
	last := cs[len(cs)-1]
	if prevClose <= prevUpper && last > upperK {
		exitSignal = 1
	} else if prevClose >= prevLower && last < lowerK {
		exitSignal = -1
	}
	return exitSignal, baseline, upperK, lowerK
}

// ZLEMA computes the zero-lag EMA: each price is extrapolated by its
// own lagged delta (lag = (period-1)/2) before smoothing, which cancels
// most of the EMA's phase lag.
func ZLEMA(klines []Kline, period int) float64 {
	if period <= 0 || len(klines) < period {
		return 0
	}
	lag := (period - 1) / 2
	adj := make([]float64, 0, len(klines))
	for i := 0; i < len(klines); i++ {
		p := klines[i].Close
		prev := p
		if i-lag >= 0 {
			prev = klines[i-lag].Close
		}
		adj = append(adj, p+(p-prev))
	}

	mult := 2.0 / float64(period+1)
	start := len(adj) - period
	if start < 0 {
		start = 0
	}
	s := adj[start]
	for i := start + 1; i < len(adj); i++ {
		s = (adj[i]-s)*mult + s
	}
	return s
}

// ZeroLagTrend signals trend by the last close relative to the ZLEMA;
// volatility is reported as ATR(14).
func ZeroLagTrend(klines []Kline, period int) (trend int, zlema, volatility float64) {
	if len(klines) < period {
		return 0, 0, 0
	}
	zlema = ZLEMA(klines, period)
	volatility = ATR(klines, 14)
	last := klines[len(klines)-1].Close
	if last > zlema {
		trend = 1
	} else if last < zlema {
		trend = -1
	}
	return trend, zlema, volatility
}

// QQEModHybrid smooths the per-bar RSI(14) with EMA(5) to form the fast
// trend line, then envelopes it at 4.236 times the EMA(5) of its
// absolute bar-to-bar change. Trend is the fast line against the 50
// midline.
func QQEModHybrid(klines []Kline) (trend int, fastTL, upper, lower float64) {
	if len(klines) < 15 {
		return 0, 0, 0, 0
	}
	rsi := RSISeries(klines, 14)
	emaRSI := emaCompact(rsi, 5)
	if len(emaRSI) == 0 {
		return 0, 0, 0, 0
	}
	fastTL = emaRSI[len(emaRSI)-1]

	diffAbs := make([]float64, 0, len(emaRSI))
	for i := 1; i < len(emaRSI); i++ {
		diffAbs = append(diffAbs, math.Abs(emaRSI[i]-emaRSI[i-1]))
	}
	atrRSI := 0.0
	if len(diffAbs) >= 5 {
		atrSeries := emaCompact(diffAbs, 5)
		atrRSI = atrSeries[len(atrSeries)-1]
	}
	const factor = 4.236
	upper = fastTL + factor*atrRSI
	lower = fastTL - factor*atrRSI
	if fastTL > 50 {
		trend = 1
	} else if fastTL < 50 {
		trend = -1
	}
	return trend, fastTL, upper, lower
}

// RangeFilteredTrend combines the Kalman filter with an ATR(14) band:
// the trend fires only when the close deviates from the filtered value
// by more than half an ATR. The combined trend requires agreement
// between the price trend and the filter trend.
func RangeFilteredTrend(klines []Kline) (kalman float64, trend, kTrend, combined int) {
	if len(klines) == 0 {
		return 0, 0, 0, 0
	}
	kalman = kalmanFilter(klines, kalmanProcessNoise, kalmanMeasurementNoise)
	threshold := 0.5 * ATR(klines, 14)
	last := klines[len(klines)-1].Close
	if last-kalman > threshold {
		trend = 1
	} else if kalman-last > threshold {
		trend = -1
	}
	// The filter-slope trend currently mirrors the price trend.
	kTrend = trend
	if trend == 1 && kTrend == 1 {
		combined = 1
	} else if trend == -1 && kTrend == -1 {
		combined = -1
	}
	return kalman, trend, kTrend, combined
}

// DPSD scores the close against a DEMA(length) baseline in standard
// deviations: DEMA = 2*EMA - EMA(EMA). Positive scores map to perUp,
// negative to perDown.
func DPSD(klines []Kline, length int) (trend int, pt, dema, perUp, perDown float64) {
	if len(klines) < length {
		return 0, 0, 0, 0, 0
	}
	ema1 := EMA(klines, length)
	cs := closes(klines)
	emaSeq := emaCompact(cs, length)
	demaSeq := emaCompact(emaSeq, length)
	if len(demaSeq) > 0 {
		dema = 2*ema1 - demaSeq[len(demaSeq)-1]
	} else {
		dema = ema1
	}
	sd := stdev(cs, length)
	last := cs[len(cs)-1]
	if sd > 0 {
		pt = (last - dema) / sd
	}
	switch {
	case pt > 0:
		trend = 1
		perUp = pt
	case pt < 0:
		trend = -1
		perDown = -pt
	}
	return trend, pt, dema, perUp, perDown
}

// UltimateRSI re-smooths the trailing RSI(period) values with an
// EMA(min(5, n)) and reports overbought at 70 and oversold at 30.
func UltimateRSI(klines []Kline, period int) (value, signal float64, overbought, oversold bool) {
	if len(klines) < period+1 {
		return 0, 0, false, false
	}
	series := RSISeries(klines, period)
	rsi := series[len(series)-1]

	vals := append([]float64(nil), series[len(series)-period:]...)
	smoothed := emaCompact(vals, min(5, len(vals)))
	if len(smoothed) > 0 {
		value = smoothed[len(smoothed)-1]
	} else {
		value = rsi
	}
	sigSeries := emaCompact(vals, min(5, len(vals)))
	if len(sigSeries) > 0 {
		signal = sigSeries[len(sigSeries)-1]
	}
	overbought = value >= 70
	oversold = value <= 30
	return value, signal, overbought, oversold
}

// RSIWithPatterns pairs RSI(period) thresholds with single-bar
// engulfing detection: buy on RSI <= 30 or a bullish engulfing bar,
// sell on RSI >= 70 or a bearish engulfing bar.
func RSIWithPatterns(klines []Kline, period int) (rsi float64, buy, sell bool) {
	if len(klines) < 2 {
		return 0, false, false
	}
	rsi = RSI(klines, period)
	prev := klines[len(klines)-2]
	last := klines[len(klines)-1]
	bullEngulf := prev.Close < prev.Open && last.Close > last.Open &&
		last.Close > prev.Open && last.Open < prev.Close
	bearEngulf := prev.Close > prev.Open && last.Close < last.Open &&
		last.Close < prev.Open && last.Open > prev.Close
	buy = rsi <= 30 || bullEngulf
	sell = rsi >= 70 || bearEngulf
	return rsi, buy, sell
}
