// Package indicators implements the technical indicator engine: pure,
// stateless functions over ordered kline series. Every function returns
// its documented neutral value (0, or false for boolean signals) when
// the input is shorter than the indicator's minimum lookback; none of
// them error or panic on short input.
package indicators

import "math"

// Kline is the OHLCV input bar for indicator calculations.
type Kline struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// EMA returns the exponential moving average of the closes, seeded with
// the SMA of the first period values. Returns 0 when the series is
// shorter than the period.
func EMA(klines []Kline, period int) float64 {
	if period <= 0 || len(klines) < period {
		return 0
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += klines[i].Close
	}
	ema := sum / float64(period)

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(klines); i++ {
		ema = (klines[i].Close-ema)*multiplier + ema
	}
	return ema
}

// EMASeries returns the EMA evaluated at every bar, aligned with the
// input: entries before the lookback is satisfied are 0. Each entry
// equals the EMA of the series truncated at that bar, computed in a
// single O(N) pass.
func EMASeries(klines []Kline, period int) []float64 {
	out := make([]float64, len(klines))
	if period <= 0 || len(klines) < period {
		return out
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += klines[i].Close
	}
	ema := sum / float64(period)
	out[period-1] = ema

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(klines); i++ {
		ema = (klines[i].Close-ema)*multiplier + ema
		out[i] = ema
	}
	return out
}

// MACD returns EMA(12) minus EMA(26), or 0 when fewer than 26 bars are
// available.
func MACD(klines []Kline) float64 {
	if len(klines) < 26 {
		return 0
	}
	return EMA(klines, 12) - EMA(klines, 26)
}

// MACDSeries returns the MACD at every bar, aligned with the input;
// entries before 26 bars of history are 0.
func MACDSeries(klines []Kline) []float64 {
	out := make([]float64, len(klines))
	if len(klines) < 26 {
		return out
	}
	ema12 := EMASeries(klines, 12)
	ema26 := EMASeries(klines, 26)
	for i := 25; i < len(klines); i++ {
		out[i] = ema12[i] - ema26[i]
	}
	return out
}

// RSI returns the Wilder-smoothed relative strength index. By
// convention RSI is 100 when the average loss is exactly zero, and 0
// when fewer than period+1 bars are available.
func RSI(klines []Kline, period int) float64 {
	series := RSISeries(klines, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// RSISeries returns the RSI at every bar, aligned with the input;
// entries before period+1 bars of history are 0. Average gain and loss
// carry forward incrementally, so the whole series is one O(N) pass.
func RSISeries(klines []Kline, period int) []float64 {
	out := make([]float64, len(klines))
	if period <= 0 || len(klines) <= period {
		return out
	}

	gains := 0.0
	losses := 0.0
	for i := 1; i <= period; i++ {
		change := klines[i].Close - klines[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	out[period] = rsiFromAverages(avgGain, avgLoss)

	for i := period + 1; i < len(klines); i++ {
		change := klines[i].Close - klines[i-1].Close
		if change > 0 {
			avgGain = (avgGain*float64(period-1) + change) / float64(period)
			avgLoss = (avgLoss * float64(period-1)) / float64(period)
		} else {
			avgGain = (avgGain * float64(period-1)) / float64(period)
			avgLoss = (avgLoss*float64(period-1) + (-change)) / float64(period)
		}
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}
	return out
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ATR returns the Wilder-smoothed average true range, where true range
// is max(high-low, |high-prevClose|, |low-prevClose|). Returns 0 when
// fewer than period+1 bars are available.
func ATR(klines []Kline, period int) float64 {
	if period <= 0 || len(klines) <= period {
		return 0
	}
	trs := trueRanges(klines)

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += trs[i]
	}
	atr := sum / float64(period)

	for i := period + 1; i < len(klines); i++ {
		atr = (atr*float64(period-1) + trs[i]) / float64(period)
	}
	return atr
}

func trueRanges(klines []Kline) []float64 {
	trs := make([]float64, len(klines))
	for i := 1; i < len(klines); i++ {
		tr1 := klines[i].High - klines[i].Low
		tr2 := math.Abs(klines[i].High - klines[i-1].Close)
		tr3 := math.Abs(klines[i].Low - klines[i-1].Close)
		trs[i] = math.Max(tr1, math.Max(tr2, tr3))
	}
	return trs
}

// emaCompact smooths an arbitrary value series, returning one output
// per bar starting at index period-1 (SMA seed, then the standard EMA
// recurrence). Empty when the series is shorter than the period.
func emaCompact(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return []float64{}
	}
	out := make([]float64, 0, len(values)-period+1)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	ema := sum / float64(period)
	out = append(out, ema)

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		ema = (values[i]-ema)*multiplier + ema
		out = append(out, ema)
	}
	return out
}

// sma averages the trailing period entries of the series.
func sma(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// stdev is the population standard deviation of the trailing window.
func stdev(values []float64, period int) float64 {
	if period <= 1 || len(values) < period {
		return 0
	}
	mean := sma(values, period)
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		d := values[i] - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(period))
}

// kalmanFilter runs a one-dimensional Kalman filter over the closes
// with fixed process noise q and measurement noise r, returning the
// final filtered value.
func kalmanFilter(klines []Kline, q, r float64) float64 {
	if len(klines) == 0 {
		return 0
	}
	x := klines[0].Close
	p := 1.0
	for i := 1; i < len(klines); i++ {
		p += q
		k := p / (p + r)
		x = x + k*(klines[i].Close-x)
		p = (1 - k) * p
	}
	return x
}

func closes(klines []Kline) []float64 {
	out := make([]float64, len(klines))
	for i := range klines {
		out[i] = klines[i].Close
	}
	return out
}
