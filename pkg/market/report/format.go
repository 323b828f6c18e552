package report

import (
	"fmt"
	"strings"

	"marketpulse/pkg/market"
)

// Format renders a snapshot as the plain-text report. Prices use
// dynamic precision so sub-cent assets keep their significant digits
// while high-priced ones stay compact.
func Format(data *market.Data) string {
	var sb strings.Builder

	priceStr := formatPriceWithDynamicPrecision(data.CurrentPrice)
	sb.WriteString(fmt.Sprintf("current_price = %s, current_ema20 = %.3f, current_macd = %.3f, current_rsi (7 period) = %.3f, current_tsi = %.3f, tsi_signal = %.3f\n\n",
		priceStr, data.CurrentEMA20, data.CurrentMACD, data.CurrentRSI7, data.CurrentTSI, data.CurrentTSISignal))

	sb.WriteString(fmt.Sprintf("In addition, here is the latest %s open interest and funding rate for perps:\n\n",
		data.Symbol))

	if data.OpenInterest != nil {
		oiLatestStr := formatPriceWithDynamicPrecision(data.OpenInterest.Latest)
		oiAverageStr := formatPriceWithDynamicPrecision(data.OpenInterest.Average)
		sb.WriteString(fmt.Sprintf("Open Interest: Latest: %s Average: %s\n\n",
			oiLatestStr, oiAverageStr))
	}

	sb.WriteString(fmt.Sprintf("Funding Rate: %.2e\n\n", data.FundingRate))

	if data.IntradaySeries != nil {
		sb.WriteString("Intraday series (3‑minute intervals, oldest → latest):\n\n")

		if len(data.IntradaySeries.MidPrices) > 0 {
			sb.WriteString(fmt.Sprintf("Mid prices: %s\n\n", formatFloatSlice(data.IntradaySeries.MidPrices)))
		}
		if len(data.IntradaySeries.EMA20Values) > 0 {
			sb.WriteString(fmt.Sprintf("EMA indicators (20‑period): %s\n\n", formatFloatSlice(data.IntradaySeries.EMA20Values)))
		}
		if len(data.IntradaySeries.MACDValues) > 0 {
			sb.WriteString(fmt.Sprintf("MACD indicators: %s\n\n", formatFloatSlice(data.IntradaySeries.MACDValues)))
		}
		if len(data.IntradaySeries.RSI7Values) > 0 {
			sb.WriteString(fmt.Sprintf("RSI indicators (7‑Period): %s\n\n", formatFloatSlice(data.IntradaySeries.RSI7Values)))
		}
		if len(data.IntradaySeries.RSI14Values) > 0 {
			sb.WriteString(fmt.Sprintf("RSI indicators (14‑Period): %s\n\n", formatFloatSlice(data.IntradaySeries.RSI14Values)))
		}
		if len(data.IntradaySeries.Volume) > 0 {
			sb.WriteString(fmt.Sprintf("Volume: %s\n\n", formatFloatSlice(data.IntradaySeries.Volume)))
		}

		sb.WriteString(fmt.Sprintf("3m ATR (14‑period): %.3f\n\n", data.IntradaySeries.ATR14))
	}

	if data.LongerTermContext != nil {
		sb.WriteString("Longer‑term context (4‑hour timeframe):\n\n")

		sb.WriteString(fmt.Sprintf("20‑Period EMA: %.3f vs. 50‑Period EMA: %.3f\n\n",
			data.LongerTermContext.EMA20, data.LongerTermContext.EMA50))
		sb.WriteString(fmt.Sprintf("3‑Period ATR: %.3f vs. 14‑Period ATR: %.3f\n\n",
			data.LongerTermContext.ATR3, data.LongerTermContext.ATR14))
		sb.WriteString(fmt.Sprintf("Current Volume: %.3f vs. Average Volume: %.3f\n\n",
			data.LongerTermContext.CurrentVolume, data.LongerTermContext.AverageVolume))

		if len(data.LongerTermContext.MACDValues) > 0 {
			sb.WriteString(fmt.Sprintf("MACD indicators: %s\n\n", formatFloatSlice(data.LongerTermContext.MACDValues)))
		}
		if len(data.LongerTermContext.RSI14Values) > 0 {
			sb.WriteString(fmt.Sprintf("RSI indicators (14‑Period): %s\n\n", formatFloatSlice(data.LongerTermContext.RSI14Values)))
		}
	}

	sb.WriteString("Additional indicators (scripts #1–#10):\n\n")
	aboveSignal := data.CurrentTSI > data.CurrentTSISignal
	zone := "neutral"
	if data.CurrentTSI >= 40 {
		zone = "overbought(>=+40)"
	} else if data.CurrentTSI <= -40 {
		zone = "oversold(<=-40)"
	}
	sb.WriteString(fmt.Sprintf("TSI: value=%.2f, signal=%.2f, above_signal=%v, zone=%s\n",
		data.CurrentTSI, data.CurrentTSISignal, aboveSignal, zone))
	sb.WriteString(fmt.Sprintf("KEMAD: trend=%d, kema=%.3f, atr=%.3f\n",
		data.KEMADTrend, data.KEMADEMA, data.KEMADATR))
	sb.WriteString(fmt.Sprintf("Volatility Gaussian Bands: trend=%d, avg=%.3f, upper=%.3f, lower=%.3f, score=%.3f\n",
		data.VGBTrend, data.VGBAvg, data.VGBUpper, data.VGBLower, data.VGBScore))
	sb.WriteString(fmt.Sprintf("SSL Hybrid Exit: signal=%d, baseline=%.3f, upperK=%.3f, lowerK=%.3f\n",
		data.SSLExitSignal, data.SSLBaseline, data.SSLUpperK, data.SSLLowerK))
	sb.WriteString(fmt.Sprintf("Zero‑Lag Trend: trend=%d, zlema=%.3f, volatility=%.3f\n",
		data.ZeroLagTrend, data.ZeroLagZLEMA, data.ZeroLagVolatility))
	sb.WriteString(fmt.Sprintf("QQE MOD Hybrid: trend=%d, fastTL=%.3f, upper=%.3f, lower=%.3f\n",
		data.QQETrend, data.QQEFastTL, data.QQEUpper, data.QQELower))
	sb.WriteString(fmt.Sprintf("Range Filtered: kalman=%.3f, trend=%d, kTrend=%d, combined=%d\n",
		data.RangeKalman, data.RangeTrend, data.RangeKTrend, data.RangeCombinedTrend))
	sb.WriteString(fmt.Sprintf("DPSD: trend=%d, pt=%.3f, dema=%.3f, perUp=%.3f, perDown=%.3f\n",
		data.DPSDTrend, data.DPSDPT, data.DPSDEMA, data.DPSDPerUp, data.DPSDPerDown))
	sb.WriteString(fmt.Sprintf("Ultimate RSI: value=%.2f, signal=%.2f, overbought=%v, oversold=%v\n",
		data.UltimateRSI, data.UltimateRSISignal, data.UltimateRSIOverbought, data.UltimateRSIOversold))
	sb.WriteString(fmt.Sprintf("RSI(10): buy=%v, sell=%v, rsi=%.2f\n\n",
		data.RSIBuySignal, data.RSISellSignal, data.RSIValue))

	return sb.String()
}

// formatPriceWithDynamicPrecision widens the fraction for cheap assets
// and narrows it for expensive ones, covering everything from sub-cent
// meme coins to BTC.
func formatPriceWithDynamicPrecision(price float64) string {
	switch {
	case price < 0.0001:
		return fmt.Sprintf("%.8f", price)
	case price < 0.001:
		return fmt.Sprintf("%.6f", price)
	case price < 0.01:
		return fmt.Sprintf("%.6f", price)
	case price < 1.0:
		return fmt.Sprintf("%.4f", price)
	case price < 100:
		return fmt.Sprintf("%.4f", price)
	default:
		return fmt.Sprintf("%.2f", price)
	}
}

func formatFloatSlice(values []float64) string {
	strValues := make([]string, len(values))
	for i, v := range values {
		strValues[i] = formatPriceWithDynamicPrecision(v)
	}
	return "[" + strings.Join(strValues, ", ") + "]"
}
