package strategy

import (
	"math"

	"github.com/markcheno/go-talib"

	"regime-trading-bot/internal/market"
)

// Every indicator returns a documented neutral value when the series is
// too short: 0 for averages, ranges and histograms, 50 for oscillators.

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// SMA returns the latest simple moving average of closes.
func SMA(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}
	return last(talib.Sma(market.Closes(candles), period))
}

// EMA returns the latest exponential moving average of closes.
func EMA(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}
	return last(talib.Ema(market.Closes(candles), period))
}

// ============================================================================
// OSCILLATORS
// ============================================================================

// RSI returns the latest Wilder RSI, 50 when history is short.
func RSI(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 50
	}
	return last(talib.Rsi(market.Closes(candles), period))
}

// StochasticK returns the raw %K of the latest bar.
func StochasticK(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 50
	}
	window := candles[len(candles)-period:]
	hh, ll := window[0].High, window[0].Low
	for _, c := range window {
		hh = math.Max(hh, c.High)
		ll = math.Min(ll, c.Low)
	}
	if hh == ll {
		return 50
	}
	return (window[len(window)-1].Close - ll) / (hh - ll) * 100
}

// MACDHistogram returns the latest MACD histogram value.
func MACDHistogram(candles []market.Candle, fast, slow, signal int) float64 {
	if len(candles) < slow+signal {
		return 0
	}
	_, _, hist := talib.Macd(market.Closes(candles), fast, slow, signal)
	return last(hist)
}

// ============================================================================
// VOLATILITY AND TREND STRENGTH
// ============================================================================

// ATR returns the latest Wilder average true range.
func ATR(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}
	return last(talib.Atr(market.Highs(candles), market.Lows(candles), market.Closes(candles), period))
}

// DirectionalIndex holds ADX with its +DI/-DI legs.
type DirectionalIndex struct {
	ADX     float64
	PlusDI  float64
	MinusDI float64
}

// ADX returns trend strength and direction legs.
func ADX(candles []market.Candle, period int) DirectionalIndex {
	if period <= 0 || len(candles) < 2*period+1 {
		return DirectionalIndex{}
	}
	h, l, c := market.Highs(candles), market.Lows(candles), market.Closes(candles)
	return DirectionalIndex{
		ADX:     last(talib.Adx(h, l, c, period)),
		PlusDI:  last(talib.PlusDI(h, l, c, period)),
		MinusDI: last(talib.MinusDI(h, l, c, period)),
	}
}

// Supertrend returns +1 for an up trend, -1 for a down trend and 0 when
// there is not enough history. Bands are hl2 ± multiplier·ATR(period),
// ratcheted in the trend's favor.
func Supertrend(candles []market.Candle, period int, multiplier float64) int {
	if period <= 0 || len(candles) < period+2 {
		return 0
	}
	atr := talib.Atr(market.Highs(candles), market.Lows(candles), market.Closes(candles), period)

	trend := 1
	var upper, lower float64
	for i := period; i < len(candles); i++ {
		hl2 := (candles[i].High + candles[i].Low) / 2
		basicUpper := hl2 + multiplier*atr[i]
		basicLower := hl2 - multiplier*atr[i]

		if i == period {
			upper, lower = basicUpper, basicLower
			continue
		}
		prevClose := candles[i-1].Close
		if basicUpper < upper || prevClose > upper {
			upper = basicUpper
		}
		if basicLower > lower || prevClose < lower {
			lower = basicLower
		}

		switch {
		case trend == 1 && candles[i].Close < lower:
			trend = -1
		case trend == -1 && candles[i].Close > upper:
			trend = 1
		}
	}
	return trend
}

// ============================================================================
// PRICE STRUCTURE AND VOLUME
// ============================================================================

// SupportResistance returns the lowest low and highest high of the
// trailing period bars.
func SupportResistance(candles []market.Candle, period int) (support, resistance float64) {
	if period <= 0 || len(candles) < period {
		return 0, 0
	}
	window := candles[len(candles)-period:]
	support, resistance = window[0].Low, window[0].High
	for _, c := range window {
		support = math.Min(support, c.Low)
		resistance = math.Max(resistance, c.High)
	}
	return support, resistance
}

// WickRejection returns the lower and upper wick as fractions of the bar
// range. A long lower wick is buyers rejecting lower prices.
func WickRejection(c market.Candle) (lower, upper float64) {
	rng := c.High - c.Low
	if rng <= 0 {
		return 0, 0
	}
	bodyLow := math.Min(c.Open, c.Close)
	bodyHigh := math.Max(c.Open, c.Close)
	return (bodyLow - c.Low) / rng, (c.High - bodyHigh) / rng
}

// Footprint returns the buy/sell volume imbalance of the trailing bars in
// [-1,1]. Taker-buy volume is used when the venue reports it, otherwise
// the close location inside the bar apportions the volume.
func Footprint(candles []market.Candle, bars int) float64 {
	if bars <= 0 || len(candles) < bars {
		return 0
	}
	var buy, sell float64
	for _, c := range candles[len(candles)-bars:] {
		b := c.TakerBuyVolume
		if b <= 0 {
			if rng := c.High - c.Low; rng > 0 {
				b = c.Volume * (c.Close - c.Low) / rng
			} else {
				b = c.Volume / 2
			}
		}
		buy += b
		sell += c.Volume - b
	}
	if buy+sell <= 0 {
		return 0
	}
	return (buy - sell) / (buy + sell)
}

// AverageVolume is the mean volume of the period bars before the latest.
func AverageVolume(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}
	var sum float64
	for _, c := range candles[len(candles)-1-period : len(candles)-1] {
		sum += c.Volume
	}
	return sum / float64(period)
}

func last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
