package market

import (
	"context"
	"time"
)

// Candle is one OHLCV bar. Series are ordered oldest to newest and are
// assumed contiguous by every consumer.
type Candle struct {
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
	// TakerBuyVolume is the aggressor-buy share of Volume when the venue
	// reports it; zero means unknown.
	TakerBuyVolume float64 `json:"taker_buy_volume,omitempty"`
}

// Account is the broker view used for sizing.
type Account struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	MarginUsed float64 `json:"margin_used"`
}

// CandleSource returns up to limit candles. Fewer than limit is normal for
// young instruments and an empty slice means "no data", not an error.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
}

// AccountSource reports the account balance and equity.
type AccountSource interface {
	GetAccount(ctx context.Context) (Account, error)
}

// Closes extracts close prices.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Highs extracts high prices.
func Highs(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

// Lows extracts low prices.
func Lows(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

// Volumes extracts bar volumes.
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

// Returns computes simple returns close[i]/close[i-1]-1. Bars with a
// non-positive previous close contribute a zero return.
func Returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] > 0 {
			out[i-1] = closes[i]/closes[i-1] - 1
		}
	}
	return out
}
