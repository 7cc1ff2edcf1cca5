package binance

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"time"

	"regime-trading-bot/internal/market"
)

var basePrices = map[string]float64{
	"BTCUSDT": 64000,
	"ETHUSDT": 3200,
	"SOLUSDT": 150,
	"XRPUSDT": 0.52,
	"EURUSD":  1.085,
	"GBPUSD":  1.27,
}

// MockSource generates deterministic synthetic candles for dry runs. The
// same seed, symbol and clock always produce the same series.
type MockSource struct {
	seed   int64
	equity float64
	now    func() time.Time
}

func NewMockSource(seed int64, equity float64) *MockSource {
	return &MockSource{seed: seed, equity: equity, now: time.Now}
}

// SetClock replaces the time source.
func (m *MockSource) SetClock(now func() time.Time) { m.now = now }

// GetCandles returns a random walk with slowly rotating drift, so different
// symbols and windows land in different regimes.
func (m *MockSource) GetCandles(_ context.Context, symbol, timeframe string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		return nil, nil
	}
	step, ok := IntervalDuration(timeframe)
	if !ok {
		step = time.Minute
	}
	symbol = strings.ToUpper(symbol)
	base, ok := basePrices[symbol]
	if !ok {
		base = 100
	}

	end := m.now().Truncate(step)
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	rng := rand.New(rand.NewSource(m.seed ^ int64(h.Sum64()) ^ end.Unix()))

	out := make([]market.Candle, limit)
	price := base
	for i := 0; i < limit; i++ {
		drift := 0.0015 * math.Sin(float64(i)/40)
		ret := drift + rng.NormFloat64()*0.004
		open := price
		closePrice := open * (1 + ret)
		wick := math.Abs(rng.NormFloat64()) * 0.002
		vol := base * (800 + rng.Float64()*1200)
		out[i] = market.Candle{
			Open:           open,
			High:           math.Max(open, closePrice) * (1 + wick),
			Low:            math.Min(open, closePrice) * (1 - wick),
			Close:          closePrice,
			Volume:         vol,
			TakerBuyVolume: vol * (0.35 + rng.Float64()*0.3),
			Timestamp:      end.Add(-time.Duration(limit-i) * step).UTC(),
		}
		price = closePrice
	}
	return out, nil
}

// GetAccount reports the configured equity with no margin in use.
func (m *MockSource) GetAccount(context.Context) (market.Account, error) {
	return market.Account{Balance: m.equity, Equity: m.equity}, nil
}
