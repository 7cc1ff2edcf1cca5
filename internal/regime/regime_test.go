package regime

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regime-trading-bot/internal/market"
)

func candlesFromCloses(closes []float64) []market.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{
			Open:      c,
			High:      c * 1.001,
			Low:       c * 0.999,
			Close:     c,
			Volume:    1000,
			Timestamp: start.Add(time.Duration(i) * 15 * time.Minute),
		}
	}
	return out
}

func TestHurstConstantPriceIsRandom(t *testing.T) {
	closes := make([]float64, 200)
	for i := range closes {
		closes[i] = 100
	}
	reading := NewClassifier(DefaultConfig()).Classify(candlesFromCloses(closes))

	assert.InDelta(t, 0.5, reading.Hurst, 0.05)
	assert.Equal(t, Random, reading.Regime)
	assert.False(t, reading.Regime.Tradeable())
}

func TestHurstMonotonicIncreaseIsTrending(t *testing.T) {
	closes := make([]float64, 200)
	for i := range closes {
		closes[i] = 100 + 0.5*float64(i) + 1e-4*math.Sin(float64(i)*1.7)
	}
	reading := NewClassifier(DefaultConfig()).Classify(candlesFromCloses(closes))

	assert.Greater(t, reading.Hurst, 0.55)
	assert.Equal(t, Trending, reading.Regime)
}

func TestHurstInsufficientDataFallsBack(t *testing.T) {
	// only the 10-bar window fits
	returns := []float64{0.01, -0.02, 0.015, 0.003, -0.007, 0.02, -0.01, 0.004, 0.011, -0.006, 0.002, 0.008}
	assert.Equal(t, 0.5, Hurst(returns, nil))
	assert.Equal(t, 0.5, Hurst(nil, nil))
}

func TestHurstAlternatingSeriesIsMeanReverting(t *testing.T) {
	returns := make([]float64, 160)
	for i := range returns {
		if i%2 == 0 {
			returns[i] = 0.01
		} else {
			returns[i] = -0.01
		}
	}
	h := Hurst(returns, nil)
	assert.Less(t, h, 0.45)
	assert.GreaterOrEqual(t, h, 0.0)
}

func TestHurstCorrectedRemovesWhiteNoiseBias(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const runs = 200
	var plain, corrected float64
	var plainTrending, correctedTrending int
	c := NewClassifier(DefaultConfig())
	for i := 0; i < runs; i++ {
		returns := make([]float64, 249)
		for j := range returns {
			returns[j] = rng.NormFloat64() * 0.01
		}
		p, h := Hurst(returns, nil), HurstCorrected(returns, nil)
		plain += p
		corrected += h
		if c.Decide(p) == Trending {
			plainTrending++
		}
		if c.Decide(h) == Trending {
			correctedTrending++
		}
	}
	plain /= runs
	corrected /= runs

	assert.Greater(t, plain, 0.54, "plain R/S is biased up on short windows")
	assert.InDelta(t, 0.5, corrected, 0.04)
	assert.Greater(t, plain-corrected, 0.04)
	assert.Less(t, correctedTrending, plainTrending/2)
}

func TestClassifierUsesCorrectedHurstWhenConfigured(t *testing.T) {
	closes := make([]float64, 250)
	rng := rand.New(rand.NewSource(3))
	p := 100.0
	for i := range closes {
		p *= 1 + rng.NormFloat64()*0.01
		closes[i] = p
	}
	candles := candlesFromCloses(closes)
	returns := market.Returns(closes)

	cfg := DefaultConfig()
	cfg.HurstCorrection = true
	assert.Equal(t, HurstCorrected(returns, nil), NewClassifier(cfg).Classify(candles).Hurst)
	assert.Equal(t, Hurst(returns, nil), NewClassifier(DefaultConfig()).Classify(candles).Hurst)
}

func TestEntropyTwoValuePeriodicIsLow(t *testing.T) {
	returns := make([]float64, 30)
	for i := range returns {
		if i%2 == 0 {
			returns[i] = 0.01
		} else {
			returns[i] = -0.01
		}
	}
	e := Entropy(returns, DefaultEntropyLookback, DefaultEntropyBins)
	// two equally occupied buckets out of ten
	assert.InDelta(t, 100/math.Log2(10), e, 1e-9)
	assert.Less(t, e, 31.0)
}

func TestEntropyUniformApproaches100(t *testing.T) {
	returns := make([]float64, 30)
	for i := range returns {
		// even spread, scrambled order
		returns[i] = float64((i*7)%30) / 1000
	}
	e := Entropy(returns, DefaultEntropyLookback, DefaultEntropyBins)
	assert.InDelta(t, 100, e, 1e-6)
}

func TestEntropyFlatWindowIsZero(t *testing.T) {
	assert.Equal(t, 0.0, Entropy(make([]float64, 30), 30, 10))
	assert.Equal(t, 0.0, Entropy([]float64{0.1}, 30, 10))
}

func TestFractalProxy(t *testing.T) {
	straight := make([]float64, 30)
	zigzag := make([]float64, 30)
	for i := range straight {
		straight[i] = float64(i)
		zigzag[i] = float64(i % 2)
	}
	assert.Equal(t, 0.0, FractalProxy(straight, 30))
	assert.Equal(t, 100.0, FractalProxy(zigzag, 30))
	assert.Equal(t, 0.0, FractalProxy([]float64{1, 2}, 30))
}

func TestExhaustionScoreMonotonicInZ(t *testing.T) {
	score := func(z float64) float64 {
		return Exhaustion{
			ZScore:          z,
			ZScoreNorm:      NormalizeZScore(z),
			VelocityATRNorm: 40,
			VolumeSurgeNorm: 60,
		}.Score()
	}

	prev := score(0)
	for _, z := range []float64{0.5, 1, 1.5, 2, 2.5, 3, 4, 6} {
		cur := score(z)
		require.GreaterOrEqual(t, cur, prev, "z=%v", z)
		assert.Equal(t, cur, score(-z), "sign of z must not matter")
		prev = cur
	}
}

func TestComputeExhaustionDetectsSpike(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + 0.2*math.Sin(float64(i))
	}
	candles := candlesFromCloses(closes)
	// final bar rips higher on heavy volume
	last := len(candles) - 1
	candles[last].Close = 106
	candles[last].High = 106.5
	candles[last].Volume = 4000

	ex := ComputeExhaustion(candles)
	assert.Greater(t, ex.ZScore, 2.0)
	assert.Equal(t, 100.0, ex.ZScoreNorm)
	assert.Equal(t, 100.0, ex.VolumeSurgeNorm)
	assert.Greater(t, ex.VelocityATRNorm, 0.0)
	assert.Greater(t, ex.ATR, 0.0)
}

func TestComputeExhaustionShortSeriesIsNeutral(t *testing.T) {
	ex := ComputeExhaustion(candlesFromCloses([]float64{1, 2, 3}))
	assert.Equal(t, Exhaustion{}, ex)
	assert.Equal(t, 0.0, ex.Score())
}

func TestVolumeDispersion(t *testing.T) {
	candles := candlesFromCloses(make([]float64, 30))
	assert.Equal(t, 0.0, VolumeDispersion(candles))

	for i := range candles {
		if i%2 == 0 {
			candles[i].Volume = 0
		} else {
			candles[i].Volume = 2000
		}
	}
	// mean 1000, population sd 1000
	assert.InDelta(t, 100, VolumeDispersion(candles), 1e-9)
}

func TestDecideThresholds(t *testing.T) {
	c := NewClassifier(Config{})
	assert.Equal(t, Trending, c.Decide(0.56))
	assert.Equal(t, Random, c.Decide(0.55))
	assert.Equal(t, Random, c.Decide(0.45))
	assert.Equal(t, MeanReverting, c.Decide(0.44))
}
