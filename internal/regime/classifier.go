package regime

import (
	"regime-trading-bot/internal/market"
)

// Regime labels the statistical character of the recent series.
type Regime string

const (
	Trending      Regime = "TRENDING"
	MeanReverting Regime = "MEAN_REVERTING"
	Random        Regime = "RANDOM" // no-trade zone
)

// Tradeable reports whether strategies may act in this regime.
func (r Regime) Tradeable() bool {
	return r == Trending || r == MeanReverting
}

// Reading is the advisory output of one classification. It is recomputed
// on every evaluation and never persisted as state.
type Reading struct {
	Hurst            float64    `json:"hurst"`
	EntropyNorm      float64    `json:"entropy_norm"`
	FractalNorm      float64    `json:"fractal_norm"`
	ExhaustionNorm   float64    `json:"exhaustion_norm"`
	VolumeDispersion float64    `json:"volume_dispersion_norm"`
	Regime           Regime     `json:"regime"`
	Exhaustion       Exhaustion `json:"exhaustion"`
	Bars             int        `json:"bars"`
}

type Config struct {
	HurstWindows    []int
	EntropyLookback int
	EntropyBins     int
	FractalLookback int
	TrendingAbove   float64
	MeanRevertBelow float64
	// HurstCorrection selects the Anis-Lloyd corrected estimator.
	HurstCorrection bool
}

func DefaultConfig() Config {
	return Config{
		HurstWindows:    DefaultHurstWindows,
		EntropyLookback: DefaultEntropyLookback,
		EntropyBins:     DefaultEntropyBins,
		FractalLookback: DefaultFractalLookback,
		TrendingAbove:   0.55,
		MeanRevertBelow: 0.45,
	}
}

// Classifier is a pure function of its input candles.
type Classifier struct {
	cfg Config
}

func NewClassifier(cfg Config) *Classifier {
	def := DefaultConfig()
	if len(cfg.HurstWindows) == 0 {
		cfg.HurstWindows = def.HurstWindows
	}
	if cfg.EntropyLookback <= 0 {
		cfg.EntropyLookback = def.EntropyLookback
	}
	if cfg.EntropyBins < 2 {
		cfg.EntropyBins = def.EntropyBins
	}
	if cfg.FractalLookback <= 0 {
		cfg.FractalLookback = def.FractalLookback
	}
	if cfg.TrendingAbove == 0 && cfg.MeanRevertBelow == 0 {
		cfg.TrendingAbove = def.TrendingAbove
		cfg.MeanRevertBelow = def.MeanRevertBelow
	}
	return &Classifier{cfg: cfg}
}

// Classify computes every regime statistic for the series.
func (c *Classifier) Classify(candles []market.Candle) Reading {
	closes := market.Closes(candles)
	returns := market.Returns(closes)

	ex := ComputeExhaustion(candles)
	h := Hurst(returns, c.cfg.HurstWindows)
	if c.cfg.HurstCorrection {
		h = HurstCorrected(returns, c.cfg.HurstWindows)
	}

	return Reading{
		Hurst:            h,
		EntropyNorm:      Entropy(returns, c.cfg.EntropyLookback, c.cfg.EntropyBins),
		FractalNorm:      FractalProxy(closes, c.cfg.FractalLookback),
		ExhaustionNorm:   ex.Score(),
		VolumeDispersion: VolumeDispersion(candles),
		Regime:           c.Decide(h),
		Exhaustion:       ex,
		Bars:             len(candles),
	}
}

// Decide maps a Hurst exponent onto a regime.
func (c *Classifier) Decide(h float64) Regime {
	switch {
	case h > c.cfg.TrendingAbove:
		return Trending
	case h < c.cfg.MeanRevertBelow:
		return MeanReverting
	default:
		return Random
	}
}
