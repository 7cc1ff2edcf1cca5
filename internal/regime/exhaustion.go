package regime

import (
	"math"

	"github.com/markcheno/go-talib"

	"regime-trading-bot/internal/market"
)

// Exhaustion sub-metric weights.
const (
	WeightZScore   = 0.4
	WeightVelocity = 0.3
	WeightVolume   = 0.3
)

const (
	zScorePeriod     = 20
	velocityBars     = 5
	atrPeriod        = 14
	volumeAvgPeriod  = 20
	dispersionWindow = 30
)

// Exhaustion holds the raw and normalized inputs of the exhaustion score.
// Each *Norm field is independently scaled to 0-100.
type Exhaustion struct {
	ZScore          float64 `json:"z_score"`
	ZScoreNorm      float64 `json:"z_score_norm"`
	VelocityATR     float64 `json:"velocity_atr"`
	VelocityATRNorm float64 `json:"velocity_atr_norm"`
	VolumeSurge     float64 `json:"volume_surge"`
	VolumeSurgeNorm float64 `json:"volume_surge_norm"`
	ATR             float64 `json:"atr"`
}

// Score is the weighted exhaustion composite on 0-100.
func (e Exhaustion) Score() float64 {
	return clamp(WeightZScore*e.ZScoreNorm+WeightVelocity*e.VelocityATRNorm+WeightVolume*e.VolumeSurgeNorm, 0, 100)
}

// NormalizeZScore maps |z| onto 0-100, saturating at |z| = 3.
func NormalizeZScore(z float64) float64 {
	return clamp(math.Abs(z)/3*100, 0, 100)
}

// NormalizeVelocity maps the per-bar move / ATR ratio onto 0-100,
// saturating when the average bar moves a full ATR.
func NormalizeVelocity(ratio float64) float64 {
	return clamp(ratio*100, 0, 100)
}

// NormalizeVolumeSurge maps last-volume / average-volume onto 0-100:
// average volume scores 0 and three times average scores 100.
func NormalizeVolumeSurge(surge float64) float64 {
	return clamp((surge-1)/2*100, 0, 100)
}

// ComputeExhaustion derives the exhaustion sub-metrics from the tail of the
// series. Each metric with too little history stays at zero.
func ComputeExhaustion(candles []market.Candle) Exhaustion {
	var ex Exhaustion
	closes := market.Closes(candles)
	n := len(closes)

	if n >= zScorePeriod {
		window := closes[n-zScorePeriod:]
		if sd := stdDev(window); sd > 0 {
			ex.ZScore = (closes[n-1] - meanOf(window)) / sd
		}
	}
	ex.ZScoreNorm = NormalizeZScore(ex.ZScore)

	if n > atrPeriod {
		atr := talib.Atr(market.Highs(candles), market.Lows(candles), closes, atrPeriod)
		ex.ATR = atr[n-1]
		if n > velocityBars && ex.ATR > 0 {
			velocity := math.Abs(closes[n-1]-closes[n-1-velocityBars]) / velocityBars
			ex.VelocityATR = velocity / ex.ATR
		}
	}
	ex.VelocityATRNorm = NormalizeVelocity(ex.VelocityATR)

	volumes := market.Volumes(candles)
	if len(volumes) > volumeAvgPeriod {
		avg := meanOf(volumes[len(volumes)-1-volumeAvgPeriod : len(volumes)-1])
		if avg > 0 {
			ex.VolumeSurge = volumes[len(volumes)-1] / avg
		}
	}
	ex.VolumeSurgeNorm = NormalizeVolumeSurge(ex.VolumeSurge)

	return ex
}

// VolumeDispersion is the coefficient of variation of the trailing volumes
// mapped onto 0-100 (CV of 1 or more scores 100).
func VolumeDispersion(candles []market.Candle) float64 {
	window := tail(market.Volumes(candles), dispersionWindow)
	if len(window) < 2 {
		return 0
	}
	m := meanOf(window)
	if m <= 0 {
		return 0
	}
	return clamp(stdDev(window)/m*100, 0, 100)
}
