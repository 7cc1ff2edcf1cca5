package engine

import (
	"math"

	"regime-trading-bot/internal/regime"
)

// Dream score weights.
const (
	dreamEntropyWeight    = 0.30
	dreamFractalWeight    = 0.25
	dreamHurstWeight      = 0.25
	dreamDispersionWeight = 0.20
)

// Bucket is the structural-stability bucket of a Dream score.
type Bucket string

const (
	BucketChaos    Bucket = "CHAOS"
	BucketUnstable Bucket = "UNSTABLE"
	BucketNormal   Bucket = "NORMAL"
	BucketOrdered  Bucket = "ORDERED"
)

// Advice is the trading posture attached to a bucket.
type Advice string

const (
	AdviceAvoidTrading Advice = "AVOID_TRADING"
	AdviceCaution      Advice = "CAUTION"
	AdviceNormal       Advice = "NORMAL"
	AdviceTrendFollow  Advice = "TREND_FOLLOW"
)

type DreamConfig struct {
	ChaosAt    float64
	UnstableAt float64
	OrderedAt  float64
}

func DefaultDreamConfig() DreamConfig {
	return DreamConfig{ChaosAt: 80, UnstableAt: 70, OrderedAt: 30}
}

type DreamResult struct {
	Score          float64 `json:"score"`
	Bucket         Bucket  `json:"bucket"`
	Advice         Advice  `json:"advice"`
	HurstStructure float64 `json:"hurst_structure"`
}

// EvaluateDream scores structural breakdown. Hurst near 0.5 means no
// memory in the series, which counts as disorder.
func EvaluateDream(r regime.Reading, cfg DreamConfig) DreamResult {
	hurstDisorder := (1 - 2*math.Abs(r.Hurst-0.5)) * 100
	score := dreamEntropyWeight*r.EntropyNorm +
		dreamFractalWeight*r.FractalNorm +
		dreamHurstWeight*hurstDisorder +
		dreamDispersionWeight*r.VolumeDispersion
	score = math.Max(0, math.Min(100, score))

	res := DreamResult{Score: score, HurstStructure: hurstDisorder}
	switch {
	case score >= cfg.ChaosAt:
		res.Bucket, res.Advice = BucketChaos, AdviceAvoidTrading
	case score >= cfg.UnstableAt:
		res.Bucket, res.Advice = BucketUnstable, AdviceCaution
	case score <= cfg.OrderedAt:
		res.Bucket, res.Advice = BucketOrdered, AdviceTrendFollow
	default:
		res.Bucket, res.Advice = BucketNormal, AdviceNormal
	}
	return res
}
