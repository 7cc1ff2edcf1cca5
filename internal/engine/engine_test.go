package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"regime-trading-bot/internal/regime"
)

func readingWithExhaustion(z, velNorm, volNorm float64) regime.Reading {
	return regime.Reading{
		Hurst: 0.5,
		Exhaustion: regime.Exhaustion{
			ZScore:          z,
			ZScoreNorm:      regime.NormalizeZScore(z),
			VelocityATRNorm: velNorm,
			VolumeSurgeNorm: volNorm,
		},
	}
}

func TestAEXITriggerAndDirection(t *testing.T) {
	cfg := DefaultAEXIConfig()

	over := EvaluateAEXI(readingWithExhaustion(3.2, 100, 100), cfg)
	assert.True(t, over.Triggered)
	assert.Equal(t, DirectionShort, over.Direction)
	assert.Equal(t, 100.0, over.Score)

	under := EvaluateAEXI(readingWithExhaustion(-3.2, 100, 100), cfg)
	assert.True(t, under.Triggered)
	assert.Equal(t, DirectionLong, under.Direction)

	calm := EvaluateAEXI(readingWithExhaustion(0.5, 20, 10), cfg)
	assert.False(t, calm.Triggered)
	assert.Equal(t, DirectionNone, calm.Direction)
}

func TestAEXITriggeredWithoutExtensionIsNonDirectional(t *testing.T) {
	// z=1.8 -> 60 norm; 0.4*60 + 0.3*100 + 0.3*100 = 84
	res := EvaluateAEXI(readingWithExhaustion(1.8, 100, 100), DefaultAEXIConfig())
	assert.True(t, res.Triggered)
	assert.Equal(t, DirectionNone, res.Direction)
	assert.InDelta(t, 84, res.Score, 1e-9)
}

func TestAEXIScoreMonotonicInAbsZ(t *testing.T) {
	cfg := DefaultAEXIConfig()
	prev := -1.0
	for _, z := range []float64{0, 0.3, 1, 2, 2.9, 3, 5} {
		pos := EvaluateAEXI(readingWithExhaustion(z, 30, 30), cfg).Score
		neg := EvaluateAEXI(readingWithExhaustion(-z, 30, 30), cfg).Score
		assert.GreaterOrEqual(t, pos, prev)
		assert.Equal(t, pos, neg)
		prev = pos
	}
}

func TestDreamBuckets(t *testing.T) {
	cfg := DefaultDreamConfig()
	cases := []struct {
		name   string
		r      regime.Reading
		bucket Bucket
		advice Advice
	}{
		{"chaos", regime.Reading{Hurst: 0.5, EntropyNorm: 100, FractalNorm: 100, VolumeDispersion: 100}, BucketChaos, AdviceAvoidTrading},
		// 0.3*90 + 0.25*60 + 0.25*100 + 0.2*20 = 71
		{"unstable", regime.Reading{Hurst: 0.5, EntropyNorm: 90, FractalNorm: 60, VolumeDispersion: 20}, BucketUnstable, AdviceCaution},
		{"ordered", regime.Reading{Hurst: 1.0, EntropyNorm: 20, FractalNorm: 10, VolumeDispersion: 10}, BucketOrdered, AdviceTrendFollow},
		// 0.3*50 + 0.25*50 + 0.25*60 + 0.2*40 = 50.5
		{"normal", regime.Reading{Hurst: 0.7, EntropyNorm: 50, FractalNorm: 50, VolumeDispersion: 40}, BucketNormal, AdviceNormal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := EvaluateDream(tc.r, cfg)
			assert.Equal(t, tc.bucket, res.Bucket, "score=%.2f", res.Score)
			assert.Equal(t, tc.advice, res.Advice)
		})
	}
}

func TestReconcilePrecedence(t *testing.T) {
	cfg := DefaultConfig()
	longAEXI := AEXIResult{Score: 90, Triggered: true, Direction: DirectionLong}
	shortAEXI := AEXIResult{Score: 90, Triggered: true, Direction: DirectionShort}
	quietAEXI := AEXIResult{Score: 20}

	cases := []struct {
		name       string
		a          AEXIResult
		d          DreamResult
		signal     Signal
		confidence float64
	}{
		{"chaos overrides exhaustion", longAEXI, DreamResult{Score: 85, Bucket: BucketChaos}, SignalWait, 0.3},
		{"unstable overrides exhaustion", shortAEXI, DreamResult{Score: 72, Bucket: BucketUnstable}, SignalWait, 0.3},
		{"exhaustion long", longAEXI, DreamResult{Score: 40, Bucket: BucketNormal}, SignalBuy, 0.75},
		{"exhaustion short", shortAEXI, DreamResult{Score: 40, Bucket: BucketNormal}, SignalSell, 0.75},
		{"exhaustion in borderline dream", longAEXI, DreamResult{Score: 65, Bucket: BucketNormal}, SignalBuy, 0.5},
		{"exhaustion beats ordered", shortAEXI, DreamResult{Score: 20, Bucket: BucketOrdered}, SignalSell, 0.75},
		{"non-directional exhaustion waits", AEXIResult{Score: 85, Triggered: true, Direction: DirectionNone}, DreamResult{Score: 40, Bucket: BucketNormal}, SignalWait, 0.5},
		{"ordered trend follow", quietAEXI, DreamResult{Score: 25, Bucket: BucketOrdered}, SignalTrendFollow, 0.6},
		{"neutral", quietAEXI, DreamResult{Score: 50, Bucket: BucketNormal}, SignalNeutral, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Reconcile(tc.a, tc.d, cfg)
			assert.Equal(t, tc.signal, c.Signal)
			assert.Equal(t, tc.confidence, c.Confidence)
			assert.NotEmpty(t, c.Reason)
		})
	}
}

func TestEngineEvaluateEndToEnd(t *testing.T) {
	e := New(Config{})
	r := readingWithExhaustion(-3.5, 100, 100)
	r.Hurst = 0.9
	r.EntropyNorm = 20
	r.FractalNorm = 20
	c := e.Evaluate(r)
	assert.Equal(t, SignalBuy, c.Signal)
	assert.Equal(t, c.AEXI.Score, c.AEXIScore)
	assert.Equal(t, c.Dream.Score, c.DreamScore)
}
