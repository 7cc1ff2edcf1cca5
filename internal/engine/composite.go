package engine

import (
	"fmt"

	"regime-trading-bot/internal/regime"
)

// Signal is the reconciled engine verdict.
type Signal string

const (
	SignalBuy         Signal = "BUY"
	SignalSell        Signal = "SELL"
	SignalWait        Signal = "WAIT"
	SignalTrendFollow Signal = "TREND_FOLLOW"
	SignalNeutral     Signal = "NEUTRAL"
)

// Composite carries both engine scores and the reconciled signal.
// Confidence is on 0-1.
type Composite struct {
	AEXIScore  float64     `json:"aexi_score"`
	DreamScore float64     `json:"dream_score"`
	Signal     Signal      `json:"combined_signal"`
	Confidence float64     `json:"confidence"`
	Reason     string      `json:"reason"`
	AEXI       AEXIResult  `json:"aexi"`
	Dream      DreamResult `json:"dream"`
}

type Config struct {
	AEXI  AEXIConfig
	Dream DreamConfig
	// ChaoticAt is the Dream score at or above which every other signal
	// is overridden with WAIT.
	ChaoticAt float64
	// BorderlineAt marks a Dream score high enough to halve trust in an
	// exhaustion reversal.
	BorderlineAt float64
}

func DefaultConfig() Config {
	return Config{
		AEXI:         DefaultAEXIConfig(),
		Dream:        DefaultDreamConfig(),
		ChaoticAt:    70,
		BorderlineAt: 60,
	}
}

// Engine runs AEXI and Dream over a regime reading.
type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	if cfg.ChaoticAt == 0 {
		cfg = DefaultConfig()
	}
	return &Engine{cfg: cfg}
}

// Evaluate scores both engines and reconciles them.
func (e *Engine) Evaluate(r regime.Reading) Composite {
	return Reconcile(EvaluateAEXI(r, e.cfg.AEXI), EvaluateDream(r, e.cfg.Dream), e.cfg)
}

// Reconcile applies the fixed precedence: chaos beats exhaustion, which
// beats trend-following.
func Reconcile(a AEXIResult, d DreamResult, cfg Config) Composite {
	c := Composite{
		AEXIScore:  a.Score,
		DreamScore: d.Score,
		AEXI:       a,
		Dream:      d,
	}

	switch {
	case d.Score >= cfg.ChaoticAt:
		c.Signal, c.Confidence = SignalWait, 0.3
		c.Reason = fmt.Sprintf("dream %s (%.1f): structure unstable", d.Bucket, d.Score)

	case a.Triggered:
		c.Confidence = 0.75
		if d.Score >= cfg.BorderlineAt {
			c.Confidence = 0.5
		}
		switch a.Direction {
		case DirectionLong:
			c.Signal = SignalBuy
		case DirectionShort:
			c.Signal = SignalSell
		default:
			// exhausted but no side to take
			c.Signal, c.Confidence = SignalWait, 0.5
		}
		c.Reason = a.Reason

	case d.Bucket == BucketOrdered:
		c.Signal, c.Confidence = SignalTrendFollow, 0.6
		c.Reason = fmt.Sprintf("dream ORDERED (%.1f)", d.Score)

	default:
		c.Signal, c.Confidence = SignalNeutral, 0.5
		c.Reason = "no engine conviction"
	}
	return c
}
