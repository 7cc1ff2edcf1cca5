package strategy

import (
	"fmt"
	"time"

	"regime-trading-bot/internal/market"
	"regime-trading-bot/internal/regime"
)

// Strategy scores a candle window into a candidate signal.
type Strategy interface {
	// Name returns the strategy name
	Name() string

	// MinBars is the shortest window the strategy will score
	MinBars() int

	// Evaluate never fails: short history, a no-trade regime or a weak
	// score all come back as a non-firing Evaluation.
	Evaluate(symbol string, candles []market.Candle, reading regime.Reading) Evaluation
}

// Direction is the trade side.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// CandidateSignal is a directional proposal with stop levels. It is built
// once per evaluation and then only read.
type CandidateSignal struct {
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Entry      float64   `json:"entry"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Confidence float64   `json:"confidence"` // 0-100
	Rationale  string    `json:"rationale"`
	Strategy   string    `json:"strategy"`
	CreatedAt  time.Time `json:"created_at"`
}

// StopDistance is |entry - stop|, zero when no stop is set.
func (s CandidateSignal) StopDistance() float64 {
	if s.StopLoss <= 0 {
		return 0
	}
	d := s.Entry - s.StopLoss
	if d < 0 {
		return -d
	}
	return d
}

// Verdict classifies an evaluation.
type Verdict string

const (
	VerdictFire    Verdict = "FIRE"
	VerdictNeutral Verdict = "NEUTRAL"
	VerdictAbstain Verdict = "ABSTAIN"
)

// Abstain reasons.
const (
	ReasonInsufficientData = "insufficient_data"
	ReasonNoTradeRegime    = "no_trade_regime"
	ReasonNoVolatility     = "no_volatility"
	ReasonBelowThreshold   = "below_threshold"
)

// Evaluation is the full scoring breakdown. Signal is set only when
// Verdict is VerdictFire.
type Evaluation struct {
	Strategy   string             `json:"strategy"`
	Verdict    Verdict            `json:"verdict"`
	Grade      string             `json:"grade,omitempty"`
	BuyScore   float64            `json:"buy_score"`
	SellScore  float64            `json:"sell_score"`
	Signal     *CandidateSignal   `json:"signal,omitempty"`
	Reason     string             `json:"reason"`
	Conditions map[string]float64 `json:"conditions,omitempty"`
}

func abstain(name, reason string, detail string) Evaluation {
	if detail != "" {
		reason = fmt.Sprintf("%s: %s", reason, detail)
	}
	return Evaluation{Strategy: name, Verdict: VerdictAbstain, Reason: reason}
}

// New returns the strategy registered under name.
func New(name string, scalp ScalpConfig, swing SwingConfig) (Strategy, error) {
	switch name {
	case "scalp", "":
		return NewScalp(scalp), nil
	case "swing":
		return NewSwing(swing), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}
