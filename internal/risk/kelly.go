package risk

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidKellyInput is returned for win rates outside [0,1] or
// non-positive average win/loss.
var ErrInvalidKellyInput = errors.New("invalid kelly input")

// KellyInput is the trading record the fraction is computed from.
type KellyInput struct {
	WinRate float64 `json:"win_rate"`
	AvgWin  float64 `json:"avg_win"`
	AvgLoss float64 `json:"avg_loss"`
}

// KellyResult reports the Kelly fractions as percentages of equity.
// RecommendedPct is half Kelly capped at the hard risk cap, never negative.
type KellyResult struct {
	PayoffRatio    float64 `json:"payoff_ratio"`
	FullPct        float64 `json:"full_pct"`
	HalfPct        float64 `json:"half_pct"`
	QuarterPct     float64 `json:"quarter_pct"`
	RecommendedPct float64 `json:"recommended_pct"`
	HasEdge        bool    `json:"has_edge"`
}

// Kelly computes f* = (p*b - q)/b with b = avgWin/avgLoss.
func Kelly(in KellyInput, capPct float64) (KellyResult, error) {
	if in.WinRate < 0 || in.WinRate > 1 || math.IsNaN(in.WinRate) {
		return KellyResult{}, fmt.Errorf("%w: win rate %.4f", ErrInvalidKellyInput, in.WinRate)
	}
	if in.AvgWin <= 0 || in.AvgLoss <= 0 {
		return KellyResult{}, fmt.Errorf("%w: avg win %.4f, avg loss %.4f", ErrInvalidKellyInput, in.AvgWin, in.AvgLoss)
	}

	b := in.AvgWin / in.AvgLoss
	p := in.WinRate
	q := 1 - p
	full := (p*b - q) / b

	r := KellyResult{
		PayoffRatio: b,
		FullPct:     full * 100,
		HalfPct:     full * 50,
		QuarterPct:  full * 25,
		HasEdge:     full > 0,
	}
	if r.HasEdge {
		r.RecommendedPct = math.Min(r.HalfPct, capPct)
	}
	return r, nil
}

// PositionSize converts a risk percentage of equity into a quantity given
// the stop distance. Returns 0 when any input makes sizing impossible.
func PositionSize(equity, riskPct, entry, stop float64) float64 {
	dist := math.Abs(entry - stop)
	if equity <= 0 || riskPct <= 0 || dist == 0 {
		return 0
	}
	return equity * riskPct / 100 / dist
}
