package engine

import (
	"fmt"

	"regime-trading-bot/internal/regime"
)

// Direction is the side an engine leans toward.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionNone  Direction = "NONE"
)

// AEXIConfig tunes exhaustion detection.
type AEXIConfig struct {
	TriggerScore float64 // score at or above which exhaustion fires
	ZThreshold   float64 // |z| beyond which the move is over-extended
}

func DefaultAEXIConfig() AEXIConfig {
	return AEXIConfig{TriggerScore: 80, ZThreshold: 2}
}

// AEXIResult is the exhaustion engine output.
type AEXIResult struct {
	Score     float64   `json:"score"`
	Triggered bool      `json:"triggered"`
	Direction Direction `json:"direction"`
	ZScore    float64   `json:"z_score"`
	Reason    string    `json:"reason"`
}

// EvaluateAEXI scores exhaustion. When triggered, an overbought
// extension points SHORT and an oversold one LONG; otherwise the result is
// a non-directional high-exhaustion flag.
func EvaluateAEXI(r regime.Reading, cfg AEXIConfig) AEXIResult {
	ex := r.Exhaustion
	res := AEXIResult{
		Score:     ex.Score(),
		Direction: DirectionNone,
		ZScore:    ex.ZScore,
	}
	if res.Score < cfg.TriggerScore {
		res.Reason = fmt.Sprintf("exhaustion %.1f below trigger %.0f", res.Score, cfg.TriggerScore)
		return res
	}

	res.Triggered = true
	switch {
	case ex.ZScore > cfg.ZThreshold:
		res.Direction = DirectionShort
		res.Reason = fmt.Sprintf("overbought exhaustion (z=%.2f, score %.1f)", ex.ZScore, res.Score)
	case ex.ZScore < -cfg.ZThreshold:
		res.Direction = DirectionLong
		res.Reason = fmt.Sprintf("oversold exhaustion (z=%.2f, score %.1f)", ex.ZScore, res.Score)
	default:
		res.Reason = fmt.Sprintf("high exhaustion without extension (z=%.2f, score %.1f)", ex.ZScore, res.Score)
	}
	return res
}
