package strategy

import (
	"fmt"
	"strings"
	"time"

	"regime-trading-bot/internal/market"
	"regime-trading-bot/internal/regime"
)

// Scalp point weights per indicator.
const (
	scalpSupertrendPoints = 2
	scalpLevelPoints      = 2
	scalpRejectionPoints  = 1
	scalpMACDPoints       = 1
	scalpStochPoints      = 1
	scalpFootprintPoints  = 1

	// ScalpMaxScore is the most points one side can collect.
	ScalpMaxScore = scalpSupertrendPoints + scalpLevelPoints + scalpRejectionPoints +
		scalpMACDPoints + scalpStochPoints + scalpFootprintPoints
)

// ScalpConfig configures the short-horizon confluence strategy.
type ScalpConfig struct {
	ATRPeriod          int
	LevelPeriod        int
	SupertrendPeriod   int
	SupertrendMult     float64
	MACDFast           int
	MACDSlow           int
	MACDSignal         int
	StochPeriod        int
	FootprintBars      int
	MinScore           float64
	StopATRMult        float64
	TargetATRMult      float64
	ProximityATR       float64 // distance to S/R, in ATRs, that counts as "at the level"
	RejectionWick      float64 // wick share of range that counts as rejection
	StochOversold      float64
	StochOverbought    float64
	FootprintImbalance float64
}

// DefaultScalpConfig returns the default scalp configuration. The stop and
// target sit 1 and 7 ATRs from entry.
func DefaultScalpConfig() ScalpConfig {
	return ScalpConfig{
		ATRPeriod:          14,
		LevelPeriod:        20,
		SupertrendPeriod:   10,
		SupertrendMult:     3,
		MACDFast:           12,
		MACDSlow:           26,
		MACDSignal:         9,
		StochPeriod:        14,
		FootprintBars:      5,
		MinScore:           6,
		StopATRMult:        1.0,
		TargetATRMult:      7.0,
		ProximityATR:       0.5,
		RejectionWick:      0.5,
		StochOversold:      20,
		StochOverbought:    80,
		FootprintImbalance: 0.1,
	}
}

// ScalpIndicators is the indicator snapshot the score is computed from.
type ScalpIndicators struct {
	Price      float64
	ATR        float64
	Support    float64
	Resistance float64
	LowerWick  float64
	UpperWick  float64
	Supertrend int
	MACDHist   float64
	StochK     float64
	Footprint  float64
}

type ScalpStrategy struct {
	config ScalpConfig
}

func NewScalp(config ScalpConfig) *ScalpStrategy {
	def := DefaultScalpConfig()
	if config.ATRPeriod == 0 {
		config.ATRPeriod = def.ATRPeriod
	}
	if config.LevelPeriod == 0 {
		config.LevelPeriod = def.LevelPeriod
	}
	if config.SupertrendPeriod == 0 {
		config.SupertrendPeriod = def.SupertrendPeriod
	}
	if config.SupertrendMult == 0 {
		config.SupertrendMult = def.SupertrendMult
	}
	if config.MACDFast == 0 || config.MACDSlow == 0 || config.MACDSignal == 0 {
		config.MACDFast, config.MACDSlow, config.MACDSignal = def.MACDFast, def.MACDSlow, def.MACDSignal
	}
	if config.StochPeriod == 0 {
		config.StochPeriod = def.StochPeriod
	}
	if config.FootprintBars == 0 {
		config.FootprintBars = def.FootprintBars
	}
	if config.MinScore == 0 {
		config.MinScore = def.MinScore
	}
	if config.StopATRMult == 0 {
		config.StopATRMult = def.StopATRMult
	}
	if config.TargetATRMult == 0 {
		config.TargetATRMult = def.TargetATRMult
	}
	if config.ProximityATR == 0 {
		config.ProximityATR = def.ProximityATR
	}
	if config.RejectionWick == 0 {
		config.RejectionWick = def.RejectionWick
	}
	if config.StochOversold == 0 && config.StochOverbought == 0 {
		config.StochOversold, config.StochOverbought = def.StochOversold, def.StochOverbought
	}
	if config.FootprintImbalance == 0 {
		config.FootprintImbalance = def.FootprintImbalance
	}
	return &ScalpStrategy{config: config}
}

func (s *ScalpStrategy) Name() string { return "scalp" }

func (s *ScalpStrategy) MinBars() int {
	return s.config.MACDSlow + s.config.MACDSignal + 15
}

// Indicators computes the snapshot for the latest bar.
func (s *ScalpStrategy) Indicators(candles []market.Candle) ScalpIndicators {
	lastBar := candles[len(candles)-1]
	support, resistance := SupportResistance(candles, s.config.LevelPeriod)
	lower, upper := WickRejection(lastBar)
	return ScalpIndicators{
		Price:      lastBar.Close,
		ATR:        ATR(candles, s.config.ATRPeriod),
		Support:    support,
		Resistance: resistance,
		LowerWick:  lower,
		UpperWick:  upper,
		Supertrend: Supertrend(candles, s.config.SupertrendPeriod, s.config.SupertrendMult),
		MACDHist:   MACDHistogram(candles, s.config.MACDFast, s.config.MACDSlow, s.config.MACDSignal),
		StochK:     StochasticK(candles, s.config.StochPeriod),
		Footprint:  Footprint(candles, s.config.FootprintBars),
	}
}

// Score tallies buy and sell points and the reasons behind each.
func (s *ScalpStrategy) Score(ind ScalpIndicators) (buy, sell float64, reasons []string) {
	switch ind.Supertrend {
	case 1:
		buy += scalpSupertrendPoints
		reasons = append(reasons, "supertrend up")
	case -1:
		sell += scalpSupertrendPoints
		reasons = append(reasons, "supertrend down")
	}

	if ind.ATR > 0 {
		band := s.config.ProximityATR * ind.ATR
		if ind.Support > 0 && ind.Price-ind.Support <= band {
			buy += scalpLevelPoints
			reasons = append(reasons, fmt.Sprintf("at support %.4f", ind.Support))
		}
		if ind.Resistance > 0 && ind.Resistance-ind.Price <= band {
			sell += scalpLevelPoints
			reasons = append(reasons, fmt.Sprintf("at resistance %.4f", ind.Resistance))
		}
	}

	if ind.LowerWick >= s.config.RejectionWick {
		buy += scalpRejectionPoints
		reasons = append(reasons, fmt.Sprintf("lower wick rejection %.0f%%", ind.LowerWick*100))
	}
	if ind.UpperWick >= s.config.RejectionWick {
		sell += scalpRejectionPoints
		reasons = append(reasons, fmt.Sprintf("upper wick rejection %.0f%%", ind.UpperWick*100))
	}

	if ind.MACDHist > 0 {
		buy += scalpMACDPoints
		reasons = append(reasons, "MACD histogram positive")
	} else if ind.MACDHist < 0 {
		sell += scalpMACDPoints
		reasons = append(reasons, "MACD histogram negative")
	}

	if ind.StochK <= s.config.StochOversold {
		buy += scalpStochPoints
		reasons = append(reasons, fmt.Sprintf("stochastic oversold %.1f", ind.StochK))
	} else if ind.StochK >= s.config.StochOverbought {
		sell += scalpStochPoints
		reasons = append(reasons, fmt.Sprintf("stochastic overbought %.1f", ind.StochK))
	}

	if ind.Footprint >= s.config.FootprintImbalance {
		buy += scalpFootprintPoints
		reasons = append(reasons, fmt.Sprintf("buy footprint %+.2f", ind.Footprint))
	} else if ind.Footprint <= -s.config.FootprintImbalance {
		sell += scalpFootprintPoints
		reasons = append(reasons, fmt.Sprintf("sell footprint %+.2f", ind.Footprint))
	}

	return buy, sell, reasons
}

// Evaluate scores the window and fires when one side reaches MinScore
// and beats the other.
func (s *ScalpStrategy) Evaluate(symbol string, candles []market.Candle, reading regime.Reading) Evaluation {
	if len(candles) < s.MinBars() {
		return abstain(s.Name(), ReasonInsufficientData, fmt.Sprintf("%d bars, need %d", len(candles), s.MinBars()))
	}
	if !reading.Regime.Tradeable() {
		return abstain(s.Name(), ReasonNoTradeRegime, fmt.Sprintf("regime %s (H=%.3f)", reading.Regime, reading.Hurst))
	}

	ind := s.Indicators(candles)
	if ind.ATR <= 0 {
		return abstain(s.Name(), ReasonNoVolatility, "ATR is zero")
	}

	buy, sell, reasons := s.Score(ind)
	eval := Evaluation{
		Strategy:  s.Name(),
		Verdict:   VerdictNeutral,
		BuyScore:  buy,
		SellScore: sell,
		Conditions: map[string]float64{
			"atr":        ind.ATR,
			"support":    ind.Support,
			"resistance": ind.Resistance,
			"supertrend": float64(ind.Supertrend),
			"macd_hist":  ind.MACDHist,
			"stoch_k":    ind.StochK,
			"footprint":  ind.Footprint,
		},
	}

	dir, score, ok := pickDirection(buy, sell, s.config.MinScore)
	if !ok {
		eval.Reason = fmt.Sprintf("%s: buy %.0f / sell %.0f, need %.0f", ReasonBelowThreshold, buy, sell, s.config.MinScore)
		return eval
	}

	eval.Verdict = VerdictFire
	eval.Signal = s.buildSignal(symbol, dir, ind, score, reasons)
	eval.Reason = eval.Signal.Rationale
	return eval
}

// pickDirection returns the side that reaches minScore and strictly beats
// the other. A tie never fires.
func pickDirection(buy, sell, minScore float64) (Direction, float64, bool) {
	switch {
	case buy >= minScore && buy > sell:
		return Long, buy, true
	case sell >= minScore && sell > buy:
		return Short, sell, true
	}
	return "", 0, false
}

func (s *ScalpStrategy) buildSignal(symbol string, dir Direction, ind ScalpIndicators, score float64, reasons []string) *CandidateSignal {
	stopDist := ind.ATR * s.config.StopATRMult
	targetDist := ind.ATR * s.config.TargetATRMult

	sig := &CandidateSignal{
		Symbol:     symbol,
		Direction:  dir,
		Entry:      ind.Price,
		Confidence: score / ScalpMaxScore * 100,
		Strategy:   s.Name(),
		CreatedAt:  time.Now().UTC(),
	}
	if sig.Confidence > 100 {
		sig.Confidence = 100
	}
	if dir == Long {
		sig.StopLoss = ind.Price - stopDist
		sig.TakeProfit = ind.Price + targetDist
	} else {
		sig.StopLoss = ind.Price + stopDist
		sig.TakeProfit = ind.Price - targetDist
	}
	sig.Rationale = fmt.Sprintf("scalp %s score %.0f/%d: %s", dir, score, ScalpMaxScore, strings.Join(reasons, ", "))
	return sig
}
