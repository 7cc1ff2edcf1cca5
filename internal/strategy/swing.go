package strategy

import (
	"fmt"
	"math"
	"strings"
	"time"

	"regime-trading-bot/internal/market"
	"regime-trading-bot/internal/regime"
)

// Swing grades.
const (
	GradeStrong = "STRONG"
	GradeWeak   = "WEAK"
	GradeHold   = "HOLD"
)

// Swing entry styles.
const (
	EntryImmediate    = "IMMEDIATE"
	EntryConservative = "CONSERVATIVE"
)

type SwingConfig struct {
	FastEMAPeriod    int
	SlowSMAPeriod    int
	RSIPeriod        int
	ADXPeriod        int
	ATRPeriod        int
	VolumePeriod     int
	VolumeSurgeRatio float64
	ADXThreshold     float64
	RetestPercent    float64 // price within this % of the fast EMA is a retest
	StopATRMult      float64
	RewardRatio      float64
}

func DefaultSwingConfig() SwingConfig {
	return SwingConfig{
		FastEMAPeriod:    50,
		SlowSMAPeriod:    200,
		RSIPeriod:        14,
		ADXPeriod:        14,
		ATRPeriod:        14,
		VolumePeriod:     20,
		VolumeSurgeRatio: 1.2,
		ADXThreshold:     25,
		RetestPercent:    1.0,
		StopATRMult:      1.5,
		RewardRatio:      2.5,
	}
}

// SwingIndicators is the snapshot the cross grade is computed from.
type SwingIndicators struct {
	Price     float64
	FastEMA   float64
	SlowSMA   float64
	RSI       float64
	DI        DirectionalIndex
	ATR       float64
	Volume    float64
	AvgVolume float64
}

type SwingStrategy struct {
	config SwingConfig
}

func NewSwing(config SwingConfig) *SwingStrategy {
	def := DefaultSwingConfig()
	if config.FastEMAPeriod == 0 {
		config.FastEMAPeriod = def.FastEMAPeriod
	}
	if config.SlowSMAPeriod == 0 {
		config.SlowSMAPeriod = def.SlowSMAPeriod
	}
	if config.RSIPeriod == 0 {
		config.RSIPeriod = def.RSIPeriod
	}
	if config.ADXPeriod == 0 {
		config.ADXPeriod = def.ADXPeriod
	}
	if config.ATRPeriod == 0 {
		config.ATRPeriod = def.ATRPeriod
	}
	if config.VolumePeriod == 0 {
		config.VolumePeriod = def.VolumePeriod
	}
	if config.VolumeSurgeRatio == 0 {
		config.VolumeSurgeRatio = def.VolumeSurgeRatio
	}
	if config.ADXThreshold == 0 {
		config.ADXThreshold = def.ADXThreshold
	}
	if config.RetestPercent == 0 {
		config.RetestPercent = def.RetestPercent
	}
	if config.StopATRMult == 0 {
		config.StopATRMult = def.StopATRMult
	}
	if config.RewardRatio == 0 {
		config.RewardRatio = def.RewardRatio
	}
	return &SwingStrategy{config: config}
}

func (s *SwingStrategy) Name() string { return "swing" }

func (s *SwingStrategy) MinBars() int { return s.config.SlowSMAPeriod }

func (s *SwingStrategy) Indicators(candles []market.Candle) SwingIndicators {
	lastBar := candles[len(candles)-1]
	return SwingIndicators{
		Price:     lastBar.Close,
		FastEMA:   EMA(candles, s.config.FastEMAPeriod),
		SlowSMA:   SMA(candles, s.config.SlowSMAPeriod),
		RSI:       RSI(candles, s.config.RSIPeriod),
		DI:        ADX(candles, s.config.ADXPeriod),
		ATR:       ATR(candles, s.config.ATRPeriod),
		Volume:    lastBar.Volume,
		AvgVolume: AverageVolume(candles, s.config.VolumePeriod),
	}
}

// Grade scores the moving-average cross. It returns the cross direction
// (empty when the averages coincide), the score and the confirmations.
func (s *SwingStrategy) Grade(ind SwingIndicators) (Direction, int, []string) {
	var dir Direction
	switch {
	case ind.FastEMA > ind.SlowSMA:
		dir = Long
	case ind.FastEMA < ind.SlowSMA:
		dir = Short
	default:
		return "", 0, nil
	}

	score := 1
	reasons := []string{}
	if dir == Long {
		reasons = append(reasons, fmt.Sprintf("golden cross EMA%d %.4f > SMA%d %.4f", s.config.FastEMAPeriod, ind.FastEMA, s.config.SlowSMAPeriod, ind.SlowSMA))
	} else {
		reasons = append(reasons, fmt.Sprintf("death cross EMA%d %.4f < SMA%d %.4f", s.config.FastEMAPeriod, ind.FastEMA, s.config.SlowSMAPeriod, ind.SlowSMA))
	}

	if ind.AvgVolume > 0 && ind.Volume >= s.config.VolumeSurgeRatio*ind.AvgVolume {
		score++
		reasons = append(reasons, fmt.Sprintf("volume %.1fx average", ind.Volume/ind.AvgVolume))
	}

	if (dir == Long && ind.RSI > 50) || (dir == Short && ind.RSI < 50) {
		score++
		reasons = append(reasons, fmt.Sprintf("RSI %.1f confirms", ind.RSI))
	}

	diAgrees := (dir == Long && ind.DI.PlusDI > ind.DI.MinusDI) || (dir == Short && ind.DI.MinusDI > ind.DI.PlusDI)
	if ind.DI.ADX > s.config.ADXThreshold && diAgrees {
		score++
		reasons = append(reasons, fmt.Sprintf("ADX %.1f with DI agreement", ind.DI.ADX))
	}

	return dir, score, reasons
}

// Evaluate grades the cross. STRONG crosses fire at 85, or 95 when price
// is retesting the fast EMA; WEAK crosses fire at 70; anything else holds.
func (s *SwingStrategy) Evaluate(symbol string, candles []market.Candle, reading regime.Reading) Evaluation {
	if len(candles) < s.MinBars() {
		return abstain(s.Name(), ReasonInsufficientData, fmt.Sprintf("%d bars, need %d", len(candles), s.MinBars()))
	}
	if !reading.Regime.Tradeable() {
		return abstain(s.Name(), ReasonNoTradeRegime, fmt.Sprintf("regime %s (H=%.3f)", reading.Regime, reading.Hurst))
	}

	ind := s.Indicators(candles)
	dir, score, reasons := s.Grade(ind)

	eval := Evaluation{
		Strategy: s.Name(),
		Verdict:  VerdictNeutral,
		Grade:    GradeHold,
		Conditions: map[string]float64{
			"ema_fast": ind.FastEMA,
			"sma_slow": ind.SlowSMA,
			"rsi":      ind.RSI,
			"adx":      ind.DI.ADX,
			"plus_di":  ind.DI.PlusDI,
			"minus_di": ind.DI.MinusDI,
			"score":    float64(score),
		},
	}
	if dir == Long {
		eval.BuyScore = float64(score)
	} else if dir == Short {
		eval.SellScore = float64(score)
	}

	grade, confidence, entryStyle := s.classify(ind, score)
	eval.Grade = grade
	if grade == GradeHold {
		eval.Reason = fmt.Sprintf("%s: cross score %d", ReasonBelowThreshold, score)
		return eval
	}

	if ind.ATR <= 0 {
		return abstain(s.Name(), ReasonNoVolatility, "ATR is zero")
	}

	stopDist := ind.ATR * s.config.StopATRMult
	sig := &CandidateSignal{
		Symbol:     symbol,
		Direction:  dir,
		Entry:      ind.Price,
		Confidence: confidence,
		Strategy:   s.Name(),
		CreatedAt:  time.Now().UTC(),
	}
	if dir == Long {
		sig.StopLoss = ind.Price - stopDist
		sig.TakeProfit = ind.Price + stopDist*s.config.RewardRatio
	} else {
		sig.StopLoss = ind.Price + stopDist
		sig.TakeProfit = ind.Price - stopDist*s.config.RewardRatio
	}
	sig.Rationale = fmt.Sprintf("swing %s %s cross (%d/4, %s entry): %s",
		eval.Grade, dir, score, entryStyle, strings.Join(reasons, ", "))

	eval.Verdict = VerdictFire
	eval.Signal = sig
	eval.Reason = sig.Rationale
	return eval
}

// classify maps a cross score onto grade, confidence and entry style.
func (s *SwingStrategy) classify(ind SwingIndicators, score int) (string, float64, string) {
	switch {
	case score >= 3:
		if ind.FastEMA > 0 && math.Abs(ind.Price-ind.FastEMA)/ind.FastEMA*100 <= s.config.RetestPercent {
			return GradeStrong, 95, EntryConservative
		}
		return GradeStrong, 85, EntryImmediate
	case score == 2:
		return GradeWeak, 70, EntryImmediate
	default:
		return GradeHold, 0, ""
	}
}
