// Package risk admits or rejects candidate signals against hard limits and
// sizes positions.
package risk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"regime-trading-bot/config"
	"regime-trading-bot/internal/audit"
	"regime-trading-bot/internal/calendar"
	"regime-trading-bot/internal/strategy"
)

// Decision reasons. Every Decision carries exactly one.
const (
	ReasonAdmitted        = "admitted"
	ReasonKillSwitch      = "kill_switch_engaged"
	ReasonNewsEvent       = "high_impact_news"
	ReasonLowConfidence   = "confidence_below_minimum"
	ReasonRiskCapExceeded = "risk_cap_exceeded"
	ReasonNoEquity        = "equity_unavailable"
	ReasonAuditRejected   = "audit_rejected"
)

// Decision warnings; admission still proceeds.
const (
	WarnRiskUnbounded       = "risk_unbounded"
	WarnCalendarUnavailable = "calendar_unavailable"
	WarnAuditUnavailable    = "audit_unavailable"
	WarnAuditUnparsable     = "audit_unparsable"
	WarnAuditAdvisoryReject = "audit_rejected_advisory"
)

// riskEpsilon absorbs float noise so exactly-at-cap risk is admitted.
const riskEpsilon = 1e-9

type KillSwitchReader interface {
	Engaged(ctx context.Context) (bool, error)
}

type NewsSource interface {
	UpcomingHighImpact(ctx context.Context, symbol string, horizon time.Duration) ([]calendar.Event, error)
}

type Auditor interface {
	Audit(ctx context.Context, rationale string) (audit.Verdict, error)
}

// GateDeps are the gate's external collaborators. News and Auditor may be
// nil to disable those checks.
type GateDeps struct {
	KillSwitch KillSwitchReader
	News       NewsSource
	Auditor    Auditor
}

// Request is one admission attempt.
type Request struct {
	Signal   strategy.CandidateSignal
	Quantity float64
	Equity   float64
	// RiskAmount is an explicit money-at-risk figure, used when the signal
	// carries no stop.
	RiskAmount float64
}

// Decision is the gate outcome.
type Decision struct {
	Admitted bool           `json:"admitted"`
	Reason   string         `json:"reason"`
	Detail   string         `json:"detail,omitempty"`
	RiskPct  float64        `json:"risk_pct"`
	Warnings []string       `json:"warnings,omitempty"`
	Audit    *audit.Verdict `json:"audit,omitempty"`
}

// Gate runs the ordered hard checks. The first failure ends evaluation.
type Gate struct {
	cfg     config.RiskConfig
	timeout time.Duration
	deps    GateDeps
	logger  zerolog.Logger
}

func NewGate(cfg config.RiskConfig, timeout time.Duration, deps GateDeps, logger zerolog.Logger) *Gate {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Gate{
		cfg:     cfg,
		timeout: timeout,
		deps:    deps,
		logger:  logger.With().Str("component", "RiskGate").Logger(),
	}
}

// Evaluate admits or rejects req. It never returns an error: external
// failures resolve to a rejection (kill switch) or a warning (calendar,
// audit).
func (g *Gate) Evaluate(ctx context.Context, req Request) Decision {
	sig := req.Signal
	log := g.logger.With().Str("symbol", sig.Symbol).Str("direction", string(sig.Direction)).Logger()
	var d Decision

	// 1. kill switch, fail-closed
	if g.deps.KillSwitch != nil {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		engaged, err := g.deps.KillSwitch.Engaged(cctx)
		cancel()
		if err != nil {
			log.Error().Err(err).Bool("fail_closed", true).Msg("Kill switch unreadable, rejecting")
			return g.reject(log, d, ReasonKillSwitch, "kill switch state unavailable")
		}
		if engaged {
			return g.reject(log, d, ReasonKillSwitch, "trading halted by operator")
		}
	}

	// 2. scheduled news, fail-open
	if g.deps.News != nil && g.cfg.NewsBuffer > 0 {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		events, err := g.deps.News.UpcomingHighImpact(cctx, sig.Symbol, g.cfg.NewsBuffer)
		cancel()
		switch {
		case err != nil:
			log.Warn().Err(err).Bool("fail_open", true).Msg("Calendar unavailable, skipping news check")
			d.Warnings = append(d.Warnings, WarnCalendarUnavailable)
		case len(events) > 0:
			e := events[0]
			return g.reject(log, d, ReasonNewsEvent, fmt.Sprintf("%s %s at %s", e.Currency, e.Title, e.Time.UTC().Format(time.RFC3339)))
		}
	}

	// 3. confidence floor
	if sig.Confidence < g.cfg.MinConfidence {
		return g.reject(log, d, ReasonLowConfidence, fmt.Sprintf("confidence %.1f < %.1f", sig.Confidence, g.cfg.MinConfidence))
	}

	// 4. position risk, inclusive cap
	switch dist := sig.StopDistance(); {
	case dist > 0 || req.RiskAmount > 0:
		amount := req.RiskAmount
		if dist > 0 {
			amount = dist * req.Quantity
		}
		if req.Equity <= 0 {
			return g.reject(log, d, ReasonNoEquity, fmt.Sprintf("equity %.2f", req.Equity))
		}
		d.RiskPct = amount / req.Equity * 100
		if d.RiskPct-g.cfg.MaxRiskPercent > riskEpsilon {
			return g.reject(log, d, ReasonRiskCapExceeded, fmt.Sprintf("risk %.4f%% > %.2f%%", d.RiskPct, g.cfg.MaxRiskPercent))
		}
	default:
		log.Warn().Msg("Signal has neither stop nor risk amount, risk is unbounded")
		d.Warnings = append(d.Warnings, WarnRiskUnbounded)
	}

	// 5. advisory audit, fail-open
	if g.cfg.AuditEnabled && g.deps.Auditor != nil {
		cctx, cancel := context.WithTimeout(ctx, g.timeout)
		v, err := g.deps.Auditor.Audit(cctx, sig.Rationale)
		cancel()
		switch {
		case errors.Is(err, audit.ErrUnparsable):
			log.Warn().Bool("fail_open", true).Msg("Audit verdict unparsable, proceeding on hard rules")
			d.Warnings = append(d.Warnings, WarnAuditUnparsable)
		case err != nil:
			log.Warn().Err(err).Bool("fail_open", true).Msg("Audit unavailable, proceeding on hard rules")
			d.Warnings = append(d.Warnings, WarnAuditUnavailable)
		default:
			d.Audit = &v
			if !v.Approved {
				if g.cfg.AuditVeto {
					return g.reject(log, d, ReasonAuditRejected, v.Comment)
				}
				d.Warnings = append(d.Warnings, WarnAuditAdvisoryReject)
			}
		}
	}

	d.Admitted = true
	d.Reason = ReasonAdmitted
	log.Info().
		Float64("confidence", sig.Confidence).
		Float64("risk_pct", d.RiskPct).
		Strs("warnings", d.Warnings).
		Msg("Signal admitted by risk gate")
	return d
}

func (g *Gate) reject(log zerolog.Logger, d Decision, reason, detail string) Decision {
	d.Admitted = false
	d.Reason = reason
	d.Detail = strings.TrimSpace(detail)
	log.Warn().Str("reason", reason).Str("detail", d.Detail).Msg("Signal rejected by risk gate")
	return d
}

// Sizer turns a signal plus recent performance into a quantity.
type Sizer struct {
	cfg config.RiskConfig
}

func NewSizer(cfg config.RiskConfig) *Sizer { return &Sizer{cfg: cfg} }

// Input returns the Kelly input, falling back to configured priors when
// fewer than KellyMinTrades decided trades exist or history lacks a side.
func (s *Sizer) Input(trades int, winRate, avgWin, avgLoss float64) (KellyInput, bool) {
	if trades < s.cfg.KellyMinTrades || avgWin <= 0 || avgLoss <= 0 {
		return KellyInput{WinRate: s.cfg.PriorWinRate, AvgWin: s.cfg.PriorAvgWin, AvgLoss: s.cfg.PriorAvgLoss}, false
	}
	return KellyInput{WinRate: winRate, AvgWin: avgWin, AvgLoss: avgLoss}, true
}

// Size computes the Kelly recommendation and the quantity it implies.
func (s *Sizer) Size(in KellyInput, equity float64, sig strategy.CandidateSignal) (KellyResult, float64, error) {
	k, err := Kelly(in, s.cfg.MaxRiskPercent)
	if err != nil {
		return KellyResult{}, 0, err
	}
	if sig.StopDistance() == 0 {
		return k, 0, nil
	}
	return k, PositionSize(equity, k.RecommendedPct, sig.Entry, sig.StopLoss), nil
}

// SizeWithoutEdge sizes a signal whose history Kelly fraction is not
// positive. Kelly only recommends a size, so the priors set it, or the hard
// cap when the priors show no edge either. The gate still decides admission.
func (s *Sizer) SizeWithoutEdge(equity float64, sig strategy.CandidateSignal) (pct, qty float64) {
	pct = s.cfg.MaxRiskPercent
	priors := KellyInput{WinRate: s.cfg.PriorWinRate, AvgWin: s.cfg.PriorAvgWin, AvgLoss: s.cfg.PriorAvgLoss}
	if k, err := Kelly(priors, s.cfg.MaxRiskPercent); err == nil && k.HasEdge {
		pct = k.RecommendedPct
	}
	return pct, PositionSize(equity, pct, sig.Entry, sig.StopLoss)
}
