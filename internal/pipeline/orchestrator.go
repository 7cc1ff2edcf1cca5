package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"regime-trading-bot/config"
	"regime-trading-bot/internal/auditlog"
	"regime-trading-bot/internal/circuit"
	"regime-trading-bot/internal/engine"
	"regime-trading-bot/internal/events"
	"regime-trading-bot/internal/ledger"
	"regime-trading-bot/internal/lock"
	"regime-trading-bot/internal/logging"
	"regime-trading-bot/internal/market"
	"regime-trading-bot/internal/metrics"
	"regime-trading-bot/internal/regime"
	"regime-trading-bot/internal/risk"
	"regime-trading-bot/internal/strategy"
)

// Circuit names for guarded dependencies.
const (
	CircuitCandles  = "binance.candles"
	CircuitAccount  = "binance.account"
	CircuitCalendar = "calendar"
	CircuitAudit    = "audit"
)

// Classifier reads the regime off a candle window.
type Classifier interface {
	Classify(candles []market.Candle) regime.Reading
}

// Scorer runs the exhaustion and chaos engines over a reading.
type Scorer interface {
	Evaluate(r regime.Reading) engine.Composite
}

// Gatekeeper admits or rejects a sized signal.
type Gatekeeper interface {
	Evaluate(ctx context.Context, req risk.Request) risk.Decision
}

// Deps is everything the orchestrator talks to. Events, AuditLog, Metrics
// and Chaos are optional.
type Deps struct {
	Candles    market.CandleSource
	Account    market.AccountSource
	Classifier Classifier
	Engine     Scorer
	Strategy   strategy.Strategy
	Gate       Gatekeeper
	Sizer      *risk.Sizer
	Chaos      *risk.Chaos
	Locks      *lock.Manager
	Circuits   *circuit.Registry
	Ledger     *ledger.Ledger

	Events   *events.EventBus
	AuditLog auditlog.Publisher
	Metrics  *metrics.Recorder
}

func (d Deps) validate() error {
	var missing []string
	if d.Candles == nil {
		missing = append(missing, "Candles")
	}
	if d.Account == nil {
		missing = append(missing, "Account")
	}
	if d.Classifier == nil {
		missing = append(missing, "Classifier")
	}
	if d.Engine == nil {
		missing = append(missing, "Engine")
	}
	if d.Strategy == nil {
		missing = append(missing, "Strategy")
	}
	if d.Gate == nil {
		missing = append(missing, "Gate")
	}
	if d.Sizer == nil {
		missing = append(missing, "Sizer")
	}
	if d.Locks == nil {
		missing = append(missing, "Locks")
	}
	if d.Circuits == nil {
		missing = append(missing, "Circuits")
	}
	if d.Ledger == nil {
		missing = append(missing, "Ledger")
	}
	if len(missing) > 0 {
		return fmt.Errorf("pipeline deps missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Orchestrator wires one tick through every stage for each configured
// symbol. It holds no trading state of its own; locks, circuits and open
// trades live in the shared stores.
type Orchestrator struct {
	cfg           config.PipelineConfig
	kellyLookback int
	maxRiskPct    float64
	deps          Deps
	logger        zerolog.Logger
	now           func() time.Time
}

func NewOrchestrator(cfg config.PipelineConfig, riskCfg config.RiskConfig, deps Deps, logger zerolog.Logger) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.AuditLog == nil {
		deps.AuditLog = auditlog.Nop{}
	}
	if cfg.ExternalTimeout <= 0 {
		cfg.ExternalTimeout = 8 * time.Second
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	o := &Orchestrator{
		cfg:           cfg,
		kellyLookback: riskCfg.KellyLookback,
		maxRiskPct:    riskCfg.MaxRiskPercent,
		deps:          deps,
		logger:        logger.With().Str("component", "Orchestrator").Logger(),
		now:           time.Now,
	}
	deps.Circuits.OnTransition(o.circuitChanged)
	return o, nil
}

// SetClock replaces the time source used for decision timestamps.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

func (o *Orchestrator) jobName() string {
	return fmt.Sprintf("tick:%s:%s", o.deps.Strategy.Name(), o.cfg.Timeframe)
}

// Tick evaluates every configured symbol once. A tick that finds the job
// lock held returns a skipped summary, not an error.
func (o *Orchestrator) Tick(ctx context.Context, trigger string) (RunSummary, error) {
	ctx, log := logging.WithRun(ctx, o.logger, trigger)
	summary := RunSummary{RunID: logging.RunID(ctx), Trigger: trigger, StartedAt: o.now()}

	job, ok, err := o.deps.Locks.AcquireJob(ctx, o.jobName(), o.cfg.JobLockTTL)
	if err != nil {
		log.Error().Err(err).Bool("fail_closed", true).Msg("Job lock unavailable, run aborted")
		return summary, fmt.Errorf("acquire job lock: %w", err)
	}
	if !ok {
		log.Info().Str("job", o.jobName()).Msg("Previous run still active, skipping")
		summary.Skipped = true
		return summary, nil
	}
	defer func() {
		if err := o.deps.Locks.Release(context.WithoutCancel(ctx), job); err != nil {
			log.Warn().Err(err).Str("job", o.jobName()).Msg("Job lock release failed")
		}
	}()

	o.publish(events.Event{Type: events.EventRunStarted, RunID: summary.RunID, Data: map[string]interface{}{
		"trigger": trigger,
		"symbols": o.cfg.Symbols,
	}})
	log.Info().Strs("symbols", o.cfg.Symbols).Msg("Pipeline run started")

	decisions := make([]Decision, len(o.cfg.Symbols))
	var g errgroup.Group
	g.SetLimit(o.cfg.MaxConcurrency)
	for i, sym := range o.cfg.Symbols {
		i, sym := i, strings.ToUpper(strings.TrimSpace(sym))
		g.Go(func() error {
			decisions[i] = o.EvaluateSymbol(ctx, sym)
			return nil
		})
	}
	_ = g.Wait()

	summary.Decisions = decisions
	summary.Duration = o.now().Sub(summary.StartedAt)
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordRun(trigger, summary.Duration.Seconds())
	}
	o.publish(events.Event{Type: events.EventRunCompleted, RunID: summary.RunID, Data: map[string]interface{}{
		"trigger":     trigger,
		"admitted":    len(summary.Admitted()),
		"evaluated":   len(decisions),
		"duration_ms": summary.Duration.Milliseconds(),
	}})
	log.Info().Int("admitted", len(summary.Admitted())).Dur("duration", summary.Duration).Msg("Pipeline run completed")
	return summary, ctx.Err()
}

// EvaluateSymbol runs one symbol through the pipeline and emits its
// Decision. It never panics on external failure; every exit path yields a
// Decision with a reason.
func (o *Orchestrator) EvaluateSymbol(ctx context.Context, symbol string) Decision {
	log := logging.SymbolLogger(logging.FromContext(ctx, o.logger), symbol)
	d := Decision{
		RunID:    logging.RunID(ctx),
		Symbol:   symbol,
		Strategy: o.deps.Strategy.Name(),
	}
	d = o.evaluate(ctx, log, d)
	d.Timestamp = o.now().UTC()
	o.emit(ctx, log, d)
	return d
}

func (o *Orchestrator) evaluate(ctx context.Context, log zerolog.Logger, d Decision) Decision {
	symbol := d.Symbol

	candles, err := o.fetchCandles(ctx, symbol)
	if err != nil {
		if errors.Is(err, circuit.ErrOpen) {
			log.Warn().Str("circuit", CircuitCandles).Msg("Candle source circuit open, symbol skipped")
			return finish(d, OutcomeSkipped, ReasonCircuitOpen, err.Error())
		}
		if ctx.Err() != nil {
			return finish(d, OutcomeSkipped, ReasonCanceled, ctx.Err().Error())
		}
		log.Error().Err(err).Msg("Candle fetch failed")
		return finish(d, OutcomeError, ReasonCandlesUnavailable, err.Error())
	}
	if len(candles) == 0 {
		return finish(d, OutcomeAbstained, ReasonNoCandles, "")
	}

	reading := o.deps.Classifier.Classify(candles)
	comp := o.deps.Engine.Evaluate(reading)
	d.Regime, d.Composite = &reading, &comp
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordScores(symbol, reading.Hurst, comp.AEXIScore, comp.DreamScore)
	}
	log.Debug().
		Str("regime", string(reading.Regime)).
		Float64("hurst", reading.Hurst).
		Str("combined_signal", string(comp.Signal)).
		Float64("aexi", comp.AEXIScore).
		Float64("dream", comp.DreamScore).
		Msg("Market read")

	if comp.Signal == engine.SignalWait {
		return finish(d, OutcomeAbstained, ReasonEngineWait, comp.Reason)
	}

	eval := o.deps.Strategy.Evaluate(symbol, candles, reading)
	if eval.Verdict != strategy.VerdictFire || eval.Signal == nil {
		return finish(d, OutcomeAbstained, eval.Reason, string(eval.Verdict))
	}
	sig := *eval.Signal
	d.Signal = &sig
	if conflicts(comp.Signal, sig.Direction) {
		return finish(d, OutcomeAbstained, ReasonEngineConflict,
			fmt.Sprintf("engine %s vs strategy %s", comp.Signal, sig.Direction))
	}

	open, err := o.deps.Ledger.HasOpenPosition(ctx, symbol)
	if err != nil {
		log.Error().Err(err).Bool("fail_closed", true).Msg("Ledger unavailable")
		return finish(d, OutcomeError, ReasonLedgerUnavailable, err.Error())
	}
	if open {
		return finish(d, OutcomeSkipped, ReasonOpenPosition, "")
	}

	acct, err := o.fetchAccount(ctx)
	if err != nil {
		log.Error().Err(err).Bool("fail_closed", true).Msg("Account unavailable")
		return finish(d, OutcomeError, ReasonAccountUnavailable, err.Error())
	}

	perf, err := o.deps.Ledger.Performance(ctx, symbol, o.kellyLookback)
	if err != nil {
		log.Warn().Err(err).Msg("Trade history unavailable, sizing from priors")
	}
	in, fromHistory := o.deps.Sizer.Input(perf.Trades, perf.WinRate, perf.AvgWin, perf.AvgLoss)
	kelly, qty, err := o.deps.Sizer.Size(in, acct.Equity, sig)
	if err != nil {
		return finish(d, OutcomeAbstained, ReasonUnsized, err.Error())
	}
	d.Kelly = &kelly
	log.Debug().Bool("from_history", fromHistory).Float64("kelly_pct", kelly.RecommendedPct).Float64("qty", qty).Msg("Position sized")
	if !kelly.HasEdge {
		pct, fallback := o.deps.Sizer.SizeWithoutEdge(acct.Equity, sig)
		log.Warn().
			Float64("full_kelly_pct", kelly.FullPct).
			Float64("risk_pct", pct).
			Float64("qty", fallback).
			Msg("History shows no Kelly edge, sizing from priors")
		d.Warnings = append(d.Warnings, WarnNoEdge)
		qty = fallback
	}
	if qty <= 0 {
		return finish(d, OutcomeAbstained, ReasonUnsized, "signal has no stop distance")
	}

	gate := o.deps.Gate.Evaluate(ctx, risk.Request{Signal: sig, Quantity: qty, Equity: acct.Equity})
	d.Gate = &gate
	if !gate.Admitted {
		return finish(d, OutcomeRejected, gate.Reason, gate.Detail)
	}

	held, ok, err := o.deps.Locks.AcquireSymbol(ctx, symbol, o.cfg.SymbolLockTTL)
	if err != nil {
		log.Error().Err(err).Bool("fail_closed", true).Msg("Symbol lock unavailable")
		return finish(d, OutcomeError, ReasonLockUnavailable, err.Error())
	}
	if !ok {
		return finish(d, OutcomeSkipped, ReasonSymbolLocked, "")
	}
	defer func() {
		if err := o.deps.Locks.Release(context.WithoutCancel(ctx), held); err != nil {
			log.Warn().Err(err).Msg("Symbol lock release failed")
			return
		}
		o.publish(events.Event{Type: events.EventLockReleased, RunID: d.RunID, Data: map[string]string{"key": held.Key}})
	}()

	// Another instance may have admitted between our check and the lock.
	open, err = o.deps.Ledger.HasOpenPosition(ctx, symbol)
	if err != nil {
		log.Error().Err(err).Bool("fail_closed", true).Msg("Ledger unavailable under lock")
		return finish(d, OutcomeError, ReasonLedgerUnavailable, err.Error())
	}
	if open {
		return finish(d, OutcomeSkipped, ReasonOpenPosition, "admitted concurrently")
	}

	if o.deps.Chaos != nil && o.deps.Chaos.Enabled() {
		capQty := risk.PositionSize(acct.Equity, o.maxRiskPct, sig.Entry, sig.StopLoss)
		qty = o.deps.Chaos.DitherQuantity(qty, capQty)
		if _, err := o.deps.Chaos.Wait(ctx); err != nil {
			return finish(d, OutcomeSkipped, ReasonCanceled, err.Error())
		}
	}
	d.Quantity = qty

	trade, err := o.deps.Ledger.RecordTrade(ctx, ledger.NewTrade{
		Symbol:     symbol,
		Side:       ledger.Side(sig.Direction),
		EntryPrice: sig.Entry,
		Quantity:   qty,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Confidence: sig.Confidence,
		Strategy:   sig.Strategy,
		Rationale:  sig.Rationale,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to record admitted trade")
		return finish(d, OutcomeError, ReasonRecordFailed, err.Error())
	}
	d.TradeID = trade.ID
	log.Info().Str("trade_id", trade.ID).Str("side", string(trade.Side)).Float64("qty", qty).Float64("entry", sig.Entry).Msg("Trade admitted")
	return finish(d, OutcomeAdmitted, risk.ReasonAdmitted, "")
}

func finish(d Decision, outcome Outcome, reason, detail string) Decision {
	d.Outcome, d.Reason, d.Detail = outcome, reason, detail
	return d
}

// conflicts reports an exhaustion reversal pointing against the strategy.
func conflicts(s engine.Signal, dir strategy.Direction) bool {
	return (s == engine.SignalBuy && dir == strategy.Short) ||
		(s == engine.SignalSell && dir == strategy.Long)
}

func (o *Orchestrator) fetchCandles(ctx context.Context, symbol string) ([]market.Candle, error) {
	var candles []market.Candle
	err := o.deps.Circuits.Do(ctx, CircuitCandles, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.ExternalTimeout)
		defer cancel()
		var err error
		candles, err = o.deps.Candles.GetCandles(callCtx, symbol, o.cfg.Timeframe, o.cfg.CandleLimit)
		return err
	})
	o.recordCall(CircuitCandles, err)
	return candles, err
}

func (o *Orchestrator) fetchAccount(ctx context.Context) (market.Account, error) {
	var acct market.Account
	err := o.deps.Circuits.Do(ctx, CircuitAccount, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.ExternalTimeout)
		defer cancel()
		var err error
		acct, err = o.deps.Account.GetAccount(callCtx)
		return err
	})
	o.recordCall(CircuitAccount, err)
	return acct, err
}

func (o *Orchestrator) recordCall(dep string, err error) {
	if o.deps.Metrics == nil {
		return
	}
	switch {
	case err == nil:
		o.deps.Metrics.RecordExternalCall(dep, "ok")
	case errors.Is(err, circuit.ErrOpen):
		o.deps.Metrics.RecordExternalCall(dep, "circuit_open")
	default:
		o.deps.Metrics.RecordExternalCall(dep, "error")
	}
}

func (o *Orchestrator) emit(ctx context.Context, log zerolog.Logger, d Decision) {
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordDecision(d.Symbol, string(d.Outcome), d.Reason)
		if d.Outcome == OutcomeAdmitted && d.Signal != nil {
			o.deps.Metrics.RecordAdmission(d.Symbol, string(d.Signal.Direction), d.Strategy)
		}
	}

	o.publish(events.Event{Type: events.EventDecision, RunID: d.RunID, Data: d})
	if d.Outcome == OutcomeAdmitted {
		o.publish(events.Event{Type: events.EventTradeOpened, RunID: d.RunID, Data: map[string]interface{}{
			"trade_id": d.TradeID,
			"symbol":   d.Symbol,
			"quantity": d.Quantity,
		}})
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.ExternalTimeout)
	defer cancel()
	if err := o.deps.AuditLog.Publish(pubCtx, d.Symbol, d); err != nil {
		log.Warn().Err(err).Msg("Decision audit log publish failed")
		if o.deps.Metrics != nil {
			o.deps.Metrics.RecordAuditlogError()
		}
	}
}

func (o *Orchestrator) publish(ev events.Event) {
	if o.deps.Events != nil {
		o.deps.Events.Publish(ev)
	}
}

func (o *Orchestrator) circuitChanged(name string, from, to circuit.BreakerState) {
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordCircuitState(name, string(to))
	}
	o.publish(events.Event{Type: events.EventCircuitBreaker, Data: map[string]string{
		"name": name,
		"from": string(from),
		"to":   string(to),
	}})
}
