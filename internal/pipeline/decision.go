// Package pipeline runs the per-symbol decision pass: candles, regime,
// engines, strategy, risk gate and, when admitted, the ledger write.
package pipeline

import (
	"time"

	"regime-trading-bot/internal/engine"
	"regime-trading-bot/internal/regime"
	"regime-trading-bot/internal/risk"
	"regime-trading-bot/internal/strategy"
)

// Outcome of one symbol pass.
type Outcome string

const (
	OutcomeAdmitted  Outcome = "ADMITTED"
	OutcomeRejected  Outcome = "REJECTED"  // risk gate said no
	OutcomeAbstained Outcome = "ABSTAINED" // nothing worth proposing
	OutcomeSkipped   Outcome = "SKIPPED"   // coordination prevented evaluation
	OutcomeError     Outcome = "ERROR"
)

// Pipeline-level reasons. Gate rejections carry the risk.Reason* value and
// strategy abstentions carry the strategy's own reason.
const (
	ReasonCircuitOpen        = "circuit_open"
	ReasonCandlesUnavailable = "candles_unavailable"
	ReasonNoCandles          = "no_candles"
	ReasonEngineWait         = "engine_wait"
	ReasonEngineConflict     = "engine_conflict"
	ReasonOpenPosition       = "open_position"
	ReasonLedgerUnavailable  = "ledger_unavailable"
	ReasonAccountUnavailable = "account_unavailable"
	ReasonUnsized            = "position_unsized"
	ReasonSymbolLocked       = "symbol_locked"
	ReasonLockUnavailable    = "lock_unavailable"
	ReasonCanceled           = "canceled"
	ReasonRecordFailed       = "record_failed"
)

// WarnNoEdge marks a pass whose trade history gave no positive Kelly
// fraction. The signal is sized from priors and still goes to the gate.
const WarnNoEdge = "no_edge"

// Run triggers.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerCLI      = "cli"
)

// Decision is the record of one symbol pass. It is published to the event
// bus and the audit log whatever the outcome.
type Decision struct {
	RunID     string                    `json:"run_id"`
	Symbol    string                    `json:"symbol"`
	Strategy  string                    `json:"strategy"`
	Outcome   Outcome                   `json:"outcome"`
	Reason    string                    `json:"reason"`
	Detail    string                    `json:"detail,omitempty"`
	Regime    *regime.Reading           `json:"regime,omitempty"`
	Composite *engine.Composite         `json:"composite,omitempty"`
	Signal    *strategy.CandidateSignal `json:"signal,omitempty"`
	Gate      *risk.Decision            `json:"gate,omitempty"`
	Kelly     *risk.KellyResult         `json:"kelly,omitempty"`
	Quantity  float64                   `json:"quantity,omitempty"`
	Warnings  []string                  `json:"warnings,omitempty"`
	TradeID   string                    `json:"trade_id,omitempty"`
	Timestamp time.Time                 `json:"timestamp"`
}

// RunSummary collects the decisions of one tick.
type RunSummary struct {
	RunID     string        `json:"run_id"`
	Trigger   string        `json:"trigger"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	// Skipped is set when another run held the job lock.
	Skipped   bool       `json:"skipped"`
	Decisions []Decision `json:"decisions"`
}

// Admitted returns the admitted decisions.
func (s RunSummary) Admitted() []Decision {
	var out []Decision
	for _, d := range s.Decisions {
		if d.Outcome == OutcomeAdmitted {
			out = append(out, d)
		}
	}
	return out
}
