package pipeline

import (
	"context"
	"errors"
	"time"

	"regime-trading-bot/internal/audit"
	"regime-trading-bot/internal/calendar"
	"regime-trading-bot/internal/circuit"
	"regime-trading-bot/internal/risk"
)

// GuardedNews puts the calendar behind its circuit breaker so a dead feed
// stops costing a timeout per symbol.
type GuardedNews struct {
	Circuits *circuit.Registry
	Source   risk.NewsSource
}

func (g GuardedNews) UpcomingHighImpact(ctx context.Context, symbol string, horizon time.Duration) ([]calendar.Event, error) {
	var out []calendar.Event
	err := g.Circuits.Do(ctx, CircuitCalendar, func(ctx context.Context) error {
		var err error
		out, err = g.Source.UpcomingHighImpact(ctx, symbol, horizon)
		return err
	})
	return out, err
}

// GuardedAuditor does the same for the advisory auditor. An unparsable
// answer still proves the model reachable and counts as a success.
type GuardedAuditor struct {
	Circuits *circuit.Registry
	Auditor  risk.Auditor
}

func (g GuardedAuditor) Audit(ctx context.Context, rationale string) (audit.Verdict, error) {
	var (
		v      audit.Verdict
		result error
	)
	err := g.Circuits.Do(ctx, CircuitAudit, func(ctx context.Context) error {
		v, result = g.Auditor.Audit(ctx, rationale)
		if errors.Is(result, audit.ErrUnparsable) {
			return nil
		}
		return result
	})
	if err != nil {
		return audit.Verdict{}, err
	}
	return v, result
}
