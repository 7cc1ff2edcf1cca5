package circuit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"regime-trading-bot/internal/kvstore"
)

const (
	recordPrefix = "circuit:state:"
	trialPrefix  = "circuit:trial:"
)

// TransitionFunc observes a state change of a named breaker.
type TransitionFunc func(name string, from, to BreakerState)

// Registry keeps one breaker per external dependency in the shared store,
// so every pipeline process sees the same counters.
type Registry struct {
	store        kvstore.Store
	cfg          Config
	logger       zerolog.Logger
	now          func() time.Time
	onTransition TransitionFunc
}

func NewRegistry(store kvstore.Store, cfg Config, logger zerolog.Logger) *Registry {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Registry{
		store:  store,
		cfg:    cfg,
		logger: logger.With().Str("component", "CircuitRegistry").Logger(),
		now:    time.Now,
	}
}

// SetClock replaces the time source.
func (r *Registry) SetClock(now func() time.Time) { r.now = now }

// OnTransition sets the callback for state changes
func (r *Registry) OnTransition(fn TransitionFunc) { r.onTransition = fn }

// Config returns the breaker thresholds.
func (r *Registry) Config() Config { return r.cfg }

func (r *Registry) load(ctx context.Context, name string) (Record, error) {
	var rec Record
	err := kvstore.GetJSON(ctx, r.store, recordPrefix+name, &rec)
	if errors.Is(err, kvstore.ErrNotFound) {
		return Record{Name: name}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("load circuit %s: %w", name, err)
	}
	rec.Name = name
	return rec, nil
}

func (r *Registry) save(ctx context.Context, rec Record) error {
	if err := kvstore.PutJSON(ctx, r.store, recordPrefix+rec.Name, rec, 0); err != nil {
		return fmt.Errorf("save circuit %s: %w", rec.Name, err)
	}
	return nil
}

// State returns the breaker snapshot at the current time.
func (r *Registry) State(ctx context.Context, name string) (Snapshot, error) {
	rec, err := r.load(ctx, name)
	if err != nil {
		return Snapshot{}, err
	}
	return rec.Resolve(r.now(), r.cfg), nil
}

// Allow reports whether a call may proceed. In HALF_OPEN exactly one caller
// per timeout window gets the trial; everyone else sees ErrOpen. A store
// failure is returned as-is and callers must treat it as a refusal.
func (r *Registry) Allow(ctx context.Context, name string) error {
	rec, err := r.load(ctx, name)
	if err != nil {
		return err
	}

	switch rec.EffectiveState(r.now(), r.cfg) {
	case StateClosed:
		return nil
	case StateHalfOpen:
		ok, err := r.store.PutIfAbsent(ctx, trialPrefix+name, []byte(r.now().UTC().Format(time.RFC3339Nano)), r.cfg.Timeout)
		if err != nil {
			return fmt.Errorf("claim trial %s: %w", name, err)
		}
		if ok {
			r.logger.Info().Str("circuit", name).Msg("Circuit half-open, probing")
			return nil
		}
		return fmt.Errorf("%w: %s trial in flight", ErrOpen, name)
	default:
		retry := rec.LastFailureAt.Add(r.cfg.Timeout)
		return fmt.Errorf("%w: %s retry after %s", ErrOpen, name, retry.UTC().Format(time.RFC3339))
	}
}

// RecordSuccess resets the failure count and closes the breaker.
func (r *Registry) RecordSuccess(ctx context.Context, name string) error {
	rec, err := r.load(ctx, name)
	if err != nil {
		return err
	}
	now := r.now()
	before := rec.EffectiveState(now, r.cfg)
	rec = rec.WithSuccess(now)
	if err := r.save(ctx, rec); err != nil {
		return err
	}
	if before != StateClosed {
		_ = r.store.Delete(ctx, trialPrefix+name)
		r.transition(name, before, StateClosed)
	}
	return nil
}

// RecordFailure counts a failure. A failed trial reopens the breaker for
// another full timeout.
func (r *Registry) RecordFailure(ctx context.Context, name string) error {
	rec, err := r.load(ctx, name)
	if err != nil {
		return err
	}
	now := r.now()
	before := rec.EffectiveState(now, r.cfg)
	rec = rec.WithFailure(now)
	if err := r.save(ctx, rec); err != nil {
		return err
	}
	after := rec.EffectiveState(now, r.cfg)
	if before == StateHalfOpen {
		_ = r.store.Delete(ctx, trialPrefix+name)
	}
	if before != after {
		r.transition(name, before, after)
	}
	return nil
}

// Do runs fn behind the named breaker and records the outcome. Caller
// cancellation is not counted against the dependency.
func (r *Registry) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if err := r.Allow(ctx, name); err != nil {
		return err
	}
	err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		return err
	}
	if err != nil {
		if recErr := r.RecordFailure(ctx, name); recErr != nil {
			r.logger.Warn().Err(recErr).Str("circuit", name).Msg("Failed to record circuit failure")
		}
		return err
	}
	if recErr := r.RecordSuccess(ctx, name); recErr != nil {
		r.logger.Warn().Err(recErr).Str("circuit", name).Msg("Failed to record circuit success")
	}
	return nil
}

// List returns every known breaker, sorted by name.
func (r *Registry) List(ctx context.Context) ([]Snapshot, error) {
	keys, err := r.store.List(ctx, recordPrefix)
	if err != nil {
		return nil, fmt.Errorf("list circuits: %w", err)
	}
	sort.Strings(keys)
	out := make([]Snapshot, 0, len(keys))
	for _, k := range keys {
		snap, err := r.State(ctx, strings.TrimPrefix(k, recordPrefix))
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// Reset forces a breaker closed.
func (r *Registry) Reset(ctx context.Context, name string) error {
	snap, err := r.State(ctx, name)
	if err != nil {
		return err
	}
	if err := r.store.Delete(ctx, recordPrefix+name); err != nil {
		return fmt.Errorf("reset circuit %s: %w", name, err)
	}
	_ = r.store.Delete(ctx, trialPrefix+name)
	r.logger.Info().Str("circuit", name).Msg("Circuit manually reset")
	if snap.State != StateClosed {
		r.transition(name, snap.State, StateClosed)
	}
	return nil
}

func (r *Registry) transition(name string, from, to BreakerState) {
	ev := r.logger.Info()
	if to == StateOpen {
		ev = r.logger.Warn()
	}
	ev.Str("circuit", name).Str("from", string(from)).Str("to", string(to)).Msg("Circuit state changed")
	if r.onTransition != nil {
		r.onTransition(name, from, to)
	}
}
