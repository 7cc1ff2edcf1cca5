package circuit

import (
	"errors"
	"time"
)

// ErrOpen is returned when a breaker refuses a call.
var ErrOpen = errors.New("circuit breaker open")

// BreakerState represents the circuit breaker state
type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"    // Normal operation
	StateOpen     BreakerState = "OPEN"      // Calls refused
	StateHalfOpen BreakerState = "HALF_OPEN" // Next call is a trial
)

// Config holds breaker thresholds shared by every named circuit.
type Config struct {
	FailureThreshold int           `json:"failure_threshold"` // consecutive failures that trip the breaker
	Timeout          time.Duration `json:"timeout"`           // time after the last failure before probing
}

// DefaultConfig returns safe defaults
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Timeout:          60 * time.Second,
	}
}

// Record is the persisted breaker state. Only counters and timestamps are
// stored; the state itself is derived on read.
type Record struct {
	Name          string    `json:"name"`
	FailureCount  int       `json:"failure_count"`
	LastFailureAt time.Time `json:"last_failure_at"`
	LastSuccessAt time.Time `json:"last_success_at"`
}

// EffectiveState derives the breaker state at now. It has no side effects:
// OPEN turns into HALF_OPEN purely by the passage of time.
func (r Record) EffectiveState(now time.Time, cfg Config) BreakerState {
	if cfg.FailureThreshold <= 0 || r.FailureCount < cfg.FailureThreshold {
		return StateClosed
	}
	if now.Sub(r.LastFailureAt) >= cfg.Timeout {
		return StateHalfOpen
	}
	return StateOpen
}

// WithFailure returns the record after one more failure at now.
func (r Record) WithFailure(now time.Time) Record {
	r.FailureCount++
	r.LastFailureAt = now
	return r
}

// WithSuccess returns the record after a success at now.
func (r Record) WithSuccess(now time.Time) Record {
	r.FailureCount = 0
	r.LastSuccessAt = now
	return r
}

// Snapshot is a record with its state resolved at read time.
type Snapshot struct {
	Record
	State   BreakerState `json:"state"`
	RetryAt time.Time    `json:"retry_at,omitempty"`
}

// Resolve builds a snapshot at now.
func (r Record) Resolve(now time.Time, cfg Config) Snapshot {
	s := Snapshot{Record: r, State: r.EffectiveState(now, cfg)}
	if s.State == StateOpen {
		s.RetryAt = r.LastFailureAt.Add(cfg.Timeout)
	}
	return s
}
