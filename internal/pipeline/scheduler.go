package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Runner is the unit the scheduler triggers.
type Runner interface {
	Tick(ctx context.Context, trigger string) (RunSummary, error)
}

// Scheduler triggers the runner at a fixed interval. Forced runs go through
// RunNow; overlap between the two is prevented by the runner's job lock, not
// here, so several scheduler processes can share one store.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   zerolog.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
	last     RunSummary
}

func NewScheduler(runner Runner, interval time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger.With().Str("component", "Scheduler").Logger(),
	}
}

// Start begins ticking until Stop or ctx is done. The first run fires
// immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info().Dur("interval", s.interval).Msg("Scheduler started")
	go s.runLoop(ctx, s.stopChan, s.done)
	return nil
}

// Stop halts the loop and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	close(stop)
	<-done
	s.logger.Info().Msg("Scheduler stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunNow executes a forced run in the caller's goroutine.
func (s *Scheduler) RunNow(ctx context.Context, trigger string) (RunSummary, error) {
	if trigger == "" {
		trigger = TriggerManual
	}
	return s.run(ctx, trigger)
}

// Last returns the most recent run summary.
func (s *Scheduler) Last() RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) runLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	_, _ = s.run(ctx, TriggerSchedule)
	for {
		select {
		case <-ticker.C:
			_, _ = s.run(ctx, TriggerSchedule)
		case <-stop:
			return
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		}
	}
}

func (s *Scheduler) run(ctx context.Context, trigger string) (RunSummary, error) {
	summary, err := s.runner.Tick(ctx, trigger)
	if err != nil {
		s.logger.Error().Err(err).Str("trigger", trigger).Msg("Pipeline run failed")
	}
	if !summary.Skipped {
		s.mu.Lock()
		s.last = summary
		s.mu.Unlock()
	}
	return summary, err
}
