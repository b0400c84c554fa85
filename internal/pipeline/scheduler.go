package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Runner executes one pipeline pass.
type Runner interface {
	Run(ctx context.Context) (Summary, error)
}

// Scheduler runs a Runner on a fixed interval, one pass at a time.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *zap.Logger

	running atomic.Bool
	wg      sync.WaitGroup

	mu   sync.RWMutex
	last *Summary
}

// NewScheduler builds a Scheduler.
func NewScheduler(runner Runner, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{runner: runner, interval: interval, logger: logger.Named("scheduler")}
}

// Start runs immediately and then on every tick until ctx is done.
// It returns after any in-flight run finishes.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.wg.Wait()

	s.Trigger(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Trigger(ctx)
		}
	}
}

// Trigger starts a run in the background unless one is already in flight.
// It reports whether a run was started.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("Previous run still in progress; skipping tick")
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		sum, err := s.runner.Run(ctx)
		if err != nil {
			s.logger.Error("Run failed", zap.String("run_id", sum.RunID), zap.Error(err))
		}
		s.mu.Lock()
		s.last = &sum
		s.mu.Unlock()
	}()
	return true
}

// LastRun returns the summary of the most recent finished run.
func (s *Scheduler) LastRun() (Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Summary{}, false
	}
	return *s.last, true
}

// Wait blocks until no run is in flight.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
