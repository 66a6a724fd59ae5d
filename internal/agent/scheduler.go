// Package agent runs backlog reconciliation in the background: once at
// startup, then periodically while network connectivity allows.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"go.uber.org/zap"

	"github.com/cechriza/marcaje/internal/device"
	"github.com/cechriza/marcaje/internal/model"
)

// Reconciler is the backlog path of the submission pipeline.
type Reconciler interface {
	ReconcileBacklog(ctx context.Context) ([]model.SyncResult, error)
}

// Config tunes the scheduler cadence and its retry backoff.
type Config struct {
	Interval      time.Duration // between reconciliation cycles
	RetryAttempts int           // attempts within one cycle before giving up
	RetryDelay    time.Duration // initial backoff delay
	MaxRetryDelay time.Duration // backoff cap
}

// DefaultConfig mirrors the platform scheduler the agent replaces: a 15
// minute minimum interval with exponential backoff on failed cycles.
func DefaultConfig() Config {
	return Config{
		Interval:      15 * time.Minute,
		RetryAttempts: 4,
		RetryDelay:    30 * time.Second,
		MaxRetryDelay: 5 * time.Minute,
	}
}

// Scheduler periodically hands the unsynced backlog back to the pipeline.
type Scheduler struct {
	reconciler Reconciler
	probe      device.Probe
	clock      clock.Clock
	log        *zap.Logger
	cfg        Config
}

// NewScheduler constructs the scheduler.
func NewScheduler(reconciler Reconciler, probe device.Probe, clk clock.Clock, cfg Config, log *zap.Logger) *Scheduler {
	if clk == nil {
		clk = clock.WallClock
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	return &Scheduler{
		reconciler: reconciler,
		probe:      probe,
		clock:      clk,
		log:        log,
		cfg:        cfg,
	}
}

// Run blocks until ctx is done. The first cycle starts immediately
// (opportunistic catch-up after process start), later ones on the interval.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cycle(ctx)
	for {
		timer := s.clock.NewTimer(s.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.Chan():
		}
		s.cycle(ctx)
	}
}

// cycle runs one reconciliation with exponential backoff on transient
// failure. A cycle that still has unsynced records after all attempts is
// logged and left for the next interval; records are never dropped.
func (s *Scheduler) cycle(ctx context.Context) {
	err := retry.Call(retry.CallArgs{
		Clock:       s.clock,
		Attempts:    s.cfg.RetryAttempts,
		Delay:       s.cfg.RetryDelay,
		MaxDelay:    s.cfg.MaxRetryDelay,
		BackoffFunc: retry.DoubleDelay,
		Stop:        ctx.Done(),
		Func:        func() error { return s.runOnce(ctx) },
		NotifyFunc: func(lastErr error, attempt int) {
			s.log.Warn("reconciliation attempt failed",
				zap.Int("attempt", attempt), zap.Error(lastErr))
		},
	})
	if err != nil && ctx.Err() == nil {
		s.log.Warn("reconciliation cycle exhausted retries", zap.Error(err))
	}
}

// runOnce performs a single reconciliation pass. Lack of connectivity is a
// quiet no-op, not a failure; records left unsynced make the pass
// retry-eligible.
func (s *Scheduler) runOnce(ctx context.Context) error {
	if !s.probe.Snapshot(ctx).Online {
		s.log.Debug("reconciliation skipped: no connectivity")
		return nil
	}

	results, err := s.reconciler.ReconcileBacklog(ctx)
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		if !r.OK {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d records still unsynced", failed, len(results))
	}
	if len(results) > 0 {
		s.log.Info("backlog reconciled", zap.Int("records", len(results)))
	}
	return nil
}
