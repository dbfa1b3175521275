// Package jobs runs the periodic maintenance of the aggregates.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/eisbuk/EisBuk-sub003/internal/service"
)

// Reconciler is the part of service.Reconciler the scheduler drives.
type Reconciler interface {
	PruneAndRebuildAll(ctx context.Context) ([]service.Report, error)
}

// ReconcileScheduler runs full reconciliation on a cron schedule. A run
// still in progress when the next one is due makes the next one skip.
type ReconcileScheduler struct {
	cron       *cron.Cron
	reconciler Reconciler
	logger     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewReconcileScheduler(reconciler Reconciler, loc *time.Location, logger *slog.Logger) *ReconcileScheduler {
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{logger: logger}
	return &ReconcileScheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		reconciler: reconciler,
		logger:     logger,
	}
}

// Start registers the job under spec (standard five field cron syntax) and
// starts the scheduler. Runs stop when ctx is cancelled or Stop is called.
func (s *ReconcileScheduler) Start(ctx context.Context, spec string) error {
	ctx, cancel := context.WithCancel(ctx)

	if _, err := s.cron.AddFunc(spec, func() { _ = s.RunOnce(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("invalid reconcile schedule %q: %w", spec, err)
	}

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("reconcile.scheduled", "schedule", spec)
	return nil
}

// Stop halts scheduling and waits for a running reconciliation to return.
func (s *ReconcileScheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-s.cron.Stop().Done()
}

// RunOnce performs one reconciliation of every organization.
func (s *ReconcileScheduler) RunOnce(ctx context.Context) error {
	started := time.Now()
	s.logger.Info("reconcile.started")

	reports, err := s.reconciler.PruneAndRebuildAll(ctx)

	changed := 0
	for _, r := range reports {
		if r.Changed() {
			changed++
		}
	}
	if err != nil {
		s.logger.Error("reconcile.finished_with_errors",
			"organizations", len(reports),
			"changed", changed,
			"duration", time.Since(started),
			"error", err,
		)
		return err
	}
	s.logger.Info("reconcile.finished",
		"organizations", len(reports),
		"changed", changed,
		"duration", time.Since(started),
	)
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron."+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron."+msg, append(keysAndValues, "error", err)...)
}
