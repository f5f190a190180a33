// Package cron runs the periodic reminder resync sweep. In-process timers do
// not survive a restart, so the sweep re-derives every medication's pending
// set on a schedule.
package cron

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/gmsas95/dosetrack/internal/reminders"
)

// Runner manages the scheduled resync job
type Runner struct {
	cron       *cron.Cron
	reconciler *reminders.Reconciler
	logger     *zap.Logger
	spec       string
}

// NewRunner creates a runner that reconciles every medication on the given
// cron spec
func NewRunner(spec string, reconciler *reminders.Reconciler, logger *zap.Logger) *Runner {
	return &Runner{
		cron:       cron.New(),
		reconciler: reconciler,
		logger:     logger,
		spec:       spec,
	}
}

// Start registers the sweep and starts the cron loop
func (r *Runner) Start() error {
	_, err := r.cron.AddFunc(r.spec, func() {
		r.logger.Info("Running reminder resync sweep")
		r.reconciler.ResyncAll()
	})
	if err != nil {
		return fmt.Errorf("invalid resync spec %q: %w", r.spec, err)
	}

	r.cron.Start()
	r.logger.Info("Resync sweep scheduled", zap.String("spec", r.spec))
	return nil
}

// Stop stops the cron loop and waits for a running sweep to finish
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("Resync sweep stopped")
}
