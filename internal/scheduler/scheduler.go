// Package scheduler refreshes the series on a cron schedule.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RefreshFunc reloads the series. It should block until the fetch completes.
type RefreshFunc func(ctx context.Context) error

// Scheduler runs RefreshFunc on a cron schedule. Specs include a seconds field.
type Scheduler struct {
	cron    *cron.Cron
	refresh RefreshFunc
	log     *zap.SugaredLogger
	ctx     context.Context
}

// New creates a Scheduler. ctx bounds every refresh it runs.
func New(ctx context.Context, refresh RefreshFunc, logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		refresh: refresh,
		log:     logger,
		ctx:     ctx,
	}
}

// Register adds the refresh job on spec.
func (s *Scheduler) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return fmt.Errorf("register refresh %q: %w", spec, err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Infow("Scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops the scheduler and waits for a running refresh to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Infow("Scheduler stopped")
}

// RunNow performs one refresh immediately.
func (s *Scheduler) RunNow() error {
	return s.refresh(s.ctx)
}

func (s *Scheduler) run() {
	s.log.Infow("Running scheduled refresh")
	if err := s.refresh(s.ctx); err != nil {
		s.log.Errorw("Scheduled refresh failed", "error", err)
	}
}
