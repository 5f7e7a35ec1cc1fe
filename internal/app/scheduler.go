/**
 * @description
 * Cron scheduler for the background jobs of the banking-service.
 */
package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// CatalogRefresher rebuilds the provider catalog.
type CatalogRefresher interface {
	Refresh(ctx context.Context) error
}

// CatalogRefresherFunc adapts a function to CatalogRefresher.
type CatalogRefresherFunc func(ctx context.Context) error

func (f CatalogRefresherFunc) Refresh(ctx context.Context) error { return f(ctx) }

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron      *cron.Cron
	refresher CatalogRefresher
	schedule  string
	logger    zerolog.Logger
}

type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// NewScheduler creates a scheduler that refreshes the catalog on schedule.
func NewScheduler(refresher CatalogRefresher, schedule string, logger zerolog.Logger) *Scheduler {
	logger = logger.With().Str("component", "scheduler").Logger()
	c := cron.New(cron.WithChain(cron.Recover(cronLogger{logger: logger})))
	return &Scheduler{
		cron:      c,
		refresher: refresher,
		schedule:  schedule,
		logger:    logger,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.RefreshCatalog); err != nil {
		s.logger.Error().Err(err).Str("schedule", s.schedule).Msg("failed to schedule provider catalog refresh")
		return err
	}
	s.logger.Info().Str("schedule", s.schedule).Msg("scheduled provider catalog refresh")
	s.cron.Start()
	return nil
}

// RefreshCatalog runs one catalog refresh.
func (s *Scheduler) RefreshCatalog() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	if err := s.refresher.Refresh(ctx); err != nil {
		s.logger.Error().Err(err).Msg("provider catalog refresh failed")
		return
	}
	s.logger.Info().Dur("took", time.Since(start)).Msg("provider catalog refresh completed")
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
