/**
 * @description
 * Cron scheduler setup for the background jobs.
 */

package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Schedules holds the cron expressions for each job.
type Schedules struct {
	FraudAlertSweep  string
	RateLimiterEvict string
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron      *cron.Cron
	jobs      *Jobs
	logger    *zap.Logger
	schedules Schedules
}

// NewScheduler creates a new scheduler instance. Panicking jobs are recovered
// and logged rather than taking the process down.
func NewScheduler(jobs *Jobs, logger *zap.Logger, schedules Schedules) *Scheduler {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:      c,
		jobs:      jobs,
		logger:    logger,
		schedules: schedules,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.schedules.FraudAlertSweep, s.jobs.SweepFlaggedTransactions); err != nil {
		s.logger.Error("failed to schedule fraud alert sweep", zap.Error(err))
	} else {
		s.logger.Info("scheduled fraud alert sweep", zap.String("schedule", s.schedules.FraudAlertSweep))
	}

	if _, err := s.cron.AddFunc(s.schedules.RateLimiterEvict, s.jobs.EvictRateLimiterWindows); err != nil {
		s.logger.Error("failed to schedule rate limiter eviction", zap.Error(err))
	} else {
		s.logger.Info("scheduled rate limiter eviction", zap.String("schedule", s.schedules.RateLimiterEvict))
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler. The returned context is done when
// all running jobs have completed.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
