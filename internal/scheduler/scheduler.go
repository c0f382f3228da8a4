// Package scheduler runs the periodic maintenance jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

type Schedules struct {
	SubscriptionExpiry string
	SubmissionExpiry   string
	LogCleanup         string
}

type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
}

func New(jobs *Jobs, logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))
	return &Scheduler{cron: c, jobs: jobs, logger: logger}
}

// Start registers every job with a non-empty schedule and starts the
// scheduler. An invalid schedule fails before anything runs.
func (s *Scheduler) Start(sched Schedules) error {
	entries := []struct {
		name     string
		schedule string
		fn       func()
	}{
		{"subscription expiry", sched.SubscriptionExpiry, s.jobs.ExpireSubscriptions},
		{"submission expiry", sched.SubmissionExpiry, s.jobs.ExpireSubmissions},
		{"log cleanup", sched.LogCleanup, s.jobs.PurgeLogs},
	}
	for _, e := range entries {
		if e.schedule == "" {
			s.logger.Info("job disabled", "job", e.name)
			continue
		}
		if _, err := s.cron.AddFunc(e.schedule, e.fn); err != nil {
			return fmt.Errorf("schedule %s job: %w", e.name, err)
		}
		s.logger.Info("scheduled job", "job", e.name, "schedule", e.schedule)
	}
	s.cron.Start()
	return nil
}

// Stop stops the scheduler. The returned context is done once running
// jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
