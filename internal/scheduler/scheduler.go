package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"mentorbook-backend/internal/jobs"
	"mentorbook-backend/internal/logger"
)

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron *cron.Cron
	jobs *jobs.JobRunner
}

// NewScheduler creates a new scheduler with the provided job runner
func NewScheduler(jobRunner *jobs.JobRunner) *Scheduler {
	// Create cron with UTC timezone and seconds precision. A sweep still
	// running when its next tick fires is skipped rather than overlapped.
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	s := &Scheduler{
		cron: c,
		jobs: jobRunner,
	}

	s.registerJobs()
	return s
}

// registerJobs registers all scheduled jobs with the cron scheduler
func (s *Scheduler) registerJobs() {
	cfg := s.jobs.Config().Scheduler

	entries := []struct {
		name string
		spec string
		run  func()
	}{
		{"ExpireUnpaidBookings", cfg.ExpireUnpaidBookings, s.jobs.ExpireUnpaidBookings},
		{"ExpireMentorDeadlines", cfg.ExpireMentorDeadlines, s.jobs.ExpireMentorDeadlines},
		{"ResolveNoShows", cfg.ResolveNoShows, s.jobs.ResolveNoShows},
		{"AutoCompleteBookings", cfg.AutoCompleteBookings, s.jobs.AutoCompleteBookings},
		{"RetryStuckPayouts", cfg.RetryStuckPayouts, s.jobs.RetryStuckPayouts},
		{"ExtendOccurrenceWindow", cfg.ExtendOccurrenceWindow, s.jobs.ExtendOccurrenceWindow},
	}

	registered := 0
	for _, e := range entries {
		if _, err := s.cron.AddFunc(e.spec, e.run); err != nil {
			logger.Error("Failed to register job", "job", e.name, "spec", e.spec, "error", err)
			continue
		}
		registered++
	}

	logger.Info("Cron jobs registered", "count", registered)
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	logger.Info("Starting cron scheduler...")
	s.cron.Start()
	logger.Info("Cron scheduler started successfully")
}

// Stop gracefully stops the cron scheduler, waiting for running jobs
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Cron scheduler stopped")
}

// IsRunning returns true if the scheduler has jobs registered
func (s *Scheduler) IsRunning() bool {
	return len(s.cron.Entries()) > 0
}
