package jobs

import (
	"context"
	"time"

	"mentorbook-backend/internal/config"
	"mentorbook-backend/internal/logger"
	"mentorbook-backend/internal/metrics"
)

type BookingSweeper interface {
	ExpireUnpaidBookings(ctx context.Context) (int, error)
	ExpireMentorDeadlines(ctx context.Context) (int, error)
	AutoCompleteBookings(ctx context.Context) (int, error)
}

type NoShowResolver interface {
	ResolveDue(ctx context.Context) (int, error)
}

type PayoutSweeper interface {
	RetryStuckPayouts(ctx context.Context) (int, error)
}

type HorizonExtender interface {
	ExtendHorizons(ctx context.Context) (int, error)
}

// Services holds all service dependencies needed by jobs
type Services struct {
	Bookings     BookingSweeper
	NoShows      NoShowResolver
	Payouts      PayoutSweeper
	Availability HorizonExtender
}

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	services *Services
	config   *config.Config
	timeout  time.Duration
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(services *Services, cfg *config.Config) *JobRunner {
	return &JobRunner{
		services: services,
		config:   cfg,
		timeout:  5 * time.Minute,
	}
}

func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery, a deadline and
// the sweep metrics.
func (jr *JobRunner) runWithRecovery(jobName string, sweep func(ctx context.Context) (int, error)) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
		metrics.SweepDuration.WithLabelValues(jobName).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jr.timeout)
	defer cancel()

	logger.Info("Starting job", "job", jobName)
	n, err := sweep(ctx)
	if n > 0 {
		metrics.SweepProcessed.WithLabelValues(jobName).Add(float64(n))
	}
	if err != nil {
		logger.Error("Job failed", "job", jobName, "processed", n, "error", err)
		return
	}
	logger.Info("Job completed", "job", jobName, "processed", n)
}

// ExpireUnpaidBookings fails bookings whose payment window elapsed and
// reopens their occurrences.
func (jr *JobRunner) ExpireUnpaidBookings() {
	jr.runWithRecovery("ExpireUnpaidBookings", jr.services.Bookings.ExpireUnpaidBookings)
}

// ExpireMentorDeadlines cancels and refunds requests the mentor never
// answered.
func (jr *JobRunner) ExpireMentorDeadlines() {
	jr.runWithRecovery("ExpireMentorDeadlines", jr.services.Bookings.ExpireMentorDeadlines)
}

func (jr *JobRunner) ResolveNoShows() {
	jr.runWithRecovery("ResolveNoShows", jr.services.NoShows.ResolveDue)
}

func (jr *JobRunner) AutoCompleteBookings() {
	jr.runWithRecovery("AutoCompleteBookings", jr.services.Bookings.AutoCompleteBookings)
}

func (jr *JobRunner) RetryStuckPayouts() {
	jr.runWithRecovery("RetryStuckPayouts", jr.services.Payouts.RetryStuckPayouts)
}

// ExtendOccurrenceWindow materializes recurring occurrences that entered
// their template's horizon since the last run.
func (jr *JobRunner) ExtendOccurrenceWindow() {
	jr.runWithRecovery("ExtendOccurrenceWindow", jr.services.Availability.ExtendHorizons)
}

// RunAllBookingSweeps runs every booking sweep in dependency order (for
// manual execution). No-shows are settled before auto-completion so a missed
// session is never completed.
func (jr *JobRunner) RunAllBookingSweeps() {
	jr.ExpireUnpaidBookings()
	jr.ExpireMentorDeadlines()
	jr.ResolveNoShows()
	jr.AutoCompleteBookings()
}

// RunAll runs every job once
func (jr *JobRunner) RunAll() {
	jr.RunAllBookingSweeps()
	jr.RetryStuckPayouts()
	jr.ExtendOccurrenceWindow()
}
