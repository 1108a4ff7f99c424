package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"mentorbook-backend/internal/app"
	"mentorbook-backend/internal/config"
	"mentorbook-backend/internal/jobs"
	"mentorbook-backend/internal/logger"
	"mentorbook-backend/internal/scheduler"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'expire-unpaid-bookings', 'all-booking-sweeps', 'all')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	defer logger.Sync()
	logger.Info("Starting Mentorbook Cronjob Runner...", "log_level", cfg.Log.Level)

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize application", "error", err)
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer a.Close()

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(&jobs.Services{
		Bookings:     a.Bookings,
		NoShows:      a.NoShows,
		Payouts:      a.Payouts,
		Availability: a.Availability,
	}, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		if !runJobOnce(jobRunner, *runOnce) {
			a.Close()
			os.Exit(1)
		}
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler := scheduler.NewScheduler(jobRunner)

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

var onceJobs = []struct {
	name string
	run  func(*jobs.JobRunner)
}{
	{"expire-unpaid-bookings", (*jobs.JobRunner).ExpireUnpaidBookings},
	{"expire-mentor-deadlines", (*jobs.JobRunner).ExpireMentorDeadlines},
	{"resolve-no-shows", (*jobs.JobRunner).ResolveNoShows},
	{"auto-complete-bookings", (*jobs.JobRunner).AutoCompleteBookings},
	{"retry-stuck-payouts", (*jobs.JobRunner).RetryStuckPayouts},
	{"extend-occurrence-window", (*jobs.JobRunner).ExtendOccurrenceWindow},
	{"all-booking-sweeps", (*jobs.JobRunner).RunAllBookingSweeps},
	{"all", (*jobs.JobRunner).RunAll},
}

// runJobOnce runs a specific job once and reports whether the name was known
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) bool {
	for _, j := range onceJobs {
		if j.name == jobName {
			j.run(jobRunner)
			return true
		}
	}
	logger.Error("Unknown job name", "job", jobName)
	fmt.Printf("Available jobs:\n")
	for _, j := range onceJobs {
		fmt.Printf("  - %s\n", j.name)
	}
	return false
}
