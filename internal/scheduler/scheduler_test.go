package scheduler

import (
	"testing"

	"mentorbook-backend/internal/config"
	"mentorbook-backend/internal/jobs"

	"github.com/stretchr/testify/assert"
)

func TestNewScheduler(t *testing.T) {
	t.Run("Registers every sweep", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Scheduler = config.DefaultSchedulerConfig()

		s := NewScheduler(jobs.NewJobRunner(&jobs.Services{}, cfg))
		assert.Len(t, s.cron.Entries(), 6)
		assert.True(t, s.IsRunning())
	})

	t.Run("Skips invalid specs", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Scheduler = config.DefaultSchedulerConfig()
		cfg.Scheduler.RetryStuckPayouts = "every now and then"

		s := NewScheduler(jobs.NewJobRunner(&jobs.Services{}, cfg))
		assert.Len(t, s.cron.Entries(), 5)
	})
}
