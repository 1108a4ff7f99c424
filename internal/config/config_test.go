package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `
server:
  port: 8080
database:
  driver: memory
jwt:
  secret: "0123456789abcdef0123456789abcdef"
`

func TestLoad(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, minimalConfig))
		require.NoError(t, err)

		assert.Equal(t, 8081, cfg.Server.GRPCPort)
		assert.Equal(t, "memory", cfg.Database.Driver)
		assert.Equal(t, DefaultBookingConfig(), cfg.Booking)
		assert.Equal(t, DefaultSchedulerConfig(), cfg.Scheduler)
		assert.Equal(t, 60, cfg.Payouts.StuckAfterMinutes)
		assert.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("Environment overrides", func(t *testing.T) {
		t.Setenv("SERVER_PORT", "9090")
		t.Setenv("PAYMENT_WEBHOOK_SECRET", "from-env")

		cfg, err := Load(writeConfig(t, minimalConfig))
		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "from-env", cfg.Payments.WebhookSecret)
	})

	t.Run("Postgres needs a host", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
server:
  port: 8080
jwt:
  secret: "0123456789abcdef0123456789abcdef"
`))
		assert.ErrorContains(t, err, "database host is required")
	})

	t.Run("Short JWT secret", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
server:
  port: 8080
database:
  driver: memory
jwt:
  secret: "short"
`))
		assert.ErrorContains(t, err, "at least 32 characters")
	})

	t.Run("Refund percent out of range", func(t *testing.T) {
		_, err := Load(writeConfig(t, minimalConfig+`
booking:
  no_show_refund_percent: 120
`))
		assert.Error(t, err)
	})

	t.Run("Explicit zero policies are kept", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, minimalConfig+`
booking:
  no_show_refund_percent: 0
  late_cancel_window_minutes: 0
`))
		require.NoError(t, err)
		assert.Equal(t, 0, cfg.Booking.NoShowRefund())
		assert.Equal(t, time.Duration(0), cfg.Booking.LateCancelWindow())
		assert.Equal(t, 15, cfg.Booking.PaymentExpiryMinutes)
	})

	t.Run("Unset policies get defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, minimalConfig))
		require.NoError(t, err)
		assert.Equal(t, 80, cfg.Booking.NoShowRefund())
		assert.Equal(t, 24*time.Hour, cfg.Booking.LateCancelWindow())
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestGetSecurityLevel(t *testing.T) {
	assert.Equal(t, SecurityPublic, GetSecurityLevel("GetCalendar"))
	assert.Equal(t, SecurityWebhook, GetSecurityLevel("PaymentWebhook"))
	assert.Equal(t, SecurityAccess, GetSecurityLevel("CreateBooking"))
	assert.Equal(t, SecurityAdmin, GetSecurityLevel("ApprovePayout"))
	assert.Equal(t, SecurityAdmin, GetSecurityLevel("SomethingNew"))
}
