package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionPrice(t *testing.T) {
	tests := []struct {
		name     string
		rate     int64
		duration time.Duration
		expected int64
	}{
		{"One hour", 6000, time.Hour, 6000},
		{"Half hour", 6000, 30 * time.Minute, 3000},
		{"Rounds half up", 1001, 30 * time.Minute, 501}, // 500.5
		{"Rounds down", 1000, 20 * time.Minute, 333},    // 333.33
		{"Ninety minutes", 4500, 90 * time.Minute, 6750},
		{"Free", 0, time.Hour, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, err := SessionPrice(tt.rate, tt.duration)
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, price)
		})
	}

	t.Run("Invalid duration", func(t *testing.T) {
		_, err := SessionPrice(6000, 0)
		assert.Error(t, err)
	})
}

func TestSplitPercent(t *testing.T) {
	t.Run("Even split", func(t *testing.T) {
		share, rest, err := SplitPercent(5000, 80)
		assert.NoError(t, err)
		assert.Equal(t, int64(4000), share)
		assert.Equal(t, int64(1000), rest)
	})

	t.Run("Odd amount keeps total", func(t *testing.T) {
		share, rest, err := SplitPercent(999, 80)
		assert.NoError(t, err)
		assert.Equal(t, int64(799), share) // 799.2
		assert.Equal(t, int64(999), share+rest)
	})

	t.Run("Bounds", func(t *testing.T) {
		_, _, err := SplitPercent(100, 101)
		assert.Error(t, err)
	})
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "12.50 USD", FormatCents(1250, "USD"))
	assert.Equal(t, "0.05 USD", FormatCents(5, "USD"))
}

func TestParseTime(t *testing.T) {
	ts, err := ParseTime("2026-01-05T12:00:00+02:00")
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC), ts)

	_, err = ParseTime("2026-01-05")
	assert.Error(t, err)
}
