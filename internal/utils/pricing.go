package utils

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var minutesPerHour = decimal.NewFromInt(60)

// SessionPrice prices a session at an hourly rate in minor units. Partial
// minutes count, and the result is rounded half-up to whole minor units.
func SessionPrice(hourlyRateCents int64, duration time.Duration) (int64, error) {
	if hourlyRateCents < 0 {
		return 0, fmt.Errorf("hourly rate must not be negative")
	}
	if duration <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	minutes := decimal.NewFromFloat(duration.Minutes())
	price := decimal.NewFromInt(hourlyRateCents).Mul(minutes).Div(minutesPerHour)
	return price.Round(0).IntPart(), nil
}

// SplitPercent splits amount into the given percentage (rounded half-up)
// and the remainder. The two parts always add up to amount.
func SplitPercent(amountCents int64, percent int) (share, rest int64, err error) {
	if percent < 0 || percent > 100 {
		return 0, 0, fmt.Errorf("percent must be between 0 and 100")
	}
	if amountCents < 0 {
		return 0, 0, fmt.Errorf("amount must not be negative")
	}
	share = decimal.NewFromInt(amountCents).
		Mul(decimal.NewFromInt(int64(percent))).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
	return share, amountCents - share, nil
}

// FormatCents renders minor units as a decimal amount, e.g. 1250 -> "12.50".
func FormatCents(amountCents int64, currency string) string {
	return decimal.New(amountCents, -2).StringFixed(2) + " " + currency
}

// ParseTime parses an RFC 3339 timestamp and normalizes it to UTC.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp, expected RFC 3339: %w", err)
	}
	return t.UTC(), nil
}
