package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/logger"
)

const (
	maxDailyIterations = 10000
	maxWeeklyCycles    = 1000
)

// Expand turns a base interval plus recurrence rule into the concrete
// intervals to offer. The result is ascending, deduplicated and every element
// keeps the base duration. A nil rule yields the base interval alone.
//
// Cutoff precedence: rule.Until, then rule.Count (no date cutoff), then horizonEnd.
func Expand(base domain.Interval, rule *domain.RecurrenceRule, excluded []time.Time, horizonEnd time.Time) ([]domain.Interval, error) {
	if !base.End.After(base.Start) {
		return nil, domain.NewValidationError("end time must be after start time")
	}
	if rule == nil {
		if isExcluded(base.Start, excluded) {
			return nil, nil
		}
		return []domain.Interval{base}, nil
	}
	if err := validateRule(rule); err != nil {
		return nil, err
	}

	starts, err := expandWithRRule(base.Start, rule, horizonEnd)
	if err != nil || len(starts) == 0 {
		if err != nil {
			logger.Warn("Recurrence parser rejected rule, using manual expansion", "frequency", rule.Frequency, "error", err)
		}
		starts = expandManually(base.Start, rule, horizonEnd)
		if len(starts) == 0 {
			return nil, &domain.Error{Kind: domain.KindInvalidRecurrence, Message: "recurrence rule produced no occurrences"}
		}
	}

	return toIntervals(starts, base, excluded), nil
}

func validateRule(rule *domain.RecurrenceRule) error {
	invalid := func(format string, args ...any) error {
		return &domain.Error{Kind: domain.KindInvalidRecurrence, Message: fmt.Sprintf(format, args...)}
	}
	switch rule.Frequency {
	case domain.FrequencyDaily:
		if len(rule.ByWeekday) > 0 {
			return invalid("by-weekday is only supported for weekly rules")
		}
	case domain.FrequencyWeekly:
	default:
		return invalid("unsupported frequency %q", rule.Frequency)
	}
	if rule.Interval < 0 {
		return invalid("interval must be at least 1")
	}
	if rule.Count < 0 {
		return invalid("count must not be negative")
	}
	return nil
}

func interval(rule *domain.RecurrenceRule) int {
	if rule.Interval < 1 {
		return 1
	}
	return rule.Interval
}

// cutoff returns the inclusive upper bound for candidate starts, or the zero
// time when the rule is bounded by count alone.
func cutoff(rule *domain.RecurrenceRule, horizonEnd time.Time) time.Time {
	switch {
	case rule.Until != nil:
		return rule.Until.UTC()
	case rule.Count > 0:
		return time.Time{}
	default:
		return horizonEnd.UTC()
	}
}

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

func expandWithRRule(start time.Time, rule *domain.RecurrenceRule, horizonEnd time.Time) ([]time.Time, error) {
	opt := rrule.ROption{
		Dtstart:  start.UTC(),
		Interval: interval(rule),
		Count:    rule.Count,
		Wkst:     rrule.MO,
	}
	switch rule.Frequency {
	case domain.FrequencyDaily:
		opt.Freq = rrule.DAILY
	case domain.FrequencyWeekly:
		opt.Freq = rrule.WEEKLY
		for _, wd := range rule.ByWeekday {
			opt.Byweekday = append(opt.Byweekday, rruleWeekdays[wd])
		}
	}
	limit := cutoff(rule, horizonEnd)
	if rule.Until != nil {
		opt.Until = limit
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, err
	}

	guard := maxDailyIterations
	if rule.Frequency == domain.FrequencyWeekly {
		guard = maxWeeklyCycles * 7
	}
	var out []time.Time
	next := r.Iterator()
	for i := 0; i < guard; i++ {
		t, ok := next()
		if !ok {
			break
		}
		if !limit.IsZero() && t.After(limit) {
			break
		}
		out = append(out, t)
	}
	return out, nil
}

// expandManually mirrors expandWithRRule without the parser. It is used when
// the parser rejects a rule.
func expandManually(start time.Time, rule *domain.RecurrenceRule, horizonEnd time.Time) []time.Time {
	start = start.UTC()
	limit := cutoff(rule, horizonEnd)
	step := interval(rule)

	var out []time.Time
	done := func(t time.Time) bool {
		if rule.Count > 0 && len(out) >= rule.Count {
			return true
		}
		return !limit.IsZero() && t.After(limit)
	}

	if rule.Frequency == domain.FrequencyDaily {
		for i := 0; i < maxDailyIterations; i++ {
			t := start.AddDate(0, 0, i*step)
			if done(t) {
				break
			}
			out = append(out, t)
		}
		return out
	}

	weekdays := rule.ByWeekday
	if len(weekdays) == 0 {
		weekdays = []time.Weekday{start.Weekday()}
	}
	offsets := make([]int, 0, len(weekdays))
	for _, wd := range weekdays {
		offsets = append(offsets, mondayOffset(wd))
	}
	sort.Ints(offsets)

	weekStart := start.AddDate(0, 0, -mondayOffset(start.Weekday()))
	for cycle := 0; cycle < maxWeeklyCycles; cycle++ {
		base := weekStart.AddDate(0, 0, cycle*step*7)
		for _, off := range offsets {
			t := base.AddDate(0, 0, off)
			if t.Before(start) {
				continue
			}
			if done(t) {
				return out
			}
			out = append(out, t)
		}
	}
	return out
}

// mondayOffset is the number of days from Monday to wd.
func mondayOffset(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

func isExcluded(t time.Time, excluded []time.Time) bool {
	for _, ex := range excluded {
		if ex.Equal(t) {
			return true
		}
	}
	return false
}

func toIntervals(starts []time.Time, base domain.Interval, excluded []time.Time) []domain.Interval {
	duration := base.Duration()
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	out := make([]domain.Interval, 0, len(starts))
	for _, s := range starts {
		if s.Before(base.Start) || isExcluded(s, excluded) {
			continue
		}
		if len(out) > 0 && s.Equal(out[len(out)-1].Start) {
			continue
		}
		out = append(out, domain.Interval{Start: s, End: s.Add(duration)})
	}
	return out
}
