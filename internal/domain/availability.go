package domain

import "time"

type TemplateStatus string

const (
	TemplateStatusDraft     TemplateStatus = "DRAFT"
	TemplateStatusPublished TemplateStatus = "PUBLISHED"
	TemplateStatusPaused    TemplateStatus = "PAUSED"
	TemplateStatusArchived  TemplateStatus = "ARCHIVED"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
)

type Frequency string

const (
	FrequencyDaily  Frequency = "DAILY"
	FrequencyWeekly Frequency = "WEEKLY"
)

// RecurrenceRule is the subset of RFC 5545 RRULE the expander understands.
type RecurrenceRule struct {
	Frequency Frequency      `json:"frequency"`
	Interval  int            `json:"interval,omitempty"`
	Count     int            `json:"count,omitempty"`
	Until     *time.Time     `json:"until,omitempty"`
	ByWeekday []time.Weekday `json:"by_weekday,omitempty"`
}

// Interval is a half-open [Start, End) span of time.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Buffer is the padding, in minutes, applied around an interval for conflict checks.
type Buffer struct {
	BeforeMinutes int `json:"before_minutes"`
	AfterMinutes  int `json:"after_minutes"`
}

type AvailabilityTemplate struct {
	ID                  string          `json:"id"`
	OwnerID             string          `json:"owner_id"`
	StartTime           time.Time       `json:"start_time"`
	EndTime             time.Time       `json:"end_time"`
	Recurrence          *RecurrenceRule `json:"recurrence,omitempty"`
	ExcludedDates       []time.Time     `json:"excluded_dates,omitempty"`
	BufferBeforeMinutes int             `json:"buffer_before_minutes"`
	BufferAfterMinutes  int             `json:"buffer_after_minutes"`
	Visibility          Visibility      `json:"visibility"`
	HorizonDays         int             `json:"horizon_days"`
	PriceCents          *int64          `json:"price_cents,omitempty"`
	Status              TemplateStatus  `json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func (t *AvailabilityTemplate) Base() Interval {
	return Interval{Start: t.StartTime, End: t.EndTime}
}

func (t *AvailabilityTemplate) Buffer() Buffer {
	return Buffer{BeforeMinutes: t.BufferBeforeMinutes, AfterMinutes: t.BufferAfterMinutes}
}

func (t *AvailabilityTemplate) IsRecurring() bool {
	return t.Recurrence != nil
}

type OccurrenceStatus string

const (
	OccurrenceStatusOpen   OccurrenceStatus = "OPEN"
	OccurrenceStatusBooked OccurrenceStatus = "BOOKED"
	OccurrenceStatusClosed OccurrenceStatus = "CLOSED"
)

type Occurrence struct {
	ID         string           `json:"id"`
	TemplateID string           `json:"template_id"`
	OwnerID    string           `json:"owner_id"`
	StartTime  time.Time        `json:"start_time"`
	EndTime    time.Time        `json:"end_time"`
	Status     OccurrenceStatus `json:"status"`
	Capacity   int              `json:"capacity"`
	// Buffers are copied from the template so conflict checks need no join.
	BufferBeforeMinutes int       `json:"buffer_before_minutes"`
	BufferAfterMinutes  int       `json:"buffer_after_minutes"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (o *Occurrence) Interval() Interval {
	return Interval{Start: o.StartTime, End: o.EndTime}
}

func (o *Occurrence) Buffer() Buffer {
	return Buffer{BeforeMinutes: o.BufferBeforeMinutes, AfterMinutes: o.BufferAfterMinutes}
}
