package domain

import "time"

type Notification struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	IsRead     bool              `json:"is_read"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"created_at"`
}

type EventType string

const (
	EventBookingCreated   EventType = "booking.created"
	EventBookingConfirmed EventType = "booking.confirmed"
	EventBookingPending   EventType = "booking.pending_mentor"
	EventBookingDeclined  EventType = "booking.declined"
	EventBookingCancelled EventType = "booking.cancelled"
	EventBookingFailed    EventType = "booking.failed"
	EventBookingCompleted EventType = "booking.completed"
	EventBookingNoShow    EventType = "booking.no_show"
	EventPayoutApproved   EventType = "payout.approved"
	EventPayoutPaid       EventType = "payout.paid"
	EventPayoutFailed     EventType = "payout.failed"
)

// Event is a post-commit side effect addressed to one user.
type Event struct {
	Type       EventType         `json:"type"`
	UserID     string            `json:"user_id"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
