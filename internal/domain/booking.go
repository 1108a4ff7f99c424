package domain

import "time"

type BookingStatus string

const (
	BookingStatusPaymentPending BookingStatus = "PAYMENT_PENDING"
	BookingStatusPendingMentor  BookingStatus = "PENDING_MENTOR"
	BookingStatusConfirmed      BookingStatus = "CONFIRMED"
	BookingStatusFailed         BookingStatus = "FAILED"
	BookingStatusCancelled      BookingStatus = "CANCELLED"
	BookingStatusDeclined       BookingStatus = "DECLINED"
	BookingStatusCompleted      BookingStatus = "COMPLETED"
)

// bookingTransitions enumerates every legal edge of the booking lifecycle.
// Statuses without an entry are terminal.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPaymentPending: {
		BookingStatusPendingMentor,
		BookingStatusConfirmed,
		BookingStatusFailed,
		BookingStatusCancelled,
	},
	BookingStatusPendingMentor: {
		BookingStatusConfirmed,
		BookingStatusDeclined,
		BookingStatusCancelled,
	},
	BookingStatusConfirmed: {
		BookingStatusCompleted,
		BookingStatusCancelled,
	},
}

// ActiveBookingStatuses are the non-terminal statuses; a booking in one of
// them holds its occurrence.
var ActiveBookingStatuses = []BookingStatus{
	BookingStatusPaymentPending,
	BookingStatusPendingMentor,
	BookingStatusConfirmed,
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPaymentPending, BookingStatusPendingMentor, BookingStatusConfirmed,
		BookingStatusFailed, BookingStatusCancelled, BookingStatusDeclined, BookingStatusCompleted:
		return true
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	_, ok := bookingTransitions[s]
	return !ok
}

func (s BookingStatus) CanTransitionTo(to BookingStatus) bool {
	for _, next := range bookingTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsPaid reports whether the requester's funds have been captured.
func (s BookingStatus) IsPaid() bool {
	return s == BookingStatusPendingMentor || s == BookingStatusConfirmed
}

type NoShowOutcome string

const (
	NoShowNone            NoShowOutcome = ""
	NoShowOwnerAbsent     NoShowOutcome = "OWNER_ABSENT"
	NoShowRequesterAbsent NoShowOutcome = "REQUESTER_ABSENT"
	NoShowBothAbsent      NoShowOutcome = "BOTH_ABSENT"
)

type Booking struct {
	ID                string        `json:"id"`
	RequesterID       string        `json:"requester_id"`
	OwnerID           string        `json:"owner_id"`
	OccurrenceID      string        `json:"occurrence_id"`
	Status            BookingStatus `json:"status"`
	PriceCents        int64         `json:"price_cents"`
	Currency          string        `json:"currency"`
	StartTime         time.Time     `json:"start_time"`
	EndTime           time.Time     `json:"end_time"`
	ExpiresAt         time.Time     `json:"expires_at"`
	ResponseDeadline  *time.Time    `json:"response_deadline,omitempty"`
	PaymentRef        string        `json:"payment_ref,omitempty"`
	CancelReason      string        `json:"cancel_reason,omitempty"`
	CancelledBy       string        `json:"cancelled_by,omitempty"`
	LateCancel        bool          `json:"late_cancel"`
	OwnerJoinedAt     *time.Time    `json:"owner_joined_at,omitempty"`
	RequesterJoinedAt *time.Time    `json:"requester_joined_at,omitempty"`
	NoShowOutcome     NoShowOutcome `json:"no_show_outcome,omitempty"`
	PlatformFeeCents  int64         `json:"platform_fee_cents"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Transition moves the booking to the given status if the edge is legal.
func (b *Booking) Transition(to BookingStatus, now time.Time) error {
	if !b.Status.CanTransitionTo(to) {
		return NewIllegalTransitionError(b.Status, to)
	}
	b.Status = to
	b.UpdatedAt = now
	return nil
}

func (b *Booking) IsParticipant(userID string) bool {
	return b.RequesterID == userID || b.OwnerID == userID
}
