package service

import (
	"context"
	"time"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/repository"
)

// Clock returns the current instant. Services take one so tests can pin time.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

type AvailabilityService interface {
	CreateTemplate(ctx context.Context, ownerID string, tmpl *domain.AvailabilityTemplate) (*domain.AvailabilityTemplate, error)
	GetTemplate(ctx context.Context, ownerID, templateID string) (*domain.AvailabilityTemplate, error)
	ListTemplates(ctx context.Context, ownerID string) ([]domain.AvailabilityTemplate, error)
	PublishTemplate(ctx context.Context, ownerID, templateID string) (*PublishResult, error)
	UpdateTemplate(ctx context.Context, ownerID, templateID string, changes TemplateChanges) (*PublishResult, error)
	PauseTemplate(ctx context.Context, ownerID, templateID string) (*domain.AvailabilityTemplate, error)
	ResumeTemplate(ctx context.Context, ownerID, templateID string) (*domain.AvailabilityTemplate, error)
	DeleteTemplate(ctx context.Context, ownerID, templateID string) error
	GetCalendar(ctx context.Context, ownerID string, from, to time.Time) ([]domain.Occurrence, error)
	// ExtendHorizons materializes occurrences of published recurring
	// templates that have entered their booking horizon.
	ExtendHorizons(ctx context.Context) (int, error)
}

type BookingService interface {
	CreateBooking(ctx context.Context, requesterID, occurrenceID string) (*domain.Booking, error)
	GetBooking(ctx context.Context, userID, bookingID string) (*domain.Booking, error)
	ListBookings(ctx context.Context, userID string, asOwner bool, status domain.BookingStatus, page, pageSize int32) ([]domain.Booking, int32, error)
	HandlePayment(ctx context.Context, event PaymentEvent) (*domain.Booking, error)
	AcceptBooking(ctx context.Context, ownerID, bookingID string) (*domain.Booking, error)
	DeclineBooking(ctx context.Context, ownerID, bookingID, reason string) (*domain.Booking, error)
	CancelBooking(ctx context.Context, userID, bookingID, reason string) (*domain.Booking, error)
	CompleteBooking(ctx context.Context, userID, bookingID string) (*domain.Booking, error)
	RecordAttendance(ctx context.Context, userID, bookingID string) (*domain.Booking, error)

	ExpireUnpaidBookings(ctx context.Context) (int, error)
	ExpireMentorDeadlines(ctx context.Context) (int, error)
	AutoCompleteBookings(ctx context.Context) (int, error)
}

type LedgerService interface {
	// Apply performs one idempotent balance mutation in its own transaction.
	// Replaying a mutation returns the entry recorded the first time.
	Apply(ctx context.Context, m domain.LedgerMutation) (*domain.LedgerEntry, error)
	// ApplyInTx performs the mutation inside a caller's transaction.
	ApplyInTx(ctx context.Context, repos *repository.Repositories, m domain.LedgerMutation) (*domain.LedgerEntry, error)
	TopUp(ctx context.Context, ownerID string, amountCents int64, idempotencyKey string) (*domain.LedgerEntry, error)
	Withdraw(ctx context.Context, ownerID string, amountCents int64, idempotencyKey string) (*domain.LedgerEntry, error)
	GetWallet(ctx context.Context, ownerID string) (*domain.Wallet, error)
	GetBalance(ctx context.Context, ownerID string) (int64, error)
	GetTransactions(ctx context.Context, ownerID string, page, pageSize int32) ([]domain.LedgerEntry, int32, error)
	GetLedgerSummary(ctx context.Context, ownerID string) (*domain.LedgerSummary, error)
	SetWalletLocked(ctx context.Context, ownerID string, locked bool) (*domain.Wallet, error)
}

type NoShowService interface {
	// Resolve settles one confirmed booking whose start has passed by more
	// than the grace period. It returns the booking unchanged when both
	// parties joined or it was already settled.
	Resolve(ctx context.Context, bookingID string) (*domain.Booking, error)
	ResolveDue(ctx context.Context) (int, error)
}

type PayoutService interface {
	CreatePayout(ctx context.Context, ownerID string, amountCents int64, idempotencyKey string) (*domain.PayoutRequest, error)
	GetPayout(ctx context.Context, userID, payoutID string) (*domain.PayoutRequest, error)
	ListPayouts(ctx context.Context, ownerID string) ([]domain.PayoutRequest, error)
	ApprovePayout(ctx context.Context, adminID, payoutID string) (*domain.PayoutRequest, error)
	HandleWebhook(ctx context.Context, event PayoutEvent) (*domain.PayoutRequest, error)
	RetryPayout(ctx context.Context, adminID, payoutID string) (*domain.PayoutRequest, error)
	RetryStuckPayouts(ctx context.Context) (int, error)
}

type NotificationService interface {
	GetNotifications(ctx context.Context, userID string, page, pageSize int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, userID, notificationID string) error
}

// PaymentEvent is a normalized payment-gateway callback.
type PaymentEvent struct {
	BookingID   string
	PaymentRef  string
	Succeeded   bool
	AmountCents int64
	Reason      string
}

// PayoutEvent is a normalized payout-provider callback.
type PayoutEvent struct {
	PayoutID    string
	ExternalRef string
	Outcome     domain.PayoutOutcome
	Reason      string
}

// PublishResult reports what a publish or edit materialized.
type PublishResult struct {
	Template  *domain.AvailabilityTemplate `json:"template"`
	Created   []domain.Occurrence          `json:"created"`
	Skipped   int                          `json:"skipped"`
	Conflicts []domain.Interval            `json:"conflicts,omitempty"`
}

// TemplateChanges replaces the editable fields of a template. Nil fields are
// left unchanged.
type TemplateChanges struct {
	StartTime           *time.Time
	EndTime             *time.Time
	Recurrence          *domain.RecurrenceRule
	ClearRecurrence     bool
	ExcludedDates       []time.Time
	BufferBeforeMinutes *int
	BufferAfterMinutes  *int
	Visibility          *domain.Visibility
	HorizonDays         *int
	PriceCents          *int64
}
