package repository

import (
	"context"
	"time"

	"mentorbook-backend/internal/domain"
)

// Lookups return a domain.ErrNotFound-kind error when the row is missing.
// Writes that hit a uniqueness constraint return a domain.ErrDuplicate-kind
// error, and serialization aborts surface as domain.ErrTransient.

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

type TemplateRepository interface {
	Create(ctx context.Context, t *domain.AvailabilityTemplate) error
	GetByID(ctx context.Context, id string) (*domain.AvailabilityTemplate, error)
	Update(ctx context.Context, t *domain.AvailabilityTemplate) error
	ListByOwner(ctx context.Context, ownerID string) ([]domain.AvailabilityTemplate, error)
	ListByStatus(ctx context.Context, status domain.TemplateStatus) ([]domain.AvailabilityTemplate, error)
}

type OccurrenceRepository interface {
	CreateBatch(ctx context.Context, occs []domain.Occurrence) error
	GetByID(ctx context.Context, id string) (*domain.Occurrence, error)
	// ListByOwner returns occurrences of every status overlapping [from, to).
	ListByOwner(ctx context.Context, ownerID string, from, to time.Time) ([]domain.Occurrence, error)
	// ListByTemplate returns occurrences starting at or after from.
	ListByTemplate(ctx context.Context, templateID string, from time.Time) ([]domain.Occurrence, error)
	// CompareAndSetStatus moves the occurrence from one status to another and
	// reports false when it was not in the expected status.
	CompareAndSetStatus(ctx context.Context, id string, from, to domain.OccurrenceStatus) (bool, error)
	// SetStatusByTemplate moves every occurrence of the template starting at
	// or after the given time from one status to another.
	SetStatusByTemplate(ctx context.Context, templateID string, after time.Time, from, to domain.OccurrenceStatus) (int64, error)
	// DeleteUnreferenced removes the given occurrences that no booking has
	// ever referenced and returns the ids it removed.
	DeleteUnreferenced(ctx context.Context, ids []string) ([]string, error)
}

type BookingRepository interface {
	Create(ctx context.Context, b *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	// GetForUpdate loads the booking and holds a row lock until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.Booking, error)
	GetByPaymentRef(ctx context.Context, paymentRef string) (*domain.Booking, error)
	Update(ctx context.Context, b *domain.Booking) error
	// GetActiveByOccurrence returns the non-terminal booking holding the
	// occurrence, if any.
	GetActiveByOccurrence(ctx context.Context, occurrenceID string) (*domain.Booking, error)
	ListByRequester(ctx context.Context, requesterID string, status domain.BookingStatus, page, pageSize int32) ([]domain.Booking, int32, error)
	ListByOwner(ctx context.Context, ownerID string, status domain.BookingStatus, page, pageSize int32) ([]domain.Booking, int32, error)
	ListExpiredPayments(ctx context.Context, now time.Time) ([]domain.Booking, error)
	ListExpiredResponses(ctx context.Context, now time.Time) ([]domain.Booking, error)
	// ListConfirmedStartedBefore returns confirmed bookings without a no-show
	// outcome whose start is at or before t.
	ListConfirmedStartedBefore(ctx context.Context, t time.Time) ([]domain.Booking, error)
	ListConfirmedEndedBefore(ctx context.Context, t time.Time) ([]domain.Booking, error)
}

type WalletRepository interface {
	GetByOwner(ctx context.Context, ownerID string) (*domain.Wallet, error)
	// GetForUpdate loads the wallet and holds a row lock until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, ownerID string) (*domain.Wallet, error)
	Create(ctx context.Context, w *domain.Wallet) error
	Update(ctx context.Context, w *domain.Wallet) error
}

type LedgerRepository interface {
	Append(ctx context.Context, e *domain.LedgerEntry) error
	GetByIdempotencyKey(ctx context.Context, ownerID string, source domain.EntrySource, key string) (*domain.LedgerEntry, error)
	ListByOwner(ctx context.Context, ownerID string, page, pageSize int32) ([]domain.LedgerEntry, int32, error)
	ListAllByOwner(ctx context.Context, ownerID string) ([]domain.LedgerEntry, error)
	GetSummary(ctx context.Context, ownerID string) (*domain.LedgerSummary, error)
}

type PayoutRepository interface {
	Create(ctx context.Context, p *domain.PayoutRequest) error
	GetByID(ctx context.Context, id string) (*domain.PayoutRequest, error)
	GetForUpdate(ctx context.Context, id string) (*domain.PayoutRequest, error)
	GetByIdempotencyKey(ctx context.Context, ownerID, key string) (*domain.PayoutRequest, error)
	Update(ctx context.Context, p *domain.PayoutRequest) error
	ListByOwner(ctx context.Context, ownerID string) ([]domain.PayoutRequest, error)
	ListProcessingBefore(ctx context.Context, t time.Time) ([]domain.PayoutRequest, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, note *domain.Notification) error
	List(ctx context.Context, userID string, limit, offset int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, id, userID string) error
}

// Repositories groups the stores bound to one connection or transaction.
type Repositories struct {
	Users         UserRepository
	Templates     TemplateRepository
	Occurrences   OccurrenceRepository
	Bookings      BookingRepository
	Wallets       WalletRepository
	Ledger        LedgerRepository
	Payouts       PayoutRepository
	Notifications NotificationRepository
}

// TxFunc runs inside a transaction with repositories bound to it.
type TxFunc func(ctx context.Context, repos *Repositories) error

// TxManager runs fn atomically. Transient aborts are retried with the same
// fn, so fn must not have side effects outside the repositories.
type TxManager interface {
	WithinTx(ctx context.Context, fn TxFunc) error
}
