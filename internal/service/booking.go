package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mentorbook-backend/internal/config"
	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/lock"
	"mentorbook-backend/internal/logger"
	"mentorbook-backend/internal/metrics"
	"mentorbook-backend/internal/notify"
	"mentorbook-backend/internal/repository"
	"mentorbook-backend/internal/utils"
)

// joinEarly is how long before the start participants may record attendance.
const joinEarly = 15 * time.Minute

// SystemActor is recorded as the canceller when a sweep cancels a booking.
const SystemActor = "system"

// errUnchanged tells mutate that the callback decided no write is needed.
var errUnchanged = errors.New("unchanged")

type bookingService struct {
	tx       repository.TxManager
	repos    *repository.Repositories
	ledger   LedgerService
	locks    lock.Service
	notifier notify.Notifier
	policy   config.BookingConfig
	now      Clock
}

func NewBookingService(
	tx repository.TxManager,
	repos *repository.Repositories,
	ledger LedgerService,
	locks lock.Service,
	notifier notify.Notifier,
	policy config.BookingConfig,
	clock Clock,
) BookingService {
	if clock == nil {
		clock = systemClock
	}
	if locks == nil {
		locks = lock.Noop{}
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &bookingService{
		tx:       tx,
		repos:    repos,
		ledger:   ledger,
		locks:    locks,
		notifier: notifier,
		policy:   policy,
		now:      clock,
	}
}

func occurrenceLockKey(occurrenceID string) string {
	return "booking:occurrence:" + occurrenceID
}

func (s *bookingService) CreateBooking(ctx context.Context, requesterID, occurrenceID string) (*domain.Booking, error) {
	logger.EnterMethod("bookingService.CreateBooking", "requesterID", requesterID, "occurrenceID", occurrenceID)
	if requesterID == "" || occurrenceID == "" {
		return nil, domain.NewValidationError("requester and occurrence are required")
	}

	key := occurrenceLockKey(occurrenceID)
	token, err := s.locks.Acquire(ctx, key, s.policy.LockTTL())
	switch {
	case err == nil:
		defer s.releaseLock(ctx, key, token)
	case errors.Is(err, lock.ErrHeld):
		metrics.BookingOperations.WithLabelValues("create", "lock_held").Inc()
		err = domain.NewConflictError("occurrence is being booked by another request", nil)
		logger.ExitMethodWithError("bookingService.CreateBooking", err)
		return nil, err
	default:
		// Fail open: the conditional update and the unique index still
		// guarantee a single active booking.
		logger.WarnContext(ctx, "Lock service unreachable, booking without lock", "key", key, "error", err)
		metrics.LockFailOpen.Inc()
	}

	var booking *domain.Booking
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		var err error
		booking, err = s.reserve(ctx, repos, requesterID, occurrenceID)
		return err
	})
	if errors.Is(err, domain.ErrDuplicate) {
		err = domain.NewConflictError("occurrence already has an active booking", nil)
	}
	metrics.BookingOperations.WithLabelValues("create", metrics.Outcome(err)).Inc()
	if err != nil {
		logger.ExitMethodWithError("bookingService.CreateBooking", err)
		return nil, err
	}

	s.notifier.Notify(ctx,
		bookingEvent(domain.EventBookingCreated, booking.RequesterID, booking, "Booking created",
			fmt.Sprintf("Complete payment of %s before %s to secure your session.", utils.FormatCents(booking.PriceCents, booking.Currency), booking.ExpiresAt.Format(time.RFC3339))),
	)
	logger.ExitMethod("bookingService.CreateBooking", "bookingID", booking.ID, "price", booking.PriceCents)
	return booking, nil
}

func (s *bookingService) releaseLock(ctx context.Context, key, token string) {
	err := s.locks.Release(context.WithoutCancel(ctx), key, token)
	if errors.Is(err, lock.ErrNotOwner) {
		logger.Warn("Lock expired before release", "key", key)
	} else if err != nil {
		logger.Warn("Failed to release lock", "key", key, "error", err)
	}
}

// reserve flips the occurrence to booked and records a payment-pending
// booking. It must run inside a transaction.
func (s *bookingService) reserve(ctx context.Context, repos *repository.Repositories, requesterID, occurrenceID string) (*domain.Booking, error) {
	now := s.now()
	occ, err := repos.Occurrences.GetByID(ctx, occurrenceID)
	if err != nil {
		return nil, err
	}
	if occ.OwnerID == requesterID {
		return nil, domain.NewValidationError("cannot book your own availability")
	}
	if !occ.StartTime.After(now) {
		return nil, domain.NewValidationError("occurrence has already started")
	}

	ok, err := repos.Occurrences.CompareAndSetStatus(ctx, occ.ID, domain.OccurrenceStatusOpen, domain.OccurrenceStatusBooked)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.NewConflictError("occurrence is not available", []domain.Interval{occ.Interval()})
	}
	if _, err := repos.Bookings.GetActiveByOccurrence(ctx, occ.ID); err == nil {
		return nil, domain.NewConflictError("occurrence already has an active booking", []domain.Interval{occ.Interval()})
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	price, err := s.price(ctx, repos, occ)
	if err != nil {
		return nil, err
	}

	b := &domain.Booking{
		ID:           utils.NewID(),
		RequesterID:  requesterID,
		OwnerID:      occ.OwnerID,
		OccurrenceID: occ.ID,
		Status:       domain.BookingStatusPaymentPending,
		PriceCents:   price,
		Currency:     s.policy.Currency,
		StartTime:    occ.StartTime,
		EndTime:      occ.EndTime,
		ExpiresAt:    now.Add(s.policy.PaymentExpiry()),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repos.Bookings.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// price is the template's listed price, or the owner's hourly rate applied
// to the occurrence length.
func (s *bookingService) price(ctx context.Context, repos *repository.Repositories, occ *domain.Occurrence) (int64, error) {
	tmpl, err := repos.Templates.GetByID(ctx, occ.TemplateID)
	if err != nil {
		return 0, err
	}
	if tmpl.PriceCents != nil {
		return *tmpl.PriceCents, nil
	}
	owner, err := repos.Users.GetByID(ctx, occ.OwnerID)
	if err != nil {
		return 0, err
	}
	return utils.SessionPrice(owner.HourlyRateCents, occ.Interval().Duration())
}

func (s *bookingService) GetBooking(ctx context.Context, userID, bookingID string) (*domain.Booking, error) {
	b, err := s.repos.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.IsParticipant(userID) {
		return nil, domain.ErrForbidden
	}
	return b, nil
}

func (s *bookingService) ListBookings(ctx context.Context, userID string, asOwner bool, status domain.BookingStatus, page, pageSize int32) ([]domain.Booking, int32, error) {
	if status != "" && !status.Valid() {
		return nil, 0, domain.NewValidationError("unknown booking status %q", status)
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	if asOwner {
		return s.repos.Bookings.ListByOwner(ctx, userID, status, page, pageSize)
	}
	return s.repos.Bookings.ListByRequester(ctx, userID, status, page, pageSize)
}

type mutation func(ctx context.Context, repos *repository.Repositories, b *domain.Booking, now time.Time) ([]domain.Event, error)

// mutate loads the booking under a row lock, applies fn and persists the
// result in one transaction. Events are dispatched only after commit.
func (s *bookingService) mutate(ctx context.Context, op, bookingID string, fn mutation) (*domain.Booking, bool, error) {
	var (
		booking *domain.Booking
		events  []domain.Event
		changed bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		events, changed = nil, false
		b, err := repos.Bookings.GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		booking = b
		evs, err := fn(ctx, repos, b, s.now())
		if errors.Is(err, errUnchanged) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := repos.Bookings.Update(ctx, b); err != nil {
			return err
		}
		events, changed = evs, true
		return nil
	})
	metrics.BookingOperations.WithLabelValues(op, metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, false, err
	}
	if len(events) > 0 {
		s.notifier.Notify(ctx, events...)
	}
	return booking, changed, nil
}

// HandlePayment applies a payment-gateway callback. Callbacks for bookings
// that already left PaymentPending are acknowledged without changes, except
// that a successful charge not matching the captured one is credited to the
// requester's wallet. A callback landing after ExpiresAt fails the booking
// even if the expiry sweep has not run yet.
func (s *bookingService) HandlePayment(ctx context.Context, ev PaymentEvent) (*domain.Booking, error) {
	logger.EnterMethod("bookingService.HandlePayment", "bookingID", ev.BookingID, "paymentRef", ev.PaymentRef, "succeeded", ev.Succeeded)
	if ev.PaymentRef == "" {
		return nil, domain.NewValidationError("payment reference is required")
	}
	if ev.AmountCents < 0 {
		return nil, domain.NewValidationError("amount must not be negative")
	}
	bookingID := ev.BookingID
	if bookingID == "" {
		b, err := s.repos.Bookings.GetByPaymentRef(ctx, ev.PaymentRef)
		if err != nil {
			return nil, err
		}
		bookingID = b.ID
	}

	b, _, err := s.mutate(ctx, "payment", bookingID, func(ctx context.Context, repos *repository.Repositories, b *domain.Booking, now time.Time) ([]domain.Event, error) {
		if b.Status != domain.BookingStatusPaymentPending {
			if ev.Succeeded && ev.PaymentRef != b.PaymentRef && ev.AmountCents > 0 {
				logger.Warn("Unmatched payment, crediting wallet", "bookingID", b.ID, "status", b.Status)
				if err := s.creditUnmatched(ctx, repos, b, ev.PaymentRef, ev.AmountCents); err != nil {
					return nil, err
				}
			}
			return nil, errUnchanged
		}

		if now.After(b.ExpiresAt) {
			return s.expireLatePayment(ctx, repos, b, ev, now)
		}

		if !ev.Succeeded {
			if err := b.Transition(domain.BookingStatusFailed, now); err != nil {
				return nil, err
			}
			b.CancelReason = ev.Reason
			if b.CancelReason == "" {
				b.CancelReason = "payment failed"
			}
			if err := releaseOccurrence(ctx, repos, b.OccurrenceID, now); err != nil {
				return nil, err
			}
			return []domain.Event{
				bookingEvent(domain.EventBookingFailed, b.RequesterID, b, "Payment failed", "Your payment did not go through and the slot was released."),
			}, nil
		}

		return s.capture(ctx, repos, b, ev, now)
	})
	if err != nil {
		logger.ExitMethodWithError("bookingService.HandlePayment", err)
		return nil, err
	}
	logger.ExitMethod("bookingService.HandlePayment", "status", b.Status)
	return b, nil
}

// expireLatePayment fails a booking whose payment window closed before the
// callback arrived. A successful charge is kept as wallet credit.
func (s *bookingService) expireLatePayment(ctx context.Context, repos *repository.Repositories, b *domain.Booking, ev PaymentEvent, now time.Time) ([]domain.Event, error) {
	if err := b.Transition(domain.BookingStatusFailed, now); err != nil {
		return nil, err
	}
	b.CancelReason = "payment window expired"
	if err := releaseOccurrence(ctx, repos, b.OccurrenceID, now); err != nil {
		return nil, err
	}
	message := "Payment was not received in time and the slot was released."
	if ev.Succeeded {
		amount := ev.AmountCents
		if amount == 0 {
			amount = b.PriceCents
		}
		if amount > 0 {
			logger.Warn("Payment arrived after expiry, crediting wallet", "bookingID", b.ID, "expiresAt", b.ExpiresAt)
			if err := s.creditUnmatched(ctx, repos, b, ev.PaymentRef, amount); err != nil {
				return nil, err
			}
			message = fmt.Sprintf("Payment arrived after the slot was released. %s was added to your wallet.", utils.FormatCents(amount, b.Currency))
		}
	}
	return []domain.Event{
		bookingEvent(domain.EventBookingFailed, b.RequesterID, b, "Booking expired", message),
	}, nil
}

func (s *bookingService) creditUnmatched(ctx context.Context, repos *repository.Repositories, b *domain.Booking, paymentRef string, amount int64) error {
	_, err := s.ledger.ApplyInTx(ctx, repos, domain.LedgerMutation{
		OwnerID:        b.RequesterID,
		Direction:      domain.DirectionCredit,
		Source:         domain.SourceTopUp,
		AmountCents:    amount,
		IdempotencyKey: paymentRef,
		BookingID:      &b.ID,
		Description:    "Unmatched payment credited to wallet",
	})
	return err
}

// capture records the charge on the requester's wallet, takes the booking
// price from it and advances the booking.
func (s *bookingService) capture(ctx context.Context, repos *repository.Repositories, b *domain.Booking, ev PaymentEvent, now time.Time) ([]domain.Event, error) {
	amount := ev.AmountCents
	if amount == 0 {
		amount = b.PriceCents
	}
	if amount < b.PriceCents {
		return nil, domain.NewValidationError("payment amount %d is less than the price %d", amount, b.PriceCents)
	}
	if amount > 0 {
		if _, err := s.ledger.ApplyInTx(ctx, repos, domain.LedgerMutation{
			OwnerID:        b.RequesterID,
			Direction:      domain.DirectionCredit,
			Source:         domain.SourceTopUp,
			AmountCents:    amount,
			IdempotencyKey: ev.PaymentRef,
			BookingID:      &b.ID,
			Description:    "Payment received",
		}); err != nil {
			return nil, err
		}
	}
	if b.PriceCents > 0 {
		if _, err := s.ledger.ApplyInTx(ctx, repos, domain.LedgerMutation{
			OwnerID:        b.RequesterID,
			Direction:      domain.DirectionDebit,
			Source:         domain.SourceBookingPayment,
			AmountCents:    b.PriceCents,
			IdempotencyKey: b.ID,
			BookingID:      &b.ID,
			Description:    "Session payment",
		}); err != nil {
			return nil, err
		}
	}

	owner, err := repos.Users.GetByID(ctx, b.OwnerID)
	if err != nil {
		return nil, err
	}
	b.PaymentRef = ev.PaymentRef

	if owner.RequiresConfirmation {
		if err := b.Transition(domain.BookingStatusPendingMentor, now); err != nil {
			return nil, err
		}
		deadline := now.Add(s.policy.MentorResponseWindow())
		if deadline.After(b.StartTime) {
			deadline = b.StartTime
		}
		b.ResponseDeadline = &deadline
		return []domain.Event{
			bookingEvent(domain.EventBookingPending, b.OwnerID, b, "New booking request",
				fmt.Sprintf("Please accept or decline before %s.", deadline.Format(time.RFC3339))),
			bookingEvent(domain.EventBookingPending, b.RequesterID, b, "Payment received", "Waiting for your mentor to confirm the session."),
		}, nil
	}

	if err := b.Transition(domain.BookingStatusConfirmed, now); err != nil {
		return nil, err
	}
	return confirmedEvents(b), nil
}

func (s *bookingService) AcceptBooking(ctx context.Context, ownerID, bookingID string) (*domain.Booking, error) {
	logger.EnterMethod("bookingService.AcceptBooking", "ownerID", ownerID, "bookingID", bookingID)
	b, _, err := s.mutate(ctx, "accept", bookingID, func(ctx context.Context, repos *repository.Repositories, b *domain.Booking, now time.Time) ([]domain.Event, error) {
		if b.OwnerID != ownerID {
			return nil, domain.ErrForbidden
		}
		if b.Status != domain.BookingStatusPendingMentor {
			return nil, domain.NewIllegalTransitionError(b.Status, domain.BookingStatusConfirmed)
		}
		if b.ResponseDeadline != nil && now.After(*b.ResponseDeadline) {
			return nil, domain.NewValidationError("response deadline has passed")
		}
		if err := b.Transition(domain.BookingStatusConfirmed, now); err != nil {
			return nil, err
		}
		return confirmedEvents(b), nil
	})
	if err != nil {
		logger.ExitMethodWithError("bookingService.AcceptBooking", err)
		return nil, err
	}
	logger.ExitMethod("bookingService.AcceptBooking")
	return b, nil
}

func (s *bookingService) DeclineBooking(ctx context.Context, ownerID, bookingID, reason string) (*domain.Booking, error) {
	logger.EnterMethod("bookingService.DeclineBooking", "ownerID", ownerID, "bookingID", bookingID)
	b, _, err := s.mutate(ctx, "decline", bookingID, func(ctx context.Context, repos *repository.Repositories, b *domain.Booking, now time.Time) ([]domain.Event, error) {
		if b.OwnerID != ownerID {
			return nil, domain.ErrForbidden
		}
		wasPaid := b.Status.IsPaid()
		if err := b.Transition(domain.BookingStatusDeclined, now); err != nil {
			return nil, err
		}
		b.CancelReason = reason
		b.CancelledBy = ownerID
		if wasPaid {
			if err := s.refundRequester(ctx, repos, b, b.PriceCents, b.ID, "Refund for declined session"); err != nil {
				return nil, err
			}
		}
		if err := releaseOccurrence(ctx, repos, b.OccurrenceID, now); err != nil {
			return nil, err
		}
		return []domain.Event{
			bookingEvent(domain.EventBookingDeclined, b.RequesterID, b, "Booking declined",
				fmt.Sprintf("Your mentor declined the session. %s has been refunded to your wallet.", utils.FormatCents(b.PriceCents, b.Currency))),
		}, nil
	})
	if err != nil {
		logger.ExitMethodWithError("bookingService.DeclineBooking", err)
		return nil, err
	}
	logger.ExitMethod("bookingService.DeclineBooking")
	return b, nil
}

func (s *bookingService) CancelBooking(ctx context.Context, userID, bookingID, reason string) (*domain.Booking, error) {
	logger.EnterMethod("bookingService.CancelBooking", "userID", userID, "bookingID", bookingID)
	b, _, err := s.mutate(ctx, "cancel", bookingID, func(ctx context.Context, repos *repository.Repositories, b *domain.Booking, now time.Time) ([]domain.Event, error) {
		if !b.Status.CanTransitionTo(domain.BookingStatusCancelled) {
			return nil, domain.NewIllegalTransitionError(b.Status, domain.BookingStatusCancelled)
		}
		if !b.IsParticipant(userID) {
			return nil, domain.ErrForbidden
		}
		if !now.Before(b.StartTime) {
			return nil, domain.NewValidationError("booking can no longer be cancelled after it has started")
		}
		late := b.StartTime.Sub(now) < s.policy.LateCancelWindow()
		if late && s.policy.BlockLateCancel {
			return nil, domain.NewValidationError("cancellation window has closed")
		}

		wasPaid := b.Status.IsPaid()
		if err := b.Transition(domain.BookingStatusCancelled, now); err != nil {
			return nil, err
		}
		b.CancelReason = reason
		b.CancelledBy = userID
		b.LateCancel = late

		if wasPaid && b.PriceCents > 0 {
			if userID == b.RequesterID && late && !s.policy.RefundLateCancel {
				if err := s.creditOwner(ctx, repos, b, b.PriceCents, b.ID, "Late cancellation fee"); err != nil {
					return nil, err
				}
			} else if err := s.refundRequester(ctx, repos, b, b.PriceCents, b.ID, "Refund for cancelled session"); err != nil {
				return nil, err
			}
		}
		if err := releaseOccurrence(ctx, repos, b.OccurrenceID, now); err != nil {
			return nil, err
		}

		other := b.OwnerID
		if userID == b.OwnerID {
			other = b.RequesterID
		}
		return []domain.Event{
			bookingEvent(domain.EventBookingCancelled, other, b, "Booking cancelled", "A session you were part of has been cancelled."),
		}, nil
	})
	if err != nil {
		logger.ExitMethodWithError("bookingService.CancelBooking", err)
		return nil, err
	}
	logger.ExitMethod("bookingService.CancelBooking", "late", b.LateCancel)
	return b, nil
}

func (s *bookingService) CompleteBooking(ctx context.Context, userID, bookingID string) (*domain.Booking, error) {
	logger.EnterMethod("bookingService.CompleteBooking", "userID", userID, "bookingID", bookingID)
	b, _, err := s.mutate(ctx, "complete", bookingID, func(ctx context.Context, repos *repository.Repositories, b *domain.Booking, now time.Time) ([]domain.Event, error) {
		if !b.IsParticipant(userID) {
			return nil, domain.ErrForbidden
		}
		if !b.Status.CanTransitionTo(domain.BookingStatusCompleted) {
			return nil, domain.NewIllegalTransitionError(b.Status, domain.BookingStatusCompleted)
		}
		if !s.policy.AllowEarlyComplete && now.Before(b.EndTime) {
			return nil, domain.NewValidationError("session has not ended yet")
		}
		return s.complete(ctx, repos, b, now)
	})
	if err != nil {
		logger.ExitMethodWithError("bookingService.CompleteBooking", err)
		return nil, err
	}
	logger.ExitMethod("bookingService.CompleteBooking")
	return b, nil
}

// complete pays the owner and closes the slot.
func (s *bookingService) complete(ctx context.Context, repos *repository.Repositories, b *domain.Booking, now time.Time) ([]domain.Event, error) {
	if err := b.Transition(domain.BookingStatusCompleted, now); err != nil {
		return nil, err
	}
	if b.PriceCents > 0 {
		if err := s.creditOwner(ctx, repos, b, b.PriceCents, b.ID, "Session earnings"); err != nil {
			return nil, err
		}
	}
	if err := releaseOccurrence(ctx, repos, b.OccurrenceID, now); err != nil {
		return nil, err
	}
	return []domain.Event{
		bookingEvent(domain.EventBookingCompleted, b.OwnerID, b, "Session completed",
			fmt.Sprintf("%s was added to your wallet.", utils.FormatCents(b.PriceCents, b.Currency))),
		bookingEvent(domain.EventBookingCompleted, b.RequesterID, b, "Session completed", "Thanks for attending your session."),
	}, nil
}

func (s *bookingService) RecordAttendance(ctx context.Context, userID, bookingID string) (*domain.Booking, error) {
	logger.EnterMethod("bookingService.RecordAttendance", "userID", userID, "bookingID", bookingID)
	b, _, err := s.mutate(ctx, "join", bookingID, func(ctx context.Context, repos *repository.Repositories, b *domain.Booking, now time.Time) ([]domain.Event, error) {
		if !b.IsParticipant(userID) {
			return nil, domain.ErrForbidden
		}
		if b.Status != domain.BookingStatusConfirmed {
			return nil, domain.NewValidationError("attendance can only be recorded for confirmed bookings")
		}
		if now.Before(b.StartTime.Add(-joinEarly)) || !now.Before(b.EndTime) {
			return nil, domain.NewValidationError("session is not in progress")
		}
		joined := now
		switch {
		case userID == b.OwnerID && b.OwnerJoinedAt == nil:
			b.OwnerJoinedAt = &joined
		case userID == b.RequesterID && b.RequesterJoinedAt == nil:
			b.RequesterJoinedAt = &joined
		default:
			return nil, errUnchanged
		}
		b.UpdatedAt = now
		return nil, nil
	})
	if err != nil {
		logger.ExitMethodWithError("bookingService.RecordAttendance", err)
		return nil, err
	}
	logger.ExitMethod("bookingService.RecordAttendance")
	return b, nil
}

func (s *bookingService) ExpireUnpaidBookings(ctx context.Context) (int, error) {
	due, err := s.repos.Bookings.ListExpiredPayments(ctx, s.now())
	if err != nil {
		return 0, err
	}
	return s.sweep(ctx, "expire_payment", due, func(ctx context.Context, repos *repository.Repositories, b *domain.Booking, now time.Time) ([]domain.Event, error) {
		if b.Status != domain.BookingStatusPaymentPending || b.ExpiresAt.After(now) {
			return nil, errUnchanged
		}
		if err := b.Transition(domain.BookingStatusFailed, now); err != nil {
			return nil, err
		}
		b.CancelReason = "payment window expired"
		if err := releaseOccurrence(ctx, repos, b.OccurrenceID, now); err != nil {
			return nil, err
		}
		return []domain.Event{
			bookingEvent(domain.EventBookingFailed, b.RequesterID, b, "Booking expired", "Payment was not received in time and the slot was released."),
		}, nil
	})
}

func (s *bookingService) ExpireMentorDeadlines(ctx context.Context) (int, error) {
	due, err := s.repos.Bookings.ListExpiredResponses(ctx, s.now())
	if err != nil {
		return 0, err
	}
	return s.sweep(ctx, "expire_response", due, func(ctx context.Context, repos *repository.Repositories, b *domain.Booking, now time.Time) ([]domain.Event, error) {
		if b.Status != domain.BookingStatusPendingMentor || b.ResponseDeadline == nil || b.ResponseDeadline.After(now) {
			return nil, errUnchanged
		}
		if err := b.Transition(domain.BookingStatusCancelled, now); err != nil {
			return nil, err
		}
		b.CancelReason = "mentor did not respond in time"
		b.CancelledBy = SystemActor
		if err := s.refundRequester(ctx, repos, b, b.PriceCents, b.ID, "Refund for unanswered request"); err != nil {
			return nil, err
		}
		if err := releaseOccurrence(ctx, repos, b.OccurrenceID, now); err != nil {
			return nil, err
		}
		return []domain.Event{
			bookingEvent(domain.EventBookingCancelled, b.RequesterID, b, "Booking cancelled", "Your mentor did not respond in time. You have been refunded."),
			bookingEvent(domain.EventBookingCancelled, b.OwnerID, b, "Request expired", "A booking request expired without a response."),
		}, nil
	})
}

// AutoCompleteBookings completes ended sessions both parties joined. Anything
// else is left Confirmed for the no-show resolver.
func (s *bookingService) AutoCompleteBookings(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.policy.AutoCompleteAfter())
	due, err := s.repos.Bookings.ListConfirmedEndedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	return s.sweep(ctx, "auto_complete", due, func(ctx context.Context, repos *repository.Repositories, b *domain.Booking, now time.Time) ([]domain.Event, error) {
		if b.Status != domain.BookingStatusConfirmed || b.EndTime.After(now.Add(-s.policy.AutoCompleteAfter())) {
			return nil, errUnchanged
		}
		if outcomeOf(b) != domain.NoShowNone {
			return nil, errUnchanged
		}
		return s.complete(ctx, repos, b, now)
	})
}

// sweep applies fn to each booking in its own transaction. A failure on one
// booking does not stop the others.
func (s *bookingService) sweep(ctx context.Context, job string, due []domain.Booking, fn mutation) (int, error) {
	count := 0
	var errs []error
	for _, b := range due {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		_, changed, err := s.mutate(ctx, job, b.ID, fn)
		if err != nil {
			logger.Error("Sweep failed for booking", "job", job, "bookingID", b.ID, "error", err)
			errs = append(errs, fmt.Errorf("booking %s: %w", b.ID, err))
			continue
		}
		if changed {
			count++
		}
	}
	metrics.SweepProcessed.WithLabelValues(job).Add(float64(count))
	return count, errors.Join(errs...)
}

func (s *bookingService) refundRequester(ctx context.Context, repos *repository.Repositories, b *domain.Booking, amount int64, key, description string) error {
	if amount <= 0 {
		return nil
	}
	_, err := s.ledger.ApplyInTx(ctx, repos, domain.LedgerMutation{
		OwnerID:        b.RequesterID,
		Direction:      domain.DirectionRefund,
		Source:         domain.SourceBookingRefund,
		AmountCents:    amount,
		IdempotencyKey: key,
		BookingID:      &b.ID,
		Description:    description,
	})
	return err
}

func (s *bookingService) creditOwner(ctx context.Context, repos *repository.Repositories, b *domain.Booking, amount int64, key, description string) error {
	if amount <= 0 {
		return nil
	}
	_, err := s.ledger.ApplyInTx(ctx, repos, domain.LedgerMutation{
		OwnerID:        b.OwnerID,
		Direction:      domain.DirectionCredit,
		Source:         domain.SourceBookingPayment,
		AmountCents:    amount,
		IdempotencyKey: key,
		BookingID:      &b.ID,
		Description:    description,
	})
	return err
}

// releaseOccurrence frees the slot held by a booking that just reached a
// terminal status. Future slots of a published template reopen; all others
// close.
func releaseOccurrence(ctx context.Context, repos *repository.Repositories, occurrenceID string, now time.Time) error {
	occ, err := repos.Occurrences.GetByID(ctx, occurrenceID)
	if err != nil {
		return err
	}
	if occ.Status != domain.OccurrenceStatusBooked {
		return nil
	}
	to := domain.OccurrenceStatusClosed
	if occ.StartTime.After(now) {
		tmpl, err := repos.Templates.GetByID(ctx, occ.TemplateID)
		if err != nil {
			return err
		}
		if tmpl.Status == domain.TemplateStatusPublished {
			to = domain.OccurrenceStatusOpen
		}
	}
	_, err = repos.Occurrences.CompareAndSetStatus(ctx, occ.ID, domain.OccurrenceStatusBooked, to)
	return err
}

func confirmedEvents(b *domain.Booking) []domain.Event {
	when := b.StartTime.Format(time.RFC3339)
	return []domain.Event{
		bookingEvent(domain.EventBookingConfirmed, b.RequesterID, b, "Booking confirmed", "Your session on "+when+" is confirmed."),
		bookingEvent(domain.EventBookingConfirmed, b.OwnerID, b, "New session", "A session on "+when+" has been booked."),
	}
}

func bookingEvent(t domain.EventType, userID string, b *domain.Booking, title, message string) domain.Event {
	return domain.Event{
		Type:    t,
		UserID:  userID,
		Title:   title,
		Message: message,
		Attributes: map[string]string{
			"booking_id": b.ID,
			"status":     string(b.Status),
		},
	}
}
