package service

import (
	"context"
	"fmt"
	"time"

	"mentorbook-backend/internal/config"
	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/lock"
	"mentorbook-backend/internal/logger"
	"mentorbook-backend/internal/notify"
	"mentorbook-backend/internal/repository"
	"mentorbook-backend/internal/utils"
)

type noShowService struct {
	bookings *bookingService
	policy   config.BookingConfig
}

// NewNoShowService settles confirmed bookings where a party failed to join.
func NewNoShowService(
	tx repository.TxManager,
	repos *repository.Repositories,
	ledger LedgerService,
	notifier notify.Notifier,
	policy config.BookingConfig,
	clock Clock,
) NoShowService {
	core := NewBookingService(tx, repos, ledger, lock.Noop{}, notifier, policy, clock).(*bookingService)
	return &noShowService{bookings: core, policy: policy}
}

func noShowKey(bookingID string) string {
	return "noshow:" + bookingID
}

// outcomeOf classifies attendance. Both parties joining is NoShowNone.
func outcomeOf(b *domain.Booking) domain.NoShowOutcome {
	ownerIn := b.OwnerJoinedAt != nil
	requesterIn := b.RequesterJoinedAt != nil
	switch {
	case ownerIn && requesterIn:
		return domain.NoShowNone
	case requesterIn:
		return domain.NoShowOwnerAbsent
	case ownerIn:
		return domain.NoShowRequesterAbsent
	default:
		return domain.NoShowBothAbsent
	}
}

func (s *noShowService) Resolve(ctx context.Context, bookingID string) (*domain.Booking, error) {
	logger.EnterMethod("noShowService.Resolve", "bookingID", bookingID)
	b, _, err := s.bookings.mutate(ctx, "no_show", bookingID, s.settle)
	if err != nil {
		logger.ExitMethodWithError("noShowService.Resolve", err)
		return nil, err
	}
	logger.ExitMethod("noShowService.Resolve", "outcome", b.NoShowOutcome, "status", b.Status)
	return b, nil
}

func (s *noShowService) ResolveDue(ctx context.Context) (int, error) {
	due, err := s.bookings.repos.Bookings.ListConfirmedStartedBefore(ctx, s.bookings.now().Add(-s.policy.NoShowGrace()))
	if err != nil {
		return 0, err
	}
	return s.bookings.sweep(ctx, "no_show", due, s.settle)
}

func (s *noShowService) settle(ctx context.Context, repos *repository.Repositories, b *domain.Booking, now time.Time) ([]domain.Event, error) {
	if b.Status != domain.BookingStatusConfirmed || b.NoShowOutcome != domain.NoShowNone {
		return nil, errUnchanged
	}
	if now.Before(b.StartTime.Add(s.policy.NoShowGrace())) {
		return nil, errUnchanged
	}
	outcome := outcomeOf(b)
	if outcome == domain.NoShowNone {
		return nil, errUnchanged
	}

	key := noShowKey(b.ID)
	svc := s.bookings
	var events []domain.Event

	switch outcome {
	case domain.NoShowOwnerAbsent:
		if err := b.Transition(domain.BookingStatusCancelled, now); err != nil {
			return nil, err
		}
		if err := svc.refundRequester(ctx, repos, b, b.PriceCents, key, "Refund: mentor did not join"); err != nil {
			return nil, err
		}
		events = []domain.Event{
			bookingEvent(domain.EventBookingNoShow, b.RequesterID, b, "Session missed by mentor",
				fmt.Sprintf("Your mentor did not join. %s has been refunded.", utils.FormatCents(b.PriceCents, b.Currency))),
			bookingEvent(domain.EventBookingNoShow, b.OwnerID, b, "Missed session", "You did not join a confirmed session. The mentee was refunded."),
		}

	case domain.NoShowRequesterAbsent:
		if err := b.Transition(domain.BookingStatusCompleted, now); err != nil {
			return nil, err
		}
		if err := svc.creditOwner(ctx, repos, b, b.PriceCents, key, "Session earnings: mentee did not join"); err != nil {
			return nil, err
		}
		events = []domain.Event{
			bookingEvent(domain.EventBookingNoShow, b.OwnerID, b, "Mentee did not join",
				fmt.Sprintf("%s was added to your wallet.", utils.FormatCents(b.PriceCents, b.Currency))),
			bookingEvent(domain.EventBookingNoShow, b.RequesterID, b, "Missed session", "You did not join a confirmed session."),
		}

	case domain.NoShowBothAbsent:
		refund, fee, err := utils.SplitPercent(b.PriceCents, s.policy.NoShowRefund())
		if err != nil {
			return nil, err
		}
		if err := b.Transition(domain.BookingStatusCancelled, now); err != nil {
			return nil, err
		}
		if err := svc.refundRequester(ctx, repos, b, refund, key, "Partial refund: nobody joined"); err != nil {
			return nil, err
		}
		if fee > 0 {
			if _, err := svc.ledger.ApplyInTx(ctx, repos, domain.LedgerMutation{
				OwnerID:        domain.PlatformOwnerID,
				Direction:      domain.DirectionCredit,
				Source:         domain.SourcePlatformFee,
				AmountCents:    fee,
				IdempotencyKey: key,
				BookingID:      &b.ID,
				Description:    "No-show fee",
			}); err != nil {
				return nil, err
			}
		}
		b.PlatformFeeCents = fee
		events = []domain.Event{
			bookingEvent(domain.EventBookingNoShow, b.RequesterID, b, "Session missed",
				fmt.Sprintf("Nobody joined the session. %s has been refunded.", utils.FormatCents(refund, b.Currency))),
			bookingEvent(domain.EventBookingNoShow, b.OwnerID, b, "Session missed", "Nobody joined the session."),
		}
	}

	b.NoShowOutcome = outcome
	if b.Status == domain.BookingStatusCancelled {
		b.CancelledBy = SystemActor
		b.CancelReason = "no-show"
	}
	if err := releaseOccurrence(ctx, repos, b.OccurrenceID, now); err != nil {
		return nil, err
	}
	return events, nil
}
