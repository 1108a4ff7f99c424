package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mentorbook-backend/internal/config"
	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/logger"
	"mentorbook-backend/internal/metrics"
	"mentorbook-backend/internal/notify"
	"mentorbook-backend/internal/repository"
	"mentorbook-backend/internal/utils"
)

type payoutService struct {
	tx       repository.TxManager
	repos    *repository.Repositories
	ledger   LedgerService
	provider PayoutProvider
	notifier notify.Notifier
	cfg      config.PayoutConfig
	currency string
	now      Clock
}

func NewPayoutService(
	tx repository.TxManager,
	repos *repository.Repositories,
	ledger LedgerService,
	provider PayoutProvider,
	notifier notify.Notifier,
	cfg config.PayoutConfig,
	currency string,
	clock Clock,
) PayoutService {
	if clock == nil {
		clock = systemClock
	}
	if provider == nil {
		provider = LoggingPayoutProvider{}
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &payoutService{
		tx:       tx,
		repos:    repos,
		ledger:   ledger,
		provider: provider,
		notifier: notifier,
		cfg:      cfg,
		currency: currency,
		now:      clock,
	}
}

func payoutStateError(p *domain.PayoutRequest, action string) error {
	return &domain.Error{
		Kind:    domain.KindIllegalTransition,
		Message: fmt.Sprintf("cannot %s payout in status %s", action, p.Status),
	}
}

func (s *payoutService) CreatePayout(ctx context.Context, ownerID string, amountCents int64, idempotencyKey string) (*domain.PayoutRequest, error) {
	logger.EnterMethod("payoutService.CreatePayout", "ownerID", ownerID, "amount", amountCents, "key", idempotencyKey)
	if ownerID == "" {
		return nil, domain.NewValidationError("owner id is required")
	}
	if idempotencyKey == "" {
		return nil, domain.NewValidationError("idempotency key is required")
	}
	if amountCents <= 0 {
		return nil, domain.NewValidationError("amount must be positive")
	}
	if amountCents < s.cfg.MinimumAmountCents {
		return nil, domain.NewValidationError("amount is below the minimum payout of %d", s.cfg.MinimumAmountCents)
	}

	if existing, err := s.existing(ctx, ownerID, idempotencyKey, amountCents); err != nil || existing != nil {
		return existing, err
	}

	balance, err := s.ledger.GetBalance(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if amountCents > balance {
		return nil, &domain.Error{
			Kind:    domain.KindInsufficientBalance,
			Message: fmt.Sprintf("insufficient balance: have %d, requested %d", balance, amountCents),
		}
	}

	now := s.now()
	p := &domain.PayoutRequest{
		ID:             utils.NewID(),
		OwnerID:        ownerID,
		AmountCents:    amountCents,
		Status:         domain.PayoutStatusPending,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repos.Payouts.Create(ctx, p); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return s.existing(ctx, ownerID, idempotencyKey, amountCents)
		}
		logger.ExitMethodWithError("payoutService.CreatePayout", err)
		return nil, err
	}
	metrics.PayoutTransitions.WithLabelValues(string(p.Status)).Inc()
	logger.ExitMethod("payoutService.CreatePayout", "payoutID", p.ID)
	return p, nil
}

// existing returns the payout already recorded under the key, or nil.
func (s *payoutService) existing(ctx context.Context, ownerID, key string, amountCents int64) (*domain.PayoutRequest, error) {
	p, err := s.repos.Payouts.GetByIdempotencyKey(ctx, ownerID, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.AmountCents != amountCents {
		return nil, domain.NewValidationError("idempotency key %q was already used for a different amount", key)
	}
	return p, nil
}

func (s *payoutService) GetPayout(ctx context.Context, userID, payoutID string) (*domain.PayoutRequest, error) {
	p, err := s.repos.Payouts.GetByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != userID {
		return nil, domain.ErrForbidden
	}
	return p, nil
}

func (s *payoutService) ListPayouts(ctx context.Context, ownerID string) ([]domain.PayoutRequest, error) {
	return s.repos.Payouts.ListByOwner(ctx, ownerID)
}

func (s *payoutService) ApprovePayout(ctx context.Context, adminID, payoutID string) (*domain.PayoutRequest, error) {
	logger.EnterMethod("payoutService.ApprovePayout", "adminID", adminID, "payoutID", payoutID)
	var submit bool
	p, err := s.update(ctx, payoutID, func(ctx context.Context, repos *repository.Repositories, p *domain.PayoutRequest, now time.Time) error {
		submit = false
		if p.Status == domain.PayoutStatusProcessing && p.Attempts == 1 {
			return errUnchanged
		}
		if p.Status != domain.PayoutStatusPending {
			return payoutStateError(p, "approve")
		}
		p.ApprovedBy = adminID
		if err := s.startAttempt(ctx, repos, p, now); err != nil {
			return err
		}
		submit = true
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("payoutService.ApprovePayout", err)
		return nil, err
	}
	if submit {
		s.submit(ctx, p)
		s.notifier.Notify(ctx, payoutEvent(domain.EventPayoutApproved, p, "Payout approved",
			fmt.Sprintf("Your payout of %s is on its way.", utils.FormatCents(p.AmountCents, s.currency))))
	}
	logger.ExitMethod("payoutService.ApprovePayout", "status", p.Status)
	return p, nil
}

// startAttempt debits the wallet for a new attempt and moves the payout to
// processing under a fresh external reference.
func (s *payoutService) startAttempt(ctx context.Context, repos *repository.Repositories, p *domain.PayoutRequest, now time.Time) error {
	p.Attempts++
	if _, err := s.ledger.ApplyInTx(ctx, repos, domain.LedgerMutation{
		OwnerID:        p.OwnerID,
		Direction:      domain.DirectionDebit,
		Source:         domain.SourcePayout,
		AmountCents:    p.AmountCents,
		IdempotencyKey: p.AttemptKey(),
		PayoutID:       &p.ID,
		Description:    fmt.Sprintf("Payout attempt %d", p.Attempts),
	}); err != nil {
		return err
	}
	p.Status = domain.PayoutStatusProcessing
	p.ExternalRef = utils.NewID()
	p.Refunded = false
	p.FailureReason = ""
	p.FailedAt = nil
	p.ProcessingAt = &now
	p.UpdatedAt = now
	return nil
}

// HandleWebhook applies a provider outcome. Callbacks for payouts that are
// no longer processing, or that name an earlier attempt, return the current
// state unchanged.
func (s *payoutService) HandleWebhook(ctx context.Context, ev PayoutEvent) (*domain.PayoutRequest, error) {
	logger.EnterMethod("payoutService.HandleWebhook", "payoutID", ev.PayoutID, "outcome", ev.Outcome)
	if ev.PayoutID == "" {
		return nil, domain.NewValidationError("payout id is required")
	}
	if ev.Outcome != domain.PayoutOutcomePaid && ev.Outcome != domain.PayoutOutcomeFailed {
		return nil, domain.NewValidationError("unknown payout outcome %q", ev.Outcome)
	}

	var changed bool
	p, err := s.update(ctx, ev.PayoutID, func(ctx context.Context, repos *repository.Repositories, p *domain.PayoutRequest, now time.Time) error {
		changed = false
		switch p.Status {
		case domain.PayoutStatusPaid, domain.PayoutStatusFailed:
			return errUnchanged
		case domain.PayoutStatusPending:
			return payoutStateError(p, "settle")
		}
		if ev.ExternalRef != "" && ev.ExternalRef != p.ExternalRef {
			logger.Warn("Ignoring webhook for a superseded payout attempt", "payoutID", p.ID, "externalRef", ev.ExternalRef)
			return errUnchanged
		}

		if ev.Outcome == domain.PayoutOutcomePaid {
			p.Status = domain.PayoutStatusPaid
			p.PaidAt = &now
			p.UpdatedAt = now
			changed = true
			return nil
		}

		if _, err := s.ledger.ApplyInTx(ctx, repos, domain.LedgerMutation{
			OwnerID:        p.OwnerID,
			Direction:      domain.DirectionRefund,
			Source:         domain.SourcePayoutRefund,
			AmountCents:    p.AmountCents,
			IdempotencyKey: p.AttemptKey(),
			PayoutID:       &p.ID,
			Description:    fmt.Sprintf("Payout attempt %d failed", p.Attempts),
		}); err != nil {
			return err
		}
		p.Status = domain.PayoutStatusFailed
		p.Refunded = true
		p.FailureReason = ev.Reason
		p.FailedAt = &now
		p.UpdatedAt = now
		changed = true
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("payoutService.HandleWebhook", err)
		return nil, err
	}
	if changed {
		if p.Status == domain.PayoutStatusPaid {
			s.notifier.Notify(ctx, payoutEvent(domain.EventPayoutPaid, p, "Payout sent",
				fmt.Sprintf("%s has been paid out.", utils.FormatCents(p.AmountCents, s.currency))))
		} else {
			s.notifier.Notify(ctx, payoutEvent(domain.EventPayoutFailed, p, "Payout failed",
				"Your payout could not be completed and the amount was returned to your wallet."))
		}
	}
	logger.ExitMethod("payoutService.HandleWebhook", "status", p.Status, "changed", changed)
	return p, nil
}

func (s *payoutService) RetryPayout(ctx context.Context, adminID, payoutID string) (*domain.PayoutRequest, error) {
	logger.EnterMethod("payoutService.RetryPayout", "adminID", adminID, "payoutID", payoutID)
	p, err := s.retry(ctx, adminID, payoutID)
	if err != nil {
		logger.ExitMethodWithError("payoutService.RetryPayout", err)
		return nil, err
	}
	logger.ExitMethod("payoutService.RetryPayout", "attempt", p.Attempts)
	return p, nil
}

// retry starts a new debited attempt for a failed payout, or resubmits a
// processing payout that has been waiting longer than the stuck threshold.
func (s *payoutService) retry(ctx context.Context, actor, payoutID string) (*domain.PayoutRequest, error) {
	p, err := s.update(ctx, payoutID, func(ctx context.Context, repos *repository.Repositories, p *domain.PayoutRequest, now time.Time) error {
		switch {
		case p.Status == domain.PayoutStatusFailed:
			p.ApprovedBy = actor
			return s.startAttempt(ctx, repos, p, now)
		case p.Status == domain.PayoutStatusProcessing && s.isStuck(p, now):
			p.ProcessingAt = &now
			p.UpdatedAt = now
			return nil
		default:
			return payoutStateError(p, "retry")
		}
	})
	if err != nil {
		return nil, err
	}
	s.submit(ctx, p)
	return p, nil
}

func (s *payoutService) isStuck(p *domain.PayoutRequest, now time.Time) bool {
	return p.ProcessingAt == nil || !p.ProcessingAt.After(now.Add(-s.cfg.StuckAfter()))
}

func (s *payoutService) RetryStuckPayouts(ctx context.Context) (int, error) {
	stuck, err := s.repos.Payouts.ListProcessingBefore(ctx, s.now().Add(-s.cfg.StuckAfter()))
	if err != nil {
		return 0, err
	}
	count := 0
	var errs []error
	for _, p := range stuck {
		if _, err := s.retry(ctx, SystemActor, p.ID); err != nil {
			logger.Error("Failed to resubmit stuck payout", "payoutID", p.ID, "error", err)
			errs = append(errs, fmt.Errorf("payout %s: %w", p.ID, err))
			continue
		}
		count++
	}
	metrics.SweepProcessed.WithLabelValues("retry_stuck_payouts").Add(float64(count))
	return count, errors.Join(errs...)
}

type payoutMutation func(ctx context.Context, repos *repository.Repositories, p *domain.PayoutRequest, now time.Time) error

func (s *payoutService) update(ctx context.Context, payoutID string, fn payoutMutation) (*domain.PayoutRequest, error) {
	var payout *domain.PayoutRequest
	var changed bool
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		changed = false
		p, err := repos.Payouts.GetForUpdate(ctx, payoutID)
		if err != nil {
			return err
		}
		payout = p
		if err := fn(ctx, repos, p, s.now()); err != nil {
			if errors.Is(err, errUnchanged) {
				return nil
			}
			return err
		}
		changed = true
		return repos.Payouts.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		metrics.PayoutTransitions.WithLabelValues(string(payout.Status)).Inc()
	}
	return payout, nil
}

// submit hands the payout to the provider. Failures leave it processing for
// the stuck-payout sweep.
func (s *payoutService) submit(ctx context.Context, p *domain.PayoutRequest) {
	if err := s.provider.Submit(ctx, p); err != nil {
		logger.Error("Payout submission failed", "payoutID", p.ID, "attempt", p.Attempts, "error", err)
	}
}

func payoutEvent(t domain.EventType, p *domain.PayoutRequest, title, message string) domain.Event {
	return domain.Event{
		Type:    t,
		UserID:  p.OwnerID,
		Title:   title,
		Message: message,
		Attributes: map[string]string{
			"payout_id": p.ID,
			"status":    string(p.Status),
		},
	}
}
