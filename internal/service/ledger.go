package service

import (
	"context"
	"errors"
	"fmt"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/logger"
	"mentorbook-backend/internal/metrics"
	"mentorbook-backend/internal/repository"
	"mentorbook-backend/internal/utils"
)

type ledgerService struct {
	tx       repository.TxManager
	repos    *repository.Repositories
	currency string
	now      Clock
}

func NewLedgerService(tx repository.TxManager, repos *repository.Repositories, currency string, clock Clock) LedgerService {
	if clock == nil {
		clock = systemClock
	}
	return &ledgerService{tx: tx, repos: repos, currency: currency, now: clock}
}

func (s *ledgerService) Apply(ctx context.Context, m domain.LedgerMutation) (*domain.LedgerEntry, error) {
	logger.EnterMethod("ledgerService.Apply", "ownerID", m.OwnerID, "source", m.Source, "key", m.IdempotencyKey)
	if err := m.Validate(); err != nil {
		logger.ExitMethodWithError("ledgerService.Apply", err)
		return nil, err
	}

	var entry *domain.LedgerEntry
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		var err error
		entry, err = s.ApplyInTx(ctx, repos, m)
		return err
	})
	if errors.Is(err, domain.ErrDuplicate) {
		// A concurrent request committed the same key first.
		entry, err = s.repos.Ledger.GetByIdempotencyKey(ctx, m.OwnerID, m.Source, m.IdempotencyKey)
		if err == nil {
			metrics.LedgerMutations.WithLabelValues(string(m.Source), "replayed").Inc()
		}
	} else if err == nil {
		metrics.LedgerMutations.WithLabelValues(string(m.Source), "applied").Inc()
	}
	if err != nil {
		logger.ExitMethodWithError("ledgerService.Apply", err)
		return nil, err
	}
	logger.ExitMethod("ledgerService.Apply", "entryID", entry.ID, "balanceAfter", entry.BalanceAfter)
	return entry, nil
}

func (s *ledgerService) ApplyInTx(ctx context.Context, repos *repository.Repositories, m domain.LedgerMutation) (*domain.LedgerEntry, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	existing, err := repos.Ledger.GetByIdempotencyKey(ctx, m.OwnerID, m.Source, m.IdempotencyKey)
	if err == nil {
		logger.Debug("Ledger mutation already applied", "ownerID", m.OwnerID, "source", m.Source, "key", m.IdempotencyKey)
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	wallet, err := s.walletForUpdate(ctx, repos, m.OwnerID)
	if err != nil {
		return nil, err
	}
	if wallet.Status == domain.WalletStatusLocked {
		return nil, domain.ErrWalletLocked
	}
	if m.Direction == domain.DirectionDebit && wallet.BalanceCents < m.AmountCents {
		return nil, &domain.Error{
			Kind:    domain.KindInsufficientBalance,
			Message: fmt.Sprintf("insufficient balance: have %d, need %d", wallet.BalanceCents, m.AmountCents),
		}
	}

	now := s.now()
	entry := &domain.LedgerEntry{
		ID:             utils.NewEntryID(),
		WalletID:       wallet.ID,
		OwnerID:        m.OwnerID,
		Direction:      m.Direction,
		Source:         m.Source,
		AmountCents:    m.AmountCents,
		BalanceBefore:  wallet.BalanceCents,
		BalanceAfter:   wallet.BalanceCents + m.Direction.Sign()*m.AmountCents,
		IdempotencyKey: m.IdempotencyKey,
		BookingID:      m.BookingID,
		PayoutID:       m.PayoutID,
		Description:    m.Description,
		CreatedAt:      now,
	}

	wallet.BalanceCents = entry.BalanceAfter
	wallet.UpdatedAt = now
	if err := repos.Wallets.Update(ctx, wallet); err != nil {
		return nil, err
	}
	if err := repos.Ledger.Append(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// walletForUpdate locks the owner's wallet, creating it on first use.
func (s *ledgerService) walletForUpdate(ctx context.Context, repos *repository.Repositories, ownerID string) (*domain.Wallet, error) {
	wallet, err := repos.Wallets.GetForUpdate(ctx, ownerID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := s.now()
	wallet = &domain.Wallet{
		ID:        utils.NewID(),
		OwnerID:   ownerID,
		Status:    domain.WalletStatusActive,
		Currency:  s.currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repos.Wallets.Create(ctx, wallet); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			// Lost a creation race; the retried transaction will find the row.
			return nil, fmt.Errorf("%w: wallet for %s created concurrently", domain.ErrTransient, ownerID)
		}
		return nil, err
	}
	return wallet, nil
}

func (s *ledgerService) TopUp(ctx context.Context, ownerID string, amountCents int64, idempotencyKey string) (*domain.LedgerEntry, error) {
	return s.Apply(ctx, domain.LedgerMutation{
		OwnerID:        ownerID,
		Direction:      domain.DirectionCredit,
		Source:         domain.SourceTopUp,
		AmountCents:    amountCents,
		IdempotencyKey: idempotencyKey,
		Description:    "Wallet top-up",
	})
}

func (s *ledgerService) Withdraw(ctx context.Context, ownerID string, amountCents int64, idempotencyKey string) (*domain.LedgerEntry, error) {
	return s.Apply(ctx, domain.LedgerMutation{
		OwnerID:        ownerID,
		Direction:      domain.DirectionDebit,
		Source:         domain.SourceWithdrawal,
		AmountCents:    amountCents,
		IdempotencyKey: idempotencyKey,
		Description:    "Wallet withdrawal",
	})
}

// GetWallet returns the owner's wallet, or an empty active one if the owner
// has never had a balance change.
func (s *ledgerService) GetWallet(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	wallet, err := s.repos.Wallets.GetByOwner(ctx, ownerID)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.Wallet{OwnerID: ownerID, Status: domain.WalletStatusActive, Currency: s.currency}, nil
	}
	return wallet, err
}

func (s *ledgerService) GetBalance(ctx context.Context, ownerID string) (int64, error) {
	wallet, err := s.GetWallet(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	return wallet.BalanceCents, nil
}

func (s *ledgerService) GetTransactions(ctx context.Context, ownerID string, page, pageSize int32) ([]domain.LedgerEntry, int32, error) {
	return s.repos.Ledger.ListByOwner(ctx, ownerID, page, pageSize)
}

func (s *ledgerService) GetLedgerSummary(ctx context.Context, ownerID string) (*domain.LedgerSummary, error) {
	return s.repos.Ledger.GetSummary(ctx, ownerID)
}

func (s *ledgerService) SetWalletLocked(ctx context.Context, ownerID string, locked bool) (*domain.Wallet, error) {
	logger.EnterMethod("ledgerService.SetWalletLocked", "ownerID", ownerID, "locked", locked)
	if ownerID == "" {
		return nil, domain.NewValidationError("owner id is required")
	}
	status := domain.WalletStatusActive
	if locked {
		status = domain.WalletStatusLocked
	}

	var wallet *domain.Wallet
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		var err error
		wallet, err = s.walletForUpdate(ctx, repos, ownerID)
		if err != nil {
			return err
		}
		wallet.Status = status
		wallet.UpdatedAt = s.now()
		return repos.Wallets.Update(ctx, wallet)
	})
	if err != nil {
		logger.ExitMethodWithError("ledgerService.SetWalletLocked", err)
		return nil, err
	}
	logger.ExitMethod("ledgerService.SetWalletLocked", "status", wallet.Status)
	return wallet, nil
}
