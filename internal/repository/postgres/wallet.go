package postgres

import (
	"context"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/logger"
	"mentorbook-backend/internal/repository"
)

type walletRepository struct {
	db DBTX
}

func NewWalletRepository(db DBTX) repository.WalletRepository {
	return &walletRepository{db: db}
}

const walletColumns = `id, owner_id, balance_cents, status, currency, created_at, updated_at`

func (r *walletRepository) get(ctx context.Context, query, ownerID string) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&w.ID, &w.OwnerID, &w.BalanceCents, &w.Status, &w.Currency, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "wallet for owner", ownerID)
	}
	return w, nil
}

func (r *walletRepository) GetByOwner(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	return r.get(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1`, ownerID)
}

func (r *walletRepository) GetForUpdate(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	return r.get(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1 FOR UPDATE`, ownerID)
}

func (r *walletRepository) Create(ctx context.Context, w *domain.Wallet) error {
	query := `INSERT INTO wallets (` + walletColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	logger.DatabaseCall("INSERT", "wallets", "ownerID", w.OwnerID)
	_, err := r.db.ExecContext(ctx, query, w.ID, w.OwnerID, w.BalanceCents, w.Status, w.Currency, w.CreatedAt, w.UpdatedAt)
	logger.DatabaseResult("INSERT", 1, err, "walletID", w.ID)
	return mapError(err)
}

func (r *walletRepository) Update(ctx context.Context, w *domain.Wallet) error {
	query := `UPDATE wallets SET balance_cents = $1, status = $2, updated_at = $3 WHERE id = $4`
	logger.DatabaseCall("UPDATE", "wallets", "walletID", w.ID, "balance", w.BalanceCents)
	result, err := r.db.ExecContext(ctx, query, w.BalanceCents, w.Status, w.UpdatedAt, w.ID)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err)
		return mapError(err)
	}
	rows, err := result.RowsAffected()
	logger.DatabaseResult("UPDATE", rows, err, "walletID", w.ID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.NewNotFoundError("wallet", w.ID)
	}
	return nil
}
