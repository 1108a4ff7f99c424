package postgres

import (
	"context"
	"database/sql"
	"errors"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/logger"
	"mentorbook-backend/internal/repository"
)

type ledgerRepository struct {
	db DBTX
}

func NewLedgerRepository(db DBTX) repository.LedgerRepository {
	return &ledgerRepository{db: db}
}

const ledgerColumns = `id, wallet_id, owner_id, direction, source, amount_cents, balance_before, balance_after, idempotency_key, booking_id, payout_id, description, created_at`

func scanEntry(row rowScanner) (*domain.LedgerEntry, error) {
	e := &domain.LedgerEntry{}
	err := row.Scan(&e.ID, &e.WalletID, &e.OwnerID, &e.Direction, &e.Source, &e.AmountCents, &e.BalanceBefore, &e.BalanceAfter,
		&e.IdempotencyKey, &e.BookingID, &e.PayoutID, &e.Description, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Append inserts the entry. A repeated (owner, source, key) triple is
// rejected by the unique constraint and surfaces as a duplicate.
func (r *ledgerRepository) Append(ctx context.Context, e *domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (` + ledgerColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	logger.DatabaseCall("INSERT", "ledger_entries", "ownerID", e.OwnerID, "source", e.Source, "key", e.IdempotencyKey)
	_, err := r.db.ExecContext(ctx, query, e.ID, e.WalletID, e.OwnerID, e.Direction, e.Source, e.AmountCents, e.BalanceBefore,
		e.BalanceAfter, e.IdempotencyKey, e.BookingID, e.PayoutID, e.Description, e.CreatedAt)
	logger.DatabaseResult("INSERT", 1, err, "entryID", e.ID)
	return mapError(err)
}

func (r *ledgerRepository) GetByIdempotencyKey(ctx context.Context, ownerID string, source domain.EntrySource, key string) (*domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE owner_id = $1 AND source = $2 AND idempotency_key = $3`
	e, err := scanEntry(r.db.QueryRowContext(ctx, query, ownerID, source, key))
	if err != nil {
		return nil, notFound(err, "ledger entry", key)
	}
	return e, nil
}

func (r *ledgerRepository) list(ctx context.Context, query string, args ...any) ([]domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (r *ledgerRepository) ListByOwner(ctx context.Context, ownerID string, page, pageSize int32) ([]domain.LedgerEntry, int32, error) {
	var count int32
	countQuery := `SELECT count(*) FROM ledger_entries WHERE owner_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, ownerID).Scan(&count); err != nil {
		return nil, 0, mapError(err)
	}

	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE owner_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`
	entries, err := r.list(ctx, query, ownerID, pageSize, pageOffset(page, pageSize))
	if err != nil {
		return nil, 0, err
	}
	return entries, count, nil
}

// ListAllByOwner returns every entry in creation order. Entry ids are ULIDs,
// so ordering by id is ordering by creation.
func (r *ledgerRepository) ListAllByOwner(ctx context.Context, ownerID string) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE owner_id = $1 ORDER BY id`
	return r.list(ctx, query, ownerID)
}

func (r *ledgerRepository) GetSummary(ctx context.Context, ownerID string) (*domain.LedgerSummary, error) {
	summary := &domain.LedgerSummary{}
	query := `SELECT
	            COALESCE(SUM(amount_cents) FILTER (WHERE direction = 'CREDIT'), 0),
	            COALESCE(SUM(amount_cents) FILTER (WHERE direction = 'DEBIT'), 0),
	            COALESCE(SUM(amount_cents) FILTER (WHERE direction = 'REFUND'), 0),
	            count(*)
	          FROM ledger_entries WHERE owner_id = $1`
	err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&summary.CreditedCents, &summary.DebitedCents, &summary.RefundedCents, &summary.EntryCount)
	if err != nil {
		return nil, mapError(err)
	}

	balanceQuery := `SELECT COALESCE(balance_cents, 0) FROM wallets WHERE owner_id = $1`
	err = r.db.QueryRowContext(ctx, balanceQuery, ownerID).Scan(&summary.BalanceCents)
	// No wallet yet means a zero balance.
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, mapError(err)
	}
	return summary, nil
}
