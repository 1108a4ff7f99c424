package postgres

import (
	"context"
	"time"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/logger"
	"mentorbook-backend/internal/repository"
)

type payoutRepository struct {
	db DBTX
}

func NewPayoutRepository(db DBTX) repository.PayoutRepository {
	return &payoutRepository{db: db}
}

const payoutColumns = `id, owner_id, amount_cents, status, attempts, COALESCE(external_ref, ''), idempotency_key, COALESCE(failure_reason, ''),
	refunded, COALESCE(approved_by, ''), processing_at, paid_at, failed_at, created_at, updated_at`

func scanPayout(row rowScanner) (*domain.PayoutRequest, error) {
	p := &domain.PayoutRequest{}
	err := row.Scan(&p.ID, &p.OwnerID, &p.AmountCents, &p.Status, &p.Attempts, &p.ExternalRef, &p.IdempotencyKey, &p.FailureReason,
		&p.Refunded, &p.ApprovedBy, &p.ProcessingAt, &p.PaidAt, &p.FailedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *payoutRepository) Create(ctx context.Context, p *domain.PayoutRequest) error {
	query := `INSERT INTO payout_requests (id, owner_id, amount_cents, status, attempts, idempotency_key, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	logger.DatabaseCall("INSERT", "payout_requests", "payoutID", p.ID, "ownerID", p.OwnerID)
	_, err := r.db.ExecContext(ctx, query, p.ID, p.OwnerID, p.AmountCents, p.Status, p.Attempts, p.IdempotencyKey, p.CreatedAt, p.UpdatedAt)
	logger.DatabaseResult("INSERT", 1, err, "payoutID", p.ID)
	return mapError(err)
}

func (r *payoutRepository) GetByID(ctx context.Context, id string) (*domain.PayoutRequest, error) {
	query := `SELECT ` + payoutColumns + ` FROM payout_requests WHERE id = $1`
	p, err := scanPayout(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "payout", id)
	}
	return p, nil
}

func (r *payoutRepository) GetForUpdate(ctx context.Context, id string) (*domain.PayoutRequest, error) {
	query := `SELECT ` + payoutColumns + ` FROM payout_requests WHERE id = $1 FOR UPDATE`
	p, err := scanPayout(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "payout", id)
	}
	return p, nil
}

func (r *payoutRepository) GetByIdempotencyKey(ctx context.Context, ownerID, key string) (*domain.PayoutRequest, error) {
	query := `SELECT ` + payoutColumns + ` FROM payout_requests WHERE owner_id = $1 AND idempotency_key = $2`
	p, err := scanPayout(r.db.QueryRowContext(ctx, query, ownerID, key))
	if err != nil {
		return nil, notFound(err, "payout with key", key)
	}
	return p, nil
}

func (r *payoutRepository) Update(ctx context.Context, p *domain.PayoutRequest) error {
	query := `UPDATE payout_requests SET status=$1, attempts=$2, external_ref=$3, failure_reason=$4, refunded=$5, approved_by=$6,
	          processing_at=$7, paid_at=$8, failed_at=$9, updated_at=$10 WHERE id=$11`
	logger.DatabaseCall("UPDATE", "payout_requests", "payoutID", p.ID, "status", p.Status)
	result, err := r.db.ExecContext(ctx, query, p.Status, p.Attempts, nullString(p.ExternalRef), nullString(p.FailureReason), p.Refunded,
		nullString(p.ApprovedBy), p.ProcessingAt, p.PaidAt, p.FailedAt, p.UpdatedAt, p.ID)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err)
		return mapError(err)
	}
	rows, err := result.RowsAffected()
	logger.DatabaseResult("UPDATE", rows, err, "payoutID", p.ID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.NewNotFoundError("payout", p.ID)
	}
	return nil
}

func (r *payoutRepository) list(ctx context.Context, query string, args ...any) ([]domain.PayoutRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []domain.PayoutRequest
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *payoutRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.PayoutRequest, error) {
	query := `SELECT ` + payoutColumns + ` FROM payout_requests WHERE owner_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, ownerID)
}

func (r *payoutRepository) ListProcessingBefore(ctx context.Context, t time.Time) ([]domain.PayoutRequest, error) {
	query := `SELECT ` + payoutColumns + ` FROM payout_requests WHERE status = $1 AND processing_at <= $2 ORDER BY processing_at`
	return r.list(ctx, query, domain.PayoutStatusProcessing, t)
}
