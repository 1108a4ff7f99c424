package postgres

import (
	"context"
	"time"

	"github.com/lib/pq"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/logger"
	"mentorbook-backend/internal/repository"
)

type occurrenceRepository struct {
	db DBTX
}

func NewOccurrenceRepository(db DBTX) repository.OccurrenceRepository {
	return &occurrenceRepository{db: db}
}

const occurrenceColumns = `id, template_id, owner_id, start_time, end_time, status, capacity, buffer_before_minutes, buffer_after_minutes, created_at, updated_at`

func (r *occurrenceRepository) CreateBatch(ctx context.Context, occs []domain.Occurrence) error {
	logger.EnterMethod("occurrenceRepository.CreateBatch", "count", len(occs))
	query := `INSERT INTO occurrences (` + occurrenceColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	for _, o := range occs {
		logger.DatabaseCall("INSERT", "occurrences", "occurrenceID", o.ID, "templateID", o.TemplateID)
		_, err := r.db.ExecContext(ctx, query, o.ID, o.TemplateID, o.OwnerID, o.StartTime, o.EndTime, o.Status, o.Capacity,
			o.BufferBeforeMinutes, o.BufferAfterMinutes, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			logger.DatabaseResult("INSERT", 0, err, "occurrenceID", o.ID)
			logger.ExitMethodWithError("occurrenceRepository.CreateBatch", err)
			return mapError(err)
		}
	}
	logger.ExitMethod("occurrenceRepository.CreateBatch", "count", len(occs))
	return nil
}

func scanOccurrence(row rowScanner) (*domain.Occurrence, error) {
	o := &domain.Occurrence{}
	err := row.Scan(&o.ID, &o.TemplateID, &o.OwnerID, &o.StartTime, &o.EndTime, &o.Status, &o.Capacity,
		&o.BufferBeforeMinutes, &o.BufferAfterMinutes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *occurrenceRepository) GetByID(ctx context.Context, id string) (*domain.Occurrence, error) {
	query := `SELECT ` + occurrenceColumns + ` FROM occurrences WHERE id = $1`
	o, err := scanOccurrence(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "occurrence", id)
	}
	return o, nil
}

func (r *occurrenceRepository) list(ctx context.Context, query string, args ...any) ([]domain.Occurrence, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []domain.Occurrence
	for rows.Next() {
		o, err := scanOccurrence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *occurrenceRepository) ListByOwner(ctx context.Context, ownerID string, from, to time.Time) ([]domain.Occurrence, error) {
	query := `SELECT ` + occurrenceColumns + ` FROM occurrences
	          WHERE owner_id = $1 AND start_time < $3 AND end_time > $2 ORDER BY start_time`
	return r.list(ctx, query, ownerID, from, to)
}

func (r *occurrenceRepository) ListByTemplate(ctx context.Context, templateID string, from time.Time) ([]domain.Occurrence, error) {
	query := `SELECT ` + occurrenceColumns + ` FROM occurrences WHERE template_id = $1 AND start_time >= $2 ORDER BY start_time`
	return r.list(ctx, query, templateID, from)
}

func (r *occurrenceRepository) CompareAndSetStatus(ctx context.Context, id string, from, to domain.OccurrenceStatus) (bool, error) {
	query := `UPDATE occurrences SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	logger.DatabaseCall("UPDATE", "occurrences", "occurrenceID", id, "from", from, "to", to)
	result, err := r.db.ExecContext(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err)
		return false, mapError(err)
	}
	rows, err := result.RowsAffected()
	logger.DatabaseResult("UPDATE", rows, err, "occurrenceID", id)
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *occurrenceRepository) SetStatusByTemplate(ctx context.Context, templateID string, after time.Time, from, to domain.OccurrenceStatus) (int64, error) {
	query := `UPDATE occurrences SET status = $1, updated_at = $2 WHERE template_id = $3 AND start_time >= $4 AND status = $5`
	result, err := r.db.ExecContext(ctx, query, to, time.Now().UTC(), templateID, after, from)
	if err != nil {
		return 0, mapError(err)
	}
	return result.RowsAffected()
}

func (r *occurrenceRepository) DeleteUnreferenced(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `DELETE FROM occurrences o WHERE o.id = ANY($1)
		AND NOT EXISTS (SELECT 1 FROM bookings b WHERE b.occurrence_id = o.id)
		RETURNING o.id`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var deleted []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		deleted = append(deleted, id)
	}
	return deleted, rows.Err()
}
