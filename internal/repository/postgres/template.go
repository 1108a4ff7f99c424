package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/logger"
	"mentorbook-backend/internal/repository"
)

type templateRepository struct {
	db DBTX
}

func NewTemplateRepository(db DBTX) repository.TemplateRepository {
	return &templateRepository{db: db}
}

const templateColumns = `id, owner_id, start_time, end_time, recurrence, excluded_dates, buffer_before_minutes, buffer_after_minutes, visibility, horizon_days, price_cents, status, created_at, updated_at`

func encodeTemplateJSON(t *domain.AvailabilityTemplate) (recurrence, excluded []byte, err error) {
	if t.Recurrence != nil {
		if recurrence, err = json.Marshal(t.Recurrence); err != nil {
			return nil, nil, fmt.Errorf("failed to marshal recurrence: %w", err)
		}
	}
	dates := t.ExcludedDates
	if dates == nil {
		dates = []time.Time{}
	}
	if excluded, err = json.Marshal(dates); err != nil {
		return nil, nil, fmt.Errorf("failed to marshal excluded dates: %w", err)
	}
	return recurrence, excluded, nil
}

func (r *templateRepository) Create(ctx context.Context, t *domain.AvailabilityTemplate) error {
	logger.EnterMethod("templateRepository.Create", "templateID", t.ID, "ownerID", t.OwnerID)

	recurrence, excluded, err := encodeTemplateJSON(t)
	if err != nil {
		logger.ExitMethodWithError("templateRepository.Create", err)
		return err
	}

	query := `INSERT INTO availability_templates (` + templateColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	logger.DatabaseCall("INSERT", "availability_templates", "templateID", t.ID)
	_, err = r.db.ExecContext(ctx, query, t.ID, t.OwnerID, t.StartTime, t.EndTime, recurrence, excluded,
		t.BufferBeforeMinutes, t.BufferAfterMinutes, t.Visibility, t.HorizonDays, t.PriceCents, t.Status, t.CreatedAt, t.UpdatedAt)
	logger.DatabaseResult("INSERT", 1, err, "templateID", t.ID)
	if err != nil {
		logger.ExitMethodWithError("templateRepository.Create", err)
		return mapError(err)
	}
	logger.ExitMethod("templateRepository.Create", "templateID", t.ID)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*domain.AvailabilityTemplate, error) {
	t := &domain.AvailabilityTemplate{}
	var recurrence, excluded []byte
	var price sql.NullInt64
	err := row.Scan(&t.ID, &t.OwnerID, &t.StartTime, &t.EndTime, &recurrence, &excluded,
		&t.BufferBeforeMinutes, &t.BufferAfterMinutes, &t.Visibility, &t.HorizonDays, &price, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(recurrence) > 0 && string(recurrence) != "null" {
		t.Recurrence = &domain.RecurrenceRule{}
		if err := json.Unmarshal(recurrence, t.Recurrence); err != nil {
			return nil, err
		}
	}
	if len(excluded) > 0 {
		if err := json.Unmarshal(excluded, &t.ExcludedDates); err != nil {
			return nil, err
		}
	}
	if price.Valid {
		p := price.Int64
		t.PriceCents = &p
	}
	return t, nil
}

func (r *templateRepository) GetByID(ctx context.Context, id string) (*domain.AvailabilityTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM availability_templates WHERE id = $1`
	t, err := scanTemplate(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "template", id)
	}
	return t, nil
}

func (r *templateRepository) Update(ctx context.Context, t *domain.AvailabilityTemplate) error {
	recurrence, excluded, err := encodeTemplateJSON(t)
	if err != nil {
		return err
	}
	query := `UPDATE availability_templates SET start_time=$1, end_time=$2, recurrence=$3, excluded_dates=$4,
	          buffer_before_minutes=$5, buffer_after_minutes=$6, visibility=$7, horizon_days=$8, price_cents=$9, status=$10, updated_at=$11
	          WHERE id=$12`
	logger.DatabaseCall("UPDATE", "availability_templates", "templateID", t.ID)
	result, err := r.db.ExecContext(ctx, query, t.StartTime, t.EndTime, recurrence, excluded, t.BufferBeforeMinutes,
		t.BufferAfterMinutes, t.Visibility, t.HorizonDays, t.PriceCents, t.Status, t.UpdatedAt, t.ID)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err)
		return mapError(err)
	}
	rows, err := result.RowsAffected()
	logger.DatabaseResult("UPDATE", rows, err, "templateID", t.ID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.NewNotFoundError("template", t.ID)
	}
	return nil
}

func (r *templateRepository) list(ctx context.Context, query string, arg any) ([]domain.AvailabilityTemplate, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []domain.AvailabilityTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *templateRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.AvailabilityTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM availability_templates WHERE owner_id = $1 ORDER BY start_time`
	return r.list(ctx, query, ownerID)
}

func (r *templateRepository) ListByStatus(ctx context.Context, status domain.TemplateStatus) ([]domain.AvailabilityTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM availability_templates WHERE status = $1 ORDER BY start_time`
	return r.list(ctx, query, status)
}
