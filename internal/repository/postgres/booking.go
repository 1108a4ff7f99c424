package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/logger"
	"mentorbook-backend/internal/repository"
)

type bookingRepository struct {
	db DBTX
}

func NewBookingRepository(db DBTX) repository.BookingRepository {
	return &bookingRepository{db: db}
}

const bookingColumns = `id, requester_id, owner_id, occurrence_id, status, price_cents, currency, start_time, end_time, expires_at,
	response_deadline, COALESCE(payment_ref, ''), COALESCE(cancel_reason, ''), COALESCE(cancelled_by, ''), late_cancel,
	owner_joined_at, requester_joined_at, no_show_outcome, platform_fee_cents, created_at, updated_at`

func activeStatuses() any {
	statuses := make([]string, 0, len(domain.ActiveBookingStatuses))
	for _, s := range domain.ActiveBookingStatuses {
		statuses = append(statuses, string(s))
	}
	return pq.Array(statuses)
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	b := &domain.Booking{}
	err := row.Scan(&b.ID, &b.RequesterID, &b.OwnerID, &b.OccurrenceID, &b.Status, &b.PriceCents, &b.Currency,
		&b.StartTime, &b.EndTime, &b.ExpiresAt, &b.ResponseDeadline, &b.PaymentRef, &b.CancelReason, &b.CancelledBy,
		&b.LateCancel, &b.OwnerJoinedAt, &b.RequesterJoinedAt, &b.NoShowOutcome, &b.PlatformFeeCents, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *bookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	logger.EnterMethod("bookingRepository.Create", "bookingID", b.ID, "occurrenceID", b.OccurrenceID)
	query := `INSERT INTO bookings (id, requester_id, owner_id, occurrence_id, status, price_cents, currency, start_time, end_time,
	          expires_at, response_deadline, payment_ref, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	logger.DatabaseCall("INSERT", "bookings", "bookingID", b.ID)
	_, err := r.db.ExecContext(ctx, query, b.ID, b.RequesterID, b.OwnerID, b.OccurrenceID, b.Status, b.PriceCents, b.Currency,
		b.StartTime, b.EndTime, b.ExpiresAt, b.ResponseDeadline, nullString(b.PaymentRef), b.CreatedAt, b.UpdatedAt)
	logger.DatabaseResult("INSERT", 1, err, "bookingID", b.ID)
	if err != nil {
		logger.ExitMethodWithError("bookingRepository.Create", err)
		return mapError(err)
	}
	logger.ExitMethod("bookingRepository.Create", "bookingID", b.ID)
	return nil
}

func (r *bookingRepository) getOne(ctx context.Context, query string, what, arg string) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, notFound(err, what, arg)
	}
	return b, nil
}

func (r *bookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, "booking", id)
}

func (r *bookingRepository) GetForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, "booking", id)
}

func (r *bookingRepository) GetByPaymentRef(ctx context.Context, paymentRef string) (*domain.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE payment_ref = $1`, "booking with payment", paymentRef)
}

func (r *bookingRepository) Update(ctx context.Context, b *domain.Booking) error {
	query := `UPDATE bookings SET status=$1, response_deadline=$2, payment_ref=$3, cancel_reason=$4, cancelled_by=$5, late_cancel=$6,
	          owner_joined_at=$7, requester_joined_at=$8, no_show_outcome=$9, platform_fee_cents=$10, updated_at=$11
	          WHERE id=$12`
	logger.DatabaseCall("UPDATE", "bookings", "bookingID", b.ID, "status", b.Status)
	result, err := r.db.ExecContext(ctx, query, b.Status, b.ResponseDeadline, nullString(b.PaymentRef), nullString(b.CancelReason),
		nullString(b.CancelledBy), b.LateCancel, b.OwnerJoinedAt, b.RequesterJoinedAt, b.NoShowOutcome, b.PlatformFeeCents, b.UpdatedAt, b.ID)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err)
		return mapError(err)
	}
	rows, err := result.RowsAffected()
	logger.DatabaseResult("UPDATE", rows, err, "bookingID", b.ID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.NewNotFoundError("booking", b.ID)
	}
	return nil
}

func (r *bookingRepository) GetActiveByOccurrence(ctx context.Context, occurrenceID string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE occurrence_id = $1 AND status = ANY($2) LIMIT 1`
	b, err := scanBooking(r.db.QueryRowContext(ctx, query, occurrenceID, activeStatuses()))
	if err != nil {
		return nil, notFound(err, "active booking for occurrence", occurrenceID)
	}
	return b, nil
}

func (r *bookingRepository) listPage(ctx context.Context, column, userID string, status domain.BookingStatus, page, pageSize int32) ([]domain.Booking, int32, error) {
	where := fmt.Sprintf(" FROM bookings WHERE %s = $1", column)
	args := []any{userID}
	if status != "" {
		where += " AND status = $2"
		args = append(args, status)
	}

	var count int32
	if err := r.db.QueryRowContext(ctx, "SELECT count(*)"+where, args...).Scan(&count); err != nil {
		return nil, 0, mapError(err)
	}

	query := "SELECT " + bookingColumns + where + fmt.Sprintf(" ORDER BY start_time DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, pageSize, pageOffset(page, pageSize))
	list, err := r.list(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return list, count, nil
}

func (r *bookingRepository) ListByRequester(ctx context.Context, requesterID string, status domain.BookingStatus, page, pageSize int32) ([]domain.Booking, int32, error) {
	return r.listPage(ctx, "requester_id", requesterID, status, page, pageSize)
}

func (r *bookingRepository) ListByOwner(ctx context.Context, ownerID string, status domain.BookingStatus, page, pageSize int32) ([]domain.Booking, int32, error) {
	return r.listPage(ctx, "owner_id", ownerID, status, page, pageSize)
}

func (r *bookingRepository) list(ctx context.Context, query string, args ...any) ([]domain.Booking, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (r *bookingRepository) ListExpiredPayments(ctx context.Context, now time.Time) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE status = $1 AND expires_at <= $2 ORDER BY expires_at`
	return r.list(ctx, query, domain.BookingStatusPaymentPending, now)
}

func (r *bookingRepository) ListExpiredResponses(ctx context.Context, now time.Time) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE status = $1 AND response_deadline <= $2 ORDER BY response_deadline`
	return r.list(ctx, query, domain.BookingStatusPendingMentor, now)
}

func (r *bookingRepository) ListConfirmedStartedBefore(ctx context.Context, t time.Time) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE status = $1 AND start_time <= $2 AND no_show_outcome = '' ORDER BY start_time`
	return r.list(ctx, query, domain.BookingStatusConfirmed, t)
}

func (r *bookingRepository) ListConfirmedEndedBefore(ctx context.Context, t time.Time) ([]domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE status = $1 AND end_time <= $2 ORDER BY end_time`
	return r.list(ctx, query, domain.BookingStatusConfirmed, t)
}
