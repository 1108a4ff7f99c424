package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/repository"
	"mentorbook-backend/internal/repository/postgres"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestStore_WithinTx(t *testing.T) {
	ctx := context.Background()
	cas := func(ctx context.Context, repos *repository.Repositories) error {
		ok, err := repos.Occurrences.CompareAndSetStatus(ctx, "occ-1", domain.OccurrenceStatusOpen, domain.OccurrenceStatusBooked)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConflict
		}
		return nil
	}

	t.Run("RetriesSerializationFailure", func(t *testing.T) {
		db, mock := newMock(t)
		store := postgres.NewStore(db, 3)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE occurrences SET status").WillReturnError(&pq.Error{Code: "40001", Message: "could not serialize access"})
		mock.ExpectRollback()
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE occurrences SET status").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.WithinTx(ctx, cas)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("BusinessErrorNotRetried", func(t *testing.T) {
		db, mock := newMock(t)
		store := postgres.NewStore(db, 3)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE occurrences SET status").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := store.WithinTx(ctx, cas)
		assert.True(t, errors.Is(err, domain.ErrConflict))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GivesUpAfterMaxRetries", func(t *testing.T) {
		db, mock := newMock(t)
		store := postgres.NewStore(db, 2)

		for i := 0; i < 2; i++ {
			mock.ExpectBegin()
			mock.ExpectExec("UPDATE occurrences SET status").WillReturnError(&pq.Error{Code: "40P01", Message: "deadlock detected"})
			mock.ExpectRollback()
		}

		err := store.WithinTx(ctx, cas)
		assert.Error(t, err)
		assert.False(t, errors.Is(err, domain.ErrTransient))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerRepository_Append(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewLedgerRepository(db)
	ctx := context.Background()

	entry := &domain.LedgerEntry{
		ID:             "01J0000000000000000000000A",
		WalletID:       "wallet-1",
		OwnerID:        "user-1",
		Direction:      domain.DirectionCredit,
		Source:         domain.SourceTopUp,
		AmountCents:    500,
		BalanceAfter:   500,
		IdempotencyKey: "charge-1",
		CreatedAt:      time.Now().UTC(),
	}

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(entry.ID, entry.WalletID, entry.OwnerID, entry.Direction, entry.Source, entry.AmountCents, entry.BalanceBefore,
				entry.BalanceAfter, entry.IdempotencyKey, nil, nil, entry.Description, entry.CreatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Append(ctx, entry))
	})

	t.Run("DuplicateKey", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "ledger_entries_owner_id_source_idempotency_key_key"})

		err := repo.Append(ctx, entry)
		assert.True(t, errors.Is(err, domain.ErrDuplicate))
	})
}

func TestLedgerRepository_GetSummary(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewLedgerRepository(db)
	ctx := context.Background()

	t.Run("NoWallet", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM ledger_entries").
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"credited", "debited", "refunded", "count"}).AddRow(0, 0, 0, 0))
		mock.ExpectQuery("SELECT COALESCE\\(balance_cents, 0\\) FROM wallets").
			WithArgs("user-1").
			WillReturnError(sql.ErrNoRows)

		summary, err := repo.GetSummary(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), summary.BalanceCents)
	})
}

func TestBookingRepository_GetByID(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewBookingRepository(db)
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id = \\$1").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(ctx, "missing")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("Success", func(t *testing.T) {
		now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
		cols := []string{"id", "requester_id", "owner_id", "occurrence_id", "status", "price_cents", "currency", "start_time", "end_time",
			"expires_at", "response_deadline", "payment_ref", "cancel_reason", "cancelled_by", "late_cancel", "owner_joined_at",
			"requester_joined_at", "no_show_outcome", "platform_fee_cents", "created_at", "updated_at"}
		mock.ExpectQuery("SELECT (.+) FROM bookings WHERE id = \\$1").
			WithArgs("b-1").
			WillReturnRows(sqlmock.NewRows(cols).AddRow("b-1", "u-1", "u-2", "o-1", "CONFIRMED", 5000, "USD", now, now.Add(time.Hour),
				now, nil, "ch_1", "", "", false, nil, nil, "", 0, now, now))

		b, err := repo.GetByID(ctx, "b-1")
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusConfirmed, b.Status)
		assert.Equal(t, int64(5000), b.PriceCents)
		assert.Equal(t, "ch_1", b.PaymentRef)
		assert.Nil(t, b.ResponseDeadline)
	})
}

func TestOccurrenceRepository_CompareAndSetStatus(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewOccurrenceRepository(db)
	ctx := context.Background()

	t.Run("Swapped", func(t *testing.T) {
		mock.ExpectExec("UPDATE occurrences SET status").
			WithArgs(domain.OccurrenceStatusBooked, sqlmock.AnyArg(), "o-1", domain.OccurrenceStatusOpen).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.CompareAndSetStatus(ctx, "o-1", domain.OccurrenceStatusOpen, domain.OccurrenceStatusBooked)
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("StatusMismatch", func(t *testing.T) {
		mock.ExpectExec("UPDATE occurrences SET status").
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.CompareAndSetStatus(ctx, "o-1", domain.OccurrenceStatusOpen, domain.OccurrenceStatusBooked)
		assert.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestNotificationRepository_MarkAsRead(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewNotificationRepository(db)
	ctx := context.Background()

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectExec("UPDATE notifications SET is_read = TRUE").
			WithArgs("n-1", "u-1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.MarkAsRead(ctx, "n-1", "u-1")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}
