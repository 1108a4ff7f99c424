package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/logger"
	"mentorbook-backend/internal/repository"
)

//go:embed schema.sql
var schema string

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
	*repository.Repositories
	maxRetries int
	backoff    time.Duration
}

func NewStore(db *sql.DB, maxRetries int) *Store {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Store{
		db:           db,
		Repositories: newRepositories(db),
		maxRetries:   maxRetries,
		backoff:      20 * time.Millisecond,
	}
}

func newRepositories(db DBTX) *repository.Repositories {
	return &repository.Repositories{
		Users:         NewUserRepository(db),
		Templates:     NewTemplateRepository(db),
		Occurrences:   NewOccurrenceRepository(db),
		Bookings:      NewBookingRepository(db),
		Wallets:       NewWalletRepository(db),
		Ledger:        NewLedgerRepository(db),
		Payouts:       NewPayoutRepository(db),
		Notifications: NewNotificationRepository(db),
	}
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	logger.DatabaseCall("MIGRATE", "schema.sql")
	_, err := s.db.ExecContext(ctx, schema)
	logger.DatabaseResult("MIGRATE", 0, err)
	return err
}

// WithinTx runs fn in a serializable transaction, retrying serialization
// failures and deadlocks with a linear backoff.
func (s *Store) WithinTx(ctx context.Context, fn repository.TxFunc) error {
	var err error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !errors.Is(err, domain.ErrTransient) {
			return err
		}
		logger.Warn("Transaction aborted, retrying", "attempt", attempt, "error", err)
		if attempt == s.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * s.backoff):
		}
	}
	return fmt.Errorf("transaction failed after %d attempts: %v", s.maxRetries, err)
}

func (s *Store) runTx(ctx context.Context, fn repository.TxFunc) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return mapError(err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, newRepositories(tx)); err != nil {
		return mapError(err)
	}
	return mapError(tx.Commit())
}

// mapError translates driver errors into domain kinds. Errors that already
// carry a kind pass through.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if domain.KindOf(err) != "" {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return &domain.Error{Kind: domain.KindDuplicate, Message: pqErr.Constraint}
		case "40001", "40P01":
			return &domain.Error{Kind: domain.KindTransient, Message: pqErr.Message}
		}
	}
	return err
}

// notFound maps sql.ErrNoRows to a not-found kind and passes other errors
// through mapError.
func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewNotFoundError(what, id)
	}
	return mapError(err)
}

func pageOffset(page, pageSize int32) int32 {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
