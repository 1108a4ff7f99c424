package postgres

import (
	"context"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/repository"
)

type userRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) repository.UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u := &domain.User{}
	query := `SELECT id, email, name, role, hourly_rate_cents, requires_confirmation, COALESCE(push_token, '') FROM users WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.HourlyRateCents, &u.RequiresConfirmation, &u.PushToken)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return u, nil
}
