// Package lock provides short-lived exclusive leases used to reject
// concurrent attempts on the same resource early. Leases are advisory: the
// transactional store remains the arbiter.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrHeld is returned when another owner holds the lease.
	ErrHeld = errors.New("lock held by another owner")
	// ErrNotOwner is returned on release when the lease expired or was taken over.
	ErrNotOwner = errors.New("lock not owned by this token")
)

// Service acquires and releases leases. Acquire returns an owner token that
// must be passed to Release. Errors other than ErrHeld mean the lock backend
// is unreachable.
type Service interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)
	Release(ctx context.Context, key, token string) error
}

// Noop grants every lease. Used when no lock backend is configured.
type Noop struct{}

func (Noop) Acquire(context.Context, string, time.Duration) (string, error) {
	return "noop", nil
}

func (Noop) Release(context.Context, string, string) error {
	return nil
}
