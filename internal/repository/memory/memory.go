// Package memory is a transactional in-process store. Transactions are
// serialized behind one mutex and work on a copy of the state that replaces
// the committed state only when the callback succeeds.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/repository"
)

type state struct {
	users         map[string]domain.User
	templates     map[string]domain.AvailabilityTemplate
	occurrences   map[string]domain.Occurrence
	bookings      map[string]domain.Booking
	wallets       map[string]domain.Wallet
	entries       []domain.LedgerEntry
	payouts       map[string]domain.PayoutRequest
	notifications []domain.Notification
}

func newState() *state {
	return &state{
		users:       map[string]domain.User{},
		templates:   map[string]domain.AvailabilityTemplate{},
		occurrences: map[string]domain.Occurrence{},
		bookings:    map[string]domain.Booking{},
		wallets:     map[string]domain.Wallet{},
		payouts:     map[string]domain.PayoutRequest{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		users:         copyMap(s.users),
		templates:     copyMap(s.templates),
		occurrences:   copyMap(s.occurrences),
		bookings:      copyMap(s.bookings),
		wallets:       copyMap(s.wallets),
		entries:       append([]domain.LedgerEntry(nil), s.entries...),
		payouts:       copyMap(s.payouts),
		notifications: append([]domain.Notification(nil), s.notifications...),
	}
}

// accessor runs fn against either the committed state (taking the lock) or
// a transaction's working copy (lock already held).
type accessor interface {
	do(fn func(st *state) error) error
}

type shared struct{ s *Store }

func (a shared) do(fn func(st *state) error) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return fn(a.s.st)
}

type working struct{ st *state }

func (a working) do(fn func(st *state) error) error {
	return fn(a.st)
}

type Store struct {
	mu sync.Mutex
	st *state
	*repository.Repositories
}

func NewStore() *Store {
	s := &Store{st: newState()}
	s.Repositories = newRepositories(shared{s: s})
	return s
}

func newRepositories(a accessor) *repository.Repositories {
	return &repository.Repositories{
		Users:         &userRepository{a: a},
		Templates:     &templateRepository{a: a},
		Occurrences:   &occurrenceRepository{a: a},
		Bookings:      &bookingRepository{a: a},
		Wallets:       &walletRepository{a: a},
		Ledger:        &ledgerRepository{a: a},
		Payouts:       &payoutRepository{a: a},
		Notifications: &notificationRepository{a: a},
	}
}

// WithinTx runs fn with exclusive access. fn must only use the repositories
// it is given; the store's own repositories would block until it returns.
func (s *Store) WithinTx(ctx context.Context, fn repository.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, newRepositories(working{st: work})); err != nil {
		return err
	}
	s.st = work
	return nil
}

// PutUser registers a user profile. Profiles are owned by another system.
func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.users[u.ID] = u
}

func duplicate(msg string) error {
	return &domain.Error{Kind: domain.KindDuplicate, Message: msg}
}

func overlapsWindow(start, end, from, to time.Time) bool {
	return start.Before(to) && end.After(from)
}

func sortOccurrences(list []domain.Occurrence) {
	sort.Slice(list, func(i, j int) bool { return list[i].StartTime.Before(list[j].StartTime) })
}

func paginate[T any](list []T, page, pageSize int32) []T {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		return list
	}
	start := int((page - 1) * pageSize)
	if start >= len(list) {
		return nil
	}
	end := start + int(pageSize)
	if end > len(list) {
		end = len(list)
	}
	return list[start:end]
}
