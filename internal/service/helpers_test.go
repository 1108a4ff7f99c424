package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"mentorbook-backend/internal/config"
	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/lock"
	"mentorbook-backend/internal/repository/memory"
	"mentorbook-backend/internal/service"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Monday 2026-03-02 09:00 UTC.
var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

const (
	mentorID = "mentor-1"
	menteeID = "mentee-1"
	otherID  = "mentee-2"
	adminID  = "admin-1"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (n *recordingNotifier) Notify(_ context.Context, events ...domain.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, events...)
}

func (n *recordingNotifier) Types() []domain.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.EventType, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

type MockLockService struct {
	mock.Mock
}

func (m *MockLockService) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Error(1)
}

func (m *MockLockService) Release(ctx context.Context, key, token string) error {
	args := m.Called(ctx, key, token)
	return args.Error(0)
}

type MockPayoutProvider struct {
	mock.Mock
}

func (m *MockPayoutProvider) Submit(ctx context.Context, p *domain.PayoutRequest) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func testPolicy() config.BookingConfig {
	return config.BookingConfig{
		Currency:                "USD",
		PaymentExpiryMinutes:    15,
		MentorResponseHours:     24,
		LateCancelWindowMinutes: ptr(24 * 60),
		NoShowGraceMinutes:      15,
		AutoCompleteMinutes:     60,
		NoShowRefundPercent:     ptr(80),
		LockTTLSeconds:          30,
		MaxTxRetries:            3,
		DefaultHorizonDays:      30,
	}
}

type fixture struct {
	store    *memory.Store
	clock    *testClock
	notifier *recordingNotifier
	policy   config.BookingConfig
	locks    lock.Service
	provider *MockPayoutProvider

	ledger   service.LedgerService
	avail    service.AvailabilityService
	bookings service.BookingService
	noShow   service.NoShowService
	payouts  service.PayoutService
}

type fixtureOption func(f *fixture)

func withPolicy(mutate func(p *config.BookingConfig)) fixtureOption {
	return func(f *fixture) { mutate(&f.policy) }
}

func withLocks(l lock.Service) fixtureOption {
	return func(f *fixture) { f.locks = l }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.NewStore(),
		clock:    &testClock{now: baseTime},
		notifier: &recordingNotifier{},
		policy:   testPolicy(),
		locks:    lock.Noop{},
		provider: new(MockPayoutProvider),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.store.PutUser(domain.User{ID: mentorID, Name: "Mentor", Email: "mentor@example.com", HourlyRateCents: 6000})
	f.store.PutUser(domain.User{ID: menteeID, Name: "Mentee", Email: "mentee@example.com"})
	f.store.PutUser(domain.User{ID: otherID, Name: "Other", Email: "other@example.com"})
	f.store.PutUser(domain.User{ID: adminID, Name: "Admin", Role: domain.UserRoleAdmin})

	repos := f.store.Repositories
	f.ledger = service.NewLedgerService(f.store, repos, f.policy.Currency, f.clock.Now)
	f.avail = service.NewAvailabilityService(f.store, repos, f.policy, f.clock.Now)
	f.bookings = service.NewBookingService(f.store, repos, f.ledger, f.locks, f.notifier, f.policy, f.clock.Now)
	f.noShow = service.NewNoShowService(f.store, repos, f.ledger, f.notifier, f.policy, f.clock.Now)
	f.payouts = service.NewPayoutService(f.store, repos, f.ledger, f.provider, f.notifier,
		config.PayoutConfig{StuckAfterMinutes: 30, MinimumAmountCents: 100}, f.policy.Currency, f.clock.Now)
	return f
}

func ptr[T any](v T) *T {
	return &v
}

// slot is a one-hour interval starting at the given hour, days after baseTime.
func slot(days, hour int) (time.Time, time.Time) {
	start := time.Date(baseTime.Year(), baseTime.Month(), baseTime.Day()+days, hour, 0, 0, 0, time.UTC)
	return start, start.Add(time.Hour)
}

// publishOneOff publishes a one-hour session and returns its occurrence.
func (f *fixture) publishOneOff(t *testing.T, days, hour int, price *int64) domain.Occurrence {
	t.Helper()
	ctx := context.Background()
	start, end := slot(days, hour)
	tmpl, err := f.avail.CreateTemplate(ctx, mentorID, &domain.AvailabilityTemplate{
		StartTime:  start,
		EndTime:    end,
		PriceCents: price,
	})
	require.NoError(t, err)
	res, err := f.avail.PublishTemplate(ctx, mentorID, tmpl.ID)
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	return res.Created[0]
}

// confirmedBooking books and pays for a fresh one-off session.
func (f *fixture) confirmedBooking(t *testing.T, days, hour int, price int64) *domain.Booking {
	t.Helper()
	ctx := context.Background()
	occ := f.publishOneOff(t, days, hour, ptr(price))
	b, err := f.bookings.CreateBooking(ctx, menteeID, occ.ID)
	require.NoError(t, err)
	b, err = f.bookings.HandlePayment(ctx, service.PaymentEvent{
		BookingID:   b.ID,
		PaymentRef:  "pay-" + b.ID,
		Succeeded:   true,
		AmountCents: price,
	})
	require.NoError(t, err)
	require.Equal(t, domain.BookingStatusConfirmed, b.Status)
	return b
}

func (f *fixture) balance(t *testing.T, ownerID string) int64 {
	t.Helper()
	bal, err := f.ledger.GetBalance(context.Background(), ownerID)
	require.NoError(t, err)
	return bal
}

func (f *fixture) occurrence(t *testing.T, id string) *domain.Occurrence {
	t.Helper()
	occ, err := f.store.Occurrences.GetByID(context.Background(), id)
	require.NoError(t, err)
	return occ
}
