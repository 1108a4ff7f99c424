package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"mentorbook-backend/internal/config"
	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/lock"
	"mentorbook-backend/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBookingService_CreateBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("Success with listed price", func(t *testing.T) {
		f := newFixture(t)
		occ := f.publishOneOff(t, 2, 10, ptr(int64(4500)))

		b, err := f.bookings.CreateBooking(ctx, menteeID, occ.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusPaymentPending, b.Status)
		assert.Equal(t, int64(4500), b.PriceCents)
		assert.Equal(t, "USD", b.Currency)
		assert.Equal(t, baseTime.Add(15*time.Minute), b.ExpiresAt)
		assert.Equal(t, occ.StartTime, b.StartTime)
		assert.Equal(t, domain.OccurrenceStatusBooked, f.occurrence(t, occ.ID).Status)
		assert.Contains(t, f.notifier.Types(), domain.EventBookingCreated)
	})

	t.Run("Price falls back to hourly rate", func(t *testing.T) {
		f := newFixture(t)
		occ := f.publishOneOff(t, 2, 10, nil)

		b, err := f.bookings.CreateBooking(ctx, menteeID, occ.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(6000), b.PriceCents)
	})

	t.Run("Second booking conflicts", func(t *testing.T) {
		f := newFixture(t)
		occ := f.publishOneOff(t, 2, 10, ptr(int64(1000)))
		_, err := f.bookings.CreateBooking(ctx, menteeID, occ.ID)
		require.NoError(t, err)

		_, err = f.bookings.CreateBooking(ctx, otherID, occ.ID)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.Len(t, domain.ConflictsOf(err), 1)
	})

	t.Run("Own slot", func(t *testing.T) {
		f := newFixture(t)
		occ := f.publishOneOff(t, 2, 10, nil)
		_, err := f.bookings.CreateBooking(ctx, mentorID, occ.ID)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("Started occurrence", func(t *testing.T) {
		f := newFixture(t)
		occ := f.publishOneOff(t, 0, 10, nil)
		f.clock.Set(occ.StartTime)
		_, err := f.bookings.CreateBooking(ctx, menteeID, occ.ID)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("Unknown occurrence", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.bookings.CreateBooking(ctx, menteeID, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestBookingService_ConcurrentRequestsBookOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	occ := f.publishOneOff(t, 2, 10, ptr(int64(1000)))

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.bookings.CreateBooking(ctx, fmt.Sprintf("mentee-%d", i+10), occ.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrConflict)
	}
	assert.Equal(t, 1, succeeded)
	active, err := f.store.Bookings.GetActiveByOccurrence(ctx, occ.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusPaymentPending, active.Status)
}

func TestBookingService_Locking(t *testing.T) {
	ctx := context.Background()

	t.Run("Success releases with the acquired token", func(t *testing.T) {
		locks := new(MockLockService)
		f := newFixture(t, withLocks(locks))
		occ := f.publishOneOff(t, 2, 10, nil)
		key := "booking:occurrence:" + occ.ID

		locks.On("Acquire", mock.Anything, key, 30*time.Second).Return("token-1", nil).Once()
		locks.On("Release", mock.Anything, key, "token-1").Return(nil).Once()

		_, err := f.bookings.CreateBooking(ctx, menteeID, occ.ID)
		require.NoError(t, err)
		locks.AssertExpectations(t)
	})

	t.Run("Held lock rejects early", func(t *testing.T) {
		locks := new(MockLockService)
		f := newFixture(t, withLocks(locks))
		occ := f.publishOneOff(t, 2, 10, nil)

		locks.On("Acquire", mock.Anything, mock.Anything, mock.Anything).Return("", lock.ErrHeld).Once()

		_, err := f.bookings.CreateBooking(ctx, menteeID, occ.ID)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.Equal(t, domain.OccurrenceStatusOpen, f.occurrence(t, occ.ID).Status)
		locks.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Unreachable lock fails open", func(t *testing.T) {
		locks := new(MockLockService)
		f := newFixture(t, withLocks(locks))
		occ := f.publishOneOff(t, 2, 10, nil)

		locks.On("Acquire", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("dial tcp: connection refused")).Once()

		b, err := f.bookings.CreateBooking(ctx, menteeID, occ.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusPaymentPending, b.Status)
		locks.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestBookingService_HandlePayment(t *testing.T) {
	ctx := context.Background()

	t.Run("Success confirms and captures", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, 2, 10, 4500)
		assert.Equal(t, "pay-"+b.ID, b.PaymentRef)
		assert.Equal(t, int64(0), f.balance(t, menteeID))
		assert.Contains(t, f.notifier.Types(), domain.EventBookingConfirmed)

		summary, err := f.ledger.GetLedgerSummary(ctx, menteeID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), summary.BalanceCents)
	})

	t.Run("Replayed webhook is a no-op", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, 2, 10, 4500)
		events := len(f.notifier.Types())

		again, err := f.bookings.HandlePayment(ctx, service.PaymentEvent{
			BookingID: b.ID, PaymentRef: b.PaymentRef, Succeeded: true, AmountCents: 4500,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusConfirmed, again.Status)
		assert.Equal(t, int64(0), f.balance(t, menteeID))
		assert.Len(t, f.notifier.Types(), events)
	})

	t.Run("Lookup by payment reference", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, 2, 10, 4500)
		again, err := f.bookings.HandlePayment(ctx, service.PaymentEvent{PaymentRef: b.PaymentRef, Succeeded: true})
		require.NoError(t, err)
		assert.Equal(t, b.ID, again.ID)
	})

	t.Run("Unmatched payment is credited", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, 2, 10, 4500)

		_, err := f.bookings.HandlePayment(ctx, service.PaymentEvent{
			BookingID: b.ID, PaymentRef: "pay-duplicate", Succeeded: true, AmountCents: 4500,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(4500), f.balance(t, menteeID))
	})

	t.Run("Failure releases the slot", func(t *testing.T) {
		f := newFixture(t)
		occ := f.publishOneOff(t, 2, 10, ptr(int64(1000)))
		b, err := f.bookings.CreateBooking(ctx, menteeID, occ.ID)
		require.NoError(t, err)

		b, err = f.bookings.HandlePayment(ctx, service.PaymentEvent{BookingID: b.ID, PaymentRef: "pay-1", Reason: "card declined"})
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusFailed, b.Status)
		assert.Equal(t, "card declined", b.CancelReason)
		assert.Equal(t, domain.OccurrenceStatusOpen, f.occurrence(t, occ.ID).Status)

		_, err = f.bookings.CreateBooking(ctx, otherID, occ.ID)
		assert.NoError(t, err)
	})

	t.Run("Underpayment", func(t *testing.T) {
		f := newFixture(t)
		occ := f.publishOneOff(t, 2, 10, ptr(int64(1000)))
		b, err := f.bookings.CreateBooking(ctx, menteeID, occ.ID)
		require.NoError(t, err)

		_, err = f.bookings.HandlePayment(ctx, service.PaymentEvent{BookingID: b.ID, PaymentRef: "pay-1", Succeeded: true, AmountCents: 999})
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.Equal(t, int64(0), f.balance(t, menteeID))
	})

	t.Run("Mentor confirmation required", func(t *testing.T) {
		f := newFixture(t)
		f.store.PutUser(domain.User{ID: mentorID, RequiresConfirmation: true, HourlyRateCents: 6000})
		occ := f.publishOneOff(t, 2, 10, ptr(int64(1000)))
		b, err := f.bookings.CreateBooking(ctx, menteeID, occ.ID)
		require.NoError(t, err)

		b, err = f.bookings.HandlePayment(ctx, service.PaymentEvent{BookingID: b.ID, PaymentRef: "pay-1", Succeeded: true})
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusPendingMentor, b.Status)
		require.NotNil(t, b.ResponseDeadline)
		assert.Equal(t, baseTime.Add(24*time.Hour), *b.ResponseDeadline)
	})
}

func pendingMentorBooking(t *testing.T, f *fixture, days, hour int) *domain.Booking {
	t.Helper()
	ctx := context.Background()
	f.store.PutUser(domain.User{ID: mentorID, RequiresConfirmation: true, HourlyRateCents: 6000})
	occ := f.publishOneOff(t, days, hour, ptr(int64(2000)))
	b, err := f.bookings.CreateBooking(ctx, menteeID, occ.ID)
	require.NoError(t, err)
	b, err = f.bookings.HandlePayment(ctx, service.PaymentEvent{BookingID: b.ID, PaymentRef: "pay-" + b.ID, Succeeded: true})
	require.NoError(t, err)
	require.Equal(t, domain.BookingStatusPendingMentor, b.Status)
	return b
}

func TestBookingService_MentorResponse(t *testing.T) {
	ctx := context.Background()

	t.Run("Accept", func(t *testing.T) {
		f := newFixture(t)
		b := pendingMentorBooking(t, f, 2, 10)

		_, err := f.bookings.AcceptBooking(ctx, menteeID, b.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)

		b, err = f.bookings.AcceptBooking(ctx, mentorID, b.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusConfirmed, b.Status)

		_, err = f.bookings.AcceptBooking(ctx, mentorID, b.ID)
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	})

	t.Run("Decline refunds and reopens", func(t *testing.T) {
		f := newFixture(t)
		b := pendingMentorBooking(t, f, 2, 10)

		b, err := f.bookings.DeclineBooking(ctx, mentorID, b.ID, "unavailable")
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusDeclined, b.Status)
		assert.Equal(t, int64(2000), f.balance(t, menteeID))
		assert.Equal(t, domain.OccurrenceStatusOpen, f.occurrence(t, b.OccurrenceID).Status)
	})

	t.Run("Accept after the deadline", func(t *testing.T) {
		f := newFixture(t)
		b := pendingMentorBooking(t, f, 2, 10)
		f.clock.Advance(25 * time.Hour)

		_, err := f.bookings.AcceptBooking(ctx, mentorID, b.ID)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("Deadline sweep refunds", func(t *testing.T) {
		f := newFixture(t)
		b := pendingMentorBooking(t, f, 2, 10)
		f.clock.Advance(25 * time.Hour)

		n, err := f.bookings.ExpireMentorDeadlines(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := f.bookings.GetBooking(ctx, menteeID, b.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusCancelled, got.Status)
		assert.Equal(t, service.SystemActor, got.CancelledBy)
		assert.Equal(t, int64(2000), f.balance(t, menteeID))

		n, err = f.bookings.ExpireMentorDeadlines(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, int64(2000), f.balance(t, menteeID))
	})
}

func TestBookingService_CancelBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("Early cancel refunds", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, 2, 10, 3000)

		b, err := f.bookings.CancelBooking(ctx, menteeID, b.ID, "changed plans")
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusCancelled, b.Status)
		assert.False(t, b.LateCancel)
		assert.Equal(t, menteeID, b.CancelledBy)
		assert.Equal(t, int64(3000), f.balance(t, menteeID))
		assert.Equal(t, domain.OccurrenceStatusOpen, f.occurrence(t, b.OccurrenceID).Status)
	})

	t.Run("Unpaid cancel moves no money", func(t *testing.T) {
		f := newFixture(t)
		occ := f.publishOneOff(t, 2, 10, ptr(int64(3000)))
		b, err := f.bookings.CreateBooking(ctx, menteeID, occ.ID)
		require.NoError(t, err)

		b, err = f.bookings.CancelBooking(ctx, menteeID, b.ID, "")
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusCancelled, b.Status)
		assert.Equal(t, int64(0), f.balance(t, menteeID))
	})

	t.Run("Late requester cancel pays the mentor", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, 0, 20, 3000)

		b, err := f.bookings.CancelBooking(ctx, menteeID, b.ID, "")
		require.NoError(t, err)
		assert.True(t, b.LateCancel)
		assert.Equal(t, int64(0), f.balance(t, menteeID))
		assert.Equal(t, int64(3000), f.balance(t, mentorID))
	})

	t.Run("Late mentor cancel refunds", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, 0, 20, 3000)

		b, err := f.bookings.CancelBooking(ctx, mentorID, b.ID, "")
		require.NoError(t, err)
		assert.True(t, b.LateCancel)
		assert.Equal(t, int64(3000), f.balance(t, menteeID))
		assert.Equal(t, int64(0), f.balance(t, mentorID))
	})

	t.Run("Late cancel blocked by policy", func(t *testing.T) {
		f := newFixture(t, withPolicy(func(p *config.BookingConfig) { p.BlockLateCancel = true }))
		b := f.confirmedBooking(t, 0, 20, 3000)

		_, err := f.bookings.CancelBooking(ctx, menteeID, b.ID, "")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("After start", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, 0, 20, 3000)
		f.clock.Set(b.StartTime)

		_, err := f.bookings.CancelBooking(ctx, menteeID, b.ID, "")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("Stranger", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, 2, 10, 3000)
		_, err := f.bookings.CancelBooking(ctx, otherID, b.ID, "")
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("Stranger on a terminal booking", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, 0, 12, 3000)
		f.clock.Set(b.EndTime)
		_, err := f.bookings.CompleteBooking(ctx, mentorID, b.ID)
		require.NoError(t, err)

		_, err = f.bookings.CancelBooking(ctx, otherID, b.ID, "")
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	})

	t.Run("Terminal booking", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, 2, 10, 3000)
		_, err := f.bookings.CancelBooking(ctx, menteeID, b.ID, "")
		require.NoError(t, err)

		_, err = f.bookings.CancelBooking(ctx, menteeID, b.ID, "")
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)
		assert.Equal(t, int64(3000), f.balance(t, menteeID))
	})
}

func TestBookingService_CompleteBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("Before the end", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, 0, 12, 3000)
		_, err := f.bookings.CompleteBooking(ctx, mentorID, b.ID)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("Early completion allowed by policy", func(t *testing.T) {
		f := newFixture(t, withPolicy(func(p *config.BookingConfig) { p.AllowEarlyComplete = true }))
		b := f.confirmedBooking(t, 0, 12, 3000)
		b, err := f.bookings.CompleteBooking(ctx, mentorID, b.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusCompleted, b.Status)
	})

	t.Run("Success pays the mentor", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, 0, 12, 3000)
		f.clock.Set(b.EndTime)

		b, err := f.bookings.CompleteBooking(ctx, menteeID, b.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusCompleted, b.Status)
		assert.Equal(t, int64(3000), f.balance(t, mentorID))
		assert.Equal(t, domain.OccurrenceStatusClosed, f.occurrence(t, b.OccurrenceID).Status)

		_, err = f.bookings.CompleteBooking(ctx, menteeID, b.ID)
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)
		assert.Equal(t, int64(3000), f.balance(t, mentorID))
	})

	t.Run("Auto completion sweep", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, 0, 12, 3000)
		f.clock.Set(b.StartTime)
		_, err := f.bookings.RecordAttendance(ctx, mentorID, b.ID)
		require.NoError(t, err)
		_, err = f.bookings.RecordAttendance(ctx, menteeID, b.ID)
		require.NoError(t, err)
		f.clock.Set(b.EndTime.Add(2 * time.Hour))

		n, err := f.bookings.AutoCompleteBookings(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, int64(3000), f.balance(t, mentorID))

		n, err = f.bookings.AutoCompleteBookings(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("Auto completion skips unattended sessions", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, 0, 12, 1000)
		f.clock.Set(b.EndTime.Add(61 * time.Minute))

		n, err := f.bookings.AutoCompleteBookings(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		got, err := f.bookings.GetBooking(ctx, menteeID, b.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusConfirmed, got.Status)
		assert.Equal(t, int64(0), f.balance(t, mentorID))

		got, err = f.noShow.Resolve(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.NoShowBothAbsent, got.NoShowOutcome)
		assert.Equal(t, domain.BookingStatusCancelled, got.Status)
		assert.Equal(t, int64(800), f.balance(t, menteeID))
		assert.Equal(t, int64(0), f.balance(t, mentorID))
	})

	t.Run("Auto completion skips an absent mentor", func(t *testing.T) {
		f := newFixture(t)
		b := f.confirmedBooking(t, 0, 12, 1000)
		f.clock.Set(b.StartTime)
		_, err := f.bookings.RecordAttendance(ctx, menteeID, b.ID)
		require.NoError(t, err)
		f.clock.Set(b.EndTime.Add(2 * time.Hour))

		n, err := f.bookings.AutoCompleteBookings(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, int64(0), f.balance(t, mentorID))
	})
}

func TestBookingService_ExpireUnpaidBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	occ := f.publishOneOff(t, 2, 10, ptr(int64(1000)))
	b, err := f.bookings.CreateBooking(ctx, menteeID, occ.ID)
	require.NoError(t, err)

	n, err := f.bookings.ExpireUnpaidBookings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.clock.Advance(16 * time.Minute)
	n, err = f.bookings.ExpireUnpaidBookings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.bookings.GetBooking(ctx, menteeID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusFailed, got.Status)
	assert.Equal(t, domain.OccurrenceStatusOpen, f.occurrence(t, occ.ID).Status)

	// A payment arriving after expiry is kept as wallet credit.
	_, err = f.bookings.HandlePayment(ctx, service.PaymentEvent{BookingID: b.ID, PaymentRef: "late-pay", Succeeded: true, AmountCents: 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), f.balance(t, menteeID))
}

func TestBookingService_PaymentAfterExpiry(t *testing.T) {
	ctx := context.Background()

	t.Run("Success is credited and the booking fails", func(t *testing.T) {
		f := newFixture(t)
		occ := f.publishOneOff(t, 2, 10, ptr(int64(1000)))
		b, err := f.bookings.CreateBooking(ctx, menteeID, occ.ID)
		require.NoError(t, err)
		f.clock.Advance(16 * time.Minute)

		got, err := f.bookings.HandlePayment(ctx, service.PaymentEvent{BookingID: b.ID, PaymentRef: "pay-late", Succeeded: true, AmountCents: 1000})
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusFailed, got.Status)
		assert.Equal(t, int64(1000), f.balance(t, menteeID))
		assert.Equal(t, int64(0), f.balance(t, mentorID))
		assert.Equal(t, domain.OccurrenceStatusOpen, f.occurrence(t, occ.ID).Status)

		// Replays keep the single credit.
		_, err = f.bookings.HandlePayment(ctx, service.PaymentEvent{BookingID: b.ID, PaymentRef: "pay-late", Succeeded: true, AmountCents: 1000})
		require.NoError(t, err)
		assert.Equal(t, int64(1000), f.balance(t, menteeID))

		n, err := f.bookings.ExpireUnpaidBookings(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("Failure after expiry", func(t *testing.T) {
		f := newFixture(t)
		occ := f.publishOneOff(t, 2, 10, ptr(int64(1000)))
		b, err := f.bookings.CreateBooking(ctx, menteeID, occ.ID)
		require.NoError(t, err)
		f.clock.Advance(16 * time.Minute)

		got, err := f.bookings.HandlePayment(ctx, service.PaymentEvent{BookingID: b.ID, PaymentRef: "pay-late"})
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusFailed, got.Status)
		assert.Equal(t, int64(0), f.balance(t, menteeID))
	})
}

func TestBookingService_RecordAttendance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.confirmedBooking(t, 0, 12, 3000)

	_, err := f.bookings.RecordAttendance(ctx, menteeID, b.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)

	f.clock.Set(b.StartTime.Add(-10 * time.Minute))
	got, err := f.bookings.RecordAttendance(ctx, mentorID, b.ID)
	require.NoError(t, err)
	require.NotNil(t, got.OwnerJoinedAt)
	assert.Nil(t, got.RequesterJoinedAt)

	f.clock.Advance(5 * time.Minute)
	again, err := f.bookings.RecordAttendance(ctx, mentorID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, *got.OwnerJoinedAt, *again.OwnerJoinedAt)

	_, err = f.bookings.RecordAttendance(ctx, otherID, b.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestBookingService_GetAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.confirmedBooking(t, 2, 10, 3000)

	_, err := f.bookings.GetBooking(ctx, otherID, b.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	mine, total, err := f.bookings.ListBookings(ctx, menteeID, false, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int32(1), total)
	assert.Equal(t, b.ID, mine[0].ID)

	owned, _, err := f.bookings.ListBookings(ctx, mentorID, true, domain.BookingStatusConfirmed, 1, 10)
	require.NoError(t, err)
	assert.Len(t, owned, 1)

	_, _, err = f.bookings.ListBookings(ctx, mentorID, true, "BOGUS", 1, 10)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
