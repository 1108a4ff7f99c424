package service_test

import (
	"context"
	"testing"
	"time"

	"mentorbook-backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoShowService_Resolve(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name           string
		ownerJoins     bool
		requesterJoins bool
		wantStatus     domain.BookingStatus
		wantOutcome    domain.NoShowOutcome
		wantRequester  int64
		wantOwner      int64
		wantPlatform   int64
	}{
		{
			name:           "Mentor absent",
			requesterJoins: true,
			wantStatus:     domain.BookingStatusCancelled,
			wantOutcome:    domain.NoShowOwnerAbsent,
			wantRequester:  10000,
		},
		{
			name:        "Mentee absent",
			ownerJoins:  true,
			wantStatus:  domain.BookingStatusCompleted,
			wantOutcome: domain.NoShowRequesterAbsent,
			wantOwner:   10000,
		},
		{
			name:          "Both absent",
			wantStatus:    domain.BookingStatusCancelled,
			wantOutcome:   domain.NoShowBothAbsent,
			wantRequester: 8000,
			wantPlatform:  2000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			b := f.confirmedBooking(t, 0, 12, 10000)

			f.clock.Set(b.StartTime.Add(-5 * time.Minute))
			if tt.ownerJoins {
				_, err := f.bookings.RecordAttendance(ctx, mentorID, b.ID)
				require.NoError(t, err)
			}
			if tt.requesterJoins {
				_, err := f.bookings.RecordAttendance(ctx, menteeID, b.ID)
				require.NoError(t, err)
			}

			f.clock.Set(b.StartTime.Add(20 * time.Minute))
			got, err := f.noShow.Resolve(ctx, b.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantOutcome, got.NoShowOutcome)
			assert.Equal(t, tt.wantPlatform, got.PlatformFeeCents)
			assert.Equal(t, tt.wantRequester, f.balance(t, menteeID))
			assert.Equal(t, tt.wantOwner, f.balance(t, mentorID))
			assert.Equal(t, tt.wantPlatform, f.balance(t, domain.PlatformOwnerID))
			assert.Contains(t, f.notifier.Types(), domain.EventBookingNoShow)

			again, err := f.noShow.Resolve(ctx, b.ID)
			require.NoError(t, err)
			assert.Equal(t, got.Status, again.Status)
			assert.Equal(t, tt.wantRequester, f.balance(t, menteeID))
			assert.Equal(t, tt.wantOwner, f.balance(t, mentorID))
			assert.Equal(t, tt.wantPlatform, f.balance(t, domain.PlatformOwnerID))
		})
	}
}

func TestNoShowService_BothJoinedIsLeftAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.confirmedBooking(t, 0, 12, 10000)

	f.clock.Set(b.StartTime)
	_, err := f.bookings.RecordAttendance(ctx, mentorID, b.ID)
	require.NoError(t, err)
	_, err = f.bookings.RecordAttendance(ctx, menteeID, b.ID)
	require.NoError(t, err)

	f.clock.Set(b.StartTime.Add(30 * time.Minute))
	got, err := f.noShow.Resolve(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, got.Status)
	assert.Equal(t, domain.NoShowNone, got.NoShowOutcome)
	assert.Equal(t, int64(0), f.balance(t, mentorID))
}

func TestNoShowService_WithinGrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.confirmedBooking(t, 0, 12, 10000)

	f.clock.Set(b.StartTime.Add(10 * time.Minute))
	got, err := f.noShow.Resolve(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, got.Status)

	n, err := f.noShow.ResolveDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestNoShowService_ResolveDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.confirmedBooking(t, 0, 12, 10000)
	second := f.confirmedBooking(t, 0, 14, 5000)

	f.clock.Set(first.StartTime.Add(20 * time.Minute))
	n, err := f.noShow.ResolveDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f.clock.Set(second.StartTime.Add(20 * time.Minute))
	n, err = f.noShow.ResolveDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.noShow.ResolveDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.Equal(t, int64(8000+4000), f.balance(t, menteeID))
	assert.Equal(t, int64(2000+1000), f.balance(t, domain.PlatformOwnerID))
}
