package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/repository"
)

func TestStore_WithinTx(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("RollbackOnError", func(t *testing.T) {
		store := NewStore()
		boom := errors.New("boom")
		err := store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
			if err := repos.Wallets.Create(ctx, &domain.Wallet{ID: "w1", OwnerID: "u1", CreatedAt: now}); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = store.Wallets.GetByOwner(ctx, "u1")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("CommitOnSuccess", func(t *testing.T) {
		store := NewStore()
		err := store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
			return repos.Wallets.Create(ctx, &domain.Wallet{ID: "w1", OwnerID: "u1", CreatedAt: now})
		})
		require.NoError(t, err)

		w, err := store.Wallets.GetByOwner(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "w1", w.ID)
	})

	t.Run("ConcurrentIncrementsSerialize", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.Wallets.Create(ctx, &domain.Wallet{ID: "w1", OwnerID: "u1"}))

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
					w, err := repos.Wallets.GetForUpdate(ctx, "u1")
					if err != nil {
						return err
					}
					w.BalanceCents++
					return repos.Wallets.Update(ctx, w)
				})
			}()
		}
		wg.Wait()

		w, err := store.Wallets.GetByOwner(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(50), w.BalanceCents)
	})
}

func TestLedgerRepository_UniqueKey(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	entry := &domain.LedgerEntry{ID: "e1", OwnerID: "u1", Source: domain.SourceTopUp, IdempotencyKey: "k1", AmountCents: 10}

	require.NoError(t, store.Ledger.Append(ctx, entry))

	dup := *entry
	dup.ID = "e2"
	assert.True(t, errors.Is(store.Ledger.Append(ctx, &dup), domain.ErrDuplicate))

	other := *entry
	other.ID = "e3"
	other.Source = domain.SourceWithdrawal
	assert.NoError(t, store.Ledger.Append(ctx, &other))
}

func TestBookingRepository_OneActivePerOccurrence(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	first := &domain.Booking{ID: "b1", OccurrenceID: "o1", Status: domain.BookingStatusPaymentPending}
	require.NoError(t, store.Bookings.Create(ctx, first))

	second := &domain.Booking{ID: "b2", OccurrenceID: "o1", Status: domain.BookingStatusPaymentPending}
	assert.True(t, errors.Is(store.Bookings.Create(ctx, second), domain.ErrDuplicate))

	first.Status = domain.BookingStatusFailed
	require.NoError(t, store.Bookings.Update(ctx, first))
	assert.NoError(t, store.Bookings.Create(ctx, second))

	active, err := store.Bookings.GetActiveByOccurrence(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "b2", active.ID)
}
