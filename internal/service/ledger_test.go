package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"mentorbook-backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerService_Apply(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newFixture(t)
		entry, err := f.ledger.TopUp(ctx, menteeID, 5000, "topup-1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), entry.BalanceBefore)
		assert.Equal(t, int64(5000), entry.BalanceAfter)

		entry, err = f.ledger.Withdraw(ctx, menteeID, 1200, "withdraw-1")
		require.NoError(t, err)
		assert.Equal(t, int64(5000), entry.BalanceBefore)
		assert.Equal(t, int64(3800), entry.BalanceAfter)
		assert.Equal(t, int64(3800), f.balance(t, menteeID))
	})

	t.Run("Replay returns the first entry", func(t *testing.T) {
		f := newFixture(t)
		first, err := f.ledger.TopUp(ctx, menteeID, 5000, "topup-1")
		require.NoError(t, err)
		again, err := f.ledger.TopUp(ctx, menteeID, 5000, "topup-1")
		require.NoError(t, err)

		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, int64(5000), f.balance(t, menteeID))
	})

	t.Run("Same key under another source is a separate entry", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ledger.TopUp(ctx, menteeID, 5000, "k")
		require.NoError(t, err)
		_, err = f.ledger.Withdraw(ctx, menteeID, 1000, "k")
		require.NoError(t, err)
		assert.Equal(t, int64(4000), f.balance(t, menteeID))
	})

	t.Run("Insufficient balance", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ledger.TopUp(ctx, menteeID, 500, "topup-1")
		require.NoError(t, err)

		_, err = f.ledger.Withdraw(ctx, menteeID, 501, "withdraw-1")
		assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
		assert.Equal(t, int64(500), f.balance(t, menteeID))
	})

	t.Run("Locked wallet rejects mutations", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ledger.TopUp(ctx, menteeID, 500, "topup-1")
		require.NoError(t, err)
		w, err := f.ledger.SetWalletLocked(ctx, menteeID, true)
		require.NoError(t, err)
		assert.Equal(t, domain.WalletStatusLocked, w.Status)

		_, err = f.ledger.TopUp(ctx, menteeID, 500, "topup-2")
		assert.ErrorIs(t, err, domain.ErrWalletLocked)

		_, err = f.ledger.SetWalletLocked(ctx, menteeID, false)
		require.NoError(t, err)
		_, err = f.ledger.TopUp(ctx, menteeID, 500, "topup-2")
		assert.NoError(t, err)
	})

	t.Run("Validation", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ledger.TopUp(ctx, menteeID, 500, "")
		assert.ErrorIs(t, err, domain.ErrValidation)
		_, err = f.ledger.TopUp(ctx, menteeID, 0, "k")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestLedgerService_ConcurrentReplays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, err := f.ledger.TopUp(ctx, menteeID, 100, "same-key")
			if assert.NoError(t, err) {
				ids[i] = entry.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, int64(100), f.balance(t, menteeID))
}

func TestLedgerService_BalanceIsFoldOfEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := f.ledger.TopUp(ctx, menteeID, int64(100*(i+1)), fmt.Sprintf("topup-%d", i))
		require.NoError(t, err)
		if i%3 == 0 {
			_, err = f.ledger.Withdraw(ctx, menteeID, 50, fmt.Sprintf("withdraw-%d", i))
			require.NoError(t, err)
		}
	}

	entries, err := f.store.Ledger.ListAllByOwner(ctx, menteeID)
	require.NoError(t, err)
	var folded int64
	for _, e := range entries {
		assert.Equal(t, folded, e.BalanceBefore)
		folded += e.Direction.Sign() * e.AmountCents
		assert.Equal(t, folded, e.BalanceAfter)
	}
	assert.Equal(t, folded, f.balance(t, menteeID))

	summary, err := f.ledger.GetLedgerSummary(ctx, menteeID)
	require.NoError(t, err)
	assert.NotNil(t, summary)
}

func TestLedgerService_GetWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("Missing wallet reads as empty", func(t *testing.T) {
		w, err := f.ledger.GetWallet(ctx, "nobody")
		require.NoError(t, err)
		assert.Equal(t, int64(0), w.BalanceCents)
		assert.Equal(t, domain.WalletStatusActive, w.Status)
	})

	t.Run("Transactions are paged", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_, err := f.ledger.TopUp(ctx, menteeID, 100, fmt.Sprintf("t-%d", i))
			require.NoError(t, err)
		}
		page, total, err := f.ledger.GetTransactions(ctx, menteeID, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, int32(3), total)
		assert.Len(t, page, 2)
	})
}
