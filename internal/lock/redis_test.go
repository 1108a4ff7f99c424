package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisService(t *testing.T) (*RedisService, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisService(client), mr
}

func TestRedisService(t *testing.T) {
	ctx := context.Background()
	key := "booking:occurrence:o-1"

	t.Run("SecondAcquireRejected", func(t *testing.T) {
		svc, _ := newRedisService(t)
		token, err := svc.Acquire(ctx, key, 30*time.Second)
		require.NoError(t, err)
		assert.NotEmpty(t, token)

		_, err = svc.Acquire(ctx, key, 30*time.Second)
		assert.ErrorIs(t, err, ErrHeld)

		require.NoError(t, svc.Release(ctx, key, token))
		_, err = svc.Acquire(ctx, key, 30*time.Second)
		assert.NoError(t, err)
	})

	t.Run("ReleaseWithForeignTokenKeepsLock", func(t *testing.T) {
		svc, mr := newRedisService(t)
		token, err := svc.Acquire(ctx, key, 30*time.Second)
		require.NoError(t, err)

		assert.ErrorIs(t, svc.Release(ctx, key, "someone-else"), ErrNotOwner)
		got, err := mr.Get(key)
		require.NoError(t, err)
		assert.Equal(t, token, got)
	})

	t.Run("ExpiredLeaseCanBeTaken", func(t *testing.T) {
		svc, mr := newRedisService(t)
		stale, err := svc.Acquire(ctx, key, time.Second)
		require.NoError(t, err)

		mr.FastForward(2 * time.Second)
		fresh, err := svc.Acquire(ctx, key, time.Second)
		require.NoError(t, err)
		assert.NotEqual(t, stale, fresh)
		assert.ErrorIs(t, svc.Release(ctx, key, stale), ErrNotOwner)
	})

	t.Run("BackendDown", func(t *testing.T) {
		svc, mr := newRedisService(t)
		mr.Close()
		_, err := svc.Acquire(ctx, key, time.Second)
		assert.Error(t, err)
		assert.False(t, errors.Is(err, ErrHeld))
	})
}
