package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mentorbook-backend/internal/logger"
)

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

type RedisService struct {
	client redis.UniversalClient
}

func NewRedisService(client redis.UniversalClient) *RedisService {
	return &RedisService{client: client}
}

func (s *RedisService) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	logger.ExternalServiceCall("redis", "SETNX", "key", key, "ttl", ttl)
	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	logger.ExternalServiceResult("redis", "SETNX", err, "key", key, "acquired", ok)
	if err != nil {
		return "", fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return "", ErrHeld
	}
	return token, nil
}

func (s *RedisService) Release(ctx context.Context, key, token string) error {
	res, err := releaseScript.Run(ctx, s.client, []string{key}, token).Int()
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if res == 0 {
		return ErrNotOwner
	}
	return nil
}
