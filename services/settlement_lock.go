package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const settlementLockKey = "settlement:lock:%s"

// SettlementLock claims a tournament so that only one scheduler instance settles it at a time.
type SettlementLock interface {
	Acquire(ctx context.Context, tournamentID string) (release func(context.Context) error, err error)
}

// releaseScript deletes the key only while it still holds our token, so an expired
// lease taken over by another worker is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisSettlementLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSettlementLock(client *redis.Client, ttl time.Duration) *RedisSettlementLock {
	return &RedisSettlementLock{client: client, ttl: ttl}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (l *RedisSettlementLock) Acquire(ctx context.Context, tournamentID string) (func(context.Context) error, error) {
	key := fmt.Sprintf(settlementLockKey, tournamentID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim settlement lock: %w", err)
	}
	if !ok {
		return nil, ErrSettlementLocked
	}

	release := func(ctx context.Context) error {
		err := releaseScript.Run(ctx, l.client, []string{key}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to release settlement lock: %w", err)
		}
		return nil
	}
	return release, nil
}
