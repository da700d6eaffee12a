// internal/infra/lock/redis_lock.go
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLocker is a SET NX based mutual-exclusion lock. It keeps the daily
// sweep single-flight across process instances; without it, two instances
// running the sweep at the same time would double-send reminders.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker connects to redis and verifies connectivity.
func NewRedisLocker(redisURL string) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisLocker{client: client}, nil
}

// Acquire takes the named lock for at most ttl. Returns false when another
// holder already has it.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, "locked", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %q: %w", key, err)
	}
	return ok, nil
}

// Release drops the named lock. Releasing a lock that expired is a no-op.
func (l *RedisLocker) Release(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release lock %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying redis connection.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
