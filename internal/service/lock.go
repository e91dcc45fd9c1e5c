package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker guards a short critical section across concurrent workers.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string)
}

// RedisLocker implements Locker with a SET NX key that expires on its own
// if the holder dies.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, "1", ttl).Result()
}

func (l *RedisLocker) Release(ctx context.Context, key string) {
	l.client.Del(ctx, key)
}
