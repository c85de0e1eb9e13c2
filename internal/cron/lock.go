package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pkgredis "github.com/sacrednumerology/sacred-backend/pkg/redis"
)

const defaultLockTTL = 10 * time.Minute

// Lock coordinates exclusive cron runs across replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// RedisLock holds the cron key through pkg/redis, which releases only while the
// key still carries our owner token.
type RedisLock struct {
	client *pkgredis.Client
	key    string
	ttl    time.Duration

	mu   sync.Mutex
	held *pkgredis.Lock
}

// NewRedisLock constructs a Redis-backed lock. The ttl must outlast one full cycle.
func NewRedisLock(client *pkgredis.Client, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: client.LockKey("cron"), ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	held, ok, err := l.client.TryLock(ctx, l.key, l.ttl)
	if err != nil {
		return false, fmt.Errorf("try lock: %w", err)
	}
	if !ok {
		return false, nil
	}
	l.mu.Lock()
	l.held = held
	l.mu.Unlock()
	return true, nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	held := l.held
	l.held = nil
	l.mu.Unlock()
	if held == nil {
		return nil
	}
	if err := held.Release(ctx); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
