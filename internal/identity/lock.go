package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/sacrednumerology/sacred-backend/pkg/errors"
	"github.com/sacrednumerology/sacred-backend/pkg/redis"
)

// Locker serialises work on one challenge key across API replicas.
type Locker interface {
	Lock(ctx context.Context, email string, purchaseID uuid.UUID) (unlock func(), err error)
}

// RedisLocker takes `sn:lock:otp:{email}:{purchaseID}`.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker builds a Locker over the shared Redis client.
func NewRedisLocker(client *redis.Client, wait time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisLocker{client: client, ttl: 2 * wait, wait: wait}, nil
}

func (l *RedisLocker) Lock(ctx context.Context, email string, purchaseID uuid.UUID) (func(), error) {
	lock, err := l.client.WaitLock(ctx, l.client.LockKey("otp", email, purchaseID.String()), l.ttl, l.wait)
	if errors.Is(err, redis.ErrLockTimeout) {
		return nil, pkgerrors.New(pkgerrors.CodeRateLimit, "verification already in progress; try again")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire otp lock")
	}
	return func() {
		// fresh context: the request may already be canceled
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = lock.Release(releaseCtx)
	}, nil
}
