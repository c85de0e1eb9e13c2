package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrLockTimeout is returned when a lock could not be obtained within the wait budget.
var ErrLockTimeout = errors.New("redis lock: timed out waiting for lock")

const lockPollInterval = 25 * time.Millisecond

// releaseScript deletes the key only while it still belongs to the caller.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// Lock is a held lock. Release is safe to call more than once.
type Lock struct {
	client *Client
	key    string
	owner  string
}

// TryLock attempts to take key once. ok is false when someone else holds it.
func (c *Client) TryLock(ctx context.Context, key string, ttl time.Duration) (*Lock, bool, error) {
	owner := uuid.NewString()
	ok, err := c.SetNX(ctx, key, owner, ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Lock{client: c, key: key, owner: owner}, true, nil
}

// WaitLock polls until key is acquired, wait elapses or ctx ends.
func (c *Client) WaitLock(ctx context.Context, key string, ttl, wait time.Duration) (*Lock, error) {
	deadline := time.Now().Add(wait)
	for {
		lock, ok, err := c.TryLock(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return lock, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// Release frees the lock if it is still owned by this holder.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil || l.client == nil || l.client.store == nil {
		return nil
	}
	return l.client.store.Eval(ctx, releaseScript, []string{l.key}, l.owner).Err()
}
