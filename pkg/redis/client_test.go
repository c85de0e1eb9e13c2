package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacrednumerology/sacred-backend/pkg/config"
)

func TestHitStartsWindowOnFirstAttempt(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.RateLimitKey("otp:ip:10.0.0.1")

	for i := 1; i <= 3; i++ {
		count, retryAfter, err := client.Hit(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(i), count)
		assert.Equal(t, time.Minute, retryAfter)
	}
	assert.Equal(t, []string{"sn:rate_limit:otp:ip:10.0.0.1"}, mock.windowsStarted)

	_, _, err := client.Hit(ctx, key, 0)
	assert.Error(t, err)
}

func TestSessionRecordLifecycle(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	key := client.AccessSessionKey("jti-1")
	require.NoError(t, client.Set(ctx, key, `{"userId":"u1"}`, 10*time.Minute))

	value, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"userId":"u1"}`, value)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "sn:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "sn:rate_limit:scope", client.RateLimitKey(" scope "))
	assert.Equal(t, "sn:session:access:abc", client.AccessSessionKey("abc"))
	assert.Equal(t, "sn:session:revoked:u1", client.UserRevocationKey("u1"))
	assert.Equal(t, "sn:lock:otp:a@example.com:p1", client.LockKey("otp", "a@example.com", "", "p1"))
}

func TestUninitializedClientFails(t *testing.T) {
	client := &Client{}
	assert.Error(t, client.Ping(context.Background()))
	_, _, err := client.Hit(context.Background(), "k", time.Second)
	assert.Error(t, err)
	assert.NoError(t, client.Close())
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	assert.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://:pw@cache:6380/2", PoolSize: 20, DB: 5})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB, "db from the url wins")
	assert.Equal(t, 20, opts.PoolSize)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, opts.DB)
}

func TestTryLockIsExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.LockKey("otp", "k")

	first, ok, err := client.TryLock(ctx, key, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = client.TryLock(ctx, key, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Release(ctx))
	second, ok, err := client.TryLock(ctx, key, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotNil(t, second)
}

func TestReleaseDoesNotDropForeignLock(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.LockKey("cron")

	stale := &Lock{client: client, key: key, owner: "someone-else"}
	_, ok, err := client.TryLock(ctx, key, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, stale.Release(ctx))
	_, stillHeld := mock.data[key]
	assert.True(t, stillHeld)
}

func TestWaitLockTimesOut(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.LockKey("busy")

	_, ok, err := client.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = client.WaitLock(ctx, key, time.Minute, 60*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

type mockCmdable struct {
	data           map[string]string
	counters       map[string]int64
	windows        map[string]time.Duration
	windowsStarted []string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:     make(map[string]string),
		counters: make(map[string]int64),
		windows:  make(map[string]time.Duration),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

// Eval understands the two scripts the package runs.
func (m *mockCmdable) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	key := keys[0]
	if script == hitScript {
		m.counters[key]++
		if m.counters[key] == 1 {
			m.windows[key] = time.Duration(args[0].(int64)) * time.Millisecond
			m.windowsStarted = append(m.windowsStarted, key)
		}
		return redis.NewCmdResult([]any{m.counters[key], m.windows[key].Milliseconds()}, nil)
	}
	if m.data[key] == fmt.Sprint(args[0]) {
		delete(m.data, key)
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}
