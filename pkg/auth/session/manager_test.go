package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *mockStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return val, nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *mockStore) AccessSessionKey(accessID string) string {
	return "sess:" + accessID
}

func (m *mockStore) UserRevocationKey(userID string) string {
	return "revoked:" + userID
}

func newTestManager() (*Manager, *mockStore) {
	store := newMockStore()
	return &Manager{store: store, keyer: store, ttl: time.Hour, now: time.Now}, store
}

func TestManagerGenerateAndRotate(t *testing.T) {
	manager, store := newTestManager()
	ctx := context.Background()
	userID := uuid.New()

	token, err := manager.Generate(ctx, "access-123", userID)
	require.NoError(t, err)
	require.Contains(t, store.data, "sess:access-123")

	_, _, err = manager.Rotate(ctx, "access-123", userID, "wrong")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, _, err = manager.Rotate(ctx, "access-123", uuid.New(), token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	newAccessID, newToken, err := manager.Rotate(ctx, "access-123", userID, token)
	require.NoError(t, err)
	assert.NotEqual(t, token, newToken)
	assert.NotContains(t, store.data, "sess:access-123")

	ok, err := manager.HasSession(ctx, newAccessID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, err = manager.Rotate(ctx, "access-123", userID, token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestManagerRevoke(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()

	_, err := manager.Generate(ctx, "a1", uuid.New())
	require.NoError(t, err)
	require.NoError(t, manager.Revoke(ctx, "a1"))

	ok, err := manager.HasSession(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManagerStoresOnlyTokenDigest(t *testing.T) {
	manager, store := newTestManager()
	token, err := manager.Generate(context.Background(), "a2", uuid.New())
	require.NoError(t, err)

	raw := store.data["sess:a2"]
	assert.NotContains(t, raw, token)
	assert.Contains(t, raw, digest(token))
}

func TestManagerRejectsLegacyRecord(t *testing.T) {
	manager, store := newTestManager()
	userID := uuid.New()
	store.data["sess:old"] = `{"user_id":"` + userID.String() + `","refresh_token":"plain"}`

	_, _, err := manager.Rotate(context.Background(), "old", userID, "plain")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestManagerRevokeUserEndsEarlierSessions(t *testing.T) {
	manager, _ := newTestManager()
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return now }
	userID := uuid.New()
	other := uuid.New()

	token, err := manager.Generate(ctx, "before", userID)
	require.NoError(t, err)
	_, err = manager.Generate(ctx, "someone-else", other)
	require.NoError(t, err)

	require.NoError(t, manager.RevokeUser(ctx, userID, now))

	ok, err := manager.HasSession(ctx, "before")
	require.NoError(t, err)
	assert.False(t, ok)
	_, _, err = manager.Rotate(ctx, "before", userID, token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	ok, err = manager.HasSession(ctx, "someone-else")
	require.NoError(t, err)
	assert.True(t, ok, "other accounts keep their sessions")

	now = now.Add(time.Second)
	fresh, err := manager.Generate(ctx, "after", userID)
	require.NoError(t, err)
	ok, err = manager.HasSession(ctx, "after")
	require.NoError(t, err)
	assert.True(t, ok, "sign-in after the cutoff is unaffected")
	_, _, err = manager.Rotate(ctx, "after", userID, fresh)
	assert.NoError(t, err)

	assert.Error(t, manager.RevokeUser(ctx, uuid.Nil, now))
}
