package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacrednumerology/sacred-backend/internal/users"
	"github.com/sacrednumerology/sacred-backend/pkg/config"
	"github.com/sacrednumerology/sacred-backend/pkg/db/dbtest"
	"github.com/sacrednumerology/sacred-backend/pkg/db/models"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	pkgerrors "github.com/sacrednumerology/sacred-backend/pkg/errors"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
	"github.com/sacrednumerology/sacred-backend/pkg/security"
)

type recordingRevoker struct {
	mu      sync.Mutex
	revoked []uuid.UUID
	err     error
}

func (r *recordingRevoker) RevokeUser(_ context.Context, userID uuid.UUID, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.revoked = append(r.revoked, userID)
	return nil
}

type resetHarness struct {
	*harness
	reset   PasswordResetService
	revoker *recordingRevoker
	user    models.User
}

func newResetHarness(t *testing.T) *resetHarness {
	t.Helper()
	h := newHarness(t)
	revoker := &recordingRevoker{}
	svc, err := NewPasswordResetService(ResetParams{
		Repo:     NewResetRepository(h.client.DB()),
		Users:    users.NewRepository(h.client.DB()),
		Tx:       h.client,
		Sender:   h.sender,
		Locker:   &memLocker{locks: map[string]*sync.Mutex{}},
		Sessions: revoker,
		Config:   config.OTPConfig{Length: 6, TTL: 10 * time.Minute, MaxAttempts: 3},
		Password: config.PasswordConfig{
			ArgonMemoryKB: 8 * 1024, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32,
		},
		Logger: logger.Nop(),
		Clock:  h.clock.Now,
	})
	require.NoError(t, err)
	user := dbtest.SeedUser(t, h.client, "reader@example.com", enums.UserRoleCustomer)
	return &resetHarness{harness: h, reset: svc, revoker: revoker, user: user}
}

// resetCode is the last reset code mailed; reset messages carry no purchase.
func (h *resetHarness) resetCode() string {
	return h.sender.code(uuid.Nil)
}

func (h *resetHarness) storedHash(t *testing.T) string {
	t.Helper()
	user, err := users.NewRepository(h.client.DB()).FindByID(context.Background(), h.user.ID)
	require.NoError(t, err)
	return user.PasswordHash
}

func TestReset_FullFlowReplacesPasswordAndSignsOut(t *testing.T) {
	h := newResetHarness(t)
	ctx := context.Background()

	challenge, err := h.reset.RequestReset(ctx, " Reader@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "reader@example.com", challenge.Email)
	assert.Equal(t, h.clock.Now().Add(10*time.Minute), challenge.ExpiresAt)
	code := h.resetCode()
	require.Len(t, code, 6)

	err = h.reset.CheckReset(ctx, ResetCheckInput{Email: "reader@example.com", Code: wrongCode(code)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOTPInvalid))
	require.NoError(t, h.reset.CheckReset(ctx, ResetCheckInput{Email: "reader@example.com", Code: code}))

	err = h.reset.ResetPassword(ctx, ResetPasswordInput{Email: "reader@example.com", Code: code, NewPassword: "short"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, "unused", h.storedHash(t))

	require.NoError(t, h.reset.ResetPassword(ctx, ResetPasswordInput{Email: "READER@example.com", Code: code, NewPassword: "a-new-secret"}))
	ok, err := security.VerifyPassword("a-new-secret", h.storedHash(t))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []uuid.UUID{h.user.ID}, h.revoker.revoked)

	err = h.reset.ResetPassword(ctx, ResetPasswordInput{Email: "reader@example.com", Code: code, NewPassword: "another-secret"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOTPInvalid), "a code resets once")
}

func TestReset_UnknownOrInactiveAccountGetsSameAnswer(t *testing.T) {
	h := newResetHarness(t)
	ctx := context.Background()
	require.NoError(t, h.client.DB().Model(&models.User{}).Where("id = ?", h.user.ID).Update("is_active", false).Error)

	for _, email := range []string{"nobody@example.com", "reader@example.com"} {
		challenge, err := h.reset.RequestReset(ctx, email)
		require.NoError(t, err)
		assert.Equal(t, email, challenge.Email)
		assert.Equal(t, h.clock.Now().Add(10*time.Minute), challenge.ExpiresAt)
	}
	assert.Zero(t, h.sender.sent)

	var rows int64
	require.NoError(t, h.client.DB().Model(&models.PasswordResetChallenge{}).Count(&rows).Error)
	assert.Zero(t, rows)

	err := h.reset.ResetPassword(ctx, ResetPasswordInput{Email: "nobody@example.com", Code: "123456", NewPassword: "a-new-secret"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOTPInvalid))

	_, err = h.reset.RequestReset(ctx, "  ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestReset_AttemptCapSharedAcrossCheckAndReset(t *testing.T) {
	h := newResetHarness(t)
	ctx := context.Background()
	_, err := h.reset.RequestReset(ctx, "reader@example.com")
	require.NoError(t, err)
	code := h.resetCode()
	bad := wrongCode(code)

	err = h.reset.CheckReset(ctx, ResetCheckInput{Email: "reader@example.com", Code: bad})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOTPInvalid))
	err = h.reset.ResetPassword(ctx, ResetPasswordInput{Email: "reader@example.com", Code: bad, NewPassword: "a-new-secret"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOTPInvalid))
	err = h.reset.CheckReset(ctx, ResetCheckInput{Email: "reader@example.com", Code: bad})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOTPAttemptsExceeded))

	err = h.reset.ResetPassword(ctx, ResetPasswordInput{Email: "reader@example.com", Code: code, NewPassword: "a-new-secret"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOTPAttemptsExceeded))
	assert.Equal(t, "unused", h.storedHash(t))
	assert.Empty(t, h.revoker.revoked)

	_, err = h.reset.RequestReset(ctx, "reader@example.com")
	require.NoError(t, err)
	require.NoError(t, h.reset.ResetPassword(ctx, ResetPasswordInput{Email: "reader@example.com", Code: h.resetCode(), NewPassword: "a-new-secret"}))
}

func TestReset_ExpiredCode(t *testing.T) {
	h := newResetHarness(t)
	ctx := context.Background()
	_, err := h.reset.RequestReset(ctx, "reader@example.com")
	require.NoError(t, err)

	h.clock.Advance(10 * time.Minute)
	err = h.reset.ResetPassword(ctx, ResetPasswordInput{Email: "reader@example.com", Code: h.resetCode(), NewPassword: "a-new-secret"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOTPExpired))
	assert.Equal(t, "unused", h.storedHash(t))
}

func TestReset_SignOutFailureKeepsOldPassword(t *testing.T) {
	h := newResetHarness(t)
	ctx := context.Background()
	_, err := h.reset.RequestReset(ctx, "reader@example.com")
	require.NoError(t, err)
	code := h.resetCode()

	h.revoker.err = errors.New("redis down")
	err = h.reset.ResetPassword(ctx, ResetPasswordInput{Email: "reader@example.com", Code: code, NewPassword: "a-new-secret"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, "unused", h.storedHash(t))

	h.revoker.err = nil
	require.NoError(t, h.reset.ResetPassword(ctx, ResetPasswordInput{Email: "reader@example.com", Code: code, NewPassword: "a-new-secret"}),
		"the rolled back attempt leaves the code usable")
}

func TestReset_DeliveryFailureIsDependencyError(t *testing.T) {
	h := newResetHarness(t)
	h.sender.err = errors.New("smtp down")
	_, err := h.reset.RequestReset(context.Background(), "reader@example.com")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestResetRepository_DeleteBefore(t *testing.T) {
	h := newResetHarness(t)
	ctx := context.Background()
	_, err := h.reset.RequestReset(ctx, "reader@example.com")
	require.NoError(t, err)

	repo := NewResetRepository(h.client.DB())
	n, err := repo.DeleteBefore(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = repo.DeleteBefore(ctx, h.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
