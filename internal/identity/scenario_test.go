package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacrednumerology/sacred-backend/internal/access"
	"github.com/sacrednumerology/sacred-backend/internal/catalog"
	"github.com/sacrednumerology/sacred-backend/internal/purchases"
	"github.com/sacrednumerology/sacred-backend/pkg/auth"
	"github.com/sacrednumerology/sacred-backend/pkg/db/dbtest"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	pkgerrors "github.com/sacrednumerology/sacred-backend/pkg/errors"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
	"github.com/sacrednumerology/sacred-backend/pkg/storage/local"
)

// New buyer enrols in a course, burns the attempt cap, verifies with a fresh
// code and is then rejected. Access never opens.
func TestNewAccountCourseRejectedAfterVerification(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	const email = "asha@example.com"

	store, err := local.New(t.TempDir())
	require.NoError(t, err)
	signer, err := auth.NewStreamTicketSigner("stream-secret", "sacred-numerology", time.Minute)
	require.NoError(t, err)
	gate, err := access.NewService(access.ServiceParams{
		Repo:       access.NewRepository(h.client.DB()),
		Catalog:    catalog.NewRepository(h.client.DB()),
		Store:      store,
		Bucket:     "assets",
		Signer:     signer,
		StreamBase: "https://api.example.com/api/v1/stream",
		Logger:     logger.Nop(),
		Clock:      h.clock.Now,
	})
	require.NoError(t, err)
	video := dbtest.SeedAsset(t, h.client, h.item.ID, enums.AssetKindVideo, "courses/foundations/01.mp4")
	admin := dbtest.SeedUser(t, h.client, "admin@example.com", enums.UserRoleAdmin)

	purchaseID := h.enroll(t, email)
	bad := VerifyInput{Email: email, PurchaseID: purchaseID, Code: wrongCode(h.sender.code(purchaseID))}
	for range 2 {
		_, err = h.identity.Verify(ctx, bad)
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOTPInvalid))
	}
	_, err = h.identity.Verify(ctx, bad)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOTPAttemptsExceeded))

	_, err = h.identity.Issue(ctx, email, purchaseID)
	require.NoError(t, err)
	res, err := h.identity.Verify(ctx, VerifyInput{Email: email, PurchaseID: purchaseID, Code: h.sender.code(purchaseID)})
	require.NoError(t, err)
	assert.Equal(t, enums.PurchaseStatusPendingModeration, res.Status)

	var accounts int64
	require.NoError(t, h.client.DB().Table("users").Where("email = ?", email).Count(&accounts).Error)
	assert.EqualValues(t, 1, accounts)

	_, err = h.purchases.Decide(ctx, purchases.DecideInput{
		PurchaseID: purchaseID,
		Outcome:    enums.DecisionReject,
		Actor:      admin.ID,
		Note:       "amount not received",
	})
	require.NoError(t, err)

	who := access.Identity{UserID: res.UserID, Email: email}
	allowed, err := gate.CanAccess(ctx, who, video.ID)
	require.NoError(t, err)
	assert.False(t, allowed)

	_, err = h.purchases.Decide(ctx, purchases.DecideInput{PurchaseID: purchaseID, Outcome: enums.DecisionApprove, Actor: admin.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	h.clock.Advance(30 * 24 * time.Hour)
	allowed, err = gate.CanAccess(ctx, who, video.ID)
	require.NoError(t, err)
	assert.False(t, allowed)
}
