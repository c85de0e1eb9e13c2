package moderation

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacrednumerology/sacred-backend/internal/purchases"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	pkgerrors "github.com/sacrednumerology/sacred-backend/pkg/errors"
)

type fakeLedger struct {
	purchases.Service
	listParams purchases.ListParams
	list       *purchases.ListResult
	decided    []purchases.DecideInput
	decideErr  error
	proofFor   uuid.UUID
}

func (f *fakeLedger) ListByStatus(_ context.Context, params purchases.ListParams) (*purchases.ListResult, error) {
	f.listParams = params
	return f.list, nil
}

func (f *fakeLedger) Decide(_ context.Context, input purchases.DecideInput) (*purchases.PurchaseDTO, error) {
	if f.decideErr != nil {
		return nil, f.decideErr
	}
	f.decided = append(f.decided, input)
	status := input.Outcome.TargetStatus()
	return &purchases.PurchaseDTO{ID: input.PurchaseID, Status: status}, nil
}

func (f *fakeLedger) OpenProof(_ context.Context, id uuid.UUID) (io.ReadCloser, string, error) {
	f.proofFor = id
	return io.NopCloser(strings.NewReader("png")), "image/png", nil
}

func TestListPendingAlwaysFiltersPendingModeration(t *testing.T) {
	created := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	id := uuid.New()
	ledger := &fakeLedger{list: &purchases.ListResult{
		Items:      []purchases.PurchaseDTO{{ID: id, CreatedAt: created, Status: enums.PurchaseStatusPendingModeration}},
		NextCursor: "next",
	}}
	svc, err := NewService(ledger, "/api/admin/v1/moderation/")
	require.NoError(t, err)
	svc.(*service).now = func() time.Time { return created.Add(26*time.Hour + 90*time.Second) }

	kind := enums.ProductKindEReport
	page, err := svc.ListPending(context.Background(), ListParams{Kind: &kind, Limit: 10, Cursor: "abc"})
	require.NoError(t, err)

	require.NotNil(t, ledger.listParams.Status)
	assert.Equal(t, enums.PurchaseStatusPendingModeration, *ledger.listParams.Status)
	assert.Equal(t, &kind, ledger.listParams.Kind)
	assert.Equal(t, 10, ledger.listParams.Limit)
	assert.Equal(t, "abc", ledger.listParams.Cursor)

	require.Len(t, page.Items, 1)
	assert.Equal(t, "/api/admin/v1/moderation/purchases/"+id.String()+"/proof", page.Items[0].ProofURL)
	assert.Equal(t, "26h1m0s", page.Items[0].WaitingFor)
	assert.Equal(t, "next", page.NextCursor)
}

func TestListPendingRejectsUnknownKind(t *testing.T) {
	svc, err := NewService(&fakeLedger{}, "")
	require.NoError(t, err)
	kind := enums.ProductKind("banner")
	_, err = svc.ListPending(context.Background(), ListParams{Kind: &kind})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestApproveAndRejectDelegateToDecide(t *testing.T) {
	ledger := &fakeLedger{}
	svc, err := NewService(ledger, "")
	require.NoError(t, err)
	admin := uuid.New()
	first, second := uuid.New(), uuid.New()

	approved, err := svc.Approve(context.Background(), first, admin, "paid")
	require.NoError(t, err)
	assert.Equal(t, enums.PurchaseStatusApproved, approved.Status)

	rejected, err := svc.Reject(context.Background(), second, admin, "no transfer found")
	require.NoError(t, err)
	assert.Equal(t, enums.PurchaseStatusRejected, rejected.Status)

	require.Len(t, ledger.decided, 2)
	assert.Equal(t, purchases.DecideInput{PurchaseID: first, Outcome: enums.DecisionApprove, Actor: admin, Note: "paid"}, ledger.decided[0])
	assert.Equal(t, enums.DecisionReject, ledger.decided[1].Outcome)
}

func TestDecidePropagatesInvalidTransition(t *testing.T) {
	ledger := &fakeLedger{decideErr: pkgerrors.New(pkgerrors.CodeInvalidTransition, "purchase is approved")}
	svc, err := NewService(ledger, "")
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), uuid.New(), uuid.New(), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	_, err = svc.Approve(context.Background(), uuid.Nil, uuid.New(), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestProofImageStreamsFromLedger(t *testing.T) {
	ledger := &fakeLedger{}
	svc, err := NewService(ledger, "")
	require.NoError(t, err)
	id := uuid.New()

	rc, contentType, err := svc.ProofImage(context.Background(), id)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "image/png", contentType)
	assert.Equal(t, id, ledger.proofFor)
}

func TestNewServiceRequiresLedger(t *testing.T) {
	_, err := NewService(nil, "")
	assert.Error(t, err)
}
