package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProductKind(t *testing.T) {
	kind, err := ParseProductKind(" Course ")
	require.NoError(t, err)
	assert.Equal(t, ProductKindCourse, kind)

	kind, err = ParseProductKind("e-report")
	require.NoError(t, err)
	assert.Equal(t, ProductKindEReport, kind)

	_, err = ParseProductKind("banner")
	assert.Error(t, err)
}

func TestPurchaseStatusPredicates(t *testing.T) {
	assert.False(t, PurchaseStatusPendingIdentity.IsTerminal())
	assert.False(t, PurchaseStatusPendingModeration.IsTerminal())
	assert.True(t, PurchaseStatusApproved.IsTerminal())
	assert.True(t, PurchaseStatusRejected.IsTerminal())

	assert.True(t, PurchaseStatusPendingIdentity.AcceptsProof())
	assert.True(t, PurchaseStatusPendingModeration.AcceptsProof())
	assert.False(t, PurchaseStatusApproved.AcceptsProof())
	assert.False(t, PurchaseStatusRejected.AcceptsProof())
}

func TestDecisionOutcomeTargets(t *testing.T) {
	outcome, err := ParseDecisionOutcome("APPROVE")
	require.NoError(t, err)
	assert.Equal(t, PurchaseStatusApproved, outcome.TargetStatus())
	assert.Equal(t, PurchaseStatusRejected, DecisionReject.TargetStatus())

	_, err = ParseDecisionOutcome("maybe")
	assert.Error(t, err)
}

func TestOutboxEventTypes(t *testing.T) {
	for _, raw := range []string{"purchase_submitted", "purchase_decided", "purchase_moderation_overdue"} {
		got, err := ParseOutboxEventType(raw)
		require.NoError(t, err)
		assert.True(t, got.IsValid())
	}
	assert.False(t, OutboxEventType("order_created").IsValid())
}

func TestCurrencyIsValid(t *testing.T) {
	assert.True(t, CurrencyINR.IsValid())
	assert.False(t, Currency("USD").IsValid())
	assert.False(t, Currency("").IsValid())
	assert.Equal(t, "₹", CurrencyINR.Symbol())
}
