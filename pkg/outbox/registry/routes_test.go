package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacrednumerology/sacred-backend/pkg/config"
	"github.com/sacrednumerology/sacred-backend/pkg/db/models"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox/payloads"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)
	purchaseID := uuid.New()

	event := models.OutboxEvent{
		EventType:     enums.EventPurchaseDecided,
		AggregateType: enums.AggregatePurchase,
		AggregateID:   purchaseID,
		Payload: mustEnvelope(t, mustMarshal(t, payloads.PurchaseDecidedEvent{
			PurchaseID: purchaseID,
			Outcome:    enums.DecisionApprove,
			Status:     enums.PurchaseStatusApproved,
		})),
	}

	resolved, err := reg.Resolve(event)
	require.NoError(t, err)
	assert.Equal(t, "purchase-events", resolved.Descriptor.Topic)
	payload, ok := resolved.Payload.(*payloads.PurchaseDecidedEvent)
	require.True(t, ok)
	assert.Equal(t, purchaseID, payload.PurchaseID)
	assert.Equal(t, enums.PurchaseStatusApproved, payload.Status)
	assert.NotEmpty(t, resolved.Envelope.EventID)
	assert.False(t, resolved.Envelope.OccurredAt.IsZero())
}

func TestEventRegistryResolveUnknownEvent(t *testing.T) {
	reg := newTestEventRegistry(t)

	_, err := reg.Resolve(models.OutboxEvent{
		EventType:     "purchase_refunded",
		AggregateType: enums.AggregatePurchase,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"reason":"none"}`)),
	})
	var nonRetry NonRetryableError
	assert.True(t, errors.As(err, &nonRetry))
}

func TestEventRegistryResolveAggregateMismatch(t *testing.T) {
	reg := newTestEventRegistry(t)

	_, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventPurchaseSubmitted,
		AggregateType: "catalog_item",
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{}`)),
	})
	var nonRetry NonRetryableError
	assert.True(t, errors.As(err, &nonRetry))
}

func TestEventRegistryResolveMissingPayload(t *testing.T) {
	reg := newTestEventRegistry(t)

	_, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventPurchaseSubmitted,
		AggregateType: enums.AggregatePurchase,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`null`)),
	})
	var nonRetry NonRetryableError
	assert.True(t, errors.As(err, &nonRetry))
}

func TestEventRegistryResolveUnknownVersion(t *testing.T) {
	reg := newTestEventRegistry(t)
	purchaseID := uuid.New()

	body := mustMarshal(t, outbox.PayloadEnvelope{
		Version:    7,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       mustMarshal(t, payloads.PurchaseSubmittedEvent{PurchaseID: purchaseID}),
	})
	_, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventPurchaseSubmitted,
		AggregateType: enums.AggregatePurchase,
		AggregateID:   purchaseID,
		Payload:       body,
	})
	var nonRetry NonRetryableError
	require.True(t, errors.As(err, &nonRetry))
	assert.Contains(t, err.Error(), "@v7")
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{})
	assert.Error(t, err)

	reg := newTestEventRegistry(t)
	assert.Equal(t, []string{"purchase-events"}, reg.Topics())
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{PurchaseEventsTopic: "purchase-events"})
	require.NoError(t, err)
	return reg
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func mustEnvelope(t *testing.T, data []byte) json.RawMessage {
	t.Helper()
	return mustMarshal(t, outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
}
