package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacrednumerology/sacred-backend/pkg/db/models"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
)

type fakeDLQAdmin struct {
	rows     []models.OutboxDLQ
	requeued []uuid.UUID
}

func (f *fakeDLQAdmin) List(context.Context, enums.OutboxDLQErrorReason, int) ([]models.OutboxDLQ, error) {
	return f.rows, nil
}

func (f *fakeDLQAdmin) Requeue(_ context.Context, id uuid.UUID) error {
	f.requeued = append(f.requeued, id)
	return nil
}

func TestDLQCommandListsRows(t *testing.T) {
	id := uuid.New()
	admin := &fakeDLQAdmin{rows: []models.OutboxDLQ{{
		EventID:      id,
		EventType:    enums.EventPurchaseDecided,
		ErrorReason:  enums.OutboxDLQReasonMaxAttempts,
		AttemptCount: 10,
		FailedAt:     time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	}}}
	var out bytes.Buffer

	ran, err := dlqCommand(context.Background(), &out, admin, true, "")
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Contains(t, out.String(), id.String())
	assert.Contains(t, out.String(), "max_attempts")
	assert.Contains(t, out.String(), "2026-05-01T08:00:00Z")
}

func TestDLQCommandRequeue(t *testing.T) {
	admin := &fakeDLQAdmin{}
	id := uuid.New()
	var out bytes.Buffer

	ran, err := dlqCommand(context.Background(), &out, admin, false, id.String())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, []uuid.UUID{id}, admin.requeued)

	_, err = dlqCommand(context.Background(), &out, admin, false, "not-a-uuid")
	assert.Error(t, err)
}

func TestDLQCommandNoFlags(t *testing.T) {
	ran, err := dlqCommand(context.Background(), &bytes.Buffer{}, &fakeDLQAdmin{}, false, "")
	require.NoError(t, err)
	assert.False(t, ran)
}
