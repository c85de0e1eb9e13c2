package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox/idempotency"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox/payloads"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox/registry"
)

type stubManager struct {
	claim     idempotency.Claim
	claimErr  error
	checked   []uuid.UUID
	completed []uuid.UUID
	released  []uuid.UUID
}

func (s *stubManager) Claim(_ context.Context, _ string, eventID uuid.UUID) (idempotency.Claim, error) {
	s.checked = append(s.checked, eventID)
	return s.claim, s.claimErr
}

func (s *stubManager) Complete(_ context.Context, _ string, eventID uuid.UUID) error {
	s.completed = append(s.completed, eventID)
	return nil
}

func (s *stubManager) Release(_ context.Context, _ string, eventID uuid.UUID) error {
	s.released = append(s.released, eventID)
	return nil
}

type stubWriter struct {
	rows []DecisionRow
	err  error
}

func (s *stubWriter) Insert(_ context.Context, row DecisionRow) error {
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, row)
	return nil
}

type fakeInserter struct {
	responses []error
	calls     int
	rows      []any
}

func (f *fakeInserter) InsertRows(_ context.Context, _ string, rows []any) error {
	f.calls++
	f.rows = rows
	if len(f.responses) == 0 {
		return nil
	}
	err := f.responses[0]
	f.responses = f.responses[1:]
	return err
}

func newTestConsumer(writer rowWriter, manager idempotencyChecker) *Consumer {
	return &Consumer{writer: writer, manager: manager, decoders: registry.NewPurchaseDecoders(), logg: logger.Nop()}
}

func decidedMessage(t *testing.T, eventID string, event payloads.PurchaseDecidedEvent) *pubsub.Message {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	body, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: eventID, OccurredAt: event.DecidedAt, Data: data})
	require.NoError(t, err)
	return &pubsub.Message{
		ID:   "msg-1",
		Data: body,
		Attributes: map[string]string{
			"event_type":     string(enums.EventPurchaseDecided),
			"aggregate_type": string(enums.AggregatePurchase),
			"aggregate_id":   event.PurchaseID.String(),
		},
	}
}

func sampleDecision() payloads.PurchaseDecidedEvent {
	buyer := uuid.New()
	expires := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	return payloads.PurchaseDecidedEvent{
		PurchaseID:      uuid.New(),
		ProductKind:     enums.ProductKindCourse,
		ProductRef:      uuid.New(),
		ProductName:     "Numerology Foundations",
		BuyerName:       "Ravi Kumar",
		BuyerEmail:      "ravi@example.com",
		BuyerUserID:     &buyer,
		Outcome:         enums.DecisionApprove,
		Status:          enums.PurchaseStatusApproved,
		DecidedBy:       uuid.New(),
		DecidedAt:       time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC),
		AccessExpiresAt: &expires,
		AccountCreated:  true,
		Amount:          decimal.RequireFromString("4999"),
		Currency:        enums.CurrencyINR,
	}
}

func TestProcessWritesDecisionRow(t *testing.T) {
	writer := &stubWriter{}
	manager := &stubManager{}
	c := newTestConsumer(writer, manager)
	eventID := uuid.New()
	event := sampleDecision()

	res := c.process(context.Background(), decidedMessage(t, eventID.String(), event))
	assert.False(t, res.nack)
	require.Len(t, writer.rows, 1)
	row := writer.rows[0]
	assert.Equal(t, eventID.String(), row.EventID)
	assert.Equal(t, event.PurchaseID.String(), row.PurchaseID)
	assert.Equal(t, "approve", row.Outcome)
	assert.Equal(t, "4999.00", row.Amount)
	assert.True(t, row.AccessExpiresAt.Valid)
	assert.False(t, row.Note.Valid)
	assert.Equal(t, []uuid.UUID{eventID}, manager.checked)
	assert.Equal(t, []uuid.UUID{eventID}, manager.completed)

	values, insertID, err := row.Save()
	require.NoError(t, err)
	assert.Equal(t, eventID.String(), insertID)
	assert.Equal(t, "ravi@example.com", values["buyer_email"])
}

func TestDecisionSchemaCoversSavedColumns(t *testing.T) {
	row := decisionRow(uuid.NewString(), ptr(sampleDecision()))
	values, _, err := row.Save()
	require.NoError(t, err)

	schema := DecisionSchema()
	require.Len(t, schema, len(values))
	for _, field := range schema {
		_, ok := values[field.Name]
		assert.True(t, ok, field.Name)
	}
}

func ptr[T any](v T) *T { return &v }

func TestProcessSkipsOtherEvents(t *testing.T) {
	writer := &stubWriter{}
	manager := &stubManager{}
	c := newTestConsumer(writer, manager)

	msg := decidedMessage(t, uuid.NewString(), sampleDecision())
	msg.Attributes["event_type"] = string(enums.EventPurchaseSubmitted)
	assert.False(t, c.process(context.Background(), msg).nack)

	garbage := &pubsub.Message{Data: []byte("nope"), Attributes: map[string]string{"event_type": string(enums.EventPurchaseDecided)}}
	assert.False(t, c.process(context.Background(), garbage).nack)

	assert.False(t, c.process(context.Background(), decidedMessage(t, "not-a-uuid", sampleDecision())).nack)

	assert.Empty(t, writer.rows)
	assert.Empty(t, manager.checked)
}

func TestProcessAlreadyProcessedAcks(t *testing.T) {
	writer := &stubWriter{}
	c := newTestConsumer(writer, &stubManager{claim: idempotency.Done})
	assert.False(t, c.process(context.Background(), decidedMessage(t, uuid.NewString(), sampleDecision())).nack)
	assert.Empty(t, writer.rows)
}

func TestProcessInFlightNacks(t *testing.T) {
	writer := &stubWriter{}
	manager := &stubManager{claim: idempotency.InFlight}
	c := newTestConsumer(writer, manager)
	assert.True(t, c.process(context.Background(), decidedMessage(t, uuid.NewString(), sampleDecision())).nack)
	assert.Empty(t, writer.rows)
	assert.Empty(t, manager.released)
}

func TestProcessInsertFailureReleasesKey(t *testing.T) {
	manager := &stubManager{}
	c := newTestConsumer(&stubWriter{err: errors.New("bq down")}, manager)
	assert.True(t, c.process(context.Background(), decidedMessage(t, uuid.NewString(), sampleDecision())).nack)
	assert.Len(t, manager.released, 1)
	assert.Empty(t, manager.completed)

	c = newTestConsumer(&stubWriter{}, &stubManager{claimErr: errors.New("redis down")})
	assert.True(t, c.process(context.Background(), decidedMessage(t, uuid.NewString(), sampleDecision())).nack)
}

func TestWriterRetriesTransientErrors(t *testing.T) {
	fake := &fakeInserter{responses: []error{
		&googleapi.Error{Code: http.StatusServiceUnavailable},
		status.Error(codes.Unavailable, "try later"),
		nil,
	}}
	w, err := NewWriter(fake, "purchase_decisions", RetryPolicy{MaxAttempts: 5})
	require.NoError(t, err)
	var slept []time.Duration
	w.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	require.NoError(t, w.Insert(context.Background(), DecisionRow{EventID: "evt-1"}))
	assert.Equal(t, 3, fake.calls)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 500 * time.Millisecond}, slept)
}

func TestWriterStopsOnPermanentErrors(t *testing.T) {
	fake := &fakeInserter{responses: []error{&googleapi.Error{Code: http.StatusBadRequest}}}
	w, err := NewWriter(fake, "purchase_decisions", RetryPolicy{})
	require.NoError(t, err)
	w.sleep = func(context.Context, time.Duration) error { return nil }

	err = w.Insert(context.Background(), DecisionRow{EventID: "evt-1"})
	require.Error(t, err)
	assert.Equal(t, 1, fake.calls)

	rowErr := cbigquery.PutMultiError{{InsertID: "evt-1", Errors: cbigquery.MultiError{&googleapi.Error{Code: http.StatusBadRequest}}}}
	assert.False(t, isRetryable(rowErr))
	rowErr = cbigquery.PutMultiError{{InsertID: "evt-1", Errors: cbigquery.MultiError{&googleapi.Error{Code: http.StatusTooManyRequests}}}}
	assert.True(t, isRetryable(rowErr))
}

func TestWriterGivesUpAfterMaxAttempts(t *testing.T) {
	fake := &fakeInserter{responses: []error{
		&googleapi.Error{Code: http.StatusInternalServerError},
		&googleapi.Error{Code: http.StatusInternalServerError},
	}}
	w, err := NewWriter(fake, "purchase_decisions", RetryPolicy{MaxAttempts: 2})
	require.NoError(t, err)
	w.sleep = func(context.Context, time.Duration) error { return nil }
	assert.Error(t, w.Insert(context.Background(), DecisionRow{}))
	assert.Equal(t, 2, fake.calls)
}

func TestNewWriterValidation(t *testing.T) {
	_, err := NewWriter(nil, "t", RetryPolicy{})
	assert.Error(t, err)
	_, err = NewWriter(&fakeInserter{}, " ", RetryPolicy{})
	assert.Error(t, err)
}
