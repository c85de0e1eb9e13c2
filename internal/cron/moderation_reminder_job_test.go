package cron

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sacrednumerology/sacred-backend/internal/purchases"
	"github.com/sacrednumerology/sacred-backend/pkg/db"
	"github.com/sacrednumerology/sacred-backend/pkg/db/dbtest"
	"github.com/sacrednumerology/sacred-backend/pkg/db/models"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox/payloads"
	"github.com/sacrednumerology/sacred-backend/pkg/types"
)

var reminderNow = time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)

func seedPurchase(t *testing.T, client *db.Client, status enums.PurchaseStatus, createdAt time.Time) models.Purchase {
	t.Helper()
	item := dbtest.SeedCatalogItem(t, client, enums.ProductKindEReport, "Name Correction Report", "1100.00", nil)
	ref := "proofs/e_report/" + uuid.NewString() + ".png"
	p := models.Purchase{
		ID:          uuid.New(),
		ProductKind: enums.ProductKindEReport,
		ProductRef:  item.ID,
		BuyerName:   "Anita Rao",
		BuyerEmail:  "anita@example.com",
		BuyerPhone:  "+919812345678",
		Details:     types.PurchaseDetails{DateOfBirth: "1991-05-14", BirthTime: "04:30", BirthPlace: "Mysore"},
		Amount:      decimal.RequireFromString("1100"),
		Currency:    enums.CurrencyINR,
		ProofRef:    &ref,
		Status:      status,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	require.NoError(t, client.DB().Create(&p).Error)
	return p
}

func newReminderJob(t *testing.T, client *db.Client) *moderationReminderJob {
	t.Helper()
	job, err := NewModerationReminderJob(ModerationReminderJobParams{
		Logger:    logger.Nop(),
		DB:        client,
		Purchases: purchases.NewRepository(client.DB()),
		Outbox:    outbox.NewService(outbox.NewRepository(client.DB()), logger.Nop()),
		After:     24 * time.Hour,
	})
	require.NoError(t, err)
	reminder := job.(*moderationReminderJob)
	reminder.now = func() time.Time { return reminderNow }
	return reminder
}

func overdueEvents(t *testing.T, client *db.Client) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, client.DB().Where("event_type = ?", enums.EventPurchaseModerationOverdue).Find(&rows).Error)
	return rows
}

func TestModerationReminderFlagsEachOverduePurchaseOnce(t *testing.T) {
	client := dbtest.Open(t)
	old := seedPurchase(t, client, enums.PurchaseStatusPendingModeration, reminderNow.Add(-30*time.Hour))
	seedPurchase(t, client, enums.PurchaseStatusPendingModeration, reminderNow.Add(-2*time.Hour))
	seedPurchase(t, client, enums.PurchaseStatusRejected, reminderNow.Add(-72*time.Hour))
	job := newReminderJob(t, client)

	require.NoError(t, job.Run(context.Background()))
	events := overdueEvents(t, client)
	require.Len(t, events, 1)
	assert.Equal(t, old.ID, events[0].AggregateID)

	env, err := outbox.DecodeEnvelope(events[0].Payload)
	require.NoError(t, err)
	var decoded payloads.PurchaseModerationOverdueEvent
	require.NoError(t, json.Unmarshal(env.Data, &decoded))
	assert.Equal(t, "30h0m0s", decoded.WaitingFor)
	assert.Equal(t, "anita@example.com", decoded.BuyerEmail)

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, overdueEvents(t, client), 1)

	var stored models.Purchase
	require.NoError(t, client.DB().First(&stored, "id = ?", old.ID).Error)
	assert.Equal(t, enums.PurchaseStatusPendingModeration, stored.Status)
}

type failingEmitter struct{ calls int }

func (f *failingEmitter) EmitIfNotExists(context.Context, *gorm.DB, outbox.DomainEvent) error {
	f.calls++
	return errors.New("insert failed")
}

func TestModerationReminderContinuesPastFailures(t *testing.T) {
	client := dbtest.Open(t)
	seedPurchase(t, client, enums.PurchaseStatusPendingModeration, reminderNow.Add(-48*time.Hour))
	seedPurchase(t, client, enums.PurchaseStatusPendingModeration, reminderNow.Add(-36*time.Hour))
	job := newReminderJob(t, client)
	emitter := &failingEmitter{}
	job.outbox = emitter

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, emitter.calls)
	assert.Contains(t, err.Error(), "insert failed")
}

func TestNewModerationReminderJobValidation(t *testing.T) {
	_, err := NewModerationReminderJob(ModerationReminderJobParams{})
	assert.Error(t, err)
	_, err = NewModerationReminderJob(ModerationReminderJobParams{Logger: logger.Nop()})
	assert.Error(t, err)
}
