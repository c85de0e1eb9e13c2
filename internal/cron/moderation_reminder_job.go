package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/sacrednumerology/sacred-backend/pkg/db/models"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox/payloads"
)

const (
	defaultReminderAfter = 24 * time.Hour
	defaultReminderBatch = 100
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type overdueReader interface {
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Purchase, error)
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ModerationReminderJobParams configure the overdue moderation reminder.
type ModerationReminderJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Purchases overdueReader
	Outbox    outboxEmitter
	After     time.Duration
	Batch     int
}

// NewModerationReminderJob builds the job that flags purchases left too long in the
// moderation queue. Each purchase is reminded about at most once; nothing is ever
// decided automatically.
func NewModerationReminderJob(params ModerationReminderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Purchases == nil {
		return nil, fmt.Errorf("purchase reader required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	after := params.After
	if after <= 0 {
		after = defaultReminderAfter
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultReminderBatch
	}
	return &moderationReminderJob{
		logg:      params.Logger,
		db:        params.DB,
		purchases: params.Purchases,
		outbox:    params.Outbox,
		after:     after,
		batch:     batch,
		now:       time.Now,
	}, nil
}

type moderationReminderJob struct {
	logg      *logger.Logger
	db        txRunner
	purchases overdueReader
	outbox    outboxEmitter
	after     time.Duration
	batch     int
	now       func() time.Time
}

func (j *moderationReminderJob) Name() string { return "moderation-reminder" }

func (j *moderationReminderJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-j.after)
	overdue, err := j.purchases.ListPendingBefore(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query overdue purchases: %w", err)
	}

	var errs error
	reminded := 0
	for i := range overdue {
		if err := j.remind(ctx, &overdue[i], now); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("purchase %s: %w", overdue[i].ID, err))
			continue
		}
		reminded++
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":   cutoff,
		"found":    len(overdue),
		"reminded": reminded,
	})
	j.logg.Info(logCtx, "moderation reminder loop complete")
	return errs
}

func (j *moderationReminderJob) remind(ctx context.Context, p *models.Purchase, now time.Time) error {
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		return j.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPurchaseModerationOverdue,
			AggregateType: enums.AggregatePurchase,
			AggregateID:   p.ID,
			OccurredAt:    now,
			Data: payloads.PurchaseModerationOverdueEvent{
				PurchaseID:  p.ID,
				ProductKind: p.ProductKind,
				BuyerName:   p.BuyerName,
				BuyerEmail:  p.BuyerEmail,
				SubmittedAt: p.CreatedAt,
				WaitingFor:  now.Sub(p.CreatedAt).Truncate(time.Minute).String(),
			},
		})
	})
}
