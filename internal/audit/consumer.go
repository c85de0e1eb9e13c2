// Package audit streams moderation decisions into BigQuery.
package audit

import (
	"context"
	"errors"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox/idempotency"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox/payloads"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox/registry"
)

const auditConsumerName = "purchase-audit"

type idempotencyChecker interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (idempotency.Claim, error)
	Complete(ctx context.Context, consumer string, eventID uuid.UUID) error
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type rowWriter interface {
	Insert(ctx context.Context, row DecisionRow) error
}

// Consumer records every purchase_decided event as a warehouse row.
type Consumer struct {
	subscription *pubsub.Subscriber
	writer       rowWriter
	manager      idempotencyChecker
	decoders     *registry.DecoderRegistry
	logg         *logger.Logger
}

// NewConsumer creates the audit consumer.
func NewConsumer(subscription *pubsub.Subscriber, writer *Writer, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, errors.New("audit subscription is required")
	}
	if writer == nil {
		return nil, errors.New("audit writer is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		subscription: subscription,
		writer:       writer,
		manager:      manager,
		decoders:     registry.NewPurchaseDecoders(),
		logg:         logg,
	}, nil
}

type processResult struct {
	nack bool
}

// Run consumes until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(innerCtx context.Context, msg *pubsub.Message) {
		if c.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	})
	if eventType != enums.EventPurchaseDecided {
		return processResult{}
	}

	envelope, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		c.logg.Warn(logCtx, "invalid audit envelope")
		return processResult{}
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Warn(logCtx, "invalid event id")
		return processResult{}
	}
	decoded, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return processResult{}
	}
	payload, ok := decoded.(*payloads.PurchaseDecidedEvent)
	if !ok {
		return processResult{}
	}
	logCtx = c.logg.WithPurchaseID(c.logg.WithField(logCtx, "event_id", eventID.String()), payload.PurchaseID.String())

	claim, err := c.manager.Claim(logCtx, auditConsumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	switch claim {
	case idempotency.Done:
		c.logg.Info(logCtx, "event already processed")
		return processResult{}
	case idempotency.InFlight:
		return processResult{nack: true}
	}

	saveCtx := context.WithoutCancel(logCtx)
	if err := c.writer.Insert(logCtx, decisionRow(eventID.String(), payload)); err != nil {
		c.logg.Error(logCtx, "decision row insert failed", err)
		if relErr := c.manager.Release(saveCtx, auditConsumerName, eventID); relErr != nil {
			c.logg.Error(logCtx, "idempotency release failed", relErr)
		}
		return processResult{nack: true}
	}
	// the streaming insert dedupes on event id if this marker is lost
	if err := c.manager.Complete(saveCtx, auditConsumerName, eventID); err != nil {
		c.logg.Error(logCtx, "idempotency completion failed", err)
	}
	c.logg.Info(logCtx, "decision recorded")
	return processResult{}
}
