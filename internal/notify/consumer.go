package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/sacrednumerology/sacred-backend/pkg/config"
	"github.com/sacrednumerology/sacred-backend/pkg/db/models"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox/idempotency"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox/payloads"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox/registry"
)

const purchaseNotificationConsumer = "purchase-notifications"

// ConsumerParams wires the purchase notification consumer.
type ConsumerParams struct {
	Repo         Repository
	Subscription *pubsub.Subscriber
	Idempotency  *idempotency.Manager
	Mailer       Mailer
	Config       config.NotifyConfig
	PublicURL    string
	Logger       *logger.Logger
}

// Consumer relays purchase events to the business WhatsApp number, the admin inbox
// and the buyer.
type Consumer struct {
	repo         Repository
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	decoders     *registry.DecoderRegistry
	mailer       Mailer
	cfg          config.NotifyConfig
	publicURL    string
	logg         *logger.Logger
	now          func() time.Time
}

// NewConsumer builds a purchase notification consumer.
func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("notification repository required")
	}
	if params.Subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if params.Mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         params.Repo,
		subscription: params.Subscription,
		idempotency:  params.Idempotency,
		decoders:     registry.NewPurchaseDecoders(),
		mailer:       params.Mailer,
		cfg:          params.Config,
		publicURL:    strings.TrimRight(params.PublicURL, "/"),
		logg:         params.Logger,
		now:          time.Now,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	})

	if !eventType.IsValid() {
		c.logg.Info(logCtx, "skipping unknown event")
		return processResult{ack: true}
	}

	envelope, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}
	payload, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return processResult{ack: true}
	}

	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())
	claim, err := c.idempotency.Claim(ctx, purchaseNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	switch claim {
	case idempotency.Done:
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	case idempotency.InFlight:
		c.logg.Info(logCtx, "event held by another delivery")
		return processResult{nack: true}
	}

	if err := c.handlePayload(logCtx, eventID, payload); err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		if relErr := c.idempotency.Release(context.WithoutCancel(ctx), purchaseNotificationConsumer, eventID); relErr != nil {
			c.logg.Error(logCtx, "idempotency release failed", relErr)
		}
		return processResult{nack: true}
	}
	if err := c.idempotency.Complete(context.WithoutCancel(ctx), purchaseNotificationConsumer, eventID); err != nil {
		// deliveries are recorded per event, so a redelivery stays harmless
		c.logg.Error(logCtx, "idempotency completion failed", err)
	}
	return processResult{ack: true}
}

func (c *Consumer) handlePayload(ctx context.Context, eventID uuid.UUID, payload any) error {
	switch p := payload.(type) {
	case *payloads.PurchaseSubmittedEvent:
		return c.notifySubmitted(c.logg.WithPurchaseID(ctx, p.PurchaseID.String()), eventID, p)
	case *payloads.PurchaseDecidedEvent:
		return c.notifyDecided(c.logg.WithPurchaseID(ctx, p.PurchaseID.String()), eventID, p)
	case *payloads.PurchaseModerationOverdueEvent:
		return c.notifyOverdue(c.logg.WithPurchaseID(ctx, p.PurchaseID.String()), eventID, p)
	default:
		c.logg.Info(ctx, "payload not handled")
		return nil
	}
}

func (c *Consumer) notifySubmitted(ctx context.Context, eventID uuid.UUID, p *payloads.PurchaseSubmittedEvent) error {
	link := WhatsAppLink(c.cfg.WhatsAppNumber, p.Summary)
	if err := c.recordWhatsApp(ctx, eventID, p.PurchaseID, "New booking", p.Summary, link); err != nil {
		return err
	}
	if c.cfg.AdminEmail == "" {
		return nil
	}
	body := fmt.Sprintf("%s\n\nPayment proof: %s\nReply on WhatsApp: %s", p.Summary, c.proofURL(p.PurchaseID), link)
	return c.deliverEmail(ctx, eventID, p.PurchaseID, enums.NotificationAudienceAdmin, Message{
		To:      c.cfg.AdminEmail,
		Subject: fmt.Sprintf("New %s awaiting review: %s", kindNoun(p.ProductKind), p.BuyerName),
		Text:    body,
	}, &link)
}

func (c *Consumer) notifyDecided(ctx context.Context, eventID uuid.UUID, p *payloads.PurchaseDecidedEvent) error {
	if p.BuyerEmail == "" {
		return fmt.Errorf("buyer email missing")
	}
	return c.deliverEmail(ctx, eventID, p.PurchaseID, enums.NotificationAudienceBuyer, decisionMessage(p), nil)
}

func (c *Consumer) notifyOverdue(ctx context.Context, eventID uuid.UUID, p *payloads.PurchaseModerationOverdueEvent) error {
	text := fmt.Sprintf("*Reminder: pending review*\nBooking ID: %s\nClient: %s (%s)\nWaiting for: %s",
		p.PurchaseID, p.BuyerName, p.BuyerEmail, p.WaitingFor)
	link := WhatsAppLink(c.cfg.WhatsAppNumber, text)
	if err := c.recordWhatsApp(ctx, eventID, p.PurchaseID, "Pending review reminder", text, link); err != nil {
		return err
	}
	if c.cfg.AdminEmail == "" {
		return nil
	}
	return c.deliverEmail(ctx, eventID, p.PurchaseID, enums.NotificationAudienceAdmin, Message{
		To:      c.cfg.AdminEmail,
		Subject: fmt.Sprintf("Reminder: %s from %s still awaiting review", kindNoun(p.ProductKind), p.BuyerName),
		Text:    fmt.Sprintf("%s\n\nPayment proof: %s", text, c.proofURL(p.PurchaseID)),
	}, &link)
}

// recordWhatsApp stores the click-to-chat link. The link itself is the delivery.
func (c *Consumer) recordWhatsApp(ctx context.Context, eventID, purchaseID uuid.UUID, subject, text, link string) error {
	now := c.now().UTC()
	created, err := c.repo.Record(ctx, &models.NotificationDelivery{
		EventID:    eventID,
		PurchaseID: purchaseID,
		Channel:    enums.NotificationChannelWhatsApp,
		Audience:   enums.NotificationAudienceAdmin,
		Recipient:  c.cfg.WhatsAppNumber,
		Subject:    subject,
		Body:       text,
		Link:       &link,
		SentAt:     &now,
		CreatedAt:  now,
	})
	if err != nil {
		return fmt.Errorf("record whatsapp delivery: %w", err)
	}
	if created {
		c.logg.Info(ctx, "whatsapp summary recorded")
	}
	return nil
}

func (c *Consumer) deliverEmail(ctx context.Context, eventID, purchaseID uuid.UUID, audience enums.NotificationAudience, msg Message, link *string) error {
	sent, err := c.repo.Exists(ctx, eventID, enums.NotificationChannelEmail, audience)
	if err != nil {
		return fmt.Errorf("check email delivery: %w", err)
	}
	if sent {
		return nil
	}
	if err := c.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s email: %w", audience, err)
	}
	now := c.now().UTC()
	if _, err := c.repo.Record(ctx, &models.NotificationDelivery{
		EventID:    eventID,
		PurchaseID: purchaseID,
		Channel:    enums.NotificationChannelEmail,
		Audience:   audience,
		Recipient:  msg.To,
		Subject:    msg.Subject,
		Body:       msg.Text,
		Link:       link,
		SentAt:     &now,
		CreatedAt:  now,
	}); err != nil {
		// the mail already left; a nack here would send it twice
		c.logg.Error(ctx, "failed to record email delivery", err)
	}
	c.logg.Info(c.logg.WithField(ctx, "audience", string(audience)), "email delivered")
	return nil
}

func (c *Consumer) proofURL(purchaseID uuid.UUID) string {
	return fmt.Sprintf("%s/api/admin/v1/moderation/purchases/%s/proof", c.publicURL, purchaseID)
}

func decisionMessage(p *payloads.PurchaseDecidedEvent) Message {
	greeting := "Hello,"
	if p.BuyerName != "" {
		greeting = fmt.Sprintf("Hello %s,", p.BuyerName)
	}
	var b strings.Builder
	b.WriteString(greeting + "\n\n")
	subject := fmt.Sprintf("Your %s has been confirmed", kindNoun(p.ProductKind))
	if p.Outcome == enums.DecisionReject {
		subject = fmt.Sprintf("Update on your %s", kindNoun(p.ProductKind))
		fmt.Fprintf(&b, "We could not confirm the payment for %s.\n", p.ProductName)
		if p.Note != "" {
			fmt.Fprintf(&b, "Reason: %s\n", p.Note)
		}
		b.WriteString("Reply to this email if you believe this is a mistake.\n")
	} else {
		fmt.Fprintf(&b, "Your payment for %s has been verified.\n", p.ProductName)
		switch p.ProductKind {
		case enums.ProductKindCourse:
			b.WriteString("Sign in to start watching your course.\n")
			if p.AccessExpiresAt != nil {
				fmt.Fprintf(&b, "Your access is valid until %s.\n", p.AccessExpiresAt.UTC().Format("2 Jan 2006"))
			}
		case enums.ProductKindConsultation:
			b.WriteString("We will contact you shortly to schedule your consultation.\n")
		case enums.ProductKindEReport:
			b.WriteString("Your report is being prepared and will be sent to this address.\n")
		}
		if p.Note != "" {
			fmt.Fprintf(&b, "\nNote: %s\n", p.Note)
		}
	}
	fmt.Fprintf(&b, "\nBooking ID: %s\n", p.PurchaseID)
	return Message{To: p.BuyerEmail, Subject: subject, Text: b.String()}
}

func kindNoun(kind enums.ProductKind) string {
	switch kind {
	case enums.ProductKindCourse:
		return "course enrollment"
	case enums.ProductKindConsultation:
		return "consultation booking"
	case enums.ProductKindEReport:
		return "e-report order"
	default:
		return "purchase"
	}
}
