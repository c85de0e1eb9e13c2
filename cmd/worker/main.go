package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sacrednumerology/sacred-backend/internal/audit"
	"github.com/sacrednumerology/sacred-backend/internal/notify"
	"github.com/sacrednumerology/sacred-backend/pkg/bigquery"
	"github.com/sacrednumerology/sacred-backend/pkg/config"
	"github.com/sacrednumerology/sacred-backend/pkg/db"
	"github.com/sacrednumerology/sacred-backend/pkg/instance"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox/idempotency"
	"github.com/sacrednumerology/sacred-backend/pkg/pubsub"
	"github.com/sacrednumerology/sacred-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Environment: cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "failed to close database", err)
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	mailer, err := newMailer(cfg, logg)
	requireResource(ctx, logg, "mailer", err)

	notificationSub := pubsubClient.NotificationSubscription()
	if notificationSub == nil {
		requireResource(ctx, logg, "notification subscription", errors.New("subscription not configured"))
	}
	notificationConsumer, err := notify.NewConsumer(notify.ConsumerParams{
		Repo:         notify.NewRepository(dbClient.DB()),
		Subscription: notificationSub,
		Idempotency:  manager,
		Mailer:       mailer,
		Config:       cfg.Notify,
		PublicURL:    cfg.App.PublicURL,
		Logger:       logg,
	})
	requireResource(ctx, logg, "notification consumer", err)

	params := ServiceParams{
		Logger:    logg,
		DB:        dbClient,
		Redis:     redisClient,
		PubSub:    pubsubClient,
		Consumers: map[string]consumer{"notifications": notificationConsumer},
	}

	// decisions are only warehoused when an audit subscription is configured
	if auditSub := pubsubClient.AuditSubscription(); auditSub != nil {
		bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		requireResource(ctx, logg, "bigquery client", err)
		defer func() {
			if err := bqClient.Close(); err != nil {
				logg.Error(ctx, "failed to close bigquery client", err)
			}
		}()

		if cfg.BigQuery.CreateTables {
			err := bqClient.EnsureTable(ctx, bqClient.DecisionsTable(), audit.DecisionSchema(), audit.DecisionPartitionField)
			requireResource(ctx, logg, "bigquery decisions table", err)
		}
		writer, err := audit.NewWriter(bqClient, bqClient.DecisionsTable(), audit.RetryPolicy{})
		requireResource(ctx, logg, "audit writer", err)
		auditConsumer, err := audit.NewConsumer(auditSub, writer, manager, logg)
		requireResource(ctx, logg, "audit consumer", err)

		params.BigQuery = bqClient
		params.Consumers["audit"] = auditConsumer
	}

	service, err := NewService(params)
	requireResource(ctx, logg, "worker service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(runCtx, "worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "worker failed", err)
		os.Exit(1)
	}
}

func newMailer(cfg *config.Config, logg *logger.Logger) (notify.Mailer, error) {
	if cfg.Notify.SMTPEnabled() {
		return notify.NewSMTPMailer(cfg.Notify, logg)
	}
	return notify.NewLogMailer(logg, cfg.App.IsDev()), nil
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
