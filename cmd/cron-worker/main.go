package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sacrednumerology/sacred-backend/internal/cron"
	"github.com/sacrednumerology/sacred-backend/internal/identity"
	"github.com/sacrednumerology/sacred-backend/internal/notify"
	"github.com/sacrednumerology/sacred-backend/internal/purchases"
	"github.com/sacrednumerology/sacred-backend/pkg/config"
	"github.com/sacrednumerology/sacred-backend/pkg/db"
	"github.com/sacrednumerology/sacred-backend/pkg/instance"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
	"github.com/sacrednumerology/sacred-backend/pkg/metrics"
	"github.com/sacrednumerology/sacred-backend/pkg/migrate"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox"
	"github.com/sacrednumerology/sacred-backend/pkg/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})
	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	must(ctx, logg, "config", err)
	cfg.Service.Kind = "cron-worker"
	logg = logger.New(logger.Options{
		ServiceName: cfg.Service.Kind,
		Environment: cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	must(ctx, logg, "database", err)
	defer closeQuietly(logg, "database", dbClient.Close)
	must(ctx, logg, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	must(ctx, logg, "redis", err)
	defer closeQuietly(logg, "redis", redisClient.Close)

	// one cycle at a time across replicas
	lock, err := cron.NewRedisLock(redisClient, cfg.Moderation.CronLockTTL)
	must(ctx, logg, "cron lock", err)

	registry, err := buildRegistry(cfg, logg, dbClient)
	must(ctx, logg, "cron registry", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Moderation.CronInterval,
	})
	must(ctx, logg, "cron service", err)

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
		"interval":    cfg.Moderation.CronInterval.String(),
	})
	logg.Info(ctx, "cron.worker_started")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron.worker_stopped")
}

func must(ctx context.Context, logg *logger.Logger, what string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("cron worker cannot start: %s", what), err)
	os.Exit(1)
}

func closeQuietly(logg *logger.Logger, what string, fn func() error) {
	if err := fn(); err != nil {
		logg.Error(context.Background(), fmt.Sprintf("error closing %s", what), err)
	}
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	gormDB := dbClient.DB()
	outboxRepo := outbox.NewRepository(gormDB)

	reminder, err := cron.NewModerationReminderJob(cron.ModerationReminderJobParams{
		Logger:    logg,
		DB:        dbClient,
		Purchases: purchases.NewRepository(gormDB),
		Outbox:    outbox.NewService(outboxRepo, logg),
		After:     cfg.Moderation.ReminderAfter,
		Batch:     cfg.Moderation.ReminderBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("moderation reminder: %w", err)
	}
	otpCleanup, err := cron.NewOTPCleanupJob(logg, identity.NewRepository(gormDB), cfg.Moderation.OTPRetention)
	if err != nil {
		return nil, fmt.Errorf("otp cleanup: %w", err)
	}
	resetCleanup, err := cron.NewPasswordResetCleanupJob(logg, identity.NewResetRepository(gormDB), cfg.Moderation.OTPRetention)
	if err != nil {
		return nil, fmt.Errorf("password reset cleanup: %w", err)
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(logg, cron.DeleterFunc(outboxRepo.DeletePublishedBefore), cfg.Moderation.OutboxRetention)
	if err != nil {
		return nil, fmt.Errorf("outbox retention: %w", err)
	}
	notificationCleanup, err := cron.NewNotificationCleanupJob(logg, notify.NewRepository(gormDB), cfg.Moderation.NotificationRetention)
	if err != nil {
		return nil, fmt.Errorf("notification cleanup: %w", err)
	}

	return cron.NewRegistry(reminder, otpCleanup, resetCleanup, outboxRetention, notificationCleanup)
}
