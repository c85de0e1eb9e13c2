package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sacrednumerology/sacred-backend/api/controllers"
	"github.com/sacrednumerology/sacred-backend/api/routes"
	"github.com/sacrednumerology/sacred-backend/internal/access"
	"github.com/sacrednumerology/sacred-backend/internal/auth"
	"github.com/sacrednumerology/sacred-backend/internal/catalog"
	"github.com/sacrednumerology/sacred-backend/internal/identity"
	"github.com/sacrednumerology/sacred-backend/internal/moderation"
	"github.com/sacrednumerology/sacred-backend/internal/notify"
	"github.com/sacrednumerology/sacred-backend/internal/proofs"
	"github.com/sacrednumerology/sacred-backend/internal/purchases"
	"github.com/sacrednumerology/sacred-backend/internal/users"
	pkgAuth "github.com/sacrednumerology/sacred-backend/pkg/auth"
	"github.com/sacrednumerology/sacred-backend/pkg/auth/session"
	"github.com/sacrednumerology/sacred-backend/pkg/config"
	"github.com/sacrednumerology/sacred-backend/pkg/db"
	"github.com/sacrednumerology/sacred-backend/pkg/instance"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
	"github.com/sacrednumerology/sacred-backend/pkg/metrics"
	"github.com/sacrednumerology/sacred-backend/pkg/migrate"
	"github.com/sacrednumerology/sacred-backend/pkg/outbox"
	"github.com/sacrednumerology/sacred-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Environment: cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	store, bucketNames, err := openObjectStore(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap object storage", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	purchaseMetrics := metrics.NewPurchaseMetrics(registry)

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(ctx, "failed to create session manager", err)
		os.Exit(1)
	}

	gormDB := dbClient.DB()
	userRepo := users.NewRepository(gormDB)
	catalogRepo := catalog.NewRepository(gormDB)
	purchaseRepo := purchases.NewRepository(gormDB)
	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		Password:       cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create auth service", err)
		os.Exit(1)
	}

	mailer, err := newMailer(cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to create mailer", err)
		os.Exit(1)
	}

	otpLocker, err := identity.NewRedisLocker(redisClient, cfg.OTP.LockTimeout)
	if err != nil {
		logg.Error(ctx, "failed to create otp locker", err)
		os.Exit(1)
	}
	identityService, err := identity.NewService(identity.ServiceParams{
		Repo:      identity.NewRepository(gormDB),
		Purchases: purchaseRepo,
		Catalog:   catalogRepo,
		Users:     userRepo,
		Tx:        dbClient,
		Outbox:    outboxService,
		Sender:    notify.NewOTPMailer(mailer),
		Locker:    otpLocker,
		Config:    cfg.OTP,
		Metrics:   purchaseMetrics,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create identity service", err)
		os.Exit(1)
	}
	resetService, err := identity.NewPasswordResetService(identity.ResetParams{
		Repo:     identity.NewResetRepository(gormDB),
		Users:    userRepo,
		Tx:       dbClient,
		Sender:   notify.NewOTPMailer(mailer),
		Locker:   otpLocker,
		Sessions: sessionManager,
		Config:   cfg.OTP,
		Password: cfg.Password,
		Metrics:  purchaseMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create password reset service", err)
		os.Exit(1)
	}

	proofService, err := proofs.NewService(proofs.ServiceParams{
		Store:    store,
		Bucket:   bucketNames.proofs,
		MaxBytes: cfg.Proof.MaxUploadBytes(),
		Metrics:  purchaseMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create proof service", err)
		os.Exit(1)
	}

	purchaseService, err := purchases.NewService(purchases.ServiceParams{
		Repo:     purchaseRepo,
		Catalog:  catalogRepo,
		Users:    userRepo,
		Proofs:   proofService,
		Tx:       dbClient,
		Outbox:   outboxService,
		Issuer:   identityService,
		Password: cfg.Password,
		Metrics:  purchaseMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create purchase service", err)
		os.Exit(1)
	}

	moderationService, err := moderation.NewService(purchaseService, routes.AdminModerationBase)
	if err != nil {
		logg.Error(ctx, "failed to create moderation service", err)
		os.Exit(1)
	}

	signer, err := pkgAuth.NewStreamTicketSigner(streamSecret(cfg), cfg.JWT.Issuer, cfg.Stream.TicketTTL)
	if err != nil {
		logg.Error(ctx, "failed to create stream ticket signer", err)
		os.Exit(1)
	}
	accessService, err := access.NewService(access.ServiceParams{
		Repo:       access.NewRepository(gormDB),
		Catalog:    catalogRepo,
		Store:      store,
		Bucket:     bucketNames.assets,
		Signer:     signer,
		StreamBase: strings.TrimRight(cfg.App.PublicURL, "/") + "/api/v1/stream",
		Metrics:    purchaseMetrics,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create access service", err)
		os.Exit(1)
	}

	catalogService, err := catalog.NewService(catalogRepo)
	if err != nil {
		logg.Error(ctx, "failed to create catalog service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	runCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
		"storage":  cfg.Storage.Driver,
	})
	logg.Info(runCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			Sessions:    sessionManager,
			Idempotency: redisClient,
			RateLimiter: redisClient,
			Readiness: []controllers.ReadinessCheck{
				{Name: "database", Pinger: dbClient},
				{Name: "redis", Pinger: redisClient},
				{Name: "storage", Pinger: store},
			},
			Metrics:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			Auth:       authService,
			Purchases:  purchaseService,
			Identity:   identityService,
			Moderation: moderationService,
			Access:     accessService,
			Catalog:    catalogService,
			Reset:      resetService,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(runCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(runCtx, "api server shutdown failed", err)
		}
	}
}

// newMailer sends real mail when SMTP is configured and logs messages otherwise.
func newMailer(cfg *config.Config, logg *logger.Logger) (notify.Mailer, error) {
	if cfg.Notify.SMTPEnabled() {
		return notify.NewSMTPMailer(cfg.Notify, logg)
	}
	if cfg.App.IsProd() {
		logg.Warn(context.Background(), "smtp not configured; one-time codes will only be logged")
	}
	return notify.NewLogMailer(logg, cfg.App.IsDev()), nil
}

// streamSecret falls back to the JWT secret so dev setups need one secret only.
func streamSecret(cfg *config.Config) string {
	if cfg.Stream.Secret != "" {
		return cfg.Stream.Secret
	}
	return cfg.JWT.Secret
}
