package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sacrednumerology/sacred-backend/api/controllers"
	moderationcontrollers "github.com/sacrednumerology/sacred-backend/api/controllers/moderation"
	purchasecontrollers "github.com/sacrednumerology/sacred-backend/api/controllers/purchases"
	"github.com/sacrednumerology/sacred-backend/api/middleware"
	"github.com/sacrednumerology/sacred-backend/api/validators"
	"github.com/sacrednumerology/sacred-backend/internal/access"
	"github.com/sacrednumerology/sacred-backend/internal/auth"
	"github.com/sacrednumerology/sacred-backend/internal/catalog"
	"github.com/sacrednumerology/sacred-backend/internal/identity"
	"github.com/sacrednumerology/sacred-backend/internal/moderation"
	"github.com/sacrednumerology/sacred-backend/internal/purchases"
	"github.com/sacrednumerology/sacred-backend/pkg/auth/session"
	"github.com/sacrednumerology/sacred-backend/pkg/config"
	"github.com/sacrednumerology/sacred-backend/pkg/enums"
	"github.com/sacrednumerology/sacred-backend/pkg/logger"
	pkgredis "github.com/sacrednumerology/sacred-backend/pkg/redis"
)

// AdminModerationBase is where the moderation queue is mounted; proof links in the
// queue are built from it.
const AdminModerationBase = "/api/admin/v1/moderation"

// Dependencies is everything the HTTP surface is wired to.
type Dependencies struct {
	Sessions    session.AccessSessionChecker
	Idempotency pkgredis.IdempotencyStore
	RateLimiter middleware.RateLimiterStore
	Readiness   []controllers.ReadinessCheck
	Metrics     http.Handler

	Auth       auth.Service
	Purchases  purchases.Service
	Identity   identity.Service
	Moderation moderation.Service
	Access     access.Service
	Catalog    catalog.Service
	Reset      identity.PasswordResetService
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	otpPolicy := middleware.NewAuthRateLimitPolicy(
		"otp",
		cfg.AuthRateLimit.OTPWindow,
		cfg.AuthRateLimit.OTPIPLimit,
		cfg.AuthRateLimit.OTPEmailLimit,
	)
	resetPolicy := middleware.NewAuthRateLimitPolicy(
		"password_reset",
		cfg.AuthRateLimit.OTPWindow,
		cfg.AuthRateLimit.OTPIPLimit,
		cfg.AuthRateLimit.OTPEmailLimit,
	)
	maxProof := cfg.Proof.MaxUploadBytes()
	idempotent := middleware.Idempotency(deps.Idempotency, validators.MultipartLimit(maxProof), logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness...))
	})

	metricsHandler := deps.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.OptionalAuth(cfg.JWT, deps.Sessions, logg), idempotent).
			Post("/purchases", purchasecontrollers.Create(deps.Purchases, maxProof, logg))
		r.Put("/purchases/{purchaseId}/proof", purchasecontrollers.ReplaceProof(deps.Purchases, maxProof, logg))

		r.Route("/identity/otp", func(r chi.Router) {
			r.Use(middleware.AuthRateLimit(otpPolicy, deps.RateLimiter, logg))
			r.Post("/", controllers.IdentityIssueOTP(deps.Identity, logg))
			r.Post("/verify", controllers.IdentityVerifyOTP(deps.Identity, deps.Auth, logg))
		})

		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.AuthRateLimit(loginPolicy, deps.RateLimiter, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
			r.Post("/refresh", controllers.AuthRefresh(deps.Auth, logg))
			r.Post("/logout", controllers.AuthLogout(deps.Auth, logg))

			r.Route("/password-reset", func(r chi.Router) {
				r.Use(middleware.AuthRateLimit(resetPolicy, deps.RateLimiter, logg))
				r.Post("/", controllers.PasswordResetRequest(deps.Reset, logg))
				r.Post("/verify", controllers.PasswordResetVerify(deps.Reset, logg))
				r.Post("/confirm", controllers.PasswordResetConfirm(deps.Reset, logg))
			})
		})

		r.Get("/catalog", controllers.CatalogList(deps.Catalog, logg))
		r.Get("/stream/{ticket}", controllers.Stream(deps.Access, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
			r.Get("/me/purchases", purchasecontrollers.Mine(deps.Purchases, logg))
			r.Get("/access/assets/{assetId}", controllers.AccessCheck(deps.Access, logg))
			r.Post("/access/assets/{assetId}/stream-ticket", controllers.AccessStreamTicket(deps.Access, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
		r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))

		r.Route("/moderation", func(r chi.Router) {
			r.Get("/queue", moderationcontrollers.Queue(deps.Moderation, cfg.Moderation.QueueDefaultSize, logg))
			r.Route("/purchases/{purchaseId}", func(r chi.Router) {
				r.Get("/proof", moderationcontrollers.Proof(deps.Moderation, logg))
				r.With(idempotent).Put("/decision", moderationcontrollers.Decision(deps.Moderation, logg))
				r.With(idempotent).Put("/approve", moderationcontrollers.Approve(deps.Moderation, logg))
				r.With(idempotent).Put("/reject", moderationcontrollers.Reject(deps.Moderation, logg))
			})
		})

		r.Route("/purchases", func(r chi.Router) {
			r.Get("/", purchasecontrollers.AdminList(deps.Purchases, logg))
			r.Get("/export", purchasecontrollers.AdminExport(deps.Purchases, logg))
			r.Get("/stats", purchasecontrollers.AdminStats(deps.Purchases, logg))
		})
	})

	return r
}
