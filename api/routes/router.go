package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/activityhub-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/activityhub-backend/api/controllers/webhooks"
	"github.com/angelmondragon/activityhub-backend/api/middleware"
	"github.com/angelmondragon/activityhub-backend/internal/bookings"
	checkoutsvc "github.com/angelmondragon/activityhub-backend/internal/checkout"
	"github.com/angelmondragon/activityhub-backend/internal/referrals"
	stripewebhook "github.com/angelmondragon/activityhub-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/activityhub-backend/pkg/config"
	"github.com/angelmondragon/activityhub-backend/pkg/db"
	"github.com/angelmondragon/activityhub-backend/pkg/enums"
	"github.com/angelmondragon/activityhub-backend/pkg/logger"
	"github.com/angelmondragon/activityhub-backend/pkg/metrics"
	"github.com/angelmondragon/activityhub-backend/pkg/redis"
)

type redisStore interface {
	redis.IdempotencyStore
	redis.Pinger
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(parts ...string) string
}

type bookingResolver interface {
	Resolve(ctx context.Context, sessionID string, mode enums.CheckoutMode) (*bookings.Detail, error)
}

type signingSecretProvider interface {
	SigningSecret() string
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient redisStore,
	metricsHandler http.Handler,
	settlementMetrics *metrics.SettlementMetrics,
	referralService referrals.Service,
	checkoutService checkoutsvc.Service,
	resolver bookingResolver,
	tokens middleware.TokenVerifier,
	stripeClient signingSecretProvider,
	stripeWebhookService webhookcontrollers.StripeWebhookService,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	visitPolicy := middleware.NewRateLimitPolicy(
		"referral-visits",
		cfg.RateLimit.VisitWindow,
		cfg.RateLimit.VisitIPLimit,
		cfg.RateLimit.VisitSubjectLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, settlementMetrics, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(tokens, logg))
		r.Use(middleware.Visitor(cfg.Checkout.VisitorCookieName, cfg.App.IsProd(), logg))
		r.Use(middleware.Idempotency(redisClient, cfg.Checkout.IdempotencyTTL, logg))

		r.Route("/referrals", func(r chi.Router) {
			r.With(middleware.RateLimit(visitPolicy, redisClient, logg)).Post("/visits", controllers.ReferralVisit(referralService, logg))
			r.Get("/active", controllers.ReferralActive(referralService, logg))
		})
		r.Post("/checkout/sessions", controllers.CheckoutCreateSession(checkoutService, logg))
		r.Get("/bookings/detail", controllers.BookingDetail(resolver, logg))
	})

	return r
}
