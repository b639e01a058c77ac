package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/activityhub-backend/api/routes"
	"github.com/angelmondragon/activityhub-backend/internal/bookings"
	"github.com/angelmondragon/activityhub-backend/internal/catalog"
	checkoutsvc "github.com/angelmondragon/activityhub-backend/internal/checkout"
	"github.com/angelmondragon/activityhub-backend/internal/commissions"
	"github.com/angelmondragon/activityhub-backend/internal/notifications"
	"github.com/angelmondragon/activityhub-backend/internal/referrals"
	stripewebhook "github.com/angelmondragon/activityhub-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/activityhub-backend/pkg/auth"
	"github.com/angelmondragon/activityhub-backend/pkg/config"
	"github.com/angelmondragon/activityhub-backend/pkg/db"
	"github.com/angelmondragon/activityhub-backend/pkg/instance"
	"github.com/angelmondragon/activityhub-backend/pkg/logger"
	"github.com/angelmondragon/activityhub-backend/pkg/metrics"
	"github.com/angelmondragon/activityhub-backend/pkg/migrate"
	"github.com/angelmondragon/activityhub-backend/pkg/outbox"
	"github.com/angelmondragon/activityhub-backend/pkg/redis"
	stripeclient "github.com/angelmondragon/activityhub-backend/pkg/stripe"
)

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
		Env:         cfg.App.Env,
		Instance:    instance.GetID(),
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripeclient.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}
	sessions, err := stripeclient.NewCheckoutSessions(stripeClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout sessions client", err)
		os.Exit(1)
	}

	settlementMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)
	catalogRepo := catalog.NewRepository(dbClient.DB())

	referralService, err := referrals.NewService(referrals.ServiceParams{
		Repo:    referrals.NewRepository(dbClient.DB()),
		Catalog: catalogRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create referral service", err)
		os.Exit(1)
	}

	checkoutService, err := checkoutsvc.NewService(checkoutsvc.ServiceParams{
		Sessions:  sessions,
		Catalog:   catalogRepo,
		Referrals: referralService,
		Config:    cfg.Checkout,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	commissionService, err := commissions.NewService(commissions.ServiceParams{
		Tx:        dbClient,
		Repo:      commissions.NewRepository(dbClient.DB()),
		Catalog:   catalogRepo,
		Referrals: referralService,
		Metrics:   settlementMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create commission service", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	enqueuer, err := notifications.NewEnqueuer(outboxService)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification enqueuer", err)
		os.Exit(1)
	}

	bookingRepo := bookings.NewRepository(dbClient.DB())
	materializer, err := bookings.NewMaterializer(bookings.MaterializerParams{
		Tx:            dbClient,
		Repo:          bookingRepo,
		Catalog:       catalogRepo,
		Commissions:   commissionService,
		Notifications: enqueuer,
		Outbox:        outboxService,
		Metrics:       settlementMetrics,
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create booking materializer", err)
		os.Exit(1)
	}

	resolver, err := bookings.NewResolver(bookings.ResolverParams{
		Sessions: sessions,
		Repo:     bookingRepo,
		Catalog:  catalogRepo,
		Config:   cfg.Bookings,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create booking resolver", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Materializer: materializer,
		Metrics:      settlementMetrics,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}
	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook guard", err)
		os.Exit(1)
	}

	tokens, err := auth.NewVerifier(cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create token verifier", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"addr":       addr,
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			promhttp.Handler(),
			settlementMetrics,
			referralService,
			checkoutService,
			resolver,
			tokens,
			stripeClient,
			webhookService,
			webhookGuard,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logg.Error(ctx, "failed to listen", err)
		os.Exit(1)
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := serve(sigCtx, server, ln, shutdownGrace); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}
