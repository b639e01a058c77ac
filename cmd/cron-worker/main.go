package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/activityhub-backend/internal/catalog"
	"github.com/angelmondragon/activityhub-backend/internal/commissions"
	"github.com/angelmondragon/activityhub-backend/internal/cron"
	"github.com/angelmondragon/activityhub-backend/internal/referrals"
	"github.com/angelmondragon/activityhub-backend/pkg/config"
	"github.com/angelmondragon/activityhub-backend/pkg/db"
	"github.com/angelmondragon/activityhub-backend/pkg/instance"
	"github.com/angelmondragon/activityhub-backend/pkg/logger"
	"github.com/angelmondragon/activityhub-backend/pkg/metrics"
	"github.com/angelmondragon/activityhub-backend/pkg/migrate"
	"github.com/angelmondragon/activityhub-backend/pkg/outbox"
	"github.com/angelmondragon/activityhub-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(cron.LockName), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	catalogRepo := catalog.NewRepository(dbClient.DB())
	referralService, err := referrals.NewService(referrals.ServiceParams{
		Repo:    referrals.NewRepository(dbClient.DB()),
		Catalog: catalogRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create referral service", err)
		os.Exit(1)
	}
	commissionRepo := commissions.NewRepository(dbClient.DB())
	commissionService, err := commissions.NewService(commissions.ServiceParams{
		Tx:        dbClient,
		Repo:      commissionRepo,
		Catalog:   catalogRepo,
		Referrals: referralService,
		Metrics:   metrics.NewSettlementMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create commission service", err)
		os.Exit(1)
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Events:      outbox.NewRepository(dbClient.DB()),
		DeadLetters: outbox.NewDLQRepository(dbClient.DB()),
		Retention:   cfg.Outbox.RetentionDays,
		DLQ:         cfg.Outbox.DLQRetentionDays,
		MinAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}
	purgeJob, err := cron.NewReferralLinkPurgeJob(cron.ReferralLinkPurgeJobParams{
		Logger:    logg,
		Referrals: referralService,
		AfterDays: cfg.Cron.LinkPurgeAfterDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create referral purge job", err)
		os.Exit(1)
	}
	backfillJob, err := cron.NewSettlementBackfillJob(cron.SettlementBackfillJobParams{
		Logger:   logg,
		Bookings: commissionRepo,
		Settler:  commissionService,
		MinAge:   cfg.Cron.BackfillMinAge,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement backfill job", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   cron.NewRegistry(retentionJob, purgeJob, backfillJob),
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"serviceKind": cfg.Service.Kind,
		"run_once":    cfg.Cron.RunOnce,
	})
	logg.Info(ctx, "starting cron worker")

	if cfg.Cron.RunOnce {
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "cron cycle finished")
		return
	}

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
