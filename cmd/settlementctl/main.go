package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/activityhub-backend/internal/catalog"
	"github.com/angelmondragon/activityhub-backend/internal/commissions"
	"github.com/angelmondragon/activityhub-backend/internal/referrals"
	"github.com/angelmondragon/activityhub-backend/pkg/config"
	"github.com/angelmondragon/activityhub-backend/pkg/db"
	"github.com/angelmondragon/activityhub-backend/pkg/logger"
	"github.com/angelmondragon/activityhub-backend/pkg/outbox"
)

func main() {
	root := newRootCmd(bootstrap)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap connects to the database and builds the services the commands operate on.
func bootstrap(ctx context.Context) (*app, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logg := logger.New(logger.Options{
		ServiceName: "settlementctl",
		Level:       cfg.App.LogLevel,
		Output:      os.Stderr,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	catalogRepo := catalog.NewRepository(dbClient.DB())
	referralService, err := referrals.NewService(referrals.ServiceParams{
		Repo:    referrals.NewRepository(dbClient.DB()),
		Catalog: catalogRepo,
	})
	if err != nil {
		_ = dbClient.Close()
		return nil, err
	}
	commissionService, err := commissions.NewService(commissions.ServiceParams{
		Tx:        dbClient,
		Repo:      commissions.NewRepository(dbClient.DB()),
		Catalog:   catalogRepo,
		Referrals: referralService,
	})
	if err != nil {
		_ = dbClient.Close()
		return nil, err
	}

	return &app{
		settler: commissionService,
		dlq:     outbox.NewDLQRepository(dbClient.DB()),
		links:   referralService,
		close:   dbClient.Close,
	}, nil
}
