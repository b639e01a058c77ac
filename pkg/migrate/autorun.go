package migrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/activityhub-backend/pkg/config"
	"github.com/angelmondragon/activityhub-backend/pkg/db"
	"github.com/angelmondragon/activityhub-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on boot, but only in dev with
// ACTIVITYHUB_AUTO_MIGRATE set. Shared environments run cmd/migrate instead.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || client == nil {
		return errors.New("config and db client are required")
	}
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	runner, err := NewRunner(sqlDB, "", logg)
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "source", "embedded")
	logg.Info(ctx, "auto-migrating settlement schema")
	if err := runner.Exec(ctx, "up"); err != nil {
		return err
	}
	logg.Info(ctx, "settlement schema up to date")
	return nil
}
