package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/pos-engine/pkg/config"
	"github.com/angelmondragon/pos-engine/pkg/db"
	"github.com/angelmondragon/pos-engine/pkg/logger"
)

// MaybeRun brings the register's schema up to date on boot when the
// auto-migrate flag is on, which is the default for every environment.
func MaybeRun(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	dialect := client.Dialect()
	ctx = logg.WithFields(ctx, map[string]any{"register_id": cfg.Register.ID, "dialect": dialect})

	before, err := Version(ctx, sqlDB, dialect)
	if err != nil {
		return err
	}
	if err := Up(ctx, sqlDB, dialect); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	after, err := Version(ctx, sqlDB, dialect)
	if err != nil {
		return err
	}

	ctx = logg.WithFields(ctx, map[string]any{"from_version": before, "to_version": after})
	if before == after {
		logg.Debug(ctx, "schema already current")
		return nil
	}
	logg.Info(ctx, "schema migrated")
	return nil
}
