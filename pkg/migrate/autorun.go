package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/minierp-console/pkg/config"
	"github.com/angelmondragon/minierp-console/pkg/db"
	"github.com/angelmondragon/minierp-console/pkg/logger"
)

// MaybeRun applies the embedded migrations when auto-migrate is enabled.
func MaybeRun(ctx context.Context, cfg config.DBConfig, logg *logger.Logger, client *db.Client) error {
	if !cfg.AutoMigrate || client == nil {
		return nil
	}

	sqlDB, err := client.SQL()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{"dialect": client.Dialect(), "driver": cfg.NormalizedDriver()})
		logg.Debug(ctx, "running embedded migrations")
	}

	if err := Run(ctx, sqlDB, client.Dialect(), "", "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	if logg != nil {
		logg.Debug(ctx, "migrations completed")
	}
	return nil
}
