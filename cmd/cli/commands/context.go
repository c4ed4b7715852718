package commands

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/shift-roster/internal/config"
	"github.com/jakechorley/shift-roster/pkg/core/rules"
	"github.com/jakechorley/shift-roster/pkg/db"
	"github.com/jakechorley/shift-roster/pkg/postgres"
	"github.com/jakechorley/shift-roster/pkg/sqlite"
)

// AppContext holds the application dependencies shared across all commands
type AppContext struct {
	Cfg      *config.Config
	Database db.Database
	Registry *rules.Registry
	Logger   *zap.Logger
	Ctx      context.Context
}

// migrator is implemented by stores with an explicit schema migration step
type migrator interface {
	RunMigrations(ctx context.Context) error
}

// OpenDatabase connects to the store selected in the configuration
func OpenDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (db.Database, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		logger.Info("Connecting to postgres")
		database, err := postgres.NewDB(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return database, nil
	case config.DriverSQLite:
		logger.Info("Opening sqlite database", zap.String("path", cfg.Storage.SQLitePath))
		database, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		return database, nil
	}
	return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
}
