package cli

import (
	"fmt"

	"github.com/monocle-dev/crons/db"
	"github.com/monocle-dev/crons/internal/config"
	"github.com/monocle-dev/crons/internal/logging"
	"go.uber.org/zap"
)

// app is the state shared by every subcommand once bootstrap has run.
type app struct {
	cfg     config.Config
	log     *zap.Logger
	restore func()
}

func bootstrap() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	restore := logging.Install(log)

	if err := db.ConnectDatabase(cfg.Database.Driver, cfg.Database.URL); err != nil {
		restore()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	log.Debug("Connected to database", zap.String("driver", cfg.Database.Driver))

	return &app{cfg: cfg, log: log, restore: restore}, nil
}

func (a *app) close() {
	if sqlDB, err := db.DB.DB(); err == nil {
		sqlDB.Close()
	}
	_ = a.log.Sync()
	a.restore()
}
