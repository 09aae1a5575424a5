package app

import (
	"context"
	"database/sql"
	"fmt"

	"taskrank/internal/config"
	"taskrank/internal/db"
	"taskrank/internal/engine"
	"taskrank/internal/logging"
	"taskrank/internal/migrate"
	"taskrank/internal/runlog"
)

// App holds the resources opened for one workspace.
type App struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Engine    engine.Engine
	Logger    *logging.Logger

	runs *runlog.Log
}

// Open loads the workspace config unless cfg is given, configures logging,
// opens and migrates the task store, and connects the import run log when
// redis.url is set.
func Open(ctx context.Context, workspace string, cfg *config.Config) (*App, error) {
	if cfg == nil {
		var err error
		cfg, err = config.Load(workspace)
		if err != nil {
			return nil, err
		}
	}
	logCfg, err := logging.FromFileConfig(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logging config: %w", err)
	}
	if err := logging.Init(logCfg); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	logger := logging.Get()

	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	a := &App{Workspace: workspace, Config: cfg, DB: conn, Logger: logger}
	a.Engine = engine.New(conn, cfg)
	a.Engine.Logger = logger

	if cfg.Redis.URL != "" {
		runs, err := runlog.Open(ctx, runlog.Config{URL: cfg.Redis.URL, HistoryLen: cfg.Redis.HistoryLen, TTL: cfg.Redis.TTL})
		if err != nil {
			// Imports still work without history.
			logger.WithError(err).Warn("import history unavailable")
		} else {
			a.runs = runs
			a.Engine.Runs = runs
		}
	}
	return a, nil
}

func (a *App) Close() error {
	if a.runs != nil {
		a.runs.Close()
	}
	return a.DB.Close()
}
