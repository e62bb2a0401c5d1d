package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/sephirothchang/CXVoyager-sub000/internal/config"
	"github.com/sephirothchang/CXVoyager-sub000/internal/logging"
	"github.com/sephirothchang/CXVoyager-sub000/internal/orchestrator"
	"github.com/sephirothchang/CXVoyager-sub000/internal/stages"
	"github.com/sephirothchang/CXVoyager-sub000/internal/tasks"
)

// app bundles what every command needs: configuration, logger and, on
// demand, the task manager.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	closer func() error
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Load(".")
	}
	info, err := os.Stat(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if info.IsDir() {
		return config.Load(configPath)
	}
	return config.LoadFile(configPath)
}

// newApp loads configuration and initializes logging. debug forces the
// debug level.
func newApp(debug bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	level := cfg.Logging.Level
	if debug || cfg.Logging.Debug {
		level = "debug"
	}
	logger, err := logging.Init(level, cfg.Logging.Dir)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, closer: func() error { return nil }}, nil
}

func (a *app) engine() *orchestrator.Engine {
	reg := stages.BuildRegistry(stages.Deps{
		Deployer: stages.DeployerFromConfig(a.cfg),
	})
	return orchestrator.NewEngine(a.cfg, reg, a.logger.Named("engine"))
}

// openStore opens the task store selected by web.task_backend.
func (a *app) openStore(ctx context.Context) (tasks.Store, error) {
	path := a.cfg.Web.TaskStorage
	switch a.cfg.Web.TaskBackend {
	case "", "json":
		return tasks.NewJSONStore(path), nil
	case "sqlite":
		st, err := tasks.OpenSQLiteStore(ctx, path)
		if err != nil {
			return nil, err
		}
		a.closer = st.Close
		return st, nil
	default:
		return nil, fmt.Errorf("unknown task backend %q", a.cfg.Web.TaskBackend)
	}
}

// manager builds a task manager over the configured store.
func (a *app) manager(ctx context.Context) (*tasks.Manager, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	return tasks.NewManager(a.engine(), store,
		tasks.WithWorkers(a.cfg.Web.MaxWorkers),
		tasks.WithLogger(a.logger.Named("tasks")),
	), nil
}

func (a *app) close() {
	if err := a.closer(); err != nil {
		a.logger.Warn("closing task store", zap.Error(err))
	}
	_ = a.logger.Sync()
}
