package cmd

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule-engine/internal/repository"
	"github.com/noah-isme/sma-schedule-engine/internal/service"
	"github.com/noah-isme/sma-schedule-engine/pkg/config"
	"github.com/noah-isme/sma-schedule-engine/pkg/database"
	"github.com/noah-isme/sma-schedule-engine/pkg/jobs"
	"github.com/noah-isme/sma-schedule-engine/pkg/logger"
)

// engine is a process-local orchestrator over the SQLite store.
type engine struct {
	svc    *service.ScheduleRunService
	runs   *repository.ScheduleRunRepository
	runner *jobs.Runner
	db     *sqlx.DB
	logger *zap.Logger
}

func newLogger(cfg *config.Config) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	cfg.Log.Format = "console"
	l, err := logger.New(cfg)
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openEngine opens the store and starts a runner. withStore=false builds a validation-only
// engine backed by memory.
func openEngine(ctx context.Context, withStore bool) (*engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg)
	svcCfg := service.ScheduleRunConfig{
		Defaults:    service.RunDefaultsFromConfig(cfg.Engine),
		BudgetGrace: cfg.Engine.BudgetGrace,
	}

	runner := jobs.NewRunner("schedctl", jobs.RunnerConfig{MaxActive: 1, Logger: log})
	runner.Start(context.Background())

	if !withStore {
		svc := service.NewScheduleRunService(repository.NewMemoryScheduleStore(), nil, nil, runner, nil, nil, validator.New(), log, svcCfg)
		return &engine{svc: svc, runner: runner, logger: log}, nil
	}

	db, err := database.NewSQLite(dbPath)
	if err != nil {
		runner.Stop()
		return nil, err
	}
	store := repository.NewSQLScheduleStore(db)
	runs := repository.NewScheduleRunRepository(db)
	for _, migrate := range []func(context.Context) error{store.Migrate, runs.Migrate} {
		if err := migrate(ctx); err != nil {
			runner.Stop()
			_ = db.Close()
			return nil, fmt.Errorf("migrate %s: %w", dbPath, err)
		}
	}
	svc := service.NewScheduleRunService(store, runs, nil, runner, nil, nil, validator.New(), log, svcCfg)
	return &engine{svc: svc, runs: runs, runner: runner, db: db, logger: log}, nil
}

func (e *engine) Close() {
	e.runner.Stop()
	if e.db != nil {
		_ = e.db.Close()
	}
	_ = e.logger.Sync()
}
