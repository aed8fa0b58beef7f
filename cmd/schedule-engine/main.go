package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-schedule-engine/api/swagger"
	"github.com/noah-isme/sma-schedule-engine/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-schedule-engine/internal/middleware"
	"github.com/noah-isme/sma-schedule-engine/internal/repository"
	"github.com/noah-isme/sma-schedule-engine/internal/service"
	"github.com/noah-isme/sma-schedule-engine/pkg/cache"
	"github.com/noah-isme/sma-schedule-engine/pkg/config"
	"github.com/noah-isme/sma-schedule-engine/pkg/database"
	"github.com/noah-isme/sma-schedule-engine/pkg/jobs"
	"github.com/noah-isme/sma-schedule-engine/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-schedule-engine/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-schedule-engine/pkg/middleware/requestid"
	"github.com/noah-isme/sma-schedule-engine/pkg/tracing"
)

// @title Schedule Engine API
// @version 0.1.0
// @description Exam and timetable generation runs with versioned apply and rollback.
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, err := tracing.New(ctx, cfg.Tracing, cfg.Env, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to init tracing", "error", err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to open database", "driver", cfg.Database.Driver, "error", err)
	}
	store, runs, err := buildStores(ctx, db)
	if err != nil {
		logr.Sugar().Fatalw("failed to migrate schedule store", "error", err)
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("progress mirror disabled", "error", err)
		redisClient = nil
	}
	mirror := repository.NewProgressCacheRepository(redisClient, cfg.Engine.ProgressTTL)

	metrics := service.NewMetricsService()
	runner := jobs.NewRunner("schedule-runs", jobs.RunnerConfig{MaxActive: cfg.Engine.MaxActiveRuns, Logger: logr})
	runner.Start(context.Background())

	runService := service.NewScheduleRunService(store, runs, mirror, runner, metrics, tracer, validator.New(), logr, service.ScheduleRunConfig{
		Defaults:        service.RunDefaultsFromConfig(cfg.Engine),
		BudgetGrace:     cfg.Engine.BudgetGrace,
		RunRetention:    cfg.Engine.RunRetention,
		CleanupInterval: cfg.Engine.CleanupInterval,
		MirrorInterval:  cfg.Engine.ProgressMirrorInterval,
	})
	if cfg.Engine.RecoverOnStart {
		if _, err := runService.Recover(ctx, true); err != nil {
			logr.Sugar().Warnw("run recovery failed", "error", err)
		}
	}
	runService.StartCleanup(ctx)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(tracing.GinMiddleware(tracer))
	r.Use(logger.GinMiddleware(logr))
	r.Use(internalmiddleware.Metrics(metrics))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	metricsHandler := handler.NewMetricsHandler(metrics, readinessProbes(db, redisClient))
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	handler.NewScheduleRunHandler(runService).Register(r.Group(cfg.APIPrefix))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", storeName(cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown", zap.Error(err))
	}
	// interrupted runs stay RUNNING in the run store and restart on the next boot
	runner.Stop()
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logr.Warn("tracing shutdown", zap.Error(err))
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		_ = db.Close()
	}
}

func buildStores(ctx context.Context, db *sqlx.DB) (service.ScheduleStore, service.RunStore, error) {
	if db == nil {
		return repository.NewMemoryScheduleStore(), nil, nil
	}
	store := repository.NewSQLScheduleStore(db)
	if err := store.Migrate(ctx); err != nil {
		return nil, nil, err
	}
	runs := repository.NewScheduleRunRepository(db)
	if err := runs.Migrate(ctx); err != nil {
		return nil, nil, err
	}
	return store, runs, nil
}

func readinessProbes(db *sqlx.DB, client *redis.Client) map[string]handler.ReadinessProbe {
	probes := make(map[string]handler.ReadinessProbe)
	if db != nil {
		probes["database"] = db.PingContext
	}
	if client != nil {
		probes["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return probes
}

func storeName(driver string) string {
	if driver == "" {
		return config.DriverPostgres
	}
	return driver
}
