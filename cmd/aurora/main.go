package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/aurora-erp/aurora-erp/internal/app"
	"github.com/aurora-erp/aurora-erp/internal/httpapi"
	"github.com/aurora-erp/aurora-erp/internal/listing"
	"github.com/aurora-erp/aurora-erp/internal/meta"
	"github.com/aurora-erp/aurora-erp/internal/observability"
	"github.com/aurora-erp/aurora-erp/internal/permission"
	"github.com/aurora-erp/aurora-erp/internal/platform/cache"
	"github.com/aurora-erp/aurora-erp/internal/platform/db"
	"github.com/aurora-erp/aurora-erp/internal/render"
	"github.com/aurora-erp/aurora-erp/internal/users"
	"github.com/aurora-erp/aurora-erp/internal/viewgen"
	"github.com/aurora-erp/aurora-erp/internal/workflow"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, caches disabled", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	tolerance, err := decimal.NewFromString(cfg.PriceTolerance)
	if err != nil {
		logger.Error("parse price tolerance", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	registry := meta.NewRegistry(meta.NewRepository(pool), redisClient, cfg.MetadataTTL, logger)
	resolver := permission.NewResolver(permission.NewRepository(pool), redisClient, cfg.PermissionTTL, logger)
	gate := permission.NewGate(registry, resolver)

	lists := listing.NewService(registry, resolver, listing.NewRepository(pool), cfg.MaxPageSize)
	templates := render.NewStore(render.NewRepository(pool), redisClient, cfg.TemplateTTL, logger)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()
	genlog := viewgen.NewBestEffortSink(logger,
		viewgen.NewAsynqSink(asynqClient),
		viewgen.NewPgSink(pool),
	)

	generator := viewgen.NewGenerator(registry, lists, templates, genlog, metrics)
	flow := workflow.NewService(workflow.NewPgRepository(pool), gate, registry, lists, logger, workflow.Config{
		PriceTolerance: tolerance,
		MutableFields:  workflow.DefaultMutableFields(),
	})
	userService := users.NewService(users.NewRepository(pool))

	handler := httpapi.NewHandler(logger, generator, lists, flow, flow)
	router := app.NewRouter(app.RouterDeps{
		Logger:  logger,
		Config:  cfg,
		Metrics: metrics,
		Actors:  userService,
		Handler: handler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server run", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
