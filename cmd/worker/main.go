package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/aurora-erp/aurora-erp/internal/app"
	"github.com/aurora-erp/aurora-erp/internal/meta"
	"github.com/aurora-erp/aurora-erp/internal/platform/cache"
	"github.com/aurora-erp/aurora-erp/internal/platform/db"
	"github.com/aurora-erp/aurora-erp/internal/render"
	"github.com/aurora-erp/aurora-erp/internal/viewgen"
	"github.com/aurora-erp/aurora-erp/internal/workflow"
	"github.com/aurora-erp/aurora-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Warn("redis unavailable, warmup degraded", slog.Any("error", err))
		redisClient = nil
	}

	registry := meta.NewRegistry(meta.NewRepository(pool), redisClient, cfg.MetadataTTL, logger)
	templates := render.NewStore(render.NewRepository(pool), redisClient, cfg.TemplateTTL, logger)

	genlogJob := jobs.NewGenerationLogJob(viewgen.NewPgSink(pool), logger)
	warmupJob := jobs.NewCacheWarmupJob(registry, templates, logger)

	warmupTask, err := jobs.NewCacheWarmupTask([]string{
		workflow.EntitySupplier,
		workflow.EntityPurchaseOrder,
		workflow.EntityGoodsReceipt,
		workflow.EntityInvoiceReceipt,
		workflow.EntityPayment,
	})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: viewgen.TaskGenerationLog, Handler: genlogJob.Handle},
			{Type: jobs.TaskCacheWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/15 * * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(2)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
