package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/oblisync/oblisync/internal/app"
	"github.com/oblisync/oblisync/internal/archive"
	"github.com/oblisync/oblisync/internal/platform/cache"
	"github.com/oblisync/oblisync/internal/platform/db"
	"github.com/oblisync/oblisync/internal/session"
	"github.com/oblisync/oblisync/internal/syncer"
	"github.com/oblisync/oblisync/jobs"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	store := session.NewStore(redisClient, cfg.CryptoSecret, cfg.SessionTTL)

	var archiver syncer.Archiver
	if cfg.PGDSN != "" {
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		archiver = archive.NewRepository(pool)
	}

	scheduler, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := scheduler.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	service := syncer.NewService(store, syncer.APIClientFactory{}, logger, archiver, scheduler)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeAutoRetry, Handler: jobs.NewAutoRetryHandler(logger, service)},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
