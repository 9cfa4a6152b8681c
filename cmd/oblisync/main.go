package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

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
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	var archiveHandler *archive.Handler
	var archiver syncer.Archiver
	if cfg.PGDSN != "" {
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		repo := archive.NewRepository(pool)
		archiver = repo
		archiveHandler = archive.NewHandler(logger, repo)
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
	syncHandler := syncer.NewHandler(logger, service, store)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SyncHandler:    syncHandler,
		ArchiveHandler: archiveHandler,
		JobHandler:     jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
