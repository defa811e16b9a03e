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

	"github.com/pamoja-sacco/pamoja-sacco/internal/app"
	"github.com/pamoja-sacco/pamoja-sacco/internal/authz"
	"github.com/pamoja-sacco/pamoja-sacco/internal/deposits"
	"github.com/pamoja-sacco/pamoja-sacco/internal/ledger"
	"github.com/pamoja-sacco/pamoja-sacco/internal/loans"
	"github.com/pamoja-sacco/pamoja-sacco/internal/notify"
	"github.com/pamoja-sacco/pamoja-sacco/internal/observability"
	"github.com/pamoja-sacco/pamoja-sacco/internal/platform/cache"
	"github.com/pamoja-sacco/pamoja-sacco/internal/tenant"
	"github.com/pamoja-sacco/pamoja-sacco/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	orgs, err := cfg.Organizations()
	if err != nil {
		logger.Error("parse tenant dsns", slog.Any("error", err))
		os.Exit(1)
	}
	registry := tenant.NewRegistry(orgs)
	defer registry.Close()

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

	queue, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}()

	// Notifications enqueue for the worker; the gateway is never called
	// inside a request.
	sender := notify.NewQueueSender(queue.Raw())

	loansService := loans.NewService(loans.NewRegistryStores(registry), sender, logger)
	depositsService := deposits.NewService(deposits.NewRegistryStores(registry), sender, logger)

	authzCache := authz.NewCache(redisClient, cfg.AuthzCacheTTL)
	authzService := authz.NewService(registry, authzCache, logger)
	authzMiddleware := &authz.Middleware{Service: authzService, Logger: logger}

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Registry:        registry,
		LoansHandler:    loans.NewHandler(logger, loansService),
		DepositsHandler: deposits.NewHandler(logger, depositsService),
		LedgerHandler:   ledger.NewHandler(logger, registry),
		JobsHandler:     jobsHandler,
		Authz:           authzMiddleware,
		Metrics:         metrics,
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
