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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pamoja-sacco/pamoja-sacco/internal/app"
	"github.com/pamoja-sacco/pamoja-sacco/internal/deposits"
	jobmetrics "github.com/pamoja-sacco/pamoja-sacco/internal/jobs"
	"github.com/pamoja-sacco/pamoja-sacco/internal/loans"
	"github.com/pamoja-sacco/pamoja-sacco/internal/notify"
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

	var gateway notify.Sender = notify.NopSender{}
	if cfg.SMSGatewayURL != "" {
		gateway = notify.NewHTTPGateway(cfg.SMSGatewayURL, cfg.SMSAPIKey, cfg.SMSSenderID)
	} else {
		logger.Warn("no sms gateway configured, notifications are discarded")
	}

	// Job handlers send inline through the gateway; the queue hop already
	// happened on the API side.
	loansService := loans.NewService(loans.NewRegistryStores(registry), gateway, logger)
	depositsService := deposits.NewService(deposits.NewRegistryStores(registry), gateway, logger)

	registerer := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registerer)

	metricsServer := &http.Server{
		Addr:    cfg.WorkerMetricsAddr,
		Handler: promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}),
	}
	go func() {
		logger.Info("starting metrics server", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	maturityJob := jobs.NewDepositsMatureJob(depositsService, registry, redisClient, logger, metrics)
	overdueJob := jobs.NewLoansOverdueJob(loansService, registry, logger, metrics)
	smsJob := jobs.NewSMSJob(gateway, logger)

	maturityTask, err := jobs.NewDepositsMatureTask(jobs.OrgPayload{})
	if err != nil {
		logger.Error("build maturity task", slog.Any("error", err))
		os.Exit(1)
	}
	overdueTask, err := jobs.NewLoansOverdueTask(jobs.OrgPayload{})
	if err != nil {
		logger.Error("build overdue task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDepositsMature, Handler: maturityJob.Handle},
			{Type: jobs.TaskLoansOverdue, Handler: overdueJob.Handle},
			{Type: notify.TaskTypeSMS, Handler: smsJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.DepositsMatureCron, Task: maturityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.LoansOverdueCron, Task: overdueTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
