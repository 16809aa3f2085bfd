package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/receipt-generator/internal/cron"
	"github.com/angelmondragon/receipt-generator/internal/status"
	"github.com/angelmondragon/receipt-generator/pkg/config"
	"github.com/angelmondragon/receipt-generator/pkg/db"
	"github.com/angelmondragon/receipt-generator/pkg/env"
	"github.com/angelmondragon/receipt-generator/pkg/logger"
	"github.com/angelmondragon/receipt-generator/pkg/metrics"
	"github.com/angelmondragon/receipt-generator/pkg/migrate"
	"github.com/angelmondragon/receipt-generator/pkg/pubsub"
	"github.com/angelmondragon/receipt-generator/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "receipt-cron"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "receipt-cron",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	retryPublisher, err := pubsub.NewRetryPublisher(pubsubClient.RetryPublisher())
	if err != nil {
		logg.Error(context.Background(), "failed to create retry publisher", err)
		os.Exit(1)
	}

	statusManager, err := status.NewManager(status.ManagerParams{Store: dbClient, Logger: logg})
	if err != nil {
		logg.Error(context.Background(), "failed to create status manager", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	staleJob, err := cron.NewStaleReceiptsJob(cron.StaleReceiptsJobParams{
		Logger:     logg,
		Finder:     statusManager,
		Publisher:  retryPublisher,
		Metrics:    metricsCollector,
		StaleAfter: cfg.Recovery.StaleAfter,
		BatchSize:  cfg.Recovery.BatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stale receipts job", err)
		os.Exit(1)
	}

	retentionJob, err := cron.NewReceiptErrorRetentionJob(cron.ReceiptErrorRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: statusManager.ReceiptErrors(),
		Retention:  cfg.Recovery.ErrorRetentionDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create receipt error retention job", err)
		os.Exit(1)
	}

	// the lease outlives one cycle so a slow sweep is never run twice
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron:"+cfg.App.Env), 2*cfg.Recovery.Interval)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Jobs:     []cron.Job{staleJob, retentionJob},
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Recovery.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": env.InstanceID(),
	})

	metricsServer := &http.Server{
		Addr:              ":" + cfg.App.MetricsPort,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
