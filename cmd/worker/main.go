package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/receipt-generator/internal/aggregator"
	"github.com/angelmondragon/receipt-generator/internal/consumer"
	"github.com/angelmondragon/receipt-generator/internal/generation"
	"github.com/angelmondragon/receipt-generator/internal/status"
	"github.com/angelmondragon/receipt-generator/pkg/config"
	"github.com/angelmondragon/receipt-generator/pkg/db"
	"github.com/angelmondragon/receipt-generator/pkg/env"
	"github.com/angelmondragon/receipt-generator/pkg/idempotency"
	"github.com/angelmondragon/receipt-generator/pkg/logger"
	"github.com/angelmondragon/receipt-generator/pkg/metrics"
	"github.com/angelmondragon/receipt-generator/pkg/migrate"
	"github.com/angelmondragon/receipt-generator/pkg/pdfengine"
	"github.com/angelmondragon/receipt-generator/pkg/pubsub"
	"github.com/angelmondragon/receipt-generator/pkg/redis"
	"github.com/angelmondragon/receipt-generator/pkg/storage/gcs"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "receipt-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "receipt-worker",
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

	idempotencyManager, err := idempotency.NewManager(redisClient, cfg.Eventing.InFlightTTL, cfg.Eventing.IdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

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

	gcsClient, err := gcs.NewClient(context.Background(), cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap gcs", err)
		os.Exit(1)
	}
	defer func() {
		if err := gcsClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing gcs", err)
		}
	}()

	pdfClient, err := pdfengine.NewClient(cfg.PDFEngine)
	if err != nil {
		logg.Error(context.Background(), "failed to create pdf engine client", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewGenerationMetrics(prometheus.DefaultRegisterer)

	statusManager, err := status.NewManager(status.ManagerParams{
		Store:              dbClient,
		Logger:             logg,
		ConflictMaxRetries: cfg.Generation.ConflictMaxRetries,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create status manager", err)
		os.Exit(1)
	}

	agg, err := aggregator.New(statusManager, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create aggregator", err)
		os.Exit(1)
	}

	generationService, err := generation.NewService(generation.ServiceParams{
		Logger:           logg,
		Store:            statusManager,
		Aggregator:       agg,
		Renderer:         pdfClient,
		Blobs:            gcsClient,
		Retry:            retryPublisher,
		Metrics:          metricsCollector,
		TemplateID:       cfg.PDFEngine.TemplateID,
		ApplySignature:   cfg.PDFEngine.ApplySignature,
		BlobPrefix:       cfg.Generation.BlobPrefix,
		MaxRetry:         cfg.Generation.MaxRetry,
		QueueMaxAttempts: cfg.Generation.QueueMaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create generation service", err)
		os.Exit(1)
	}

	receiptConsumer, err := consumer.New(consumer.Params{
		BizEvents:   pubsubClient.BizEventsSubscription(),
		Retries:     pubsubClient.RetrySubscription(),
		Handler:     generationService,
		Idempotency: idempotencyManager,
		DeadLetters: statusManager.ReceiptErrors(),
		Metrics:     metricsCollector,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create consumer", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Redis:    redisClient,
		PubSub:   pubsubClient,
		GCS:      gcsClient,
		PDF:      pdfClient,
		Consumer: receiptConsumer,
		Gatherer: prometheus.DefaultGatherer,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": env.InstanceID(),
	})
	logg.Info(ctx, "starting receipt worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "receipt worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "receipt worker shutting down gracefully")
}
