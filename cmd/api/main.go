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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/receipt-generator/api/controllers"
	"github.com/angelmondragon/receipt-generator/api/routes"
	"github.com/angelmondragon/receipt-generator/internal/helpdesk"
	"github.com/angelmondragon/receipt-generator/internal/status"
	"github.com/angelmondragon/receipt-generator/pkg/config"
	"github.com/angelmondragon/receipt-generator/pkg/db"
	"github.com/angelmondragon/receipt-generator/pkg/env"
	"github.com/angelmondragon/receipt-generator/pkg/logger"
	"github.com/angelmondragon/receipt-generator/pkg/migrate"
	"github.com/angelmondragon/receipt-generator/pkg/tokenizer"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "receipt-helpdesk"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "receipt-helpdesk",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if !cfg.Auth.Enabled() {
		if !cfg.App.IsDev() {
			logg.Error(context.Background(), "helpdesk jwt secret is required outside dev", errors.New(config.EnvHelpdeskJWTSecret+" is empty"))
			os.Exit(1)
		}
		logg.Warn(context.Background(), "helpdesk auth disabled in dev")
	}

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

	statusManager, err := status.NewManager(status.ManagerParams{Store: dbClient, Logger: logg})
	if err != nil {
		logg.Error(context.Background(), "failed to create status manager", err)
		os.Exit(1)
	}

	// Without a tokenizer URL the preview endpoint answers with a dependency error.
	var tokenizerClient helpdesk.Tokenizer
	if cfg.Tokenizer.URL != "" {
		client, err := tokenizer.NewClient(cfg.Tokenizer)
		if err != nil {
			logg.Error(context.Background(), "failed to create tokenizer client", err)
			os.Exit(1)
		}
		tokenizerClient = client
	} else {
		logg.Warn(context.Background(), "tokenizer not configured, receipt previews disabled")
	}

	helpdeskService, err := helpdesk.NewService(statusManager, statusManager.ReceiptErrors(), tokenizerClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create helpdesk service", err)
		os.Exit(1)
	}

	port := env.Get("PORT", cfg.App.Port)
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": env.InstanceID(),
	})
	logg.Info(ctx, "starting helpdesk api")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, helpdeskService, promhttp.Handler(),
			controllers.ReadinessCheck{Name: "database", Pinger: dbClient},
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "helpdesk api shutting down gracefully")
}
