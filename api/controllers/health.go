package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/receipt-generator/api/responses"
	"github.com/angelmondragon/receipt-generator/pkg/config"
	pkgerrors "github.com/angelmondragon/receipt-generator/pkg/errors"
	"github.com/angelmondragon/receipt-generator/pkg/logger"
)

const (
	envHeader    = "X-Receipts-Env"
	readyTimeout = 2 * time.Second
)

// Pinger is any dependency that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadinessCheck names a dependency probed by /health/ready.
type ReadinessCheck struct {
	Name   string
	Pinger Pinger
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, checks ...ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		failed := map[string]string{}
		for _, check := range checks {
			if check.Pinger == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			err := check.Pinger.Ping(ctx)
			cancel()
			if err != nil {
				failed[check.Name] = err.Error()
			}
		}

		if len(failed) > 0 {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependencies not ready").WithDetails(failed))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
