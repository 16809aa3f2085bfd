package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/receipt-generator/pkg/config"
	"github.com/angelmondragon/receipt-generator/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

type runner interface {
	Run(ctx context.Context) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

type ServiceParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       pinger
	Redis    pinger
	PubSub   pinger
	GCS      pinger
	PDF      pinger
	Consumer runner
	Gatherer prometheus.Gatherer
}

// Service runs the receipt consumer next to a metrics endpoint.
type Service struct {
	cfg      *config.Config
	logg     *logger.Logger
	deps     []dependency
	consumer runner
	gatherer prometheus.Gatherer
}

type dependency struct {
	name     string
	pinger   pinger
	optional bool
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.GCS == nil {
		return nil, errors.New("gcs client is required")
	}
	if params.Consumer == nil {
		return nil, errors.New("consumer is required")
	}

	deps := []dependency{
		{name: "database", pinger: params.DB},
		{name: "redis", pinger: params.Redis},
		{name: "pubsub", pinger: params.PubSub},
		{name: "gcs", pinger: params.GCS},
	}
	if params.PDF != nil {
		deps = append(deps, dependency{name: "pdf-engine", pinger: params.PDF, optional: true})
	}

	return &Service{
		cfg:      params.Config,
		logg:     params.Logger,
		deps:     deps,
		consumer: params.Consumer,
		gatherer: params.Gatherer,
	}, nil
}

// ensureReadiness fails on the first required dependency that does not answer.
// The pdf engine only warns; failed renders go through retry.
func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, dep := range s.deps {
		err := dep.pinger.Ping(ctx)
		if err == nil {
			continue
		}
		if dep.optional {
			s.logg.Warn(s.logg.WithField(ctx, "dependency", dep.name), fmt.Sprintf("%s ping failed: %v", dep.name, err))
			continue
		}
		s.logg.Error(ctx, fmt.Sprintf("%s ping failed", dep.name), err)
		return fmt.Errorf("%s ping failed: %w", dep.name, err)
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := s.consumer.Run(groupCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logg.Error(groupCtx, "consumer stopped unexpectedly", err)
		}
		return err
	})
	if s.gatherer != nil && s.cfg.App.MetricsPort != "" {
		group.Go(func() error {
			return s.serveMetrics(groupCtx)
		})
	}

	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		s.logg.Info(ctx, "worker context canceled")
	}
	return err
}

func (s *Service) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              ":" + s.cfg.App.MetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logg.Info(s.logg.WithField(ctx, "addr", server.Addr), "metrics server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logg.Error(ctx, "metrics server shutdown failed", err)
		}
		return ctx.Err()
	}
}
