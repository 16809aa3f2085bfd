package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/receipt-generator/internal/status"
	"github.com/angelmondragon/receipt-generator/pkg/db/models"
	"github.com/angelmondragon/receipt-generator/pkg/enums"
	"github.com/angelmondragon/receipt-generator/pkg/logger"
	"github.com/angelmondragon/receipt-generator/pkg/metrics"
)

const (
	defaultStaleAfter = time.Hour
	defaultStaleBatch = 100
)

type staleFinder interface {
	FindStale(ctx context.Context, filter status.StaleFilter) ([]models.Receipt, error)
	Touch(ctx context.Context, id string) error
}

type retryPublisher interface {
	PublishRetry(ctx context.Context, receiptID string) error
}

type StaleReceiptsJobParams struct {
	Logger     *logger.Logger
	Finder     staleFinder
	Publisher  retryPublisher
	Metrics    *metrics.CronJobMetrics
	StaleAfter time.Duration
	BatchSize  int
}

// NewStaleReceiptsJob re-enqueues generatable units that stopped moving, for
// example when a worker died after persisting RETRY and before publishing.
// A republished unit is touched so it waits a full StaleAfter before the next
// sweep can pick it again.
func NewStaleReceiptsJob(params StaleReceiptsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Finder == nil {
		return nil, fmt.Errorf("stale finder required")
	}
	if params.Publisher == nil {
		return nil, fmt.Errorf("retry publisher required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultStaleBatch
	}
	return &staleReceiptsJob{
		logg:       params.Logger,
		finder:     params.Finder,
		publisher:  params.Publisher,
		metrics:    params.Metrics,
		staleAfter: staleAfter,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type staleReceiptsJob struct {
	logg       *logger.Logger
	finder     staleFinder
	publisher  retryPublisher
	metrics    *metrics.CronJobMetrics
	staleAfter time.Duration
	batch      int
	now        func() time.Time
}

func (j *staleReceiptsJob) Name() string { return "stale-receipts" }

func (j *staleReceiptsJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.staleAfter)
	rows, err := j.finder.FindStale(ctx, status.StaleFilter{
		Statuses:      []enums.ReceiptStatus{enums.ReceiptStatusInserted, enums.ReceiptStatusRetry},
		UpdatedBefore: cutoff,
		Limit:         j.batch,
	})
	if err != nil {
		return fmt.Errorf("find stale receipts: %w", err)
	}

	var (
		published int
		errs      error
	)
	for _, rec := range rows {
		if err := j.publisher.PublishRetry(ctx, rec.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("republish %s: %w", rec.ID, err))
			continue
		}
		published++
		if err := j.finder.Touch(ctx, rec.ID); err != nil {
			j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
				"receipt_id": rec.ID,
				"error":      err.Error(),
			}), "failed to touch republished receipt")
		}
	}
	j.metrics.AddRecovered(published)

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":    cutoff,
		"found":     len(rows),
		"published": published,
	}), "stale receipt sweep complete")
	return errs
}
