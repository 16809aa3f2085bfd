package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/receipt-generator/pkg/logger"
)

const receiptErrorRetentionDays = 30

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type receiptErrorRetentionRepo interface {
	DeleteReprocessedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type ReceiptErrorRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository receiptErrorRetentionRepo
	Retention  int
}

// NewReceiptErrorRetentionJob purges dead letters an operator already marked
// REPROCESSED. Entries still TO_REVIEW are never touched.
func NewReceiptErrorRetentionJob(params ReceiptErrorRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("receipt error repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = receiptErrorRetentionDays
	}
	return &receiptErrorRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		retention: retention,
		now:       time.Now,
	}, nil
}

type receiptErrorRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      receiptErrorRetentionRepo
	retention int
	now       func() time.Time
}

func (j *receiptErrorRetentionJob) Name() string { return "receipt-error-retention" }

func (j *receiptErrorRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeleteReprocessedBefore(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("receipt error retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	}), "receipt error retention complete")
	return nil
}
