package status

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/receipt-generator/pkg/db/models"
	"github.com/angelmondragon/receipt-generator/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxReceiptErrorLen   = 1024
	defaultReceiptErrors = 50
	maxReceiptErrors     = 200
)

// ReceiptErrors stores dead-lettered units.
type ReceiptErrors struct {
	db *gorm.DB
}

func NewReceiptErrors(db *gorm.DB) *ReceiptErrors {
	return &ReceiptErrors{db: db}
}

// InsertTx records a dead letter inside tx. A second entry for the same unit is
// ignored.
func (r *ReceiptErrors) InsertTx(tx *gorm.DB, entry models.ReceiptError) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = enums.ReceiptErrorStatusToReview
	}
	entry.MessageError = truncateReceiptError(entry.MessageError)
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "biz_event_id"}},
		DoNothing: true,
	}).Create(&entry).Error
}

// Insert records a dead letter outside a status transition, for deliveries
// that never became a unit.
func (r *ReceiptErrors) Insert(ctx context.Context, entry models.ReceiptError) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return r.InsertTx(r.db.WithContext(ctx), entry)
}

func (r *ReceiptErrors) FindByBizEventID(ctx context.Context, bizEventID string) (*models.ReceiptError, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var row models.ReceiptError
	err := r.db.WithContext(ctx).Where("biz_event_id = ?", bizEventID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ListFilter narrows a dead-letter listing.
type ListFilter struct {
	Status enums.ReceiptErrorStatus
	Limit  int
}

func (r *ReceiptErrors) List(ctx context.Context, filter ListFilter) ([]models.ReceiptError, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultReceiptErrors
	}
	if limit > maxReceiptErrors {
		limit = maxReceiptErrors
	}

	query := r.db.WithContext(ctx).Order("created_at DESC").Order("id ASC").Limit(limit)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var rows []models.ReceiptError
	err := query.Find(&rows).Error
	return rows, err
}

// DeleteReprocessedBefore removes REPROCESSED dead letters created before cutoff.
func (r *ReceiptErrors) DeleteReprocessedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	res := tx.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.ReceiptErrorStatusReprocessed, cutoff).
		Delete(&models.ReceiptError{})
	return res.RowsAffected, res.Error
}

func truncateReceiptError(message string) string {
	if len(message) <= maxReceiptErrorLen {
		return message
	}
	return message[:maxReceiptErrorLen]
}
