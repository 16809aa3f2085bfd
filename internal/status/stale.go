package status

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/receipt-generator/pkg/db/models"
	"github.com/angelmondragon/receipt-generator/pkg/enums"
	pkgerrors "github.com/angelmondragon/receipt-generator/pkg/errors"
)

const maxStaleBatch = 500

// StaleFilter selects records that have not moved since UpdatedBefore.
type StaleFilter struct {
	Statuses      []enums.ReceiptStatus
	UpdatedBefore time.Time
	Limit         int
}

// FindStale returns records in one of filter.Statuses whose last write is older
// than filter.UpdatedBefore, oldest first.
func (m *Manager) FindStale(ctx context.Context, filter StaleFilter) ([]models.Receipt, error) {
	if len(filter.Statuses) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one status is required")
	}
	if filter.UpdatedBefore.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "updated before is required")
	}
	for _, st := range filter.Statuses {
		if !st.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid receipt status %q", st))
		}
	}
	limit := filter.Limit
	if limit <= 0 || limit > maxStaleBatch {
		limit = maxStaleBatch
	}

	var rows []models.Receipt
	err := m.store.DB().WithContext(ctx).
		Where("status IN ?", filter.Statuses).
		Where("updated_at < ?", filter.UpdatedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find stale receipts")
	}
	return rows, nil
}

// Touch bumps updated_at of a record that is still waiting for generation so
// the next stale sweep does not pick it up again. Other records are left as is.
func (m *Manager) Touch(ctx context.Context, id string) error {
	_, err := m.Update(ctx, id, func(rec *models.Receipt) error {
		if !rec.Status.IsGeneratable() {
			return ErrNoChange
		}
		return nil
	})
	return err
}
