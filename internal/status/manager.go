package status

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/angelmondragon/receipt-generator/pkg/db"
	"github.com/angelmondragon/receipt-generator/pkg/db/models"
	"github.com/angelmondragon/receipt-generator/pkg/enums"
	pkgerrors "github.com/angelmondragon/receipt-generator/pkg/errors"
	"github.com/angelmondragon/receipt-generator/pkg/logger"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const defaultConflictMaxRetries = 5

// ErrNoChange aborts a mutation without writing.
var ErrNoChange = stdErrors.New("status: no change")

// ErrConcurrencyConflict is returned when the stored version moved on.
var ErrConcurrencyConflict = pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "receipt version changed")

// Mutation edits a private copy of the record. Returning ErrNoChange skips the write.
type Mutation func(rec *models.Receipt) error

// Store is the transactional surface the manager needs from pkg/db.
type Store interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

var _ Store = (*db.Client)(nil)

// ManagerParams wires a Manager.
type ManagerParams struct {
	Store              Store
	Logger             *logger.Logger
	ConflictMaxRetries int
	Now                func() time.Time
}

// Manager is the only writer of receipt records. Every write is a
// version-checked update and recomputes the derived status.
type Manager struct {
	store              Store
	errors             *ReceiptErrors
	logg               *logger.Logger
	conflictMaxRetries int
	now                func() time.Time
}

func NewManager(params ManagerParams) (*Manager, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	retries := params.ConflictMaxRetries
	if retries <= 0 {
		retries = defaultConflictMaxRetries
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:              params.Store,
		errors:             NewReceiptErrors(params.Store.DB()),
		logg:               params.Logger,
		conflictMaxRetries: retries,
		now:                now,
	}, nil
}

// ReceiptErrors exposes the dead-letter store owned by the manager.
func (m *Manager) ReceiptErrors() *ReceiptErrors {
	return m.errors
}

func (m *Manager) Load(ctx context.Context, id string) (*models.Receipt, error) {
	var rec models.Receipt
	err := m.store.DB().WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("receipt %s not found", id))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnableToSave, err, "load receipt")
	}
	return &rec, nil
}

// Insert stores a new record at version 0.
func (m *Manager) Insert(ctx context.Context, rec *models.Receipt) error {
	if rec == nil || rec.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "receipt id is required")
	}
	if !rec.Status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid receipt status %q", rec.Status))
	}
	rec.Version = 0
	if rec.InsertedAt.IsZero() {
		rec.InsertedAt = m.now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.InsertedAt
	}
	rec.Status = Derive(rec.Status, rec.Slots)

	err := m.store.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		return m.recordDeadLetter(tx, "", rec)
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, fmt.Sprintf("receipt %s already exists", rec.ID))
		}
		return pkgerrors.Wrap(pkgerrors.CodeUnableToSave, err, "insert receipt")
	}
	return nil
}

// ApplyUpdate applies mutation only if the stored version still equals
// expectedVersion.
func (m *Manager) ApplyUpdate(ctx context.Context, id string, mutation Mutation, expectedVersion int) (*models.Receipt, error) {
	current, err := m.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Version != expectedVersion {
		return nil, ErrConcurrencyConflict
	}
	return m.apply(ctx, current, mutation)
}

// Update loads, mutates and saves id, reloading and reapplying mutation when a
// concurrent writer wins the race.
func (m *Manager) Update(ctx context.Context, id string, mutation Mutation) (*models.Receipt, error) {
	for attempt := 0; attempt <= m.conflictMaxRetries; attempt++ {
		current, err := m.Load(ctx, id)
		if err != nil {
			return nil, err
		}

		updated, err := m.apply(ctx, current, mutation)
		if err == nil {
			return updated, nil
		}
		if !pkgerrors.IsCode(err, pkgerrors.CodeConcurrencyConflict) {
			return nil, err
		}

		m.logg.Warn(m.logg.WithFields(ctx, map[string]any{
			"receipt_id": id,
			"version":    current.Version,
			"attempt":    attempt + 1,
		}), "receipt update conflict, reloading")
	}

	return nil, pkgerrors.New(pkgerrors.CodeUnableToSave,
		fmt.Sprintf("receipt %s still conflicting after %d retries", id, m.conflictMaxRetries))
}

func (m *Manager) apply(ctx context.Context, current *models.Receipt, mutation Mutation) (*models.Receipt, error) {
	next := clone(current)
	if err := mutation(next); err != nil {
		if stdErrors.Is(err, ErrNoChange) {
			return current, nil
		}
		return nil, err
	}

	now := m.now().UTC()
	next.ID = current.ID
	next.Version = current.Version + 1
	next.Status = Derive(next.Status, next.Slots)
	next.InsertedAt = current.InsertedAt
	next.UpdatedAt = now
	switch {
	case current.GeneratedAt != nil:
		next.GeneratedAt = current.GeneratedAt
	case AllSucceeded(next.Slots):
		next.GeneratedAt = &now
	default:
		next.GeneratedAt = nil
	}
	if current.NotifiedAt != nil {
		next.NotifiedAt = current.NotifiedAt
	}

	err := m.store.WithTx(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.Receipt{}).
			Where("id = ? AND version = ?", current.ID, current.Version).
			Updates(map[string]any{
				"version":        next.Version,
				"is_cart":        next.IsCart,
				"total_notice":   next.TotalNotice,
				"status":         next.Status,
				"event_data":     next.EventData,
				"slots":          next.Slots,
				"queue_attempts": next.QueueAttempts,
				"generated_at":   next.GeneratedAt,
				"notified_at":    next.NotifiedAt,
				"updated_at":     now,
			})
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeUnableToSave, res.Error, "update receipt")
		}
		if res.RowsAffected == 0 {
			return ErrConcurrencyConflict
		}
		return m.recordDeadLetter(tx, current.Status, next)
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeUnableToSave, err, "update receipt")
		}
		return nil, err
	}
	return next, nil
}

// recordDeadLetter writes the ReceiptError on the transition into a
// dead-letter status.
func (m *Manager) recordDeadLetter(tx *gorm.DB, before enums.ReceiptStatus, rec *models.Receipt) error {
	if !isDeadLetterStatus(rec.Status) || isDeadLetterStatus(before) {
		return nil
	}

	payload, err := originalPayload(rec)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal dead letter payload")
	}
	entry := models.ReceiptError{
		BizEventID:     rec.ID,
		MessagePayload: payload,
		MessageError:   deadLetterMessage(rec),
		Status:         enums.ReceiptErrorStatusToReview,
	}
	if err := m.errors.InsertTx(tx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnableToSave, err, "insert receipt error")
	}
	return nil
}

func isDeadLetterStatus(status enums.ReceiptStatus) bool {
	return status == enums.ReceiptStatusToReview || status == enums.ReceiptStatusUnableToSend
}

func originalPayload(rec *models.Receipt) (json.RawMessage, error) {
	if len(rec.EventData) == 1 {
		return json.Marshal(rec.EventData[0])
	}
	return json.Marshal(rec.EventData)
}

func deadLetterMessage(rec *models.Receipt) string {
	var combined error
	if rec.Status == enums.ReceiptStatusUnableToSend {
		combined = multierr.Append(combined, fmt.Errorf("retry enqueue failed after %d attempts", rec.QueueAttempts))
	}
	for _, slot := range rec.Slots {
		if slot.Reason == nil {
			continue
		}
		if slot.State != enums.SlotStateFailed && slot.State != enums.SlotStateRetry {
			continue
		}
		combined = multierr.Append(combined, fmt.Errorf("%s %s (retries %d): %s", slot.Key, slot.Reason.Code, slot.NumRetry, slot.Reason.Message))
	}
	if combined == nil {
		return "unit moved to " + string(rec.Status)
	}
	return combined.Error()
}

func clone(rec *models.Receipt) *models.Receipt {
	out := *rec
	out.EventData = append(out.EventData[:0:0], rec.EventData...)
	out.Slots = make([]models.Outcome, len(rec.Slots))
	for i, slot := range rec.Slots {
		copied := slot
		copied.EventIndexes = append([]int(nil), slot.EventIndexes...)
		if slot.Document != nil {
			doc := *slot.Document
			copied.Document = &doc
		}
		if slot.Reason != nil {
			reason := *slot.Reason
			copied.Reason = &reason
		}
		out.Slots[i] = copied
	}
	return &out
}
