package status

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/receipt-generator/pkg/db/models"
	"github.com/angelmondragon/receipt-generator/pkg/enums"
	pkgerrors "github.com/angelmondragon/receipt-generator/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingReturnsNotFound(t *testing.T) {
	manager, _ := newTestManager(t)

	_, err := manager.Load(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.False(t, pkgerrors.IsRetryable(err))
}

func TestInsertDuplicateReturnsConflict(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, manager.Insert(ctx, singleReceipt("evt-1", slot("debtor", enums.RecipientDebtor, enums.SlotStatePending))))

	err := manager.Insert(ctx, singleReceipt("evt-1"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	loaded, err := manager.Load(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Version)
	assert.Equal(t, enums.ReceiptStatusInserted, loaded.Status)
	assert.True(t, fixedNow.Equal(loaded.InsertedAt))
	require.Len(t, loaded.Slots, 1)
	assert.Equal(t, "DF123", loaded.EventData[0].Debtor.EntityUniqueIdentifierValue)
}

func TestApplyUpdateRejectsStaleVersion(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, manager.Insert(ctx, singleReceipt("evt-1", slot("debtor", enums.RecipientDebtor, enums.SlotStatePending))))

	updated, err := manager.ApplyUpdate(ctx, "evt-1", func(rec *models.Receipt) error {
		rec.Slots[0].State = enums.SlotStateGenerated
		return nil
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Version)
	assert.Equal(t, enums.ReceiptStatusGenerated, updated.Status)

	_, err = manager.ApplyUpdate(ctx, "evt-1", func(rec *models.Receipt) error {
		rec.Slots[0].State = enums.SlotStateFailed
		return nil
	}, 0)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConcurrencyConflict))

	loaded, err := manager.Load(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, enums.SlotStateGenerated, loaded.Slots[0].State)
}

func TestUpdateReappliesMutationAfterConflict(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, manager.Insert(ctx, singleReceipt("evt-1",
		slot("debtor", enums.RecipientDebtor, enums.SlotStatePending),
		slot("payer", enums.RecipientPayer, enums.SlotStatePending),
	)))

	calls := 0
	updated, err := manager.Update(ctx, "evt-1", func(rec *models.Receipt) error {
		calls++
		if calls == 1 {
			// a concurrent writer lands between our read and our write
			_, err := manager.Update(ctx, "evt-1", func(inner *models.Receipt) error {
				inner.Slot("payer").State = enums.SlotStateGenerated
				return nil
			})
			require.NoError(t, err)
		}
		rec.Slot("debtor").State = enums.SlotStateGenerated
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, enums.SlotStateGenerated, updated.Slot("payer").State)
	assert.Equal(t, enums.SlotStateGenerated, updated.Slot("debtor").State)
	assert.Equal(t, enums.ReceiptStatusGenerated, updated.Status)
	require.NotNil(t, updated.GeneratedAt)
}

func TestUpdateGivesUpAfterConflictRetries(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, manager.Insert(ctx, singleReceipt("evt-1", slot("debtor", enums.RecipientDebtor, enums.SlotStatePending))))

	calls := 0
	_, err := manager.Update(ctx, "evt-1", func(rec *models.Receipt) error {
		calls++
		_, err := manager.Update(ctx, "evt-1", func(inner *models.Receipt) error {
			inner.QueueAttempts++
			return nil
		})
		require.NoError(t, err)
		rec.Slots[0].State = enums.SlotStateGenerated
		return nil
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnableToSave))
	assert.True(t, pkgerrors.IsRetryable(err))
	assert.Equal(t, 4, calls)
}

func TestUpdateNoChangeSkipsWrite(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, manager.Insert(ctx, singleReceipt("evt-1", slot("debtor", enums.RecipientDebtor, enums.SlotStatePending))))

	rec, err := manager.Update(ctx, "evt-1", func(*models.Receipt) error { return ErrNoChange })
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Version)

	boom := errors.New("boom")
	_, err = manager.Update(ctx, "evt-1", func(*models.Receipt) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestUpdateKeepsTimestampsOnce(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, manager.Insert(ctx, singleReceipt("evt-1", slot("debtor", enums.RecipientDebtor, enums.SlotStatePending))))

	first, err := manager.Update(ctx, "evt-1", func(rec *models.Receipt) error {
		rec.Slots[0].State = enums.SlotStateGenerated
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, first.GeneratedAt)

	manager.now = func() time.Time { return fixedNow.Add(time.Hour) }
	second, err := manager.Update(ctx, "evt-1", func(rec *models.Receipt) error {
		rec.Status = enums.ReceiptStatusIONotified
		rec.GeneratedAt = nil
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ReceiptStatusIONotified, second.Status)
	assert.True(t, second.GeneratedAt.Equal(*first.GeneratedAt))
	assert.True(t, second.InsertedAt.Equal(first.InsertedAt))
}

func TestTransitionToReviewWritesOneDeadLetter(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, manager.Insert(ctx, singleReceipt("evt-1", slot("debtor", enums.RecipientDebtor, enums.SlotStatePending))))

	failed, err := manager.Update(ctx, "evt-1", func(rec *models.Receipt) error {
		rec.Slots[0].State = enums.SlotStateFailed
		rec.Slots[0].Reason = &models.Reason{Code: enums.ReasonErrorTemplatePDF, Message: "missing amount"}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ReceiptStatusToReview, failed.Status)
	assert.Nil(t, failed.GeneratedAt)

	_, err = manager.Update(ctx, "evt-1", func(rec *models.Receipt) error {
		rec.Slots[0].NumRetry = 0
		return nil
	})
	require.NoError(t, err)

	rows, err := manager.ReceiptErrors().List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "evt-1", rows[0].BizEventID)
	assert.Equal(t, enums.ReceiptErrorStatusToReview, rows[0].Status)
	assert.Contains(t, rows[0].MessageError, "ERROR_TEMPLATE_PDF")
	assert.Contains(t, string(rows[0].MessagePayload), `"id":"evt-1"`)
}

func TestUnableToSendDeadLetterMentionsQueue(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, manager.Insert(ctx, singleReceipt("evt-1", slot("debtor", enums.RecipientDebtor, enums.SlotStateRetry))))

	_, err := manager.Update(ctx, "evt-1", func(rec *models.Receipt) error {
		rec.QueueAttempts = 3
		rec.Status = enums.ReceiptStatusUnableToSend
		return nil
	})
	require.NoError(t, err)

	entry, err := manager.ReceiptErrors().FindByBizEventID(ctx, "evt-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, strings.HasPrefix(entry.MessageError, "retry enqueue failed after 3 attempts"))
}
