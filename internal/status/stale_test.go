package status

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/receipt-generator/pkg/enums"
	pkgerrors "github.com/angelmondragon/receipt-generator/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindStaleReturnsOldGeneratableRecords(t *testing.T) {
	manager, conn := newTestManager(t)
	ctx := context.Background()

	pending := slot("debtor", enums.RecipientDebtor, enums.SlotStatePending)
	done := slot("debtor", enums.RecipientDebtor, enums.SlotStateGenerated)
	require.NoError(t, manager.Insert(ctx, singleReceipt("evt-old", pending)))
	require.NoError(t, manager.Insert(ctx, singleReceipt("evt-older", pending)))
	require.NoError(t, manager.Insert(ctx, singleReceipt("evt-fresh", pending)))
	require.NoError(t, manager.Insert(ctx, singleReceipt("evt-done", done)))

	for id, age := range map[string]time.Duration{
		"evt-old":   2 * time.Hour,
		"evt-older": 3 * time.Hour,
		"evt-done":  5 * time.Hour,
	} {
		require.NoError(t, conn.Exec("UPDATE receipts SET updated_at = ? WHERE id = ?", fixedNow.Add(-age), id).Error)
	}

	rows, err := manager.FindStale(ctx, StaleFilter{
		Statuses:      []enums.ReceiptStatus{enums.ReceiptStatusInserted, enums.ReceiptStatusRetry},
		UpdatedBefore: fixedNow.Add(-time.Hour),
		Limit:         10,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "evt-older", rows[0].ID)
	assert.Equal(t, "evt-old", rows[1].ID)
}

func TestFindStaleValidatesFilter(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	_, err := manager.FindStale(ctx, StaleFilter{UpdatedBefore: fixedNow})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = manager.FindStale(ctx, StaleFilter{Statuses: []enums.ReceiptStatus{enums.ReceiptStatusRetry}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = manager.FindStale(ctx, StaleFilter{Statuses: []enums.ReceiptStatus{"BOGUS"}, UpdatedBefore: fixedNow})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestTouchMovesRecordOutOfStaleWindow(t *testing.T) {
	manager, conn := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, manager.Insert(ctx, singleReceipt("evt-1", slot("debtor", enums.RecipientDebtor, enums.SlotStatePending))))
	require.NoError(t, manager.Insert(ctx, singleReceipt("evt-2", slot("debtor", enums.RecipientDebtor, enums.SlotStateGenerated))))
	require.NoError(t, conn.Exec("UPDATE receipts SET updated_at = ?", fixedNow.Add(-3*time.Hour)).Error)

	filter := StaleFilter{
		Statuses:      []enums.ReceiptStatus{enums.ReceiptStatusInserted, enums.ReceiptStatusRetry},
		UpdatedBefore: fixedNow.Add(-time.Hour),
	}
	rows, err := manager.FindStale(ctx, filter)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, manager.Touch(ctx, "evt-1"))
	require.NoError(t, manager.Touch(ctx, "evt-2"))

	rows, err = manager.FindStale(ctx, filter)
	require.NoError(t, err)
	assert.Empty(t, rows)

	touched, err := manager.Load(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, enums.ReceiptStatusInserted, touched.Status)
	assert.Equal(t, 1, touched.Version)
	assert.True(t, touched.UpdatedAt.Equal(fixedNow))

	untouched, err := manager.Load(ctx, "evt-2")
	require.NoError(t, err)
	assert.Zero(t, untouched.Version)

	err = manager.Touch(ctx, "missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
