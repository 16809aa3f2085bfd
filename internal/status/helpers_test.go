package status

import (
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/receipt-generator/pkg/bizevents"
	"github.com/angelmondragon/receipt-generator/pkg/db"
	"github.com/angelmondragon/receipt-generator/pkg/db/models"
	"github.com/angelmondragon/receipt-generator/pkg/enums"
	"github.com/angelmondragon/receipt-generator/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T) (*Manager, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.AutoMigrate(&models.Receipt{}, &models.ReceiptError{}))

	manager, err := NewManager(ManagerParams{
		Store:              db.NewWithConn(conn),
		Logger:             logger.Nop(),
		ConflictMaxRetries: 3,
		Now:                func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return manager, conn
}

func singleReceipt(id string, slots ...models.Outcome) *models.Receipt {
	return &models.Receipt{
		ID:          id,
		TotalNotice: 1,
		Status:      enums.ReceiptStatusInserted,
		EventData: []bizevents.BizEvent{{
			ID:     id,
			Debtor: bizevents.Debtor{EntityUniqueIdentifierValue: "DF123"},
		}},
		Slots: slots,
	}
}

func slot(key string, role enums.RecipientRole, state enums.SlotState) models.Outcome {
	return models.Outcome{Key: key, Role: role, FiscalCode: "DF123", EventIndexes: []int{0}, State: state}
}
