package aggregator

import (
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/receipt-generator/internal/status"
	"github.com/angelmondragon/receipt-generator/pkg/bizevents"
	"github.com/angelmondragon/receipt-generator/pkg/db"
	"github.com/angelmondragon/receipt-generator/pkg/db/models"
	"github.com/angelmondragon/receipt-generator/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestAggregator(t *testing.T) (*Aggregator, *status.Manager) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(&models.Receipt{}, &models.ReceiptError{}))

	manager, err := status.NewManager(status.ManagerParams{
		Store:  db.NewWithConn(conn),
		Logger: logger.Nop(),
		Now:    func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	agg, err := New(manager, logger.Nop())
	require.NoError(t, err)
	return agg, manager
}

func singleEvent(id, debtor, payer string) bizevents.BizEvent {
	event := bizevents.BizEvent{
		ID:     id,
		Debtor: bizevents.Debtor{EntityUniqueIdentifierValue: debtor},
	}
	if payer != "" {
		event.Payer = &bizevents.Payer{EntityUniqueIdentifierValue: payer}
	}
	return event
}

func cartEvent(id, cartID string, total int, debtor, payer string) bizevents.BizEvent {
	event := singleEvent(id, debtor, "")
	event.PaymentInfo.TotalNotice = fmt.Sprint(total)
	event.TransactionDetails = &bizevents.TransactionDetails{
		Transaction: &bizevents.Transaction{TransactionID: cartID},
	}
	if payer != "" {
		event.TransactionDetails.User = &bizevents.User{FiscalCode: payer}
	}
	return event
}
