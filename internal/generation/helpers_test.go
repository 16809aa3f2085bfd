package generation

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/receipt-generator/internal/aggregator"
	"github.com/angelmondragon/receipt-generator/internal/status"
	"github.com/angelmondragon/receipt-generator/pkg/bizevents"
	"github.com/angelmondragon/receipt-generator/pkg/db"
	"github.com/angelmondragon/receipt-generator/pkg/db/models"
	"github.com/angelmondragon/receipt-generator/pkg/logger"
	"github.com/angelmondragon/receipt-generator/pkg/pdfengine"
	"github.com/angelmondragon/receipt-generator/pkg/storage/gcs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeRenderer struct {
	mu    sync.Mutex
	err   error
	calls int
	reqs  []pdfengine.Request
}

func (f *fakeRenderer) Generate(_ context.Context, req pdfengine.Request) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader("%PDF-1.7")), nil
}

type fakeBlobs struct {
	mu     sync.Mutex
	failOn string
	names  []string
}

func (f *fakeBlobs) Upload(_ context.Context, name, contentType string, body io.Reader) (*gcs.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
	if _, err := io.ReadAll(body); err != nil {
		return nil, err
	}
	if f.failOn != "" && strings.Contains(name, f.failOn) {
		return nil, &gcs.UploadError{StatusCode: 503, Body: "backend unavailable"}
	}
	return &gcs.UploadResult{
		StatusCode:   200,
		DocumentName: name,
		DocumentURL:  "https://storage.test/receipts/" + name,
	}, nil
}

type fakeRetry struct {
	mu  sync.Mutex
	err error
	ids []string
}

func (f *fakeRetry) PublishRetry(_ context.Context, receiptID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, receiptID)
	return f.err
}

type testEnv struct {
	svc      *Service
	manager  *status.Manager
	renderer *fakeRenderer
	blobs    *fakeBlobs
	retry    *fakeRetry
}

func newTestEnv(t *testing.T, configure func(*ServiceParams)) *testEnv {
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
	agg, err := aggregator.New(manager, logger.Nop())
	require.NoError(t, err)

	env := &testEnv{
		manager:  manager,
		renderer: &fakeRenderer{},
		blobs:    &fakeBlobs{},
		retry:    &fakeRetry{},
	}
	params := ServiceParams{
		Logger:           logger.Nop(),
		Store:            manager,
		Aggregator:       agg,
		Renderer:         env.renderer,
		Blobs:            env.blobs,
		Retry:            env.retry,
		TemplateID:       "pagopa-ricevuta",
		MaxRetry:         5,
		QueueMaxAttempts: 3,
	}
	if configure != nil {
		configure(&params)
	}
	env.svc, err = NewService(params)
	require.NoError(t, err)
	return env
}

func renderableEvent(id, debtor string) bizevents.BizEvent {
	return bizevents.BizEvent{
		ID:             id,
		Debtor:         bizevents.Debtor{FullName: "Mario Rossi", EntityUniqueIdentifierValue: debtor},
		Creditor:       bizevents.Creditor{IdPA: "00000000001", CompanyName: "Comune di Test"},
		Psp:            bizevents.Psp{Psp: "Banca Test"},
		DebtorPosition: bizevents.DebtorPosition{NoticeNumber: "302100000000000001"},
		PaymentInfo: bizevents.PaymentInfo{
			PaymentDateTime:       "2026-03-01T10:15:30",
			Amount:                "10.00",
			Fee:                   "0.50",
			Remittanceinformation: "TARI 2026",
		},
	}
}

func cartEvent(id, debtor string) bizevents.BizEvent {
	event := renderableEvent(id, debtor)
	event.PaymentInfo.TotalNotice = "2"
	event.TransactionDetails = &bizevents.TransactionDetails{
		User:        &bizevents.User{FiscalCode: "PF999", FullName: "Payer"},
		Transaction: &bizevents.Transaction{TransactionID: "cart-1", Grandtotal: 2100},
	}
	return event
}
