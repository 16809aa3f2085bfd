package controllers

import (
	"context"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/receipt-generator/api/responses"
	"github.com/angelmondragon/receipt-generator/api/validators"
	"github.com/angelmondragon/receipt-generator/internal/helpdesk"
	"github.com/angelmondragon/receipt-generator/internal/status"
	"github.com/angelmondragon/receipt-generator/pkg/bizevents"
	"github.com/angelmondragon/receipt-generator/pkg/db/models"
	"github.com/angelmondragon/receipt-generator/pkg/enums"
	pkgerrors "github.com/angelmondragon/receipt-generator/pkg/errors"
	"github.com/angelmondragon/receipt-generator/pkg/logger"
)

const maxIDLength = 128

// HelpdeskService is the read side exposed to support operators.
type HelpdeskService interface {
	GetReceipt(ctx context.Context, id string) (*models.Receipt, error)
	CreateReceipt(ctx context.Context, event bizevents.BizEvent) (*helpdesk.Preview, error)
	GetReceiptError(ctx context.Context, bizEventID string) (*models.ReceiptError, error)
	ListReceiptErrors(ctx context.Context, filter status.ListFilter) ([]models.ReceiptError, error)
}

type receiptResponse struct {
	ID            string              `json:"id"`
	Version       int                 `json:"version"`
	IsCart        bool                `json:"isCart"`
	TotalNotice   int                 `json:"totalNotice"`
	Status        enums.ReceiptStatus `json:"status"`
	EventIDs      []string            `json:"eventIds"`
	Slots         []models.Outcome    `json:"slots"`
	QueueAttempts int                 `json:"queueAttempts"`
	InsertedAt    time.Time           `json:"insertedAt"`
	GeneratedAt   *time.Time          `json:"generatedAt,omitempty"`
	NotifiedAt    *time.Time          `json:"notifiedAt,omitempty"`
}

func newReceiptResponse(rec *models.Receipt) receiptResponse {
	ids := make([]string, 0, len(rec.EventData))
	for _, event := range rec.EventData {
		ids = append(ids, event.ID)
	}
	slots := []models.Outcome(rec.Slots)
	if slots == nil {
		slots = []models.Outcome{}
	}
	return receiptResponse{
		ID:            rec.ID,
		Version:       rec.Version,
		IsCart:        rec.IsCart,
		TotalNotice:   rec.TotalNotice,
		Status:        rec.Status,
		EventIDs:      ids,
		Slots:         slots,
		QueueAttempts: rec.QueueAttempts,
		InsertedAt:    rec.InsertedAt,
		GeneratedAt:   rec.GeneratedAt,
		NotifiedAt:    rec.NotifiedAt,
	}
}

// ReceiptGet returns the status record of a single payment or cart.
func ReceiptGet(svc HelpdeskService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "receiptId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := logg.WithUnitID(r.Context(), id)

		rec, err := svc.GetReceipt(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newReceiptResponse(rec))
	}
}

// ReceiptPreview rebuilds the receipt of a posted biz event without storing it.
func ReceiptPreview(svc HelpdeskService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var event bizevents.BizEvent
		if err := validators.DecodeEventBody(r, &event); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		preview, err := svc.CreateReceipt(r.Context(), event)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, preview)
	}
}

// ReceiptErrorList lists dead-lettered units, newest first.
func ReceiptErrorList(svc HelpdeskService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := status.ListFilter{Limit: limit}
		if raw := validators.SanitizeString(r.URL.Query().Get("status"), 32); raw != "" {
			parsed, err := enums.ParseReceiptErrorStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filter.Status = parsed
		}

		rows, err := svc.ListReceiptErrors(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if rows == nil {
			rows = []models.ReceiptError{}
		}
		responses.WriteList(w, rows, len(rows))
	}
}

// ReceiptErrorGet returns the dead letter of one unit.
func ReceiptErrorGet(svc HelpdeskService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "bizEventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.GetReceiptError(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}

func pathID(r *http.Request, param string) (string, error) {
	id := validators.SanitizeString(chi.URLParam(r, param), maxIDLength+1)
	if id == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, param+" is required")
	}
	if utf8.RuneCountInString(id) > maxIDLength {
		return "", pkgerrors.New(pkgerrors.CodeValidation, param+" is too long")
	}
	return id, nil
}
