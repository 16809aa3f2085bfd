package helpdesk

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/receipt-generator/internal/aggregator"
	"github.com/angelmondragon/receipt-generator/internal/status"
	"github.com/angelmondragon/receipt-generator/internal/templates"
	"github.com/angelmondragon/receipt-generator/pkg/bizevents"
	"github.com/angelmondragon/receipt-generator/pkg/db/models"
	"github.com/angelmondragon/receipt-generator/pkg/enums"
	pkgerrors "github.com/angelmondragon/receipt-generator/pkg/errors"
	"github.com/angelmondragon/receipt-generator/pkg/logger"
)

type receiptReader interface {
	Load(ctx context.Context, id string) (*models.Receipt, error)
}

type receiptErrorReader interface {
	FindByBizEventID(ctx context.Context, bizEventID string) (*models.ReceiptError, error)
	List(ctx context.Context, filter status.ListFilter) ([]models.ReceiptError, error)
}

// Tokenizer swaps a fiscal code for an opaque token.
type Tokenizer interface {
	CreateToken(ctx context.Context, pii string) (string, error)
}

// Preview is a receipt rebuilt from a biz event without persisting it.
type Preview struct {
	ID     string              `json:"id"`
	Status enums.ReceiptStatus `json:"status"`
	Slots  []PreviewSlot       `json:"slots"`
}

// PreviewSlot carries the tokenized recipient and the template it would receive.
type PreviewSlot struct {
	Key             string              `json:"key"`
	Role            enums.RecipientRole `json:"role"`
	FiscalCodeToken string              `json:"fiscalCodeToken"`
	Template        *templates.Template `json:"template"`
}

// Service answers helpdesk queries over receipts and dead letters.
type Service struct {
	receipts  receiptReader
	errors    receiptErrorReader
	tokenizer Tokenizer
	logg      *logger.Logger
}

func NewService(receipts receiptReader, errs receiptErrorReader, tokenizer Tokenizer, logg *logger.Logger) (*Service, error) {
	if receipts == nil {
		return nil, errors.New("receipt reader required")
	}
	if errs == nil {
		return nil, errors.New("receipt error reader required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Service{receipts: receipts, errors: errs, tokenizer: tokenizer, logg: logg}, nil
}

func (s *Service) GetReceipt(ctx context.Context, id string) (*models.Receipt, error) {
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt id is required")
	}
	return s.receipts.Load(ctx, id)
}

func (s *Service) GetReceiptError(ctx context.Context, bizEventID string) (*models.ReceiptError, error) {
	if bizEventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "biz event id is required")
	}
	row, err := s.errors.FindByBizEventID(ctx, bizEventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load receipt error")
	}
	if row == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("receipt error for %s not found", bizEventID))
	}
	return row, nil
}

func (s *Service) ListReceiptErrors(ctx context.Context, filter status.ListFilter) ([]models.ReceiptError, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", filter.Status))
	}
	rows, err := s.errors.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list receipt errors")
	}
	return rows, nil
}

// CreateReceipt rebuilds the receipt a single biz event would produce. Fiscal
// codes leave the service only as tokens.
func (s *Service) CreateReceipt(ctx context.Context, event bizevents.BizEvent) (*Preview, error) {
	if event.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "biz event id is required")
	}
	if s.tokenizer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "tokenizer not configured")
	}
	ctx = s.logg.WithEventID(ctx, event.ID)

	events := []bizevents.BizEvent{event}
	slots := aggregator.BuildSlots(events, false)
	preview := &Preview{ID: event.ID, Status: enums.ReceiptStatusInserted, Slots: []PreviewSlot{}}
	if len(slots) == 0 {
		preview.Status = enums.ReceiptStatusNotToNotify
		return preview, nil
	}

	tokens := map[string]string{}
	for _, slot := range slots {
		tmpl, err := templates.Build(events, slot)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "build template").
				WithDetails(map[string]any{"slot": slot.Key})
		}

		token, err := s.token(ctx, tokens, slot.FiscalCode)
		if err != nil {
			return nil, err
		}
		tmpl.User.Data.TaxCode = token
		for i := range tmpl.Cart.Items {
			debtor := &tmpl.Cart.Items[i].Debtor
			if !bizevents.IsKnownFiscalCode(debtor.TaxCode) {
				continue
			}
			if debtor.TaxCode, err = s.token(ctx, tokens, debtor.TaxCode); err != nil {
				return nil, err
			}
		}

		preview.Slots = append(preview.Slots, PreviewSlot{
			Key:             slot.Key,
			Role:            slot.Role,
			FiscalCodeToken: token,
			Template:        tmpl,
		})
	}

	s.logg.Info(s.logg.WithField(ctx, "slots", len(preview.Slots)), "receipt preview built")
	return preview, nil
}

func (s *Service) token(ctx context.Context, cache map[string]string, fiscalCode string) (string, error) {
	if token, ok := cache[fiscalCode]; ok {
		return token, nil
	}
	token, err := s.tokenizer.CreateToken(ctx, fiscalCode)
	if err != nil {
		return "", err
	}
	cache[fiscalCode] = token
	return token, nil
}
