package models

import (
	"time"

	"github.com/angelmondragon/receipt-generator/pkg/bizevents"
	dbtypes "github.com/angelmondragon/receipt-generator/pkg/db/types"
	"github.com/angelmondragon/receipt-generator/pkg/enums"
)

// Receipt is the durable status record of a single payment or a cart.
type Receipt struct {
	ID            string                               `gorm:"column:id;primaryKey"`
	Version       int                                  `gorm:"column:version;not null;default:0"`
	IsCart        bool                                 `gorm:"column:is_cart;not null;default:false"`
	TotalNotice   int                                  `gorm:"column:total_notice;not null;default:1"`
	Status        enums.ReceiptStatus                  `gorm:"column:status;type:text;not null"`
	EventData     dbtypes.JSONList[bizevents.BizEvent] `gorm:"column:event_data;type:jsonb;not null"`
	Slots         dbtypes.JSONList[Outcome]            `gorm:"column:slots;type:jsonb;not null"`
	QueueAttempts int                                  `gorm:"column:queue_attempts;not null;default:0"`
	InsertedAt    time.Time                            `gorm:"column:inserted_at;not null"`
	GeneratedAt   *time.Time                           `gorm:"column:generated_at"`
	NotifiedAt    *time.Time                           `gorm:"column:notified_at"`
	UpdatedAt     time.Time                            `gorm:"column:updated_at;autoUpdateTime"`
}

func (Receipt) TableName() string { return "receipts" }

// Payer returns the payer slot, nil when the receipt has none.
func (r *Receipt) Payer() *Outcome {
	for i := range r.Slots {
		if r.Slots[i].Role == enums.RecipientPayer {
			return &r.Slots[i]
		}
	}
	return nil
}

// Debtors returns the debtor slots in cart order.
func (r *Receipt) Debtors() []*Outcome {
	out := make([]*Outcome, 0, len(r.Slots))
	for i := range r.Slots {
		if r.Slots[i].Role == enums.RecipientDebtor {
			out = append(out, &r.Slots[i])
		}
	}
	return out
}

// Slot looks up a slot by key.
func (r *Receipt) Slot(key string) *Outcome {
	for i := range r.Slots {
		if r.Slots[i].Key == key {
			return &r.Slots[i]
		}
	}
	return nil
}

// ContainsEvent reports whether the event snapshot already holds eventID.
func (r *Receipt) ContainsEvent(eventID string) bool {
	for _, event := range r.EventData {
		if event.ID == eventID {
			return true
		}
	}
	return false
}

// Outcome is the generation slot of one recipient. The same structure serves
// the payer and every debtor of a cart.
type Outcome struct {
	Key          string              `json:"key"`
	Role         enums.RecipientRole `json:"role"`
	FiscalCode   string              `json:"fiscalCode"`
	EventIndexes []int               `json:"eventIndexes"`
	State        enums.SlotState     `json:"state"`
	Document     *Document           `json:"document,omitempty"`
	Reason       *Reason             `json:"reason,omitempty"`
	NumRetry     int                 `json:"numRetry"`
}

// Document is the metadata of a stored PDF.
type Document struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Reason records the last failure of a slot.
type Reason struct {
	Code    enums.ReasonErrorCode `json:"code"`
	Message string                `json:"message"`
}
