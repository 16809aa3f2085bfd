package models

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/receipt-generator/pkg/enums"
)

// ReceiptError captures units that could not be generated, for operator review.
type ReceiptError struct {
	ID             string                   `gorm:"column:id;primaryKey" json:"id"`
	BizEventID     string                   `gorm:"column:biz_event_id;uniqueIndex;not null" json:"bizEventId"`
	MessagePayload json.RawMessage          `gorm:"column:message_payload;type:jsonb;not null" json:"messagePayload"`
	MessageError   string                   `gorm:"column:message_error;not null" json:"messageError"`
	Status         enums.ReceiptErrorStatus `gorm:"column:status;type:text;not null" json:"status"`
	CreatedAt      time.Time                `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (ReceiptError) TableName() string { return "receipt_errors" }
