package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
)

// RetryMessageType tags messages on the retry topic.
const RetryMessageType = "receipt-retry"

// RetryMessage asks a worker to run generation again for a receipt.
type RetryMessage struct {
	ReceiptID string `json:"receiptId"`
}

// EncodeRetry builds the retry topic payload for receiptID.
func EncodeRetry(receiptID string) ([]byte, error) {
	if strings.TrimSpace(receiptID) == "" {
		return nil, errors.New("receipt id is required")
	}
	return json.Marshal(RetryMessage{ReceiptID: receiptID})
}

// DecodeRetry parses a retry topic payload.
func DecodeRetry(data []byte) (RetryMessage, error) {
	var msg RetryMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return RetryMessage{}, fmt.Errorf("decode retry message: %w", err)
	}
	if strings.TrimSpace(msg.ReceiptID) == "" {
		return RetryMessage{}, errors.New("decode retry message: receiptId is required")
	}
	return msg, nil
}

// RetryPublisher enqueues receipts for a later generation attempt.
type RetryPublisher struct {
	publish func(ctx context.Context, msg *pubsub.Message) (string, error)
}

// NewRetryPublisher wraps a topic publisher.
func NewRetryPublisher(publisher *pubsub.Publisher) (*RetryPublisher, error) {
	if publisher == nil {
		return nil, errors.New("retry publisher is required")
	}
	return &RetryPublisher{
		publish: func(ctx context.Context, msg *pubsub.Message) (string, error) {
			return publisher.Publish(ctx, msg).Get(ctx)
		},
	}, nil
}

// PublishRetry waits for the server to acknowledge the message.
func (p *RetryPublisher) PublishRetry(ctx context.Context, receiptID string) error {
	data, err := EncodeRetry(receiptID)
	if err != nil {
		return err
	}
	_, err = p.publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"type":       RetryMessageType,
			"receipt_id": receiptID,
		},
	})
	if err != nil {
		return fmt.Errorf("publish retry for %s: %w", receiptID, err)
	}
	return nil
}
