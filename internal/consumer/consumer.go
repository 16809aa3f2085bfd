package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/receipt-generator/pkg/bizevents"
	"github.com/angelmondragon/receipt-generator/pkg/db/models"
	"github.com/angelmondragon/receipt-generator/pkg/enums"
	pkgerrors "github.com/angelmondragon/receipt-generator/pkg/errors"
	"github.com/angelmondragon/receipt-generator/pkg/idempotency"
	"github.com/angelmondragon/receipt-generator/pkg/logger"
	"github.com/angelmondragon/receipt-generator/pkg/metrics"
	rpubsub "github.com/angelmondragon/receipt-generator/pkg/pubsub"
	"golang.org/x/sync/errgroup"
)

const (
	bizEventsConsumer = "biz-events"
	retryConsumer     = "receipt-retry"
)

// Receiver is the subscription surface of *pubsub.Subscriber.
type Receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Handler runs the generation flow for intake events and retry messages.
type Handler interface {
	HandleBizEvent(ctx context.Context, event bizevents.BizEvent) error
	Generate(ctx context.Context, id string) error
}

type idempotencyChecker interface {
	Claim(ctx context.Context, consumer, messageID string) (idempotency.ClaimState, error)
	MarkProcessed(ctx context.Context, consumer, messageID string) error
	Release(ctx context.Context, consumer, messageID string) error
}

type deadLetterWriter interface {
	Insert(ctx context.Context, entry models.ReceiptError) error
}

// Params wire a Consumer.
type Params struct {
	BizEvents   Receiver
	Retries     Receiver
	Handler     Handler
	Idempotency idempotencyChecker
	DeadLetters deadLetterWriter
	Metrics     *metrics.GenerationMetrics
	Logger      *logger.Logger
}

// Consumer pulls biz events and retry messages and acks or nacks each delivery
// according to the handler outcome.
type Consumer struct {
	bizEvents   Receiver
	retries     Receiver
	handler     Handler
	idempotency idempotencyChecker
	deadLetters deadLetterWriter
	metrics     *metrics.GenerationMetrics
	logg        *logger.Logger
}

func New(params Params) (*Consumer, error) {
	if params.BizEvents == nil {
		return nil, errors.New("biz events subscription is required")
	}
	if params.Retries == nil {
		return nil, errors.New("retry subscription is required")
	}
	if params.Handler == nil {
		return nil, errors.New("handler is required")
	}
	if params.Idempotency == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if params.DeadLetters == nil {
		return nil, errors.New("dead letter store is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		bizEvents:   params.BizEvents,
		retries:     params.Retries,
		handler:     params.Handler,
		idempotency: params.Idempotency,
		deadLetters: params.DeadLetters,
		metrics:     params.Metrics,
		logg:        params.Logger,
	}, nil
}

// Run consumes both subscriptions until ctx is canceled or one of them fails.
func (c *Consumer) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return c.receive(groupCtx, c.bizEvents, bizEventsConsumer, c.processBizEvent)
	})
	group.Go(func() error {
		return c.receive(groupCtx, c.retries, retryConsumer, c.processRetry)
	})
	return group.Wait()
}

type processResult struct {
	nack bool
}

func (c *Consumer) receive(ctx context.Context, sub Receiver, name string, process func(context.Context, *pubsub.Message) processResult) error {
	c.logg.Info(c.logg.WithField(ctx, "subscription", name), "consumer started")
	err := sub.Receive(ctx, func(innerCtx context.Context, msg *pubsub.Message) {
		result := c.guard(innerCtx, name, msg, process)
		if result.nack {
			c.metrics.IncMessage(name, "nack")
			msg.Nack()
			return
		}
		c.metrics.IncMessage(name, "ack")
		msg.Ack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s receive: %w", name, err)
	}
	return nil
}

// guard claims the message id before processing. The claim is promoted to
// processed when the delivery is acked and released when it is nacked; a
// delivery that finds another one in flight is nacked.
func (c *Consumer) guard(ctx context.Context, name string, msg *pubsub.Message, process func(context.Context, *pubsub.Message) processResult) processResult {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"subscription": name,
		"message_id":   msg.ID,
	})

	state, err := c.idempotency.Claim(logCtx, name, msg.ID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	switch state {
	case idempotency.ClaimProcessed:
		c.metrics.IncMessage(name, "duplicate")
		c.logg.Info(logCtx, "message already processed")
		return processResult{}
	case idempotency.ClaimInFlight:
		c.metrics.IncMessage(name, "in_flight")
		c.logg.Warn(logCtx, "message in flight elsewhere, deferring redelivery")
		return processResult{nack: true}
	}

	result := process(logCtx, msg)
	if result.nack {
		if err := c.idempotency.Release(logCtx, name, msg.ID); err != nil {
			c.logg.Error(logCtx, "failed to release idempotency key", err)
		}
		return result
	}
	if err := c.idempotency.MarkProcessed(logCtx, name, msg.ID); err != nil {
		c.logg.Error(logCtx, "failed to mark message processed", err)
	}
	return result
}

func (c *Consumer) processBizEvent(ctx context.Context, msg *pubsub.Message) processResult {
	event, err := bizevents.Decode(msg.Data)
	if err != nil {
		return c.deadLetter(ctx, msg.ID, msg.Data, err)
	}
	ctx = c.logg.WithEventID(ctx, event.ID)
	return c.settle(ctx, c.handler.HandleBizEvent(ctx, event), "biz event handled", event.ID, msg.Data)
}

func (c *Consumer) processRetry(ctx context.Context, msg *pubsub.Message) processResult {
	if msgType := msg.Attributes["type"]; msgType != "" && msgType != rpubsub.RetryMessageType {
		c.logg.Warn(c.logg.WithField(ctx, "type", msgType), "skipping unexpected message type")
		return processResult{}
	}
	retry, err := rpubsub.DecodeRetry(msg.Data)
	if err != nil {
		return c.deadLetter(ctx, msg.ID, msg.Data, err)
	}
	ctx = c.logg.WithUnitID(ctx, retry.ReceiptID)
	return c.settle(ctx, c.handler.Generate(ctx, retry.ReceiptID), "retry handled", retry.ReceiptID, msg.Data)
}

// settle nacks retryable failures so Pub/Sub redelivers them. Any other
// failure is dead-lettered under id before the delivery is acked.
func (c *Consumer) settle(ctx context.Context, err error, done, id string, data []byte) processResult {
	if err == nil {
		c.logg.Info(ctx, done)
		return processResult{}
	}
	if pkgerrors.IsRetryable(err) {
		c.logg.Error(ctx, "handler failed, message will be redelivered", err)
		return processResult{nack: true}
	}
	return c.deadLetter(ctx, id, data, err)
}

// deadLetter records a delivery that can never succeed. When the write fails
// the delivery is nacked so it is not lost.
func (c *Consumer) deadLetter(ctx context.Context, id string, data []byte, cause error) processResult {
	entry := models.ReceiptError{
		BizEventID:     id,
		MessagePayload: payloadJSON(data),
		MessageError:   cause.Error(),
		Status:         enums.ReceiptErrorStatusToReview,
	}
	if err := c.deadLetters.Insert(ctx, entry); err != nil {
		c.logg.Error(ctx, "failed to dead-letter message, message will be redelivered", err)
		return processResult{nack: true}
	}
	c.metrics.IncDeadLetter()
	c.logg.Error(c.logg.WithField(ctx, "dead_letter_id", id), "message dead-lettered", cause)
	return processResult{}
}

// payloadJSON keeps valid JSON as is and quotes anything else.
func payloadJSON(data []byte) json.RawMessage {
	if json.Valid(data) {
		return json.RawMessage(data)
	}
	quoted, _ := json.Marshal(string(data))
	return quoted
}
