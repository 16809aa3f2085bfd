package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/receipt-generator/pkg/redis"
)

const (
	inFlightValue  = "inflight"
	processedValue = "done"
)

// ClaimState is the outcome of claiming a message id.
type ClaimState int

const (
	// ClaimAcquired means the caller owns the message and must process it.
	ClaimAcquired ClaimState = iota
	// ClaimInFlight means another delivery holds the claim; the message should be redelivered later.
	ClaimInFlight
	// ClaimProcessed means an earlier delivery was acked.
	ClaimProcessed
)

// Manager tracks Pub/Sub message ids per consumer in Redis. Keys follow
// `rcpt:idempotency:msg:processed:<consumer>:<message_id>`. A claim lives for
// the short in-flight ttl until MarkProcessed extends it to the processed ttl,
// so a worker dying mid-message only blocks redelivery until the claim expires.
type Manager struct {
	store        redis.IdempotencyStore
	inFlightTTL  time.Duration
	processedTTL time.Duration
}

func NewManager(store redis.IdempotencyStore, inFlightTTL, processedTTL time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if inFlightTTL <= 0 {
		return nil, errors.New("in-flight ttl must be positive")
	}
	if processedTTL < inFlightTTL {
		return nil, errors.New("processed ttl must not be shorter than in-flight ttl")
	}
	return &Manager{store: store, inFlightTTL: inFlightTTL, processedTTL: processedTTL}, nil
}

// Claim takes the in-flight claim for a message or reports who holds it.
func (m *Manager) Claim(ctx context.Context, consumer, messageID string) (ClaimState, error) {
	key, err := m.processedKey(consumer, messageID)
	if err != nil {
		return ClaimInFlight, err
	}
	set, err := m.store.SetNX(ctx, key, inFlightValue, m.inFlightTTL)
	if err != nil {
		return ClaimInFlight, err
	}
	if set {
		return ClaimAcquired, nil
	}

	value, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		// expired between SETNX and GET
		return ClaimInFlight, nil
	case err != nil:
		return ClaimInFlight, err
	case value == processedValue:
		return ClaimProcessed, nil
	default:
		return ClaimInFlight, nil
	}
}

// MarkProcessed records an acked message for the processed ttl.
func (m *Manager) MarkProcessed(ctx context.Context, consumer, messageID string) error {
	key, err := m.processedKey(consumer, messageID)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, processedValue, m.processedTTL)
}

// Release drops the claim so a redelivery is processed again.
func (m *Manager) Release(ctx context.Context, consumer, messageID string) error {
	key, err := m.processedKey(consumer, messageID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) processedKey(consumer, messageID string) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if strings.TrimSpace(messageID) == "" {
		return "", errors.New("message id is required")
	}
	scope := fmt.Sprintf("msg:processed:%s", consumer)
	return m.store.IdempotencyKey(scope, messageID), nil
}
