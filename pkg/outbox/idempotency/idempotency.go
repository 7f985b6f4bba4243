package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pustakbazzar/pustak-backend/pkg/redis"
)

// DeliveryGuard remembers which outbox events a channel already delivered so
// a row re-read after a failed commit is not published twice.
// Keys follow the `pb:idempotency:evt:delivered:<channel>:<event_id>` pattern.
type DeliveryGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewDeliveryGuard(store redis.IdempotencyStore, ttl time.Duration) (*DeliveryGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &DeliveryGuard{store: store, ttl: ttl}, nil
}

// Claim reports whether the event was already delivered on the channel. When
// it was not, the event is claimed for the guard TTL.
func (g *DeliveryGuard) Claim(ctx context.Context, channel string, eventID uuid.UUID) (bool, error) {
	key, err := g.deliveredKey(channel, eventID)
	if err != nil {
		return false, err
	}
	set, err := g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim delivery %s: %w", eventID, err)
	}
	return !set, nil
}

// Release drops a claim after a failed delivery so the next attempt retries.
func (g *DeliveryGuard) Release(ctx context.Context, channel string, eventID uuid.UUID) error {
	key, err := g.deliveredKey(channel, eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *DeliveryGuard) deliveredKey(channel string, eventID uuid.UUID) (string, error) {
	if channel == "" {
		return "", errors.New("channel is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey("evt:delivered:"+channel, eventID.String()), nil
}
