// Package idempotency guards against duplicate event deliveries. The
// upstream event stream does not guarantee at-most-once delivery, and a
// replayed payment-authorization event would re-clone payment methods and
// re-charge merchants, so every event takes this guard before processing.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard claims events for processing exactly once within the claim TTL.
type Guard interface {
	// Acquire claims the event id. It returns false when the event was
	// already claimed, meaning this delivery is a duplicate.
	Acquire(ctx context.Context, eventID string) (bool, error)

	// Release frees a claim so the event can be retried, used when
	// processing failed before any money moved.
	Release(ctx context.Context, eventID string) error
}

type redisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGuard builds the redis-backed guard.
func NewRedisGuard(client *redis.Client, ttl time.Duration) Guard {
	if client == nil {
		panic("redis client is required")
	}
	return &redisGuard{client: client, ttl: ttl}
}

func eventKey(eventID string) string {
	return fmt.Sprintf("event:claim:%s", eventID)
}

func (g *redisGuard) Acquire(ctx context.Context, eventID string) (bool, error) {
	ok, err := g.client.SetNX(ctx, eventKey(eventID), time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire event claim %s: %w", eventID, err)
	}
	return ok, nil
}

func (g *redisGuard) Release(ctx context.Context, eventID string) error {
	if err := g.client.Del(ctx, eventKey(eventID)).Err(); err != nil {
		return fmt.Errorf("release event claim %s: %w", eventID, err)
	}
	return nil
}
