// Package dedup provides the fast-path duplicate check for incoming events.
//
// The cache is advisory: the unique index on event_id in storage is the
// backstop, so a cache miss, restart, or Redis outage can never cause a
// duplicate entry. When Redis is unavailable the service fails open and
// lets the database constraint absorb the duplicate.
package dedup

import (
	"context"
	"fmt"
	"time"

	"audittrail/internal/platform/redis"
)

// Cache answers whether an event ID has been seen before. FirstSeen marks
// the ID as seen as a side effect.
type Cache interface {
	FirstSeen(ctx context.Context, eventID string) (bool, error)
}

// keyPrefix namespaces dedup keys away from any other Redis usage.
const keyPrefix = "audit:dedup:"

// RedisCache marks event IDs with SETNX under a TTL. The TTL bounds memory,
// not correctness.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a Redis-backed cache. ttl controls how long an event ID
// stays marked; well past the broker's redelivery horizon is enough.
func NewRedis(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// FirstSeen returns true exactly once per event ID within the TTL window.
func (c *RedisCache) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	ok, err := c.client.SetNX(ctx, Key(eventID), 1, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return ok, nil
}

// Key returns the Redis key for an event ID.
func Key(eventID string) string {
	return keyPrefix + eventID
}

// Noop treats every event as first seen. Used when Redis is not configured;
// the storage unique constraint then does all the work.
type Noop struct{}

func (Noop) FirstSeen(context.Context, string) (bool, error) { return true, nil }
