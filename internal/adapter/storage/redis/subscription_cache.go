package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"sim-provisioning-notifier/internal/core/domain"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// SubscriptionCache implements ports.SubscriptionCache: the ids of ACTIVE
// webhooks per event type, stored as a JSON array under one key per type.
// An empty array is a valid entry and means "no subscribers".
//
// Each event type also has a generation counter. Invalidate deletes the entry
// and bumps the counter in one transaction; Set writes only when the counter
// still matches the value read before the database load.
type SubscriptionCache struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// setIfGeneration writes KEYS[1] only while KEYS[2] equals ARGV[1].
var setIfGeneration = goredis.NewScript(`
local cur = redis.call('GET', KEYS[2])
if not cur then cur = '0' end
if cur ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// NewSubscriptionCache creates a Redis-backed subscription cache.
func NewSubscriptionCache(client goredis.UniversalClient, ttl time.Duration) *SubscriptionCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SubscriptionCache{
		client: client,
		prefix: "spn:subs:",
		ttl:    ttl,
	}
}

func (c *SubscriptionCache) key(t domain.EventType) string {
	return c.prefix + string(t)
}

func (c *SubscriptionCache) genKey(t domain.EventType) string {
	return c.prefix + "gen:" + string(t)
}

// Get returns the cached ids for eventType and whether the entry exists.
func (c *SubscriptionCache) Get(ctx context.Context, eventType domain.EventType) ([]uuid.UUID, bool, error) {
	val, err := c.client.Get(ctx, c.key(eventType)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis subscription get: %w", err)
	}

	var ids []uuid.UUID
	if err := json.Unmarshal(val, &ids); err != nil {
		// Callers fall back to Postgres and the following Set overwrites the entry.
		return nil, false, fmt.Errorf("decoding cached subscriptions for %s: %w", eventType, err)
	}
	return ids, true, nil
}

// Generation returns the invalidation counter for eventType, 0 if never bumped.
func (c *SubscriptionCache) Generation(ctx context.Context, eventType domain.EventType) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey(eventType)).Int64()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis subscription generation: %w", err)
	}
	return gen, nil
}

// Set caches ids for eventType until the TTL lapses or an invalidation. The
// write is skipped when an invalidation happened since gen was read.
func (c *SubscriptionCache) Set(ctx context.Context, eventType domain.EventType, gen int64, ids []uuid.UUID) error {
	if ids == nil {
		ids = []uuid.UUID{}
	}
	val, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encoding subscriptions for %s: %w", eventType, err)
	}
	keys := []string{c.key(eventType), c.genKey(eventType)}
	err = setIfGeneration.Run(ctx, c.client, keys, strconv.FormatInt(gen, 10), val, c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis subscription set: %w", err)
	}
	return nil
}

// Invalidate drops the entries for the given event types and bumps their
// generations.
func (c *SubscriptionCache) Invalidate(ctx context.Context, eventTypes ...domain.EventType) error {
	if len(eventTypes) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, t := range eventTypes {
			pipe.Del(ctx, c.key(t))
			pipe.Incr(ctx, c.genKey(t))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis subscription invalidate: %w", err)
	}
	return nil
}
