package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Openverse-iiitk/mess-rating/internal/domain"
)

const (
	keyPrefix = "mess:agg:"
	genPrefix = "mess:agg-gen:"

	// Generation keys outlive any in-flight fill.
	genTTL = 7 * 24 * time.Hour
)

// fillScript writes the aggregate only while the dish's generation still
// equals the one the caller read before computing it.
var fillScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// AggregateCache implements repository.AggregateCache using Redis.
type AggregateCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAggregateCache creates a new Redis-backed aggregate cache.
func NewAggregateCache(client *redis.Client, ttl time.Duration) *AggregateCache {
	return &AggregateCache{
		client: client,
		ttl:    ttl,
	}
}

// cacheKey puts the dish name last; dish names may contain colons.
func cacheKey(dish domain.DishKey) string {
	return keyPrefix + dish.Date + ":" + string(dish.MealType) + ":" + dish.DishName
}

func genKey(dish domain.DishKey) string {
	return genPrefix + dish.Date + ":" + string(dish.MealType) + ":" + dish.DishName
}

// Get returns the cached aggregate for dish. A miss is not an error.
func (c *AggregateCache) Get(ctx context.Context, dish domain.DishKey) (domain.Aggregate, bool, error) {
	data, err := c.client.Get(ctx, cacheKey(dish)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Aggregate{}, false, nil
		}
		return domain.Aggregate{}, false, fmt.Errorf("redis get aggregate: %w", err)
	}

	var agg domain.Aggregate
	if err := json.Unmarshal(data, &agg); err != nil {
		return domain.Aggregate{}, false, fmt.Errorf("unmarshal aggregate: %w", err)
	}

	return agg, true, nil
}

// Generation returns the dish's invalidation counter, zero if it has never
// been invalidated.
func (c *AggregateCache) Generation(ctx context.Context, dish domain.DishKey) (int64, error) {
	gen, err := c.client.Get(ctx, genKey(dish)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get generation: %w", err)
	}
	return gen, nil
}

// Fill stores agg for dish with the configured TTL unless the dish was
// invalidated after gen was read. It reports whether agg was stored.
func (c *AggregateCache) Fill(ctx context.Context, dish domain.DishKey, gen int64, agg domain.Aggregate) (bool, error) {
	data, err := json.Marshal(agg)
	if err != nil {
		return false, fmt.Errorf("marshal aggregate: %w", err)
	}

	stored, err := fillScript.Run(ctx, c.client,
		[]string{cacheKey(dish), genKey(dish)},
		gen, data, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis fill aggregate: %w", err)
	}

	return stored == 1, nil
}

// Invalidate removes the cached aggregate for dish and bumps its
// generation, returning the new one.
func (c *AggregateCache) Invalidate(ctx context.Context, dish domain.DishKey) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, genKey(dish))
	pipe.Expire(ctx, genKey(dish), genTTL)
	pipe.Del(ctx, cacheKey(dish))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis invalidate aggregate: %w", err)
	}

	return incr.Val(), nil
}
