// Package cache stores decoration prices in Redis hashes keyed by normalized name.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rewired-gh/skinscout/internal/metrics"
	"github.com/rewired-gh/skinscout/internal/models"
)

// Config holds connection parameters for the price cache.
type Config struct {
	URL       string
	KeyPrefix string
	TTL       time.Duration
}

// PriceCache reads and writes decoration prices. Each decoration is a hash at
// "<prefix><normalized name>" with fields "name", "price" and "collection".
type PriceCache struct {
	rdb     *redis.Client
	prefix  string
	ttl     time.Duration
	metrics *metrics.Collector
}

// New connects to Redis, pings it and returns the cache.
func New(ctx context.Context, cfg Config, m *metrics.Collector) (*PriceCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &PriceCache{rdb: rdb, prefix: cfg.KeyPrefix, ttl: cfg.TTL, metrics: m}, nil
}

// Close closes the Redis connection.
func (c *PriceCache) Close() error {
	return c.rdb.Close()
}

func (c *PriceCache) key(normalized string) string {
	return c.prefix + normalized
}

// Price returns the cached price of a normalized decoration name.
// ok is false when the decoration is not cached.
func (c *PriceCache) Price(ctx context.Context, normalized string) (decimal.Decimal, bool, error) {
	raw, err := c.rdb.HGet(ctx, c.key(normalized), "price").Result()
	if errors.Is(err, redis.Nil) {
		c.metrics.ObserveCacheLookup("miss")
		return decimal.Zero, false, nil
	}
	if err != nil {
		c.metrics.ObserveCacheLookup("error")
		return decimal.Zero, false, fmt.Errorf("redis: get price %s: %w", normalized, err)
	}

	price, err := decimal.NewFromString(raw)
	if err != nil {
		c.metrics.ObserveCacheLookup("error")
		return decimal.Zero, false, fmt.Errorf("redis: parse price %s: %w", normalized, err)
	}
	c.metrics.ObserveCacheLookup("hit")
	return price, true, nil
}

// PutAll writes every price in one pipeline and sets the cache TTL on each key.
func (c *PriceCache) PutAll(ctx context.Context, prices []models.DecorationPrice) error {
	if len(prices) == 0 {
		return nil
	}

	_, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range prices {
			key := c.key(p.Normalized)
			pipe.HSet(ctx, key, map[string]interface{}{
				"name":       p.Name,
				"price":      strconv.FormatFloat(p.Price, 'f', -1, 64),
				"collection": p.Collection,
			})
			if c.ttl > 0 {
				pipe.Expire(ctx, key, c.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: put prices: %w", err)
	}
	return nil
}

// Count returns the number of cached decorations.
func (c *PriceCache) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, c.prefix+"*", 500).Result()
		if err != nil {
			return 0, fmt.Errorf("redis: scan: %w", err)
		}
		total += len(keys)
		cursor = next
		if cursor == 0 {
			return total, nil
		}
	}
}
