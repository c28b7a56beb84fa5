// Package redis provides a cache.Cache backed by a networked Redis instance.
//
// All backend failures degrade to cache misses: a Redis outage slows the
// retrieval core down to uncached speed but never fails it.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mnemohq/mnemo/pkg/cache"
)

// Cache implements cache.Cache on go-redis.
type Cache struct {
	client *redis.Client
	logger *zap.Logger
}

// New creates a Redis cache from a redis URL
// (e.g. "redis://localhost:6379/0") and verifies connectivity.
func New(ctx context.Context, redisURL string, logger *zap.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &Cache{client: client, logger: logger}, nil
}

// Get returns the value for ns/key, or cache.ErrMiss when absent or the
// backend is unreachable.
func (c *Cache) Get(ctx context.Context, ns, key string) ([]byte, error) {
	v, err := c.client.Get(ctx, cache.Key(ns, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get failed, treating as miss",
				zap.String("namespace", ns),
				zap.Error(err),
			)
		}
		return nil, cache.ErrMiss
	}

	return v, nil
}

// Set stores the value under ns/key with the given TTL.
func (c *Cache) Set(ctx context.Context, ns, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, cache.Key(ns, key), value, ttl).Err(); err != nil {
		c.logger.Warn("cache set failed",
			zap.String("namespace", ns),
			zap.Error(err),
		)
	}

	return nil
}

// GetOrSet returns the cached value, or computes and stores it via factory.
// No single-flight: concurrent misses each invoke factory.
func (c *Cache) GetOrSet(ctx context.Context, ns, key string, ttl time.Duration, factory cache.Factory) ([]byte, error) {
	if v, err := c.Get(ctx, ns, key); err == nil {
		return v, nil
	}

	v, err := factory(ctx)
	if err != nil {
		return nil, err
	}

	_ = c.Set(ctx, ns, key, v, ttl)
	return v, nil
}

// MGet returns one value per key in one round trip, nil for misses.
func (c *Cache) MGet(ctx context.Context, ns string, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = cache.Key(ns, k)
	}

	out := make([][]byte, len(keys))
	vals, err := c.client.MGet(ctx, full...).Result()
	if err != nil {
		c.logger.Warn("cache mget failed, treating all as misses",
			zap.String("namespace", ns),
			zap.Int("keys", len(keys)),
			zap.Error(err),
		)
		return out, nil
	}

	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[i] = []byte(s)
		}
	}

	return out, nil
}

// MSet stores all entries with a shared TTL using a single pipeline round
// trip (Redis MSET cannot carry TTLs).
func (c *Cache) MSet(ctx context.Context, ns string, entries map[string][]byte, ttl time.Duration) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for key, value := range entries {
		pipe.Set(ctx, cache.Key(ns, key), value, ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("cache mset failed",
			zap.String("namespace", ns),
			zap.Int("entries", len(entries)),
			zap.Error(err),
		)
	}

	return nil
}

// ClearNamespace removes every key in the namespace via SCAN + DEL batches.
func (c *Cache) ClearNamespace(ctx context.Context, ns string) error {
	iter := c.client.Scan(ctx, 0, cache.Key(ns, "*"), 256).Iterator()

	batch := make([]string, 0, 256)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := c.client.Del(ctx, batch...).Err()
		batch = batch[:0]
		return err
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}

	return flush()
}

// Ping checks backend connectivity. Used by health checks.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
