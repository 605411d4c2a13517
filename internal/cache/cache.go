// Package cache is the redis-backed listing cache. Every operation
// degrades gracefully: a backend outage turns reads into misses and
// writes into no-ops, and is never surfaced to callers. The database
// stays the source of truth.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/skyvault-io/skyvault/internal/logger"
	"github.com/skyvault-io/skyvault/internal/metrics"
	"github.com/skyvault-io/skyvault/pkg/config"
)

const (
	dialTimeout = 250 * time.Millisecond
	opTimeout   = 500 * time.Millisecond

	// scanBatch bounds one SCAN iteration during pattern deletes.
	scanBatch = 200
)

// Cache wraps the redis client. The zero-value-nil Cache is valid and
// behaves as a permanent miss, which keeps tests and cacheless deploys
// trivial.
type Cache struct {
	client  *redis.Client
	metrics *metrics.CacheMetrics
}

// New connects to redis. Connection failures are logged, not fatal: the
// cache simply starts degraded and recovers when redis comes back.
func New(cfg *config.RedisConfig, m *metrics.CacheMetrics) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("cache backend unreachable, degrading to miss-through",
			"addr", cfg.Addr(), logger.KeyError, err)
	}

	return &Cache{client: client, metrics: m}
}

// Close releases the client.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// GetJSON loads key into v. Returns false on miss, backend error, or
// undecodable payload; the caller falls through to the database.
func (c *Cache) GetJSON(ctx context.Context, key string, v any) bool {
	if c == nil || c.client == nil {
		return false
	}
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := c.client.Get(opCtx, key).Bytes()
	if err == redis.Nil {
		c.metrics.Observe("get", "miss")
		return false
	}
	if err != nil {
		c.metrics.Observe("get", "error")
		logger.Debug("cache get failed", logger.KeyKey, key, logger.KeyError, err)
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.metrics.Observe("get", "error")
		logger.Debug("cache entry undecodable, treating as miss", logger.KeyKey, key, logger.KeyError, err)
		return false
	}
	c.metrics.Observe("get", "hit")
	return true
}

// SetJSON stores v under key with the given TTL. Failures are logged and
// swallowed.
func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		logger.Debug("cache encode failed", logger.KeyKey, key, logger.KeyError, err)
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.client.Set(opCtx, key, data, ttl).Err(); err != nil {
		c.metrics.Observe("set", "error")
		logger.Debug("cache set failed", logger.KeyKey, key, logger.KeyError, err)
		return
	}
	c.metrics.Observe("set", "ok")
}

// Delete removes exact keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if c == nil || c.client == nil || len(keys) == 0 {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.client.Del(opCtx, keys...).Err(); err != nil {
		c.metrics.Observe("del", "error")
		logger.Debug("cache delete failed", logger.KeyCount, len(keys), logger.KeyError, err)
		return
	}
	c.metrics.Observe("del", "ok")
}

// DeletePattern removes every key matching the glob pattern using a
// non-blocking SCAN. The cache may lag briefly behind the database but
// converges; stale keys also age out through their TTLs.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) {
	if c == nil || c.client == nil {
		return
	}
	// Pattern deletes walk the keyspace; give them a little more room
	// than a point operation but never block a request on them.
	opCtx, cancel := context.WithTimeout(ctx, 4*opTimeout)
	defer cancel()

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(opCtx, cursor, pattern, scanBatch).Result()
		if err != nil {
			c.metrics.Observe("del", "error")
			logger.Debug("cache scan failed", "pattern", pattern, logger.KeyError, err)
			return
		}
		if len(keys) > 0 {
			if err := c.client.Del(opCtx, keys...).Err(); err != nil {
				c.metrics.Observe("del", "error")
				logger.Debug("cache pattern delete failed", "pattern", pattern, logger.KeyError, err)
				return
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.metrics.Observe("del", "ok")
}
