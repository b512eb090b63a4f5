// Package cache memoizes query results in Redis. Keys embed the index stamp,
// so every commit of a generation or tombstone list makes older entries
// unreachable; Invalidate removes them eagerly.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/mir/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/mir/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/mir/pkg/metrics"
)

const keyPrefix = "mir:query:"

// KV is the subset of pkg/redis.Client the cache uses.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Key identifies one query against one index state.
type Key struct {
	Terms []string
	Mode  int
	Limit int
	Stamp string
}

type QueryCache struct {
	kv      KV
	ttl     time.Duration
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a cache over kv. m may be nil.
func New(kv KV, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		kv:      kv,
		ttl:     ttl,
		metrics: m,
		logger:  logger.WithComponent("query-cache"),
	}
}

// BuildKey hashes the normalized terms in query order, since order affects
// proximity scores and the reported term statistics.
func BuildKey(k Key) string {
	raw := fmt.Sprintf("%s|mode=%d|limit=%d|stamp=%s", strings.Join(k.Terms, ","), k.Mode, k.Limit, k.Stamp)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

func (c *QueryCache) Get(ctx context.Context, k Key) (*executor.SearchResult, bool) {
	key := BuildKey(k)
	data, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	if !ok {
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hit()
	c.logger.Debug("cache hit", "terms", k.Terms, "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, k Key, result *executor.SearchResult) {
	key := BuildKey(k)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.kv.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns a cached result or runs compute once per key, even
// when many callers miss at the same time. Errors are never cached.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	k Key,
	compute func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, k); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(BuildKey(k), func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, k, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.kv.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
