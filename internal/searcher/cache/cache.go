// Package cache keeps query results in Redis across runs. Keys include a
// fingerprint of the index contents, so results computed over one corpus are
// never served for another.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/resilience"
)

// Store is the key-value backend; *redis.Client satisfies it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ResultCache never fails a search: backend errors are logged and count as
// misses, and repeated errors trip a breaker that skips the backend.
type ResultCache struct {
	store   Store
	ttl     time.Duration
	prefix  string
	timeout time.Duration
	breaker *resilience.Breaker
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(store Store, cfg config.RedisConfig) *ResultCache {
	return &ResultCache{
		store:   store,
		ttl:     cfg.CacheTTL,
		prefix:  cfg.KeyPrefix,
		timeout: cfg.Timeout,
		breaker: resilience.NewBreaker("result-cache", 3, 30*time.Second),
		logger:  slog.Default().With("component", "result-cache"),
	}
}

// Key derives the cache key for one evaluated query.
func (c *ResultCache) Key(fingerprint string, exact bool, query string) string {
	mode := "partial"
	if exact {
		mode = "exact"
	}
	sum := sha256.Sum256([]byte(fingerprint + "|" + mode + "|" + query))
	return fmt.Sprintf("%s%x", c.prefix, sum[:16])
}

func (c *ResultCache) Get(ctx context.Context, fingerprint string, exact bool, query string) ([]index.QueryResult, bool) {
	key := c.Key(fingerprint, exact, query)
	var data []byte
	var found bool
	err := c.breaker.Do(func() error {
		return resilience.WithTimeout(ctx, c.timeout, func(ctx context.Context) error {
			var err error
			data, found, err = c.store.Get(ctx, key)
			return err
		})
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	if !found {
		c.misses.Add(1)
		return nil, false
	}
	var results []index.QueryResult
	if err := json.Unmarshal(data, &results); err != nil {
		c.logger.Error("cache entry unreadable", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "query", query, "key", key)
	return results, true
}

func (c *ResultCache) Set(ctx context.Context, fingerprint string, exact bool, query string, results []index.QueryResult) {
	key := c.Key(fingerprint, exact, query)
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Do(func() error {
		return resilience.WithTimeout(ctx, c.timeout, func(ctx context.Context) error {
			return c.store.Set(ctx, key, data, c.ttl)
		})
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// BreakerState reports whether the backend is currently being skipped.
func (c *ResultCache) BreakerState() resilience.State {
	return c.breaker.State()
}

// Stats returns the hit and miss counts since creation.
func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
