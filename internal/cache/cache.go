// Package cache provides the optimization response cache: a read-through
// loader with request coalescing over a memory or Redis store.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/jharjadi/tokenwise/internal/metrics"
)

// KeyPrefix namespaces every cache key.
const KeyPrefix = "tokenwise:opt:"

// DefaultLoadTimeout bounds a coalesced load once it is detached from the
// caller that started it.
const DefaultLoadTimeout = 2 * time.Minute

var cacheTracer = otel.Tracer("tokenwise.cache")

// Store is a byte-value store with per-entry TTL.
type Store interface {
	// Get returns the value for key; ok is false on a miss.
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// Clear removes every entry under KeyPrefix and returns the count.
	Clear(ctx context.Context) (int, error)
	Backend() string
}

// Cache is a read-through cache. Concurrent loads of the same key are
// coalesced and run detached from any single caller's cancellation. Store
// errors are logged and treated as misses.
type Cache struct {
	store       Store
	ttl         time.Duration
	loadTimeout time.Duration
	group       singleflight.Group
}

// New creates a Cache over store with entries living for ttl.
func New(store Store, ttl time.Duration) *Cache {
	return &Cache{store: store, ttl: ttl, loadTimeout: DefaultLoadTimeout}
}

// Backend names the underlying store.
func (c *Cache) Backend() string {
	return c.store.Backend()
}

// TTL returns the entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// GetOrLoad returns the cached value for key, or calls load, stores its
// result and returns it. hit reports whether the value came from the store.
// Load errors are returned and never cached. A caller whose ctx ends stops
// waiting, but the shared load keeps running for the other callers.
func (c *Cache) GetOrLoad(ctx context.Context, key string, load func(ctx context.Context) ([]byte, error)) (val []byte, hit bool, err error) {
	ctx, span := cacheTracer.Start(ctx, "cache.GetOrLoad",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	if val, ok := c.get(ctx, key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
		return val, true, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))
	metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()

	ch := c.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		// Another caller may have filled the entry while we waited.
		if val, ok := c.get(loadCtx, key); ok {
			return val, nil
		}

		val, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(loadCtx, key, val, c.ttl); err != nil {
			slog.Warn("cache set failed", "backend", c.store.Backend(), "error", err)
		}
		return val, nil
	})

	select {
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		return nil, false, ctx.Err()
	case res := <-ch:
		span.SetAttributes(attribute.Bool("cache.shared", res.Shared))
		if res.Err != nil {
			span.RecordError(res.Err)
			return nil, false, res.Err
		}
		return res.Val.([]byte), false, nil
	}
}

// Clear empties the store.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.Clear")
	defer span.End()

	n, err := c.store.Clear(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	span.SetAttributes(attribute.Int("cache.cleared", n))
	return n, nil
}

func (c *Cache) get(ctx context.Context, key string) ([]byte, bool) {
	val, ok, err := c.store.Get(ctx, key)
	if err != nil {
		slog.Warn("cache get failed", "backend", c.store.Backend(), "error", err)
		return nil, false
	}
	return val, ok
}

// Key fingerprints v as KeyPrefix + hex SHA-256 of its JSON encoding.
// Map keys are sorted by encoding/json, so equal values give equal keys.
func Key(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal cache key: %w", err)
	}
	sum := sha256.Sum256(data)
	return KeyPrefix + hex.EncodeToString(sum[:]), nil
}
