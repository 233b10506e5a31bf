package cachemanager

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/zjrosen/wikictl/internal/log"
)

// ReadThroughCache fronts a wiki lookup with a CacheManager. On a miss the
// loader runs once per key no matter how many goroutines ask; the others wait
// for and share its result. Failed loads are never stored.
//
// With skipCache set every call goes straight to the loader.
type ReadThroughCache[K comparable, V any, I any] struct {
	cache     CacheManager[K, V]
	fn        func(ctx context.Context, input I) (V, error)
	skipCache bool
	inflight  singleflight.Group
}

// NewReadThroughCache wraps cache with loader fn.
func NewReadThroughCache[K comparable, V any, I any](
	cache CacheManager[K, V],
	fn func(ctx context.Context, input I) (V, error),
	skipCache bool,
) *ReadThroughCache[K, V, I] {
	return &ReadThroughCache[K, V, I]{cache: cache, fn: fn, skipCache: skipCache}
}

// Get returns the cached value for key, loading it with input on a miss.
func (r *ReadThroughCache[K, V, I]) Get(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	if r.skipCache {
		return r.fn(ctx, input)
	}
	if v, ok := r.cache.Get(ctx, key); ok {
		return v, nil
	}
	return r.load(ctx, key, input, ttl)
}

// GetWithRefresh is Get, but a hit also pushes the entry's expiry out to ttl.
func (r *ReadThroughCache[K, V, I]) GetWithRefresh(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	if r.skipCache {
		return r.fn(ctx, input)
	}
	if v, ok := r.cache.GetWithRefresh(ctx, key, ttl); ok {
		return v, nil
	}
	return r.load(ctx, key, input, ttl)
}

// Invalidate drops key so the next Get reloads it. A load already in flight
// for key is not waited on by later callers.
func (r *ReadThroughCache[K, V, I]) Invalidate(ctx context.Context, key K) error {
	if r.skipCache {
		return nil
	}
	r.inflight.Forget(flightKey(key))
	return r.cache.Delete(ctx, key)
}

func (r *ReadThroughCache[K, V, I]) load(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	res, err, shared := r.inflight.Do(flightKey(key), func() (any, error) {
		v, err := r.fn(ctx, input)
		if err != nil {
			return v, err
		}
		r.cache.Set(ctx, key, v, ttl)
		return v, nil
	})
	if shared {
		log.Debug(log.CatCache, "Shared in-flight load", "key", key)
	}
	v, _ := res.(V)
	return v, err
}

func flightKey[K comparable](key K) string {
	return fmt.Sprint(key)
}
