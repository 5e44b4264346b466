// Package manifest memoizes Bungie manifest definitions for the lifetime of the process.
package manifest

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"example.com/raidsync/internal/domain"
)

const (
	// DefaultSize is the cache ceiling used when none is configured.
	DefaultSize = 50000
	// DefaultFetchTimeout bounds a shared upstream fetch.
	DefaultFetchTimeout = 30 * time.Second
)

// Fetcher loads a manifest entity from the upstream.
type Fetcher interface {
	GetManifestEntity(ctx context.Context, entityType domain.EntityType, hashID string) (domain.ManifestEntity, error)
}

// Cache is a read-through cache in front of a Fetcher. Definitions are
// immutable per hash so entries are never invalidated, only evicted once the
// ceiling is reached. Concurrent misses on one key share a single fetch.
type Cache struct {
	fetcher      Fetcher
	entries      *lru.Cache[string, domain.ManifestEntity]
	flights      singleflight.Group
	fetchTimeout time.Duration
}

// Option configures the Cache.
type Option func(*Cache)

// WithFetchTimeout bounds each upstream fetch shared by coalesced callers.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// NewCache constructs a Cache holding at most size entities.
func NewCache(fetcher Fetcher, size int, opts ...Option) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New[string, domain.ManifestEntity](size)
	if err != nil {
		return nil, err
	}
	c := &Cache{fetcher: fetcher, entries: entries, fetchTimeout: DefaultFetchTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetManifestEntity returns the cached entity or fetches it. Failed fetches are not cached.
func (c *Cache) GetManifestEntity(ctx context.Context, entityType domain.EntityType, hashID string) (domain.ManifestEntity, error) {
	key := cacheKey(entityType, hashID)
	if entity, ok := c.entries.Get(key); ok {
		hitCounter.WithLabelValues(string(entityType)).Inc()
		return entity, nil
	}
	missCounter.WithLabelValues(string(entityType)).Inc()

	// The shared fetch outlives any single caller: one caller giving up must
	// not fail the others waiting on the same key.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(key, func() (interface{}, error) {
		// A flight that finished between our miss and DoChan already filled the entry.
		if entity, ok := c.entries.Get(key); ok {
			return entity, nil
		}
		fetchCtx, cancel := context.WithTimeout(flightCtx, c.fetchTimeout)
		defer cancel()
		fetchCounter.WithLabelValues(string(entityType)).Inc()
		entity, err := c.fetcher.GetManifestEntity(fetchCtx, entityType, hashID)
		if err != nil {
			return domain.ManifestEntity{}, fmt.Errorf("manifest %s/%s: %w", entityType, hashID, err)
		}
		c.entries.Add(key, entity)
		return entity, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return domain.ManifestEntity{}, res.Err
		}
		return res.Val.(domain.ManifestEntity), nil
	case <-ctx.Done():
		return domain.ManifestEntity{}, ctx.Err()
	}
}

// Len reports the number of cached entities.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func cacheKey(entityType domain.EntityType, hashID string) string {
	return string(entityType) + "::" + hashID
}
