// Package updatecache implements the Update Info Cache (component J): a single-slot cache
// of a remote advisory blob, backed by Redis and refreshed by the Scheduler.
package updatecache

import (
	"context"
	"sync"
	"time"

	"github.com/fleetward/fleetward/internal/models"
)

// cacheKey is the single slot this component occupies in the shared Redis keyspace.
const cacheKey = "fleetward:update-info"

// ttl bounds how long a stale blob is served if refreshes start failing; one tick past
// this and Get reports a cache miss rather than serving indefinitely-stale data.
const ttl = 2 * time.Hour

// redisClient is the slice of pkg/cache.Client the cache needs.
type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
}

// Fetcher retrieves the current advisory blob from its upstream source.
type Fetcher func(ctx context.Context) (string, error)

// Cache is the Update Info Cache: the single in-process slot the broadcaster's subscriber
// map is the only other exception to (§5/§9). The mutex's critical section never spans
// network I/O — Redis and the fetcher are both called outside the lock.
type Cache struct {
	redis   redisClient
	fetcher Fetcher

	mu     sync.Mutex
	cached string
	ok     bool
}

func New(redis redisClient, fetcher Fetcher) *Cache {
	return &Cache{redis: redis, fetcher: fetcher}
}

// Get returns the in-process cached blob, or ("", false) on a cache miss. It never touches
// Redis directly; only Refresh does, populating this slot.
func (c *Cache) Get(ctx context.Context) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cached, c.ok
}

// Refresh fetches a fresh blob, persists it to Redis, and then updates the in-process slot
// Get reads from.
func (c *Cache) Refresh(ctx context.Context) error {
	blob, err := c.fetcher(ctx)
	if err != nil {
		return models.WrapAPIError(models.KindUpstreamUnavailable, "failed to fetch update info", err)
	}
	if err := c.redis.Set(ctx, cacheKey, blob, ttl); err != nil {
		return models.WrapAPIError(models.KindStorageError, "failed to cache update info", err)
	}

	c.mu.Lock()
	c.cached = blob
	c.ok = true
	c.mu.Unlock()
	return nil
}
