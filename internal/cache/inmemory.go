package cache

import (
	"context"
	"strings"
	"time"

	goCache "github.com/patrickmn/go-cache"
)

// DefaultExpiration is the default expiration time for cache entries
const DefaultExpiration = 30 * time.Minute

// DefaultCleanupInterval is how often expired items are removed from the cache
const DefaultCleanupInterval = 1 * time.Hour

// InMemoryCache implements the Cache interface using github.com/patrickmn/go-cache
type InMemoryCache struct {
	cache   *goCache.Cache
	enabled bool
}

// NewInMemoryCache creates a new InMemoryCache instance
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		cache:   goCache.New(DefaultExpiration, DefaultCleanupInterval),
		enabled: true,
	}
}

// SetEnabled toggles the cache; a disabled cache misses on every Get.
func (c *InMemoryCache) SetEnabled(enabled bool) {
	c.enabled = enabled
}

// Get retrieves a value from the cache
func (c *InMemoryCache) Get(_ context.Context, key string) (interface{}, bool) {
	if !c.enabled {
		return nil, false
	}
	return c.cache.Get(key)
}

// Set adds a value to the cache with the specified expiration
func (c *InMemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) {
	if !c.enabled {
		return
	}
	c.cache.Set(key, value, expiration)
}

// Delete removes a key from the cache
func (c *InMemoryCache) Delete(_ context.Context, key string) {
	if !c.enabled {
		return
	}
	c.cache.Delete(key)
}

// DeleteByPrefix removes all keys with the given prefix
func (c *InMemoryCache) DeleteByPrefix(_ context.Context, prefix string) {
	if !c.enabled {
		return
	}
	for k := range c.cache.Items() {
		if strings.HasPrefix(k, prefix) {
			c.cache.Delete(k)
		}
	}
}

// Flush removes all items from the cache
func (c *InMemoryCache) Flush(_ context.Context) {
	c.cache.Flush()
}
