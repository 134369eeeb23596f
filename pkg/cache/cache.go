// Package cache provides the TTL caches used for market data.
package cache

import (
	"fmt"
	"time"
)

// Cache stores values with a TTL. Implementations are safe for concurrent use.
type Cache interface {
	// Get returns (value, true) on a hit.
	Get(key string) (interface{}, bool)
	// Set may drop the value under memory pressure and reports whether it was admitted.
	Set(key string, value interface{}, ttl time.Duration) bool
	Delete(key string)
	Clear()
	// Wait blocks until pending writes are visible to Get.
	Wait()
	Close()
}

// Load returns the cached value for key, or calls fetch and caches its result.
// Fetch errors are returned as-is and nothing is cached.
func Load[T any](c Cache, key string, ttl time.Duration, fetch func() (T, error)) (T, error) {
	if c != nil {
		if v, ok := c.Get(key); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
			c.Delete(key)
		}
	}

	v, err := fetch()
	if err != nil {
		var zero T
		return zero, err
	}
	if c != nil {
		c.Set(key, v, ttl)
	}
	return v, nil
}

// Key joins parts into a namespaced cache key.
func Key(namespace string, parts ...interface{}) string {
	k := namespace
	for _, p := range parts {
		k += ":" + fmt.Sprint(p)
	}
	return k
}
