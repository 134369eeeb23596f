package cache

import (
	"errors"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

// RistrettoCache is a Cache backed by Ristretto. Every entry costs 1, so MaxCost is an item count.
type RistrettoCache struct {
	name   string
	cache  *ristretto.Cache
	logger *zap.Logger
}

// RistrettoConfig holds configuration for a Ristretto cache.
type RistrettoConfig struct {
	// Name labels the cache in metrics and logs.
	Name        string
	NumCounters int64 // ~10x the expected item count
	MaxCost     int64
	BufferItems int64
	Logger      *zap.Logger
}

// NewRistrettoCache creates a Ristretto-backed cache.
func NewRistrettoCache(cfg *RistrettoConfig) (*RistrettoCache, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	name := cfg.Name
	if name == "" {
		name = "default"
	}
	bufferItems := cfg.BufferItems
	if bufferItems == 0 {
		bufferItems = 64
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, err
	}

	return &RistrettoCache{name: name, cache: c, logger: cfg.Logger}, nil
}

// Get retrieves a value.
func (r *RistrettoCache) Get(key string) (interface{}, bool) {
	value, found := r.cache.Get(key)
	if found {
		HitsTotal.WithLabelValues(r.name).Inc()
	} else {
		MissesTotal.WithLabelValues(r.name).Inc()
	}
	return value, found
}

// Set stores a value with a TTL.
func (r *RistrettoCache) Set(key string, value interface{}, ttl time.Duration) bool {
	ok := r.cache.SetWithTTL(key, value, 1, ttl)
	if ok {
		SetsTotal.WithLabelValues(r.name).Inc()
	} else {
		r.logger.Debug("cache-set-dropped", zap.String("cache", r.name), zap.String("key", key))
	}
	return ok
}

// Delete removes a value.
func (r *RistrettoCache) Delete(key string) {
	r.cache.Del(key)
}

// Clear removes every value.
func (r *RistrettoCache) Clear() {
	r.cache.Clear()
	r.logger.Info("cache-cleared", zap.String("cache", r.name))
}

// Wait blocks until pending writes have been applied.
func (r *RistrettoCache) Wait() {
	r.cache.Wait()
}

// Close releases the cache's goroutines.
func (r *RistrettoCache) Close() {
	r.cache.Close()
}
