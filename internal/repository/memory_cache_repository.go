package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	gocache "github.com/patrickmn/go-cache"

	appErrors "github.com/noah-isme/whale-spotting-api/pkg/errors"
)

// MemoryCacheRepository keeps JSON-encoded payloads in process memory. Values
// are stored encoded so callers never share mutable state with the cache.
type MemoryCacheRepository struct {
	store *gocache.Cache
}

// NewMemoryCacheRepository builds an in-process cache with the given default
// TTL. Expired entries are purged every cleanup interval.
func NewMemoryCacheRepository(defaultTTL, cleanup time.Duration) *MemoryCacheRepository {
	if cleanup <= 0 {
		cleanup = 2 * defaultTTL
	}
	return &MemoryCacheRepository{store: gocache.New(defaultTTL, cleanup)}
}

// Get unmarshals the cached value into dest or returns ErrCacheMiss.
func (r *MemoryCacheRepository) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := r.store.Get(key)
	if !ok {
		return appErrors.ErrCacheMiss
	}
	payload, ok := raw.([]byte)
	if !ok {
		r.store.Delete(key)
		return appErrors.ErrCacheMiss
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return nil
}

// Set stores value under key for ttl.
func (r *MemoryCacheRepository) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	r.store.Set(key, payload, ttl)
	return nil
}

// DeleteByPattern removes keys matching a Redis-style glob such as "sightings:*".
func (r *MemoryCacheRepository) DeleteByPattern(_ context.Context, pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return fmt.Errorf("invalid cache pattern %s: %w", pattern, err)
	}
	for key := range r.store.Items() {
		if matched, _ := path.Match(pattern, key); matched {
			r.store.Delete(key)
		}
	}
	return nil
}

// Len reports the number of live entries.
func (r *MemoryCacheRepository) Len() int {
	return r.store.ItemCount()
}
