package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// MemoryCache is an in-process Cache used when no Redis address is configured.
// Every entry costs 1, so maxEntries bounds the number of cached values.
type MemoryCache struct {
	store *ristretto.Cache
}

func NewMemoryCache(maxEntries int64) (*MemoryCache, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}

	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &MemoryCache{store: store}, nil
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, error) {
	value, ok := m.store.Get(key)
	if !ok {
		return "", ErrMiss
	}
	s, ok := value.(string)
	if !ok {
		return "", ErrMiss
	}
	return s, nil
}

// Set waits for the write to be applied so a following Get observes it.
// A write dropped by the admission policy behaves like a later miss.
func (m *MemoryCache) Set(_ context.Context, key string, value string, expiration time.Duration) error {
	m.store.SetWithTTL(key, value, 1, expiration)
	m.store.Wait()
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.store.Del(k)
	}
	return nil
}

func (m *MemoryCache) Close() {
	m.store.Close()
}
