package testutil

import (
	"testing"

	"skymarket/internal/infrastructure/cache"
)

// NewCache returns an in-process cache that is closed when the test ends.
func NewCache(t testing.TB) *cache.MemoryCache {
	t.Helper()
	c, err := cache.NewMemoryCache(1000)
	if err != nil {
		t.Fatalf("memory cache: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}
