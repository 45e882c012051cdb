// Package cache provides the short-lived TTL cache that fronts the
// persistence layer for derived context: group records, group settings,
// participant profiles and conversation memory bundles.
//
// The cache is best-effort and strictly derived: it never synthesizes data
// that is not in storage, and every write to an underlying record must
// invalidate the corresponding key before the write is acknowledged.
package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Cache wraps ristretto with synchronous write visibility: Set and
// Invalidate wait for the buffered mutation to apply before returning, so a
// read issued after Invalidate returns never observes the stale value.
type Cache struct {
	inner *ristretto.Cache
}

// New creates a cache sized for the working set of a single bot process.
func New() (*Cache, error) {
	inner, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	return &Cache{inner: inner}, nil
}

// Get returns the cached value for key, or ok=false on a miss.
func (c *Cache) Get(key string) (any, bool) {
	return c.inner.Get(key)
}

// Set stores value under key with the given TTL. Each entry costs 1: the
// cache bounds entry count, not byte size.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.inner.SetWithTTL(key, value, 1, ttl)
	c.inner.Wait()
}

// Invalidate removes key. It must be called before the underlying write is
// acknowledged to the caller.
func (c *Cache) Invalidate(key string) {
	c.inner.Del(key)
	c.inner.Wait()
}

// Close releases the cache's internal goroutines.
func (c *Cache) Close() {
	c.inner.Close()
}

// Key builders namespaced by record kind. Settings are keyed by the backing
// sheet locator because settings are attached to the sheet, not the chat.

func GroupKey(chatID int64) string {
	return fmt.Sprintf("group:%d", chatID)
}

func SettingsKey(sheetID string) string {
	return fmt.Sprintf("settings:%s", sheetID)
}

func UserKey(sheetID string, userID int64) string {
	return fmt.Sprintf("user:%s:%d", sheetID, userID)
}

func MemoryKey(chatID, userID int64, threadID string) string {
	if threadID == "" {
		threadID = "default"
	}
	return fmt.Sprintf("memory:%d:%d:%s", chatID, userID, threadID)
}
