package timeline

import (
	"fmt"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the cache when the caller gives no size. Chart
// counts are small relative to memory, so the bound mostly guards pathological
// replay floods of distinct charts.
const DefaultCacheSize = 256

// Cache stores built timelines keyed by chart hash and rate. Entries are
// immutable once inserted; callers must treat returned slices as read-only.
// Safe for concurrent use.
type Cache struct {
	lru *lru.Cache[string, []Event]
}

// NewCache creates an LRU-bounded cache. size <= 0 selects DefaultCacheSize.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	l, err := lru.New[string, []Event](size)
	if err != nil {
		return nil, fmt.Errorf("timeline cache: %w", err)
	}
	return &Cache{lru: l}, nil
}

// Key derives the cache key for a chart hash and rate.
func Key(hash string, rate float64) string {
	return hash + "@" + strconv.FormatFloat(rate, 'g', -1, 64)
}

// Get returns the cached timeline for the key.
func (c *Cache) Get(key string) ([]Event, bool) {
	return c.lru.Get(key)
}

// Add inserts a built timeline.
func (c *Cache) Add(key string, events []Event) {
	c.lru.Add(key, events)
}

// Len reports the number of cached timelines.
func (c *Cache) Len() int {
	return c.lru.Len()
}
