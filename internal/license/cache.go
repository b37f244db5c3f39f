package license

import (
	"sync"
	"time"
)

// statusEntry is a memoized remote validity check.
type statusEntry struct {
	Valid     bool
	FetchedAt time.Time
	ExpiresAt time.Time
}

// StatusCache caches remote license validity checks. Expiry is computed
// from the stored fetch timestamp; expired entries are dropped on read.
// There is no background cleanup: license checks are infrequent and the
// cache is bounded.
type StatusCache struct {
	mu        sync.RWMutex
	entries   map[string]statusEntry
	maxSize   int
	hitCount  int64
	missCount int64
}

// CacheStats describes cache effectiveness.
type CacheStats struct {
	Entries  int     `json:"entries"`
	MaxSize  int     `json:"max_size"`
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRatio float64 `json:"hit_ratio"`
}

// NewStatusCache creates a status cache holding at most maxSize entries.
func NewStatusCache(maxSize int) *StatusCache {
	return &StatusCache{
		entries: make(map[string]statusEntry),
		maxSize: maxSize,
	}
}

// Get returns the cached validity for key. ok is false when the entry is
// missing or expired.
func (c *StatusCache) Get(key string) (valid, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		c.missCount++
		return false, false
	}
	if time.Now().After(entry.ExpiresAt) {
		delete(c.entries, key)
		c.missCount++
		return false, false
	}

	c.hitCount++
	return entry.Valid, true
}

// Set stores a validity result for key with the given TTL, overwriting
// any previous entry. Invalid results are cached too, so a misbehaving
// license does not hammer the remote service.
func (c *StatusCache) Set(key string, valid bool, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxSize <= 0 {
		return
	}
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	now := time.Now()
	c.entries[key] = statusEntry{
		Valid:     valid,
		FetchedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Invalidate removes a single entry.
func (c *StatusCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Stats returns cache statistics.
func (c *StatusCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hitCount + c.missCount
	ratio := float64(0)
	if total > 0 {
		ratio = float64(c.hitCount) / float64(total)
	}
	return CacheStats{
		Entries:  len(c.entries),
		MaxSize:  c.maxSize,
		Hits:     c.hitCount,
		Misses:   c.missCount,
		HitRatio: ratio,
	}
}

func (c *StatusCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.FetchedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.FetchedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
