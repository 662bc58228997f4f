package cache

import (
	"sync"
	"time"
)

// DefaultTTL is how long an analysis result is considered fresh.
const DefaultTTL = 300000 * time.Millisecond

// Result is a memoized analysis outcome. DiffContent may be empty.
type Result struct {
	DiffContent string      `json:"diff_content"`
	Fingerprint Fingerprint `json:"fingerprint"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Fresh reports whether r is younger than ttl at now. The cache never expires
// entries itself; callers check freshness at read time.
func (r Result) Fresh(now time.Time, ttl time.Duration) bool {
	if r.CreatedAt.IsZero() {
		return false
	}
	return now.Sub(r.CreatedAt) < ttl
}

// Cache maps fingerprints to results. It has no size bound and no eviction;
// growth over a long process lifetime is accepted.
type Cache struct {
	mu      sync.RWMutex
	entries map[Fingerprint]Result
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[Fingerprint]Result)}
}

// Get returns the stored result regardless of its age.
func (c *Cache) Get(fp Fingerprint) (Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[fp]
	return r, ok
}

// Put stores r under fp, replacing any previous entry.
func (c *Cache) Put(fp Fingerprint, r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[Fingerprint]Result)
	}
	c.entries[fp] = r
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Fingerprint]Result)
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
