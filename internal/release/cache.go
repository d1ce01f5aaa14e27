// SPDX-License-Identifier: MPL-2.0

package release

import (
	"sync"
	"time"
)

// DefaultTTL is how long a cached release stays fresh. Five minutes keeps
// repeated checks well under the unauthenticated GitHub API rate limit.
const DefaultTTL = 5 * time.Minute

type (
	// Cache memoizes release metadata per repository. Lookups and inserts
	// are safe under concurrent artifact checks; an expired entry is
	// evicted on lookup and never resurrected.
	Cache struct {
		mu      sync.Mutex
		entries map[string]cacheEntry
		ttl     time.Duration
		now     func() time.Time // test seam for expiry
	}

	cacheEntry struct {
		release Release
		stamp   time.Time
	}

	// CacheOption configures a Cache during construction.
	CacheOption func(*Cache)
)

// WithTTL overrides the default entry lifetime.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithClock overrides the time source, primarily for expiry tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates an empty cache with the default TTL.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached release for repo, or nil when no entry exists or
// the entry has outlived the TTL. Expired entries are removed.
func (c *Cache) Get(repo string) *Release {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[repo]
	if !ok {
		return nil
	}

	if c.now().Sub(entry.stamp) >= c.ttl {
		delete(c.entries, repo)
		return nil
	}

	r := entry.release
	return &r
}

// Put stores the release for repo, unconditionally replacing any previous
// entry and stamping the current time.
func (c *Cache) Put(repo string, r Release) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[repo] = cacheEntry{release: r, stamp: c.now()}
}

// Clear removes every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// ClearRepo removes the entry for a single repository.
func (c *Cache) ClearRepo(repo string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, repo)
}

// Len returns the number of live entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
