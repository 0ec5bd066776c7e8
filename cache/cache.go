// Package cache stores previously fetched suggestions keyed by a fingerprint
// of the predictor context, so repeated passes over the same document state
// reuse the earlier result instead of refetching.
package cache

import (
	"sync"

	"difftab/types"
)

// fingerprintSep separates the prefix and suffix inside a fingerprint. NUL
// bytes never occur in document text, so distinct (prefix, suffix) pairs
// always produce distinct fingerprints.
const fingerprintSep = "\x00|\x00"

// Fingerprint derives the cache key for a predictor context.
func Fingerprint(prefix, suffix string) string {
	return prefix + fingerprintSep + suffix
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Entries int
	Hits    int64
	Misses  int64
}

// Cache is a fingerprint-keyed suggestion store. Entries are never evicted;
// the engine clears the cache explicitly when its contents are suspect.
// All methods are safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*types.Suggestion
	hits    int64
	misses  int64
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]*types.Suggestion),
	}
}

// Get returns the suggestion stored under fingerprint, or (nil, false) when
// absent. Every call counts as a hit or a miss.
func (c *Cache) Get(fingerprint string) (*types.Suggestion, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.entries[fingerprint]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return s, ok
}

// Put stores a suggestion under fingerprint, replacing any previous entry.
// Last writer wins, including across an intervening Clear: a put for a fetch
// issued before the clear is allowed to repopulate the cache.
func (c *Cache) Put(fingerprint string, s *types.Suggestion) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[fingerprint] = s
}

// Clear removes all entries. Hit and miss counters are preserved.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*types.Suggestion)
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
	}
}
