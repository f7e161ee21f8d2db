package provider

import (
	"sync"
	"time"
)

// diffKey identifies a cached diff. The head sha is part of the key, so a
// force-push or new commit naturally misses and refetches.
type diffKey struct {
	owner   string
	repo    string
	number  int
	headSHA string
}

// diffEntry holds a cached diff with a timestamp for TTL expiration.
type diffEntry struct {
	diff      *Diff
	fetchedAt time.Time
}

// diffCache is a thread-safe in-memory diff cache with TTL expiration.
// Expired entries are cleaned up lazily on get, no background goroutine.
// Merge queue conflict detection re-reads peer diffs on every evaluation,
// which this keeps to one pull request lookup instead of a paginated file
// listing. Cached diffs are shared; callers must not mutate them.
type diffCache struct {
	mu      sync.RWMutex
	entries map[diffKey]*diffEntry
	ttl     time.Duration
}

func newDiffCache(ttl time.Duration) *diffCache {
	return &diffCache{
		entries: make(map[diffKey]*diffEntry),
		ttl:     ttl,
	}
}

// get returns the cached diff if present and not expired.
func (c *diffCache) get(key diffKey) (*Diff, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if time.Since(entry.fetchedAt) > c.ttl {
		// Expired. Re-check under write lock: a concurrent set() may have
		// replaced the entry with a fresh one between RUnlock and Lock.
		c.mu.Lock()
		if current, ok := c.entries[key]; ok && time.Since(current.fetchedAt) > c.ttl {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return entry.diff, true
}

// set stores a diff with the current timestamp.
func (c *diffCache) set(key diffKey, diff *Diff) {
	c.mu.Lock()
	c.entries[key] = &diffEntry{
		diff:      diff,
		fetchedAt: time.Now(),
	}
	c.mu.Unlock()
}
