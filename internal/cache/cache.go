// Package cache provides the ephemeral, process-lifetime track cache that
// fronts the durable store in the resolution pipeline. It is an explicit
// component passed by dependency injection, safe for concurrent use, with
// TTL-based expiry and caller-requested invalidation.
package cache

import (
	"sync"
	"time"

	"playlist-resolver/internal/metrics"
	"playlist-resolver/internal/model"
)

// DefaultTTL is the entry lifetime used when no TTL is configured.
const DefaultTTL = 30 * time.Minute

type entry struct {
	track     model.ResolvedTrack
	expiresAt time.Time
}

// TrackCache caches resolved tracks by reference identity for the configured
// TTL. Expired entries are dropped lazily on read and swept on write.
type TrackCache struct {
	mu      sync.RWMutex
	entries map[model.RefKey]entry
	ttl     time.Duration

	// now is replaceable in tests
	now func() time.Time
}

// New creates a track cache with the given TTL (<= 0 uses DefaultTTL).
func New(ttl time.Duration) *TrackCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TrackCache{
		entries: make(map[model.RefKey]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached track for key, if present and not expired.
func (c *TrackCache) Get(key model.RefKey) (model.ResolvedTrack, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		metrics.CacheMissesTotal.Inc()
		return model.ResolvedTrack{}, false
	}
	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; another writer may have refreshed it.
		if cur, ok := c.entries[key]; ok && c.now().After(cur.expiresAt) {
			delete(c.entries, key)
			metrics.CacheEntries.Set(float64(len(c.entries)))
		}
		c.mu.Unlock()
		metrics.CacheMissesTotal.Inc()
		return model.ResolvedTrack{}, false
	}

	metrics.CacheHitsTotal.Inc()
	return e.track, true
}

// Set stores a track under its reference identity.
func (c *TrackCache) Set(track model.ResolvedTrack) {
	now := c.now()
	c.mu.Lock()
	c.entries[track.Key()] = entry{track: track, expiresAt: now.Add(c.ttl)}
	c.sweepLocked(now)
	metrics.CacheEntries.Set(float64(len(c.entries)))
	c.mu.Unlock()
}

// Invalidate removes the entry for key, if any.
func (c *TrackCache) Invalidate(key model.RefKey) {
	c.mu.Lock()
	delete(c.entries, key)
	metrics.CacheEntries.Set(float64(len(c.entries)))
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *TrackCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[model.RefKey]entry)
	metrics.CacheEntries.Set(0)
	c.mu.Unlock()
}

// Len returns the number of entries, including any not yet swept.
func (c *TrackCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// sweepLocked drops expired entries. Called with the write lock held; bounded
// by map size, which stays small relative to playlist sizes.
func (c *TrackCache) sweepLocked(now time.Time) {
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}
