// Package scancache memoizes expensive category scans with per-category
// TTLs. The cache is process-local and never persisted; a restart always
// re-scans on first access.
package scancache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/davidahmann/hoststate/core/docvalue"
	"github.com/davidahmann/hoststate/core/statedoc"
)

// Clock supplies the current time; tests inject a deterministic one.
type Clock func() time.Time

// ScanFunc produces a fresh payload for one category.
type ScanFunc func(ctx context.Context) (docvalue.Value, error)

// DefaultTTLs mirrors the observed volatility of each category: system facts
// churn quickly, hardware barely moves.
func DefaultTTLs() map[statedoc.Category]time.Duration {
	return map[statedoc.Category]time.Duration{
		statedoc.CategorySystem:   30 * time.Second,
		statedoc.CategoryHardware: 300 * time.Second,
		statedoc.CategoryNetwork:  60 * time.Second,
		statedoc.CategorySoftware: 300 * time.Second,
		statedoc.CategoryServices: 30 * time.Second,
		statedoc.CategoryGaming:   300 * time.Second,
	}
}

type entry struct {
	payload    docvalue.Value
	capturedAt time.Time
	ttl        time.Duration
}

func (e entry) expired(now time.Time) bool {
	if e.ttl <= 0 {
		return true
	}
	return now.After(e.capturedAt.Add(e.ttl))
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits    int `json:"hits"`
	Misses  int `json:"misses"`
	Entries int `json:"entries"`
}

// Cache is safe for concurrent use by a single process.
type Cache struct {
	mu      sync.Mutex
	clock   Clock
	ttls    map[statedoc.Category]time.Duration
	entries map[statedoc.Category]entry
	hits    int
	misses  int
}

type Option func(*Cache)

// WithClock overrides the wall clock, for tests.
func WithClock(clock Clock) Option {
	return func(c *Cache) {
		c.clock = clock
	}
}

// New builds a cache with the given per-category TTLs. A category absent
// from ttls is never cached and scans on every access.
func New(ttls map[statedoc.Category]time.Duration, opts ...Option) *Cache {
	copied := make(map[statedoc.Category]time.Duration, len(ttls))
	for category, ttl := range ttls {
		copied[category] = ttl
	}
	cache := &Cache{
		clock:   time.Now,
		ttls:    copied,
		entries: map[statedoc.Category]entry{},
	}
	for _, opt := range opts {
		opt(cache)
	}
	return cache
}

// GetOrScan returns the cached payload for category when fresh; otherwise it
// invokes scan, stores the result, and returns it. A scan error propagates
// and leaves no entry behind: stale data is never served in place of an
// error.
func (c *Cache) GetOrScan(ctx context.Context, category statedoc.Category, scan ScanFunc) (docvalue.Value, time.Time, error) {
	c.mu.Lock()
	now := c.clock()
	if cached, ok := c.entries[category]; ok && !cached.expired(now) {
		c.hits++
		payload := cached.payload
		capturedAt := cached.capturedAt
		c.mu.Unlock()
		return payload, capturedAt, nil
	}
	c.misses++
	delete(c.entries, category)
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return docvalue.Value{}, time.Time{}, err
	}
	payload, err := scan(ctx)
	if err != nil {
		return docvalue.Value{}, time.Time{}, fmt.Errorf("scan %s: %w", category, err)
	}

	c.mu.Lock()
	capturedAt := c.clock()
	c.entries[category] = entry{
		payload:    payload,
		capturedAt: capturedAt,
		ttl:        c.ttls[category],
	}
	c.mu.Unlock()
	return payload, capturedAt, nil
}

// Peek returns the cached payload only when it is still fresh.
func (c *Cache) Peek(category statedoc.Category) (docvalue.Value, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cached, ok := c.entries[category]
	if !ok || cached.expired(c.clock()) {
		return docvalue.Value{}, time.Time{}, false
	}
	return cached.payload, cached.capturedAt, true
}

// Fresh reports whether category has an unexpired entry.
func (c *Cache) Fresh(category statedoc.Category) bool {
	_, _, ok := c.Peek(category)
	return ok
}

// Invalidate drops one category.
func (c *Cache) Invalidate(category statedoc.Category) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, category)
}

// Clear drops every entry and resets the counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[statedoc.Category]entry{}
	c.hits = 0
	c.misses = 0
}

// Stats returns hit/miss counts and the live entry count.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	live := 0
	now := c.clock()
	for _, cached := range c.entries {
		if !cached.expired(now) {
			live++
		}
	}
	return Stats{Hits: c.hits, Misses: c.misses, Entries: live}
}
