// Package cache is the content-addressable store of prior translation
// results, keyed by fingerprint. The in-memory index is authoritative for
// reads; writes to the durable key-value scope are debounced. Eviction is
// an amortized batch LRU: nothing happens per insert until occupancy
// reaches the high-water mark, then the least-recently-accessed block is
// dropped in one pass.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"codeberg.org/snonux/lexigap/internal/fingerprint"
	"codeberg.org/snonux/lexigap/internal/kvstore"
	"codeberg.org/snonux/lexigap/internal/translate"
)

// SchemaVersion stamps the persisted store. Bumping it invalidates every
// persisted entry at once; partial schema compatibility is not attempted.
const SchemaVersion = 3

// StoreKey is where the persisted record lives in the device-local scope.
const StoreKey = "translation-cache"

const (
	// evictHighWater triggers batch eviction (fraction of capacity).
	evictHighWater = 0.95
	// evictLowWater is what eviction drains down to (fraction of capacity).
	evictLowWater = 0.90
)

// Entry is one cached translation result.
type Entry struct {
	Result         translate.Result `json:"result"`
	Mode           fingerprint.Mode `json:"mode"`
	SourceLocation string           `json:"sourceLocation,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	LastAccessedAt time.Time        `json:"lastAccessedAt"`
}

// Stats describes cache effectiveness since startup.
type Stats struct {
	Size      int
	Capacity  int
	Hits      int
	Misses    int
	Evictions int
	Expired   int
}

// Options configure a Cache.
type Options struct {
	// Capacity is the maximum entry count. Default 2000.
	Capacity int
	// TTL expires entries lazily on access. Default 14 days. <=0 keeps
	// entries forever.
	TTL time.Duration
	// FlushDelay debounces persistence after a mutation. Default 2s.
	FlushDelay time.Duration
	// Store is the durable device-local scope. Nil disables persistence.
	Store kvstore.Store
}

func (o *Options) defaults() {
	if o.Capacity <= 0 {
		o.Capacity = 2000
	}
	if o.TTL == 0 {
		o.TTL = 14 * 24 * time.Hour
	}
	if o.FlushDelay <= 0 {
		o.FlushDelay = 2 * time.Second
	}
}

// Cache is the mode-aware fingerprint cache.
type Cache struct {
	mu      sync.Mutex
	opts    Options
	entries map[string]*Entry
	stats   Stats

	flushTimer *time.Timer
	closed     bool

	// now is replaceable for TTL tests.
	now func() time.Time
}

// New creates a cache and, when a store is configured, loads the persisted
// record. A persisted record with a different schema version is discarded
// wholesale.
func New(opts Options) *Cache {
	opts.defaults()
	c := &Cache{
		opts:    opts,
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
	c.load()
	return c
}

// Get returns the cached result for a fingerprint and touches its access
// time. An entry past its TTL is treated as a miss and dropped.
func (c *Cache) Get(fp string) (translate.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(fp)
}

// GetBatch resolves many fingerprints at once, returning hits keyed by
// fingerprint and the list of misses.
func (c *Cache) GetBatch(fps []string) (hits map[string]translate.Result, misses []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hits = make(map[string]translate.Result)
	for _, fp := range fps {
		if r, ok := c.getLocked(fp); ok {
			hits[fp] = r
		} else {
			misses = append(misses, fp)
		}
	}
	return hits, misses
}

func (c *Cache) getLocked(fp string) (translate.Result, bool) {
	e, ok := c.entries[fp]
	if !ok {
		c.stats.Misses++
		return translate.Result{}, false
	}
	if c.expired(e) {
		delete(c.entries, fp)
		c.stats.Expired++
		c.stats.Misses++
		c.scheduleFlushLocked()
		return translate.Result{}, false
	}
	e.LastAccessedAt = c.now()
	c.stats.Hits++
	return e.Result, true
}

// Set stores a result under a fingerprint.
func (c *Cache) Set(fp string, result translate.Result, mode fingerprint.Mode, sourceLocation string) {
	c.SetBatch(map[string]translate.Result{fp: result}, mode, sourceLocation)
}

// SetBatch stores many results in one pass, then runs at most one eviction
// sweep.
func (c *Cache) SetBatch(results map[string]translate.Result, mode fingerprint.Mode, sourceLocation string) {
	if len(results) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for fp, r := range results {
		c.entries[fp] = &Entry{
			Result:         r,
			Mode:           mode,
			SourceLocation: sourceLocation,
			CreatedAt:      now,
			LastAccessedAt: now,
		}
	}
	c.evictLocked()
	c.scheduleFlushLocked()
}

// evictLocked drops the least-recently-accessed entries once occupancy
// reaches the high-water mark, draining down to the low-water mark.
func (c *Cache) evictLocked() {
	high := int(float64(c.opts.Capacity) * evictHighWater)
	if len(c.entries) < high {
		return
	}
	target := int(float64(c.opts.Capacity) * evictLowWater)
	if target < 1 {
		target = 1
	}

	type aged struct {
		fp string
		at time.Time
	}
	byAge := make([]aged, 0, len(c.entries))
	for fp, e := range c.entries {
		byAge = append(byAge, aged{fp, e.LastAccessedAt})
	}
	sort.Slice(byAge, func(i, j int) bool { return byAge[i].at.Before(byAge[j].at) })

	for i := 0; len(c.entries) > target && i < len(byAge); i++ {
		delete(c.entries, byAge[i].fp)
		c.stats.Evictions++
	}
}

// CleanExpired sweeps every expired entry out explicitly and returns how
// many were removed.
func (c *Cache) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for fp, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, fp)
			removed++
		}
	}
	if removed > 0 {
		c.stats.Expired += removed
		c.scheduleFlushLocked()
	}
	return removed
}

// ClearAll empties the cache and its persisted record.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()
	c.Flush()
}

// Stats returns a snapshot of cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.entries)
	s.Capacity = c.opts.Capacity
	return s
}

func (c *Cache) expired(e *Entry) bool {
	return c.opts.TTL > 0 && c.now().Sub(e.CreatedAt) > c.opts.TTL
}

// persistedRecord is the durable representation.
type persistedRecord struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// scheduleFlushLocked arms (or re-arms) the debounce timer. Mutations
// within the delay coalesce into a single durable write.
func (c *Cache) scheduleFlushLocked() {
	if c.opts.Store == nil || c.closed {
		return
	}
	if c.flushTimer != nil {
		c.flushTimer.Stop()
	}
	c.flushTimer = time.AfterFunc(c.opts.FlushDelay, func() { c.Flush() })
}

// Flush writes the current state to the durable store immediately.
func (c *Cache) Flush() error {
	if c.opts.Store == nil {
		return nil
	}
	c.mu.Lock()
	if c.flushTimer != nil {
		c.flushTimer.Stop()
		c.flushTimer = nil
	}
	record := persistedRecord{Version: SchemaVersion, Entries: make(map[string]Entry, len(c.entries))}
	for fp, e := range c.entries {
		record.Entries[fp] = *e
	}
	c.mu.Unlock()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode cache record: %w", err)
	}
	if err := c.opts.Store.Set(context.Background(), StoreKey, data); err != nil {
		return fmt.Errorf("failed to persist cache: %w", err)
	}
	return nil
}

// Close flushes pending state and stops the debounce timer.
func (c *Cache) Close() error {
	c.mu.Lock()
	c.closed = true
	if c.flushTimer != nil {
		c.flushTimer.Stop()
		c.flushTimer = nil
	}
	c.mu.Unlock()
	return c.Flush()
}

func (c *Cache) load() {
	if c.opts.Store == nil {
		return
	}
	data, ok, err := c.opts.Store.Get(context.Background(), StoreKey)
	if err != nil || !ok {
		return
	}
	var record persistedRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return
	}
	if record.Version != SchemaVersion {
		// Schema changed: the whole store is invalid at once.
		c.opts.Store.Delete(context.Background(), StoreKey)
		return
	}
	for fp, e := range record.Entries {
		entry := e
		c.entries[fp] = &entry
	}
}
