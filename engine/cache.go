package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"

	"github.com/Nitefawkes/TenzikCore/wasm"
)

// DefaultCacheCapacity bounds the module cache when no capacity is given.
const DefaultCacheCapacity = 64

// ModuleKey returns the cache key for a capsule: the hex SHA-256 digest
// of its raw bytes. The same digest identifies the capsule in receipts.
func ModuleKey(module []byte) string {
	sum := sha256.Sum256(module)
	return hex.EncodeToString(sum[:])
}

// cacheEntry holds everything needed to re-run a previously seen
// capsule without re-instrumenting or recompiling it.
type cacheEntry struct {
	metered  []byte        // fuel-instrumented encoding
	imports  []wasm.Import // imports of the original module
	minPages uint32        // declared memory minimum
	compile  wazero.CompilationCache
	lastUsed time.Time
}

// CacheStats is a point-in-time view of cache effectiveness.
type CacheStats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// ModuleCache is a bounded cache of instrumented capsules keyed by
// content digest. When full, the entry with the oldest use is evicted
// and its compilation cache closed, so the capacity should exceed the
// number of distinct capsules in flight at once.
type ModuleCache struct {
	entries  map[string]*cacheEntry
	capacity int
	hits     uint64
	misses   uint64
	mu       sync.RWMutex
}

// NewModuleCache creates a cache holding at most capacity entries.
// A non-positive capacity selects DefaultCacheCapacity.
func NewModuleCache(capacity int) *ModuleCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &ModuleCache{
		entries:  make(map[string]*cacheEntry),
		capacity: capacity,
	}
}

// Stats returns the current hit/miss counters and entry count.
func (c *ModuleCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		Hits:    c.hits,
		Misses:  c.misses,
		Entries: len(c.entries),
	}
}

// Close releases every entry. The cache stays usable afterwards.
func (c *ModuleCache) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for key, entry := range c.entries {
		if err := entry.compile.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.entries, key)
	}
	return firstErr
}

func (c *ModuleCache) lookup(key string) (*cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	entry.lastUsed = time.Now()
	c.hits++
	return entry, true
}

// store inserts entry under key and returns the canonical entry for
// that key. When another call filled the slot first, the incoming
// entry is discarded and the stored one returned.
func (c *ModuleCache) store(ctx context.Context, key string, entry *cacheEntry) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		_ = entry.compile.Close(ctx)
		existing.lastUsed = time.Now()
		return existing
	}

	if len(c.entries) >= c.capacity {
		c.evictOldest(ctx)
	}

	entry.lastUsed = time.Now()
	c.entries[key] = entry
	return entry
}

// evictOldest drops the entry with the oldest use. Caller holds mu.
func (c *ModuleCache) evictOldest(ctx context.Context) {
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.lastUsed.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.lastUsed
		}
	}
	if oldestKey != "" {
		_ = c.entries[oldestKey].compile.Close(ctx)
		delete(c.entries, oldestKey)
	}
}
