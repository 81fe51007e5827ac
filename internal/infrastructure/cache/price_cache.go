package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/nutrilens/v1/internal/domain/pricing"
	"github.com/nutrilens/v1/internal/ports/outbound"
)

// PriceCache is a thread-safe in-memory cache of price estimates. Entries
// expire after a fixed TTL; expiry is checked lazily on read, and a sweep
// runs on insert whenever the cache exceeds its capacity. Time comes from an
// injected clock so expiry is testable without waiting.
type PriceCache struct {
	entries  map[string]*priceEntry
	ttl      time.Duration
	capacity int
	clock    outbound.Clock
	mu       sync.RWMutex
}

// priceEntry tracks one estimate with its insertion time.
type priceEntry struct {
	estimate   pricing.Estimate
	insertedAt time.Time
}

// NewPriceCache creates a price cache. Zero or negative ttl/capacity fall
// back to 5 minutes and 500 entries.
func NewPriceCache(ttl time.Duration, capacity int, clock outbound.Clock) *PriceCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if capacity <= 0 {
		capacity = 500
	}
	if clock == nil {
		clock = outbound.SystemClock{}
	}
	return &PriceCache{
		entries:  make(map[string]*priceEntry),
		ttl:      ttl,
		capacity: capacity,
		clock:    clock,
	}
}

// Get returns the cached estimate for an item name, if present and fresh.
// An expired entry is removed on the spot.
func (pc *PriceCache) Get(name string) (pricing.Estimate, bool) {
	key := cacheKeyFor(name)

	pc.mu.RLock()
	entry, exists := pc.entries[key]
	pc.mu.RUnlock()

	if !exists {
		return pricing.Estimate{}, false
	}
	if pc.expired(entry) {
		pc.mu.Lock()
		if current, ok := pc.entries[key]; ok && pc.expired(current) {
			delete(pc.entries, key)
		}
		pc.mu.Unlock()
		return pricing.Estimate{}, false
	}
	return entry.estimate, true
}

// Put stores an estimate under the item name. When the cache grows past
// capacity it first drops expired entries, then the oldest insertions until
// back within bounds.
func (pc *PriceCache) Put(name string, estimate pricing.Estimate) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	pc.entries[cacheKeyFor(name)] = &priceEntry{
		estimate:   estimate,
		insertedAt: pc.clock.Now(),
	}
	if len(pc.entries) > pc.capacity {
		pc.sweep()
	}
}

// Size returns the current entry count, expired entries included.
func (pc *PriceCache) Size() int {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return len(pc.entries)
}

// Clear drops every entry.
func (pc *PriceCache) Clear() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.entries = make(map[string]*priceEntry)
}

func (pc *PriceCache) expired(entry *priceEntry) bool {
	return pc.clock.Now().After(entry.insertedAt.Add(pc.ttl))
}

// sweep runs under the write lock: expired entries go first, then the
// oldest remaining insertions until the cache fits its capacity again.
func (pc *PriceCache) sweep() {
	for key, entry := range pc.entries {
		if pc.expired(entry) {
			delete(pc.entries, key)
		}
	}

	for len(pc.entries) > pc.capacity {
		var oldestKey string
		var oldestAt time.Time
		for key, entry := range pc.entries {
			if oldestKey == "" || entry.insertedAt.Before(oldestAt) {
				oldestKey = key
				oldestAt = entry.insertedAt
			}
		}
		delete(pc.entries, oldestKey)
	}
}

// cacheKeyFor normalizes an item name so "Chicken Breast " and
// "chicken breast" share an entry.
func cacheKeyFor(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
