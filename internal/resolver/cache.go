package resolver

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harrissondutra/fitOS-sub014/internal/models"
)

// Cache keys are namespaced by lookup kind so a custom domain and a subdomain
// label never collide.
const (
	domainKeyPrefix    = "d:"
	subdomainKeyPrefix = "s:"
)

type cacheEntry struct {
	// tenant is nil for a negative entry.
	tenant    *models.Tenant
	storedAt  time.Time
	expiresAt time.Time
	refreshAt time.Time

	// elem is the entry's place in the negative eviction queue.
	elem *list.Element
}

func (e *cacheEntry) negative() bool { return e.tenant == nil }

// CacheStats is a point-in-time view of the resolver cache.
type CacheStats struct {
	Entries   int    `json:"entries"`
	Negatives int    `json:"negatives"`
	Hits      int64  `json:"hits"`
	Misses    int64  `json:"misses"`
	Evictions int64  `json:"evictions"`
	Epoch     uint64 `json:"epoch"`
}

// tenantCache maps lookup keys to registry rows. Every invalidation bumps the
// epoch; a put carrying an older epoch is discarded so a lookup that started
// before the invalidation cannot reinstate what it read.
//
// The cache holds at most maxEntries keys. A put into a full cache evicts the
// oldest negative entry, or the oldest positive one when there are none.
// Expired entries are dropped by sweep.
type tenantCache struct {
	mu         sync.RWMutex
	entries    map[string]*cacheEntry
	byTenant   map[string]map[string]struct{}
	negatives  *list.List
	epoch      uint64
	maxEntries int

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

func newTenantCache(maxEntries int) *tenantCache {
	return &tenantCache{
		entries:    make(map[string]*cacheEntry),
		byTenant:   make(map[string]map[string]struct{}),
		negatives:  list.New(),
		maxEntries: maxEntries,
	}
}

func (c *tenantCache) get(key string) (*cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return entry, ok
}

func (c *tenantCache) recordHit() { c.hits.Add(1) }
func (c *tenantCache) recordMiss() { c.misses.Add(1) }

func (c *tenantCache) currentEpoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// put stores entry under key unless an invalidation happened after epoch was
// read. It reports whether the entry was stored.
func (c *tenantCache) put(key string, entry *cacheEntry, epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		return false
	}

	if old, ok := c.entries[key]; ok {
		c.removeLocked(key, old)
	} else if len(c.entries) >= c.maxEntries {
		c.makeRoomLocked()
	}

	c.entries[key] = entry
	if entry.negative() {
		entry.elem = c.negatives.PushBack(key)
		return true
	}
	keys, ok := c.byTenant[entry.tenant.ID]
	if !ok {
		keys = make(map[string]struct{})
		c.byTenant[entry.tenant.ID] = keys
	}
	keys[key] = struct{}{}
	return true
}

// invalidateTenant drops every entry for tenantID and every negative entry.
// A negative entry may hide a tenant that just became active, so none survive.
func (c *tenantCache) invalidateTenant(tenantID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	dropped := 0
	for key := range c.byTenant[tenantID] {
		delete(c.entries, key)
		dropped++
	}
	delete(c.byTenant, tenantID)

	for e := c.negatives.Front(); e != nil; e = e.Next() {
		delete(c.entries, e.Value.(string))
		dropped++
	}
	c.negatives.Init()
	return dropped
}

// sweep drops every entry that expired at or before now.
func (c *tenantCache) sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			c.removeLocked(key, entry)
			dropped++
		}
	}
	return dropped
}

func (c *tenantCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.entries = make(map[string]*cacheEntry)
	c.byTenant = make(map[string]map[string]struct{})
	c.negatives.Init()
}

func (c *tenantCache) stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		Entries:   len(c.entries),
		Negatives: c.negatives.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Epoch:     c.epoch,
	}
}

// makeRoomLocked evicts one entry: the oldest negative entry if any, else
// the oldest positive one.
func (c *tenantCache) makeRoomLocked() {
	if e := c.negatives.Front(); e != nil {
		key := e.Value.(string)
		c.removeLocked(key, c.entries[key])
		c.evictions.Add(1)
		return
	}

	var (
		oldestKey string
		oldest    *cacheEntry
	)
	for key, entry := range c.entries {
		if oldest == nil || entry.storedAt.Before(oldest.storedAt) {
			oldestKey, oldest = key, entry
		}
	}
	if oldest != nil {
		c.removeLocked(oldestKey, oldest)
		c.evictions.Add(1)
	}
}

func (c *tenantCache) removeLocked(key string, entry *cacheEntry) {
	delete(c.entries, key)
	if entry.negative() {
		if entry.elem != nil {
			c.negatives.Remove(entry.elem)
			entry.elem = nil
		}
		return
	}
	c.unindexLocked(entry.tenant.ID, key)
}

func (c *tenantCache) unindexLocked(tenantID, key string) {
	keys := c.byTenant[tenantID]
	delete(keys, key)
	if len(keys) == 0 {
		delete(c.byTenant, tenantID)
	}
}
