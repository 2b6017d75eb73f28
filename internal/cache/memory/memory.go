// Package memory implements the in-process cache tier: bounded size,
// per-entry TTL, least-recently-used eviction.
package memory

import (
	"container/list"
	"sync"
	"time"

	"github.com/fisatech/datasheet-harvester/internal/harvester"
)

// Defaults applied when Config fields are zero.
const (
	DefaultCapacity = 1000
	DefaultTTL      = 5 * time.Minute
)

// Config sizes the memory tier.
type Config struct {
	Capacity int
	TTL      time.Duration
}

type entry struct {
	url       string
	attempt   *harvester.AttemptResult
	expiresAt time.Time
}

// Cache is a mutex-guarded LRU with TTL expiry. Multiple engine workers
// read and write it concurrently.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	clock    harvester.Clock
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
}

// Stats reports occupancy of the memory tier.
type Stats struct {
	Size        int     `json:"size"`
	Capacity    int     `json:"capacity"`
	Utilization float64 `json:"utilization"`
}

// New builds a Cache.
func New(cfg Config, clock harvester.Clock) *Cache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Cache{
		capacity: cfg.Capacity,
		ttl:      cfg.TTL,
		clock:    clock,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached attempt for url. A hit moves the entry to the
// most-recently-used position; an expired entry is purged and reported as
// a miss.
func (c *Cache) Get(url string) (*harvester.AttemptResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[url]
	if !ok {
		return nil, false
	}
	ent := elem.Value.(*entry)
	if !ent.expiresAt.After(c.clock.Now()) {
		c.removeLocked(elem)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return ent.attempt, true
}

// Put stores the attempt, overwriting any existing entry, and evicts from
// the least-recently-used end while over capacity.
func (c *Cache) Put(url string, attempt *harvester.AttemptResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(url, attempt, c.clock.Now().Add(c.ttl))
}

// PutUntil stores the attempt with an explicit expiry, capped at the
// tier's own TTL from now. A zero expiry falls back to the TTL. The
// tiered cache uses this so a promoted entry never outlives its
// persistent row.
func (c *Cache) PutUntil(url string, attempt *harvester.AttemptResult, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	limit := c.clock.Now().Add(c.ttl)
	if expiresAt.IsZero() || expiresAt.After(limit) {
		expiresAt = limit
	}
	c.putLocked(url, attempt, expiresAt)
}

func (c *Cache) putLocked(url string, attempt *harvester.AttemptResult, expiresAt time.Time) {
	if elem, ok := c.entries[url]; ok {
		c.removeLocked(elem)
	}

	ent := &entry{
		url:       url,
		attempt:   attempt,
		expiresAt: expiresAt,
	}
	c.entries[url] = c.order.PushFront(ent)

	for len(c.entries) > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats summarizes occupancy.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:        len(c.entries),
		Capacity:    c.capacity,
		Utilization: float64(len(c.entries)) / float64(c.capacity),
	}
}

func (c *Cache) removeLocked(elem *list.Element) {
	ent := elem.Value.(*entry)
	delete(c.entries, ent.url)
	c.order.Remove(elem)
}
