package core

import (
	"sync"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/singleflight"

	"github.com/signalsfoundry/dishlink-simulator/model"
)

// DefaultTableCacheSize bounds how many distinct parameter sets a shared
// cache keeps.
const DefaultTableCacheSize = 16

// TableCache shares built radiation tables between PatternModels. Entries
// are keyed by the xxh3 hash of the parameter signature and confirmed
// against the full signature on hit. Concurrent builds of one signature
// run once.
type TableCache struct {
	mu       sync.Mutex
	entries  map[uint64]*radiationTable
	order    []uint64
	capacity int
	builds   int

	group singleflight.Group
}

// NewTableCache returns a cache holding up to capacity tables, evicting the
// oldest insert first. capacity <= 0 selects DefaultTableCacheSize.
func NewTableCache(capacity int) *TableCache {
	if capacity <= 0 {
		capacity = DefaultTableCacheSize
	}
	return &TableCache{
		entries:  make(map[uint64]*radiationTable, capacity),
		capacity: capacity,
	}
}

// Len returns the number of cached tables.
func (c *TableCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Builds returns how many tables the cache has computed.
func (c *TableCache) Builds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builds
}

func (c *TableCache) table(p model.PhysicalParameters) *radiationTable {
	sig := p.Signature()
	key := xxh3.HashString(sig)

	c.mu.Lock()
	if t, ok := c.entries[key]; ok && t.signature == sig {
		c.mu.Unlock()
		return t
	}
	c.mu.Unlock()

	v, _, _ := c.group.Do(sig, func() (any, error) {
		t := buildRadiationTable(p)
		c.store(key, t)
		return t, nil
	})
	return v.(*radiationTable)
}

func (c *TableCache) store(key uint64, t *radiationTable) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.builds++
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = t

	for len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}
