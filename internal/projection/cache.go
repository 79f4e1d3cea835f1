package projection

import (
	"sync"

	"github.com/jurlina/remote-sensing-2-hail-events/internal/domain"
)

// Cache memoises projected grids by geometry. A full grid is ~4 million
// inverse projections, so every product sharing a geometry reuses one Grid.
// Concurrent requests for the same geometry wait for a single build.
type Cache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[domain.GridGeometry]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   domain.GridGeometry
	ready chan struct{}
	grid  *Grid
	err   error
	prev  *entry
	next  *entry
}

// NewCache creates a cache holding at most maxEntries grids (minimum 1).
func NewCache(maxEntries int) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Cache{
		maxEntries: maxEntries,
		entries:    make(map[domain.GridGeometry]*entry),
	}
}

// Get returns the projected grid for geometry, building it on first use.
// hit is true when the grid was already built or being built by another caller.
// Failed builds are not kept so a corrected configuration can be retried.
// Invalid geometries, including any NaN field, never enter the cache: a NaN
// key is never equal to itself and could not be found again to evict.
func (c *Cache) Get(geometry domain.GridGeometry) (grid *Grid, hit bool, err error) {
	if err := geometry.Validate(); err != nil {
		return nil, false, err
	}
	c.mu.Lock()
	if e, ok := c.entries[geometry]; ok {
		c.moveToFront(e)
		c.mu.Unlock()
		<-e.ready
		return e.grid, true, e.err
	}
	e := &entry{key: geometry, ready: make(chan struct{})}
	c.entries[geometry] = e
	c.addToFront(e)
	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
	c.mu.Unlock()

	e.grid, e.err = build(geometry)
	close(e.ready)

	if e.err != nil {
		c.mu.Lock()
		if cur, ok := c.entries[geometry]; ok && cur == e {
			delete(c.entries, geometry)
			c.remove(e)
		}
		c.mu.Unlock()
	}
	return e.grid, false, e.err
}

// Invalidate drops the grid cached for geometry, if any.
func (c *Cache) Invalidate(geometry domain.GridGeometry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[geometry]; ok {
		delete(c.entries, geometry)
		c.remove(e)
	}
}

// Len returns the number of cached geometries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func build(geometry domain.GridGeometry) (*Grid, error) {
	p, err := NewProjector(geometry)
	if err != nil {
		return nil, err
	}
	return p.Grid()
}

func (c *Cache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *Cache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (c *Cache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
