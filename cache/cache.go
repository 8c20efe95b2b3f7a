// Package cache is the in-process tier: every event resolved from the network
// during the life of the process, keyed by id.
//
// There is no eviction. Entries live until Shutdown.
package cache

import (
	"sync"

	"xdao.co/nref/event"
)

type Cache struct {
	mu sync.RWMutex
	m  map[event.ID]event.Event
}

func New() *Cache {
	return &Cache{m: make(map[event.ID]event.Event)}
}

func (c *Cache) Get(id event.ID) (event.Event, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.m[id]
	return e, ok
}

// Put stores e under e.ID. The first copy stored for an id wins: ids are
// content addresses, so a later copy cannot legitimately differ.
func (c *Cache) Put(e event.Event) {
	if e.ID.IsZero() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.m[e.ID]; ok {
		return
	}
	c.m[e.ID] = e
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// Shutdown drops every entry. The cache stays usable afterwards.
func (c *Cache) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = make(map[event.ID]event.Event)
}
