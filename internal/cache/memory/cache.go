// Package memory is an in-process proposal cache for single-node runs and
// the CLI.
package memory

import (
	"context"
	"sync"
	"time"

	"energodoc/internal/port"
)

type entry struct {
	p         port.MappingProposal
	expiresAt time.Time
}

// Cache implements port.ProposalCache in memory.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

func New() *Cache {
	return &Cache{entries: make(map[string]entry), now: time.Now}
}

func (c *Cache) Get(_ context.Context, key string) (*port.MappingProposal, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	p := e.p
	p.Mapping = append([]port.ProposedCell(nil), e.p.Mapping...)
	return &p, true, nil
}

// Set stores a copy of p. A non-positive ttl never expires.
func (c *Cache) Set(_ context.Context, key string, p *port.MappingProposal, ttl time.Duration) error {
	e := entry{p: *p}
	e.p.Mapping = append([]port.ProposedCell(nil), p.Mapping...)
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
