// File: internal/nsm/cache.go
// Author: natyamatsya
// License: Apache-2.0
//
// Process-local cache of named-region mappings. Some process-shared
// primitives (mutex, cond) require a single virtual address per
// process; this cache ensures every thread in this process that opens
// the same canonical name gets back the same mapping, with a local
// refcount governing the real unmap. Guarded by a single mutex; hold
// times are short (map lookup + refcount update).

package nsm

import "sync"

type cacheEntry struct {
	mapping  *regionMapping
	size     uint64
	owner    bool
	localRef int
}

type nsmCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

var processCache = &nsmCache{entries: make(map[string]*cacheEntry)}

type acquireResult struct {
	mapping *regionMapping
	size    uint64
	owner   bool
}

func (c *nsmCache) acquire(canonical string, size uint64, mode Mode) (acquireResult, error) {
	c.mu.Lock()
	if e, ok := c.entries[canonical]; ok {
		e.localRef++
		c.mu.Unlock()
		return acquireResult{mapping: e.mapping, size: e.size, owner: e.owner}, nil
	}
	c.mu.Unlock()

	mapping, actualSize, owner, err := platformAcquire(canonical, size, mode)
	if err != nil {
		return acquireResult{}, err
	}

	c.mu.Lock()
	// Another goroutine in this process may have raced us; prefer the
	// winner and release our redundant mapping.
	if e, ok := c.entries[canonical]; ok {
		e.localRef++
		result := acquireResult{mapping: e.mapping, size: e.size, owner: e.owner}
		c.mu.Unlock()
		_ = mapping.close()
		return result, nil
	}
	c.entries[canonical] = &cacheEntry{mapping: mapping, size: actualSize, owner: owner, localRef: 1}
	c.mu.Unlock()
	return acquireResult{mapping: mapping, size: actualSize, owner: owner}, nil
}

func (c *nsmCache) release(canonical string) error {
	c.mu.Lock()
	e, ok := c.entries[canonical]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	e.localRef--
	if e.localRef > 0 {
		c.mu.Unlock()
		return nil
	}
	delete(c.entries, canonical)
	c.mu.Unlock()
	return e.mapping.close()
}
