package adapter

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache memoizes the adapters of one owner, one per family. Entries live as long as
// the owner and are never evicted.
type Cache struct {
	owner    any
	resolver *Resolver

	mu       sync.RWMutex
	adapters map[Family]Adapter
	flight   singleflight.Group
}

// NewCache creates an empty cache for owner. A nil resolver means the process default
// installed with Install, looked up on each miss.
func NewCache(owner any, resolver *Resolver) *Cache {
	return &Cache{
		owner:    owner,
		resolver: resolver,
		adapters: make(map[Family]Adapter),
	}
}

// Owner returns the adaptable the cache belongs to.
func (c *Cache) Owner() any {
	return c.owner
}

// Get returns the cached adapter of f without resolving.
func (c *Cache) Get(f Family) (Adapter, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.adapters[f]
	return a, ok
}

// Set stores a under the family it reports, replacing any previous entry.
func (c *Cache) Set(a Adapter) {
	if a == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapters[a.AdapterFamily()] = a
}

// Len returns the number of cached adapters.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.adapters)
}

// Adapt returns the adapter of f, resolving it on the first call. Concurrent first
// calls share one resolution. Errors are returned to every waiting caller and are not
// cached.
func (c *Cache) Adapt(f Family) (Adapter, error) {
	if a, ok := c.Get(f); ok {
		return a, nil
	}
	if !f.valid() {
		return nil, invalidAdapterError(f, nil, "family must be a named interface type")
	}

	resolver := c.resolver
	if resolver == nil {
		resolver = Default()
	}
	if resolver == nil {
		return nil, notInitializedError("default resolver")
	}

	v, err, _ := c.flight.Do(f.key(), func() (interface{}, error) {
		// Double-check inside the flight; a previous flight may have stored it.
		if a, ok := c.Get(f); ok {
			return a, nil
		}
		a, err := resolver.Resolve(c.owner, f)
		if err != nil {
			return nil, err
		}
		c.Set(a)
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Adapter), nil
}
