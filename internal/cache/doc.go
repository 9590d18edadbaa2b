/*
Package cache provides the range caches whose capabilities are resolved through
the adapter registry.

Every cache in this package implements types.Cache and adapter.Adaptable. Each
instance owns an adapter.Cache, so asking a cache for a capability (statistics,
backup) resolves the adapter once per family and reuses it afterwards.

# Cache Kinds

	┌──────────────────────┐   ┌──────────────────────┐
	│      LRUCache        │   │   WeightedLRUCache   │
	│  memory, LRU order   │   │ embeds *LRUCache     │
	└──────────────────────┘   └──────────────────────┘
	┌──────────────────────┐   ┌──────────────────────┐
	│   PersistentCache    │   │   MultiLevelCache    │
	│ gzip files + index   │   │ L1 memory, L2 disk   │
	└──────────────────────┘   └──────────────────────┘
	┌──────────────────────┐
	│    DatabaseCache     │
	│ badger key-value     │
	└──────────────────────┘

WeightedLRUCache embeds *LRUCache but keeps its own adapter cache, so a
registration for *WeightedLRUCache wins over one for *LRUCache, and when none
exists the embedded LRU registration is found through the embedding.

# Usage

	lru := cache.NewLRUCache(&cache.CacheConfig{
		MaxSize:    64 * 1024 * 1024,
		MaxEntries: 10000,
		TTL:        5 * time.Minute,
	}, cache.WithName("hot"), cache.WithResolver(resolver))
	defer lru.Close()

	lru.Put("objects/a", 0, data)
	chunk := lru.Get("objects/a", 0, int64(len(data)))

	s, err := adapter.As[stats.CacheStatistics](lru)

Caches built without WithResolver use the process default installed with
adapter.Install.

# Keys

Entries are addressed by (key, offset, size). Delete removes every range whose
cache key starts with key.

# Snapshots

LRUCache, PersistentCache and MultiLevelCache implement Snapshotter. The
snapshot backup adapter is registered against that interface, so any cache that
can export its entries gets a backup without a dedicated registration.
DatabaseCache exports through badger's own backup stream instead.

# Thread Safety

All caches are safe for concurrent use. Close stops background cleanup and is
safe to call more than once.
*/
package cache
