/*
Package adapter resolves capability adapters for runtime objects and caches them per instance.

An adapter family is a Go interface describing one capability, such as reporting cache
statistics or writing a backup. An adaptable is any object that can be asked for an adapter
of a family. Each adapter is bound to exactly one adaptable and reads its state live.

# Architecture Role

	┌─────────────────────────────────────────────┐
	│      Consumers (stats, backup, health)      │
	└─────────────────────────────────────────────┘
	                      │ As[F](owner)
	┌─────────────────────────────────────────────┐
	│          Cache (one per adaptable)          │ ← memoizes, single flight per family
	└─────────────────────────────────────────────┘
	                      │ miss
	┌─────────────────────────────────────────────┐
	│     Resolver (lineage walk, projection)     │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│        Registry (sealed after startup)      │
	└─────────────────────────────────────────────┘

# Registration

Registrations are values built with Declare and DeclareFallback and handed to a Registry
during startup:

	reg := adapter.NewRegistry(adapter.WithLogger(logger))
	err := reg.Register(
		adapter.Declare[stats.CacheStatistics](stats.NewLRUStatistics),
		adapter.DeclareFallback[stats.CacheStatistics](stats.NewNullCacheStatistics),
	)
	err = reg.Seal()

Registering the same implementation twice for a (family, adaptable type) pair is a no-op.
A different implementation for an already registered pair fails with DUPLICATE_REGISTRATION.
After Seal every Register call fails with REGISTRY_SEALED, and Seal itself fails with
MISSING_FALLBACK if any family lacks a fallback.

# Resolution Order

For an owner of dynamic type T, candidates are tried from most to least specific:

 1. T itself.
 2. Exported embedded struct types of T, breadth first. Depth 1 fields come before
    depth 2 fields. The owner is projected to the embedded value before the adapter is built.
 3. Interface types registered for the family that T implements. An interface that
    implements another candidate interface is more specific than it.
 4. The family fallback.

Two different registrations matching at the same depth, or two unrelated interfaces that
are both most specific, fail with AMBIGUOUS_ADAPTER. No ordering is invented between them.

# Caching

Each adaptable composes a Cache and delegates its Adapt method to it:

	type LRUCache struct {
		adapters *adapter.Cache
	}

	func (c *LRUCache) Adapt(f adapter.Family) (adapter.Adapter, error) {
		return c.adapters.Adapt(f)
	}

Concurrent first calls for the same family run one resolution. Every later call returns
the same adapter value. Failed resolutions are not memoized.
*/
package adapter
