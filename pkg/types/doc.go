/*
Package types provides the shared data structures and interfaces of capadapt.

Cache is the contract every cache backend implements: the in-memory LRU caches, the
multi-level cache, the on-disk persistent cache and the badger-backed database cache.
Caches are the adaptables of the system; statistics, health and backup adapters are
resolved for them through internal/adapter.

CacheStats is the common statistics snapshot. Refresh derives the hit rate and
utilization from the raw counters and Map flattens the snapshot into the mapping
reported by statistics adapters.
*/
package types
