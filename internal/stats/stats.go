// Package stats defines the CacheStatistics adapter family: per-cache health checks and
// statistics, resolved through the adapter registry.
package stats

import (
	"context"

	"github.com/capadapt/capadapt/internal/adapter"
	"github.com/capadapt/capadapt/pkg/health"
)

// NullCacheMessage is the single warning reported for caches without a statistics adapter.
const NullCacheMessage = "No shared memory cache configured. Statistics are unavailable for this cache."

// CacheStatistics reports the health and statistics of one cache.
type CacheStatistics interface {
	adapter.Adapter

	// CheckHealth inspects the cache and returns its findings. It never returns nil.
	CheckHealth(ctx context.Context) []health.Result

	// Statistics returns a flat snapshot of the cache counters. It never returns nil.
	Statistics(ctx context.Context) map[string]interface{}
}

// Family identifies CacheStatistics in the registry.
var Family = adapter.FamilyOf[CacheStatistics]()

// Declarations returns every CacheStatistics registration, fallback included.
func Declarations() []adapter.Registration {
	return []adapter.Registration{
		adapter.Declare[CacheStatistics](NewLRUStatistics),
		adapter.Declare[CacheStatistics](NewWeightedLRUStatistics),
		adapter.Declare[CacheStatistics](NewMultiLevelStatistics),
		adapter.Declare[CacheStatistics](NewPersistentStatistics),
		adapter.DeclareFallback[CacheStatistics](NewNullCacheStatistics),
	}
}

// NullCacheStatistics is the fallback for caches with no registered statistics.
type NullCacheStatistics struct {
	owner any
}

// NewNullCacheStatistics binds the fallback to owner.
func NewNullCacheStatistics(owner any) *NullCacheStatistics {
	return &NullCacheStatistics{owner: owner}
}

func (n *NullCacheStatistics) AdapterFamily() adapter.Family { return Family }

// CheckHealth returns exactly one warning.
func (n *NullCacheStatistics) CheckHealth(ctx context.Context) []health.Result {
	return []health.Result{{
		Component: componentName(n.owner),
		Severity:  health.SeverityWarning,
		Message:   NullCacheMessage,
	}}
}

// Statistics returns an empty map.
func (n *NullCacheStatistics) Statistics(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{}
}

type named interface {
	Name() string
}

func componentName(owner any) string {
	if n, ok := owner.(named); ok {
		return n.Name()
	}
	return "cache"
}
