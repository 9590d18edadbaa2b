package stats

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/capadapt/capadapt/internal/adapter"
	"github.com/capadapt/capadapt/internal/cache"
	"github.com/capadapt/capadapt/pkg/health"
	"github.com/capadapt/capadapt/pkg/types"
)

// Thresholds applied by every statistics adapter.
const (
	UtilizationWarning = 0.95
	LowHitRateWarning  = 0.10
	MinLookups         = 100
)

// checkCounters grades the generic counters every cache exposes
func checkCounters(name string, s types.CacheStats) []health.Result {
	var results []health.Result
	if s.Capacity > 0 && s.Utilization >= UtilizationWarning {
		results = append(results, health.Result{
			Component: name,
			Severity:  health.SeverityWarning,
			Message:   fmt.Sprintf("cache is %.0f%% full", s.Utilization*100),
			Details:   map[string]interface{}{"size": s.Size, "capacity": s.Capacity},
		})
	}
	if lookups := s.Hits + s.Misses; lookups >= MinLookups && s.HitRate < LowHitRateWarning {
		results = append(results, health.Result{
			Component: name,
			Severity:  health.SeverityWarning,
			Message:   fmt.Sprintf("hit rate %.1f%% over %d lookups", s.HitRate*100, lookups),
		})
	}
	if len(results) == 0 {
		results = append(results, health.Result{
			Component: name,
			Severity:  health.SeverityOK,
			Message:   "cache operating normally",
		})
	}
	return results
}

// LRUStatistics reports on an in-memory LRU cache.
type LRUStatistics struct {
	cache *cache.LRUCache
}

func NewLRUStatistics(c *cache.LRUCache) *LRUStatistics {
	return &LRUStatistics{cache: c}
}

func (s *LRUStatistics) AdapterFamily() adapter.Family { return Family }

func (s *LRUStatistics) CheckHealth(ctx context.Context) []health.Result {
	return checkCounters(s.cache.Name(), s.cache.Stats())
}

func (s *LRUStatistics) Statistics(ctx context.Context) map[string]interface{} {
	m := s.cache.Stats().Map()
	m["eviction_policy"] = s.cache.Config().EvictionPolicy
	m["max_entries"] = s.cache.Config().MaxEntries
	return m
}

// WeightedLRUStatistics adds the weight distribution to the LRU report.
type WeightedLRUStatistics struct {
	*LRUStatistics
	cache *cache.WeightedLRUCache
}

func NewWeightedLRUStatistics(c *cache.WeightedLRUCache) *WeightedLRUStatistics {
	return &WeightedLRUStatistics{
		LRUStatistics: NewLRUStatistics(c.LRUCache),
		cache:         c,
	}
}

func (s *WeightedLRUStatistics) Statistics(ctx context.Context) map[string]interface{} {
	m := s.LRUStatistics.Statistics(ctx)
	m["average_weight"] = s.cache.AverageWeight()
	return m
}

// MultiLevelStatistics reports on the hierarchy and each of its levels.
type MultiLevelStatistics struct {
	cache *cache.MultiLevelCache
}

func NewMultiLevelStatistics(c *cache.MultiLevelCache) *MultiLevelStatistics {
	return &MultiLevelStatistics{cache: c}
}

func (s *MultiLevelStatistics) AdapterFamily() adapter.Family { return Family }

// CheckHealth grades the combined counters, then each level. A disabled level is a warning.
func (s *MultiLevelStatistics) CheckHealth(ctx context.Context) []health.Result {
	name := s.cache.Name()
	results := checkCounters(name, s.cache.Stats())

	for _, level := range s.cache.Levels() {
		component := name + "/" + level.Name
		if !level.Enabled {
			results = append(results, health.Result{
				Component: component,
				Severity:  health.SeverityWarning,
				Message:   "cache level disabled",
			})
			continue
		}
		for _, r := range checkCounters(component, level.Cache.Stats()) {
			if r.Severity != health.SeverityOK {
				results = append(results, r)
			}
		}
	}
	return results
}

// Statistics returns the combined counters plus per-level counters prefixed by level name.
func (s *MultiLevelStatistics) Statistics(ctx context.Context) map[string]interface{} {
	m := s.cache.Stats().Map()
	m["policy"] = s.cache.Policy()

	levels := s.cache.Levels()
	m["levels"] = len(levels)
	for _, level := range levels {
		if !level.Enabled {
			continue
		}
		prefix := strings.ToLower(level.Name) + "_"
		for k, v := range level.Cache.Stats().Map() {
			m[prefix+k] = v
		}
	}
	return m
}

// PersistentStatistics reports on a disk cache, including its directory.
type PersistentStatistics struct {
	cache *cache.PersistentCache
}

func NewPersistentStatistics(c *cache.PersistentCache) *PersistentStatistics {
	return &PersistentStatistics{cache: c}
}

func (s *PersistentStatistics) AdapterFamily() adapter.Family { return Family }

func (s *PersistentStatistics) CheckHealth(ctx context.Context) []health.Result {
	name := s.cache.Name()
	dir := s.cache.Directory()

	info, err := os.Stat(dir)
	switch {
	case err != nil:
		return []health.Result{{
			Component: name,
			Severity:  health.SeverityError,
			Message:   fmt.Sprintf("cache directory unavailable: %v", err),
			Details:   map[string]interface{}{"directory": dir},
		}}
	case !info.IsDir():
		return []health.Result{{
			Component: name,
			Severity:  health.SeverityError,
			Message:   "cache directory is not a directory",
			Details:   map[string]interface{}{"directory": dir},
		}}
	}

	return checkCounters(name, s.cache.Stats())
}

func (s *PersistentStatistics) Statistics(ctx context.Context) map[string]interface{} {
	m := s.cache.Stats().Map()
	m["directory"] = s.cache.Directory()
	m["compression"] = s.cache.Compressed()
	return m
}
