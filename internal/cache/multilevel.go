package cache

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/capadapt/capadapt/internal/adapter"
	"github.com/capadapt/capadapt/pkg/types"
)

// Write policies for MultiLevelCache
const (
	PolicyInclusive = "inclusive"
	PolicyExclusive = "exclusive"
)

// MultiLevelCache implements a multi-level cache hierarchy
type MultiLevelCache struct {
	mu      sync.RWMutex
	statsMu sync.Mutex
	levels  []CacheLevel
	config  *MultiLevelConfig
	stats   MultiLevelStats

	name     string
	logger   *slog.Logger
	adapters *adapter.Cache
}

// CacheLevel represents a single level in the cache hierarchy
type CacheLevel struct {
	Name     string
	Cache    types.Cache
	Priority int
	Enabled  bool
}

// MultiLevelConfig represents multi-level cache configuration
type MultiLevelConfig struct {
	L1Config *L1Config `yaml:"l1"`
	L2Config *L2Config `yaml:"l2"`
	Policy   string    `yaml:"policy"`
}

// L1Config represents L1 (memory) cache configuration
type L1Config struct {
	Enabled    bool          `yaml:"enabled"`
	Size       int64         `yaml:"size"`
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
}

// L2Config represents L2 (persistent) cache configuration
type L2Config struct {
	Enabled     bool          `yaml:"enabled"`
	Size        int64         `yaml:"size"`
	Directory   string        `yaml:"directory"`
	TTL         time.Duration `yaml:"ttl"`
	Compression bool          `yaml:"compression"`
}

// MultiLevelStats tracks multi-level cache statistics
type MultiLevelStats struct {
	TotalHits   uint64                      `json:"total_hits"`
	TotalMisses uint64                      `json:"total_misses"`
	LevelStats  map[string]types.CacheStats `json:"level_stats"`
	HitRatio    float64                     `json:"hit_ratio"`
}

// DefaultMultiLevelConfig returns a memory-only hierarchy
func DefaultMultiLevelConfig() *MultiLevelConfig {
	return &MultiLevelConfig{
		L1Config: &L1Config{
			Enabled:    true,
			Size:       256 * 1024 * 1024,
			MaxEntries: 100000,
			TTL:        5 * time.Minute,
		},
		L2Config: &L2Config{
			Enabled:     false,
			Size:        1024 * 1024 * 1024,
			TTL:         time.Hour,
			Compression: true,
		},
		Policy: PolicyInclusive,
	}
}

// NewMultiLevelCache creates a new multi-level cache. Options are forwarded to
// every level, which are named <name>/L1 and <name>/L2.
func NewMultiLevelCache(config *MultiLevelConfig, opts ...Option) (*MultiLevelCache, error) {
	if config == nil {
		config = DefaultMultiLevelConfig()
	}
	switch config.Policy {
	case "":
		config.Policy = PolicyInclusive
	case PolicyInclusive, PolicyExclusive:
	default:
		return nil, fmt.Errorf("unknown multi-level policy %q", config.Policy)
	}

	o := buildOptions("multilevel", opts)
	c := &MultiLevelCache{
		config: config,
		stats: MultiLevelStats{
			LevelStats: make(map[string]types.CacheStats),
		},
		name:   o.name,
		logger: o.logger,
	}
	c.adapters = adapter.NewCache(c, o.resolver)

	if err := c.initializeLevels(opts); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize cache levels: %w", err)
	}

	return c, nil
}

// Adapt returns the cache's adapter of family f
func (c *MultiLevelCache) Adapt(f adapter.Family) (adapter.Adapter, error) {
	return c.adapters.Adapt(f)
}

// Name returns the configured cache name
func (c *MultiLevelCache) Name() string {
	return c.name
}

// Policy returns the write policy
func (c *MultiLevelCache) Policy() string {
	return c.config.Policy
}

// Levels returns a copy of the level list, highest priority first
func (c *MultiLevelCache) Levels() []CacheLevel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]CacheLevel(nil), c.levels...)
}

// Get retrieves data from the cache hierarchy, promoting hits to higher levels
func (c *MultiLevelCache) Get(key string, offset, size int64) []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i, level := range c.levels {
		if !level.Enabled {
			continue
		}

		data := level.Cache.Get(key, offset, size)
		if data == nil {
			continue
		}

		c.recordHit()
		if i > 0 {
			c.promoteToHigherLevels(key, offset, data, i-1)
		}
		return data
	}

	c.recordMiss()
	return nil
}

// Put stores data according to the write policy
func (c *MultiLevelCache) Put(key string, offset int64, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.config.Policy == PolicyExclusive {
		for _, level := range c.levels {
			if level.Enabled {
				level.Cache.Put(key, offset, data)
				return
			}
		}
		return
	}

	for _, level := range c.levels {
		if level.Enabled {
			level.Cache.Put(key, offset, data)
		}
	}
}

// Delete removes data from all cache levels
func (c *MultiLevelCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, level := range c.levels {
		if level.Enabled {
			level.Cache.Delete(key)
		}
	}
}

// Evict frees targetSize bytes, starting at the fastest level
func (c *MultiLevelCache) Evict(targetSize int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := targetSize
	for _, level := range c.levels {
		if !level.Enabled || remaining <= 0 {
			continue
		}

		before := level.Cache.Size()
		if level.Cache.Evict(remaining) {
			return true
		}
		remaining -= before - level.Cache.Size()
	}

	return remaining <= 0
}

// Size returns total size across all cache levels
func (c *MultiLevelCache) Size() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := int64(0)
	for _, level := range c.levels {
		if level.Enabled {
			total += level.Cache.Size()
		}
	}
	return total
}

// Stats returns combined statistics. Hits and misses count lookups against the
// hierarchy as a whole, not against individual levels.
func (c *MultiLevelCache) Stats() types.CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	combined := types.CacheStats{
		Hits:   c.stats.TotalHits,
		Misses: c.stats.TotalMisses,
	}

	for _, level := range c.levels {
		if !level.Enabled {
			continue
		}

		levelStats := level.Cache.Stats()
		c.stats.LevelStats[level.Name] = levelStats

		combined.Evictions += levelStats.Evictions
		combined.Size += levelStats.Size
		combined.Capacity += levelStats.Capacity
		combined.Entries += levelStats.Entries
	}

	combined.Refresh()
	return combined
}

// GetLevelStats returns statistics for a specific cache level
func (c *MultiLevelCache) GetLevelStats(levelName string) (types.CacheStats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, level := range c.levels {
		if level.Name == levelName && level.Enabled {
			return level.Cache.Stats(), nil
		}
	}

	return types.CacheStats{}, fmt.Errorf("cache level %s not found or not enabled", levelName)
}

// Snapshot returns the entries of the first enabled level that can export them
func (c *MultiLevelCache) Snapshot() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, level := range c.levels {
		if !level.Enabled {
			continue
		}
		if s, ok := level.Cache.(Snapshotter); ok {
			return s.Snapshot()
		}
	}
	return nil
}

// Close closes every level
func (c *MultiLevelCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for _, level := range c.levels {
		closer, ok := level.Cache.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close level %s: %w", level.Name, err)
		}
	}
	return firstErr
}

func (c *MultiLevelCache) initializeLevels(opts []Option) error {
	c.levels = make([]CacheLevel, 0, 2)

	levelOpts := func(level string) []Option {
		return append(append([]Option(nil), opts...), WithName(c.name+"/"+level))
	}

	if l1 := c.config.L1Config; l1 != nil && l1.Enabled {
		l1Cache := NewLRUCache(&CacheConfig{
			MaxSize:    l1.Size,
			MaxEntries: l1.MaxEntries,
			TTL:        l1.TTL,
		}, levelOpts("L1")...)

		c.levels = append(c.levels, CacheLevel{
			Name:     "L1",
			Cache:    l1Cache,
			Priority: 1,
			Enabled:  true,
		})
	}

	if l2 := c.config.L2Config; l2 != nil && l2.Enabled {
		l2Cache, err := NewPersistentCache(&PersistentCacheConfig{
			Directory:   l2.Directory,
			MaxSize:     l2.Size,
			TTL:         l2.TTL,
			Compression: l2.Compression,
		}, levelOpts("L2")...)
		if err != nil {
			return fmt.Errorf("failed to create L2 cache: %w", err)
		}

		c.levels = append(c.levels, CacheLevel{
			Name:     "L2",
			Cache:    l2Cache,
			Priority: 2,
			Enabled:  true,
		})
	}

	if len(c.levels) == 0 {
		return fmt.Errorf("no cache level enabled")
	}

	c.logger.Debug("cache levels initialized", "levels", len(c.levels), "policy", c.config.Policy)
	return nil
}

func (c *MultiLevelCache) recordHit() {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats.TotalHits++
	c.updateHitRatioUnsafe()
}

func (c *MultiLevelCache) recordMiss() {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats.TotalMisses++
	c.updateHitRatioUnsafe()
}

func (c *MultiLevelCache) updateHitRatioUnsafe() {
	total := c.stats.TotalHits + c.stats.TotalMisses
	if total > 0 {
		c.stats.HitRatio = float64(c.stats.TotalHits) / float64(total)
	}
}

func (c *MultiLevelCache) promoteToHigherLevels(key string, offset int64, data []byte, toLevel int) {
	for i := 0; i <= toLevel && i < len(c.levels); i++ {
		if c.levels[i].Enabled {
			c.levels[i].Cache.Put(key, offset, data)
		}
	}
}

// EnableLevel enables a specific cache level
func (c *MultiLevelCache) EnableLevel(levelName string) error {
	return c.setLevelEnabled(levelName, true)
}

// DisableLevel disables a specific cache level
func (c *MultiLevelCache) DisableLevel(levelName string) error {
	return c.setLevelEnabled(levelName, false)
}

func (c *MultiLevelCache) setLevelEnabled(levelName string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.levels {
		if c.levels[i].Name == levelName {
			c.levels[i].Enabled = enabled
			return nil
		}
	}
	return fmt.Errorf("cache level %s not found", levelName)
}

// ClearLevel clears a specific cache level
func (c *MultiLevelCache) ClearLevel(levelName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, level := range c.levels {
		if level.Name == levelName && level.Enabled {
			if clearer, ok := level.Cache.(CacheClearer); ok {
				clearer.Clear()
				return nil
			}
			return fmt.Errorf("cache level %s does not support clearing", levelName)
		}
	}

	return fmt.Errorf("cache level %s not found or not enabled", levelName)
}

// CacheClearer interface for caches that support clearing
type CacheClearer interface {
	Clear()
}
