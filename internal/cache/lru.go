package cache

import (
	"container/list"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/capadapt/capadapt/internal/adapter"
	"github.com/capadapt/capadapt/pkg/types"
)

// LRUCache implements a thread-safe in-memory LRU cache
type LRUCache struct {
	mu          sync.RWMutex
	capacity    int64
	currentSize int64
	items       map[string]*cacheItem
	evictList   *list.List

	config *CacheConfig
	stats  types.CacheStats

	name     string
	logger   *slog.Logger
	adapters *adapter.Cache

	stopCh    chan struct{}
	closeOnce sync.Once
}

// CacheConfig represents in-memory cache configuration
type CacheConfig struct {
	MaxSize         int64         `yaml:"max_size"`
	MaxEntries      int           `yaml:"max_entries"`
	TTL             time.Duration `yaml:"ttl"`
	EvictionPolicy  string        `yaml:"eviction_policy"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultCacheConfig returns the in-memory cache defaults
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		MaxSize:         256 * 1024 * 1024,
		MaxEntries:      100000,
		TTL:             5 * time.Minute,
		EvictionPolicy:  "lru",
		CleanupInterval: time.Minute,
	}
}

type cacheItem struct {
	source      string
	offset      int64
	size        int64
	data        []byte
	timestamp   time.Time
	accessTime  time.Time
	accessCount int64
	weight      float64
	element     *list.Element
}

// NewLRUCache creates a new LRU cache. A nil config uses DefaultCacheConfig.
func NewLRUCache(config *CacheConfig, opts ...Option) *LRUCache {
	if config == nil {
		config = DefaultCacheConfig()
	}
	if config.EvictionPolicy == "" {
		config.EvictionPolicy = "lru"
	}
	o := buildOptions("lru", opts)

	c := &LRUCache{
		capacity:  config.MaxSize,
		items:     make(map[string]*cacheItem),
		evictList: list.New(),
		config:    config,
		stats:     types.CacheStats{Capacity: config.MaxSize},
		name:      o.name,
		logger:    o.logger,
		stopCh:    make(chan struct{}),
	}
	c.adapters = adapter.NewCache(c, o.resolver)

	go c.cleanupExpired()

	return c
}

// Adapt returns the cache's adapter of family f
func (c *LRUCache) Adapt(f adapter.Family) (adapter.Adapter, error) {
	return c.adapters.Adapt(f)
}

// Name returns the configured cache name
func (c *LRUCache) Name() string {
	return c.name
}

// Config returns a copy of the cache configuration
func (c *LRUCache) Config() CacheConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.config
}

// Get retrieves data from the cache
func (c *LRUCache) Get(key string, offset, size int64) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	cacheKey := makeCacheKey(key, offset, size)
	item, exists := c.items[cacheKey]
	if !exists {
		c.stats.Misses++
		return nil
	}

	if c.isExpired(item) {
		c.removeItem(cacheKey)
		c.stats.Misses++
		return nil
	}

	item.accessTime = time.Now()
	item.accessCount++
	item.weight = calculateWeight(item)
	c.evictList.MoveToFront(item.element)
	c.stats.Hits++

	result := make([]byte, len(item.data))
	copy(result, item.data)
	return result
}

// Put stores data in the cache
func (c *LRUCache) Put(key string, offset int64, data []byte) {
	if len(data) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	size := int64(len(data))
	cacheKey := makeCacheKey(key, offset, size)

	if item, exists := c.items[cacheKey]; exists {
		c.currentSize -= item.size
		item.data = append(item.data[:0:0], data...)
		item.size = size
		item.timestamp = now
		item.accessTime = now
		item.accessCount++
		item.weight = calculateWeight(item)
		c.currentSize += size
		c.evictList.MoveToFront(item.element)
		return
	}

	item := &cacheItem{
		source:      key,
		offset:      offset,
		size:        size,
		data:        append([]byte(nil), data...),
		timestamp:   now,
		accessTime:  now,
		accessCount: 1,
	}
	item.weight = calculateWeight(item)
	item.element = c.evictList.PushFront(cacheKey)

	c.items[cacheKey] = item
	c.currentSize += size

	c.evictIfNeeded()
}

// Delete removes every cached range of key
func (c *LRUCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for cacheKey := range c.items {
		if keyMatches(cacheKey, key) {
			c.removeItem(cacheKey)
		}
	}
}

// Evict frees at least targetSize bytes in eviction policy order
func (c *LRUCache) Evict(targetSize int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	freed := int64(0)
	for freed < targetSize && c.evictList.Len() > 0 {
		freed += c.evictOne()
	}
	return freed >= targetSize
}

// Size returns the current cache size
func (c *LRUCache) Size() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentSize
}

// Len returns the number of cached ranges
func (c *LRUCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns cache statistics
func (c *LRUCache) Stats() types.CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.Size = c.currentSize
	stats.Capacity = c.capacity
	stats.Entries = len(c.items)
	stats.Refresh()
	return stats
}

// Snapshot copies every live entry, most recently used first
func (c *LRUCache) Snapshot() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]Entry, 0, len(c.items))
	for e := c.evictList.Front(); e != nil; e = e.Next() {
		item := c.items[e.Value.(string)]
		if item == nil || c.isExpired(item) {
			continue
		}
		entries = append(entries, Entry{
			Key:       item.source,
			Offset:    item.offset,
			Data:      append([]byte(nil), item.data...),
			Timestamp: item.timestamp,
		})
	}
	return entries
}

// Clear removes all items from the cache
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Evictions += uint64(len(c.items))
	c.items = make(map[string]*cacheItem)
	c.evictList.Init()
	c.currentSize = 0
}

// Resize changes the cache capacity, evicting as needed
func (c *LRUCache) Resize(newCapacity int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.capacity = newCapacity
	c.config.MaxSize = newCapacity
	c.evictIfNeeded()
}

// Close stops the background cleanup. It is safe to call more than once.
func (c *LRUCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopCh)
	})
	return nil
}

func (c *LRUCache) isExpired(item *cacheItem) bool {
	if c.config.TTL == 0 {
		return false
	}
	return time.Since(item.timestamp) > c.config.TTL
}

// calculateWeight favours recent, frequent and small items
func calculateWeight(item *cacheItem) float64 {
	recency := 1.0 / (1.0 + time.Since(item.accessTime).Hours())
	frequency := float64(item.accessCount)
	size := 1.0 / (1.0 + float64(item.size)/(1024*1024))
	return recency * frequency * size
}

func (c *LRUCache) removeItem(key string) {
	item, exists := c.items[key]
	if !exists {
		return
	}
	if item.element != nil {
		c.evictList.Remove(item.element)
	}
	delete(c.items, key)
	c.currentSize -= item.size
	c.stats.Evictions++
}

func (c *LRUCache) evictIfNeeded() {
	for c.capacity > 0 && c.currentSize > c.capacity && c.evictList.Len() > 0 {
		c.evictOne()
	}
	if limit := c.config.MaxEntries; limit > 0 {
		for len(c.items) > limit && c.evictList.Len() > 0 {
			c.evictOne()
		}
	}
}

// evictOne removes one item according to the eviction policy and returns its size
func (c *LRUCache) evictOne() int64 {
	if c.config.EvictionPolicy == "weighted_lru" {
		return c.evictLightest()
	}
	return c.evictOldest()
}

// evictLightest removes the item with the lowest weight, oldest first on ties. The
// most recently used item is spared while others remain.
func (c *LRUCache) evictLightest() int64 {
	var victim *list.Element
	for e := c.evictList.Back(); e != nil; e = e.Prev() {
		if e == c.evictList.Front() && victim != nil {
			break
		}
		item := c.items[e.Value.(string)]
		if item == nil {
			continue
		}
		if victim == nil || item.weight < c.items[victim.Value.(string)].weight {
			victim = e
		}
	}
	if victim == nil {
		return c.evictOldest()
	}
	key := victim.Value.(string)
	size := c.items[key].size
	c.removeItem(key)
	return size
}

func (c *LRUCache) evictOldest() int64 {
	element := c.evictList.Back()
	if element == nil {
		return 0
	}
	key := element.Value.(string)
	item := c.items[key]
	if item == nil {
		c.evictList.Remove(element)
		return 0
	}
	c.removeItem(key)
	return item.size
}

func (c *LRUCache) cleanupExpired() {
	interval := c.config.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			expired := 0
			for key, item := range c.items {
				if c.isExpired(item) {
					c.removeItem(key)
					expired++
				}
			}
			c.mu.Unlock()
			if expired > 0 {
				c.logger.Debug("expired entries removed", "count", expired)
			}
		}
	}
}

// WeightedLRUCache evicts the item with the lowest weight, combining frequency,
// recency and size, instead of the least recently used one
type WeightedLRUCache struct {
	*LRUCache
	adapters *adapter.Cache
}

// NewWeightedLRUCache creates a new weighted LRU cache
func NewWeightedLRUCache(config *CacheConfig, opts ...Option) *WeightedLRUCache {
	if config == nil {
		config = DefaultCacheConfig()
	}
	config.EvictionPolicy = "weighted_lru"

	o := buildOptions("weighted-lru", opts)
	inner := NewLRUCache(config, append([]Option{WithName(o.name)}, opts...)...)

	w := &WeightedLRUCache{LRUCache: inner}
	w.adapters = adapter.NewCache(w, o.resolver)
	return w
}

// Adapt returns the weighted cache's own adapter of family f
func (c *WeightedLRUCache) Adapt(f adapter.Family) (adapter.Adapter, error) {
	return c.adapters.Adapt(f)
}

// AverageWeight returns the mean eviction weight of live items
func (c *WeightedLRUCache) AverageWeight() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.items) == 0 {
		return 0
	}
	total := 0.0
	for _, item := range c.items {
		total += item.weight
	}
	return total / float64(len(c.items))
}

// EvictByWeight frees at least targetSize bytes, lowest weight first
func (c *WeightedLRUCache) EvictByWeight(targetSize int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.items) == 0 {
		return false
	}

	keys := make([]string, 0, len(c.items))
	for key := range c.items {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.items[keys[i]].weight < c.items[keys[j]].weight
	})

	freed := int64(0)
	for _, key := range keys {
		if freed >= targetSize {
			break
		}
		freed += c.items[key].size
		c.removeItem(key)
	}
	return freed >= targetSize
}
