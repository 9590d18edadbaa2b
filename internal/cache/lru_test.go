package cache

import (
	"sync"
	"testing"
	"time"
)

func newTestLRU(t *testing.T, config *CacheConfig, opts ...Option) *LRUCache {
	t.Helper()
	c := NewLRUCache(config, opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// TestNewLRUCache tests cache creation with various configurations
func TestNewLRUCache(t *testing.T) {
	tests := []struct {
		name   string
		config *CacheConfig
		opts   []Option
		verify func(t *testing.T, cache *LRUCache)
	}{
		{
			name:   "nil config uses defaults",
			config: nil,
			verify: func(t *testing.T, cache *LRUCache) {
				if cache.capacity != 256*1024*1024 {
					t.Errorf("expected default capacity 256MB, got %d", cache.capacity)
				}
				if cache.config.TTL != 5*time.Minute {
					t.Errorf("expected default TTL 5min, got %v", cache.config.TTL)
				}
				if cache.config.EvictionPolicy != "lru" {
					t.Errorf("expected default policy lru, got %s", cache.config.EvictionPolicy)
				}
				if cache.Name() != "lru" {
					t.Errorf("expected default name lru, got %s", cache.Name())
				}
			},
		},
		{
			name: "custom config applied",
			config: &CacheConfig{
				MaxSize:    1024 * 1024,
				MaxEntries: 100,
				TTL:        time.Minute,
			},
			opts: []Option{WithName("hot")},
			verify: func(t *testing.T, cache *LRUCache) {
				if cache.capacity != 1024*1024 {
					t.Errorf("expected capacity 1MB, got %d", cache.capacity)
				}
				if cache.config.MaxEntries != 100 {
					t.Errorf("expected max entries 100, got %d", cache.config.MaxEntries)
				}
				if cache.config.EvictionPolicy != "lru" {
					t.Errorf("expected empty policy to default to lru, got %s", cache.config.EvictionPolicy)
				}
				if cache.Name() != "hot" {
					t.Errorf("expected name hot, got %s", cache.Name())
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := newTestLRU(t, tt.config, tt.opts...)
			if cache.items == nil {
				t.Error("cache items map not initialized")
			}
			if cache.evictList == nil {
				t.Error("cache evict list not initialized")
			}
			if cache.adapters == nil {
				t.Error("adapter cache not initialized")
			}
			tt.verify(t, cache)
		})
	}
}

// TestLRUCache_PutGet tests basic Put and Get operations
func TestLRUCache_PutGet(t *testing.T) {
	cache := newTestLRU(t, &CacheConfig{
		MaxSize:    1024 * 1024,
		MaxEntries: 100,
		TTL:        time.Hour,
	})

	data := []byte("hello world")
	cache.Put("test-object", 0, data)

	retrieved := cache.Get("test-object", 0, int64(len(data)))
	if string(retrieved) != string(data) {
		t.Errorf("expected %q, got %q", data, retrieved)
	}

	if cache.Get("missing", 0, 4) != nil {
		t.Error("expected nil for missing key")
	}

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %d/%d", stats.Hits, stats.Misses)
	}
}

// TestLRUCache_PutEmpty tests that empty data is ignored
func TestLRUCache_PutEmpty(t *testing.T) {
	cache := newTestLRU(t, &CacheConfig{MaxSize: 1024 * 1024})

	cache.Put("test", 0, []byte{})
	cache.Put("test", 0, nil)

	if cache.Len() != 0 {
		t.Error("expected empty cache after putting empty data")
	}
}

// TestLRUCache_UpdateExisting tests updating an existing cache entry
func TestLRUCache_UpdateExisting(t *testing.T) {
	cache := newTestLRU(t, &CacheConfig{MaxSize: 1024 * 1024, TTL: time.Hour})

	cache.Put("test", 0, []byte("first"))
	cache.Put("test", 0, []byte("again"))

	if got := cache.Get("test", 0, 5); string(got) != "again" {
		t.Errorf("expected %q, got %q", "again", got)
	}
	if cache.Len() != 1 {
		t.Errorf("expected 1 item in cache, got %d", cache.Len())
	}
	if cache.Size() != 5 {
		t.Errorf("expected size 5, got %d", cache.Size())
	}
}

// TestLRUCache_Eviction tests LRU eviction by entry count
func TestLRUCache_Eviction(t *testing.T) {
	cache := newTestLRU(t, &CacheConfig{
		MaxSize:    100,
		MaxEntries: 3,
		TTL:        time.Hour,
	})

	cache.Put("key1", 0, []byte("data1"))
	cache.Put("key2", 0, []byte("data2"))
	cache.Put("key3", 0, []byte("data3"))

	// key1 becomes most recently used, so key2 is the victim
	cache.Get("key1", 0, 5)
	cache.Put("key4", 0, []byte("data4"))

	if cache.Len() != 3 {
		t.Errorf("expected 3 items after eviction, got %d", cache.Len())
	}
	if cache.Get("key2", 0, 5) != nil {
		t.Error("key2 should have been evicted")
	}
	for _, key := range []string{"key1", "key3", "key4"} {
		if cache.Get(key, 0, 5) == nil {
			t.Errorf("%s should still exist", key)
		}
	}
}

// TestLRUCache_EvictionBySize tests eviction based on size limit
func TestLRUCache_EvictionBySize(t *testing.T) {
	cache := newTestLRU(t, &CacheConfig{
		MaxSize:    50,
		MaxEntries: 100,
		TTL:        time.Hour,
	})

	cache.Put("key1", 0, make([]byte, 20))
	cache.Put("key2", 0, make([]byte, 20))
	if cache.Size() != 40 {
		t.Errorf("expected size 40, got %d", cache.Size())
	}

	cache.Put("key3", 0, make([]byte, 20))

	if cache.Size() > 50 {
		t.Errorf("cache size %d exceeds capacity 50", cache.Size())
	}
	if cache.Get("key1", 0, 20) != nil {
		t.Error("key1 should have been evicted")
	}
}

// TestLRUCache_TTLExpiration tests TTL-based expiration
func TestLRUCache_TTLExpiration(t *testing.T) {
	cache := newTestLRU(t, &CacheConfig{
		MaxSize: 1024 * 1024,
		TTL:     100 * time.Millisecond,
	})

	cache.Put("test", 0, []byte("data"))
	if cache.Get("test", 0, 4) == nil {
		t.Error("item should exist immediately after Put")
	}

	time.Sleep(150 * time.Millisecond)

	if cache.Get("test", 0, 4) != nil {
		t.Error("item should have expired")
	}
	if stats := cache.Stats(); stats.Misses != 1 {
		t.Errorf("expected 1 miss from expired item, got %d", stats.Misses)
	}
	if len(cache.Snapshot()) != 0 {
		t.Error("expired items should not be snapshotted")
	}
}

// TestLRUCache_Delete tests that Delete removes every range of a key
func TestLRUCache_Delete(t *testing.T) {
	cache := newTestLRU(t, &CacheConfig{MaxSize: 1024 * 1024, TTL: time.Hour})

	cache.Put("user:123", 0, []byte("data1"))
	cache.Put("user:123", 100, []byte("data2"))
	cache.Put("user:456", 0, []byte("data3"))

	cache.Delete("user:123")

	if cache.Len() != 1 {
		t.Errorf("expected 1 item after delete, got %d", cache.Len())
	}
	if cache.Get("user:456", 0, 5) == nil {
		t.Error("user:456 should still exist")
	}
}

// TestLRUCache_Clear tests Clear operation
func TestLRUCache_Clear(t *testing.T) {
	cache := newTestLRU(t, &CacheConfig{MaxSize: 1024 * 1024, TTL: time.Hour})

	for i := 0; i < 10; i++ {
		cache.Put("key", int64(i*100), []byte("data"))
	}
	cache.Clear()

	if cache.Len() != 0 {
		t.Errorf("expected 0 items after clear, got %d", cache.Len())
	}
	if cache.Size() != 0 {
		t.Errorf("expected size 0 after clear, got %d", cache.Size())
	}
	if stats := cache.Stats(); stats.Evictions != 10 {
		t.Errorf("expected 10 evictions, got %d", stats.Evictions)
	}
}

// TestLRUCache_ConcurrentAccess tests thread-safety
func TestLRUCache_ConcurrentAccess(t *testing.T) {
	cache := newTestLRU(t, &CacheConfig{
		MaxSize:    10 * 1024 * 1024,
		MaxEntries: 1000,
		TTL:        time.Hour,
	})

	var wg sync.WaitGroup
	numGoroutines := 50
	numOpsPerGoroutine := 100

	wg.Add(numGoroutines * 2)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOpsPerGoroutine; j++ {
				cache.Put("key", int64(id*numOpsPerGoroutine+j), []byte("data"))
			}
		}(i)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOpsPerGoroutine; j++ {
				cache.Get("key", int64(id*numOpsPerGoroutine+j), 4)
				_ = cache.Stats()
			}
		}(i)
	}
	wg.Wait()

	if cache.Len() > 1000 {
		t.Errorf("entry limit exceeded: %d", cache.Len())
	}
}

// TestLRUCache_Stats tests statistics tracking
func TestLRUCache_Stats(t *testing.T) {
	cache := newTestLRU(t, &CacheConfig{
		MaxSize:    1024,
		MaxEntries: 10,
		TTL:        time.Hour,
	})

	stats := cache.Stats()
	if stats.Hits != 0 || stats.Misses != 0 {
		t.Error("expected zero initial stats")
	}

	cache.Get("nonexistent", 0, 4)
	cache.Put("key1", 0, []byte("data"))
	cache.Get("key1", 0, 4)

	stats = cache.Stats()
	if stats.HitRate != 0.5 {
		t.Errorf("expected hit rate 0.5, got %f", stats.HitRate)
	}
	if stats.Size != 4 || stats.Capacity != 1024 || stats.Entries != 1 {
		t.Errorf("unexpected size/capacity/entries: %d/%d/%d", stats.Size, stats.Capacity, stats.Entries)
	}
	if expected := float64(4) / float64(1024); stats.Utilization != expected {
		t.Errorf("expected utilization %f, got %f", expected, stats.Utilization)
	}
}

// TestLRUCache_Resize tests cache resize operation
func TestLRUCache_Resize(t *testing.T) {
	cache := newTestLRU(t, &CacheConfig{
		MaxSize:    1000,
		MaxEntries: 100,
		TTL:        time.Hour,
	})

	for i := 0; i < 5; i++ {
		cache.Put("key", int64(i*100), make([]byte, 100))
	}
	cache.Resize(300)

	if cache.Config().MaxSize != 300 {
		t.Errorf("expected capacity 300, got %d", cache.Config().MaxSize)
	}
	if cache.Size() > 300 {
		t.Errorf("size %d exceeds new capacity 300", cache.Size())
	}
}

// TestLRUCache_Evict tests manual eviction
func TestLRUCache_Evict(t *testing.T) {
	cache := newTestLRU(t, &CacheConfig{
		MaxSize:    1024,
		MaxEntries: 100,
		TTL:        time.Hour,
	})

	for i := 0; i < 5; i++ {
		cache.Put("key", int64(i*100), make([]byte, 100))
	}

	if !cache.Evict(200) {
		t.Error("eviction should succeed")
	}
	if cache.Size() != 300 {
		t.Errorf("expected size 300 after evicting 200 bytes, got %d", cache.Size())
	}
	if cache.Evict(10000) {
		t.Error("evicting more than the cache holds should report failure")
	}
	if cache.Size() != 0 {
		t.Errorf("expected empty cache, got %d", cache.Size())
	}
}

// TestLRUCache_Snapshot tests that snapshots are ordered and isolated
func TestLRUCache_Snapshot(t *testing.T) {
	cache := newTestLRU(t, &CacheConfig{MaxSize: 1024, TTL: time.Hour})

	cache.Put("a", 0, []byte("one"))
	cache.Put("b", 10, []byte("two"))
	cache.Get("a", 0, 3)

	entries := cache.Snapshot()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Key != "a" || entries[1].Key != "b" || entries[1].Offset != 10 {
		t.Errorf("unexpected snapshot order: %+v", entries)
	}

	entries[0].Data[0] = 'X'
	if got := cache.Get("a", 0, 3); string(got) != "one" {
		t.Error("snapshot data should be a copy")
	}
}

// TestLRUCache_DataIsolation tests that returned data is a copy
func TestLRUCache_DataIsolation(t *testing.T) {
	cache := newTestLRU(t, &CacheConfig{MaxSize: 1024, TTL: time.Hour})

	original := []byte("original data")
	cache.Put("key", 0, original)
	original[0] = 'Y'

	retrieved := cache.Get("key", 0, int64(len(original)))
	if retrieved == nil {
		t.Fatal("Get returned nil")
	}
	if retrieved[0] != 'o' {
		t.Error("cache should copy data on Put")
	}

	retrieved[0] = 'X'
	if again := cache.Get("key", 0, int64(len(original))); again[0] != 'o' {
		t.Error("cached data was modified - should be isolated")
	}
}

// TestLRUCache_Close tests that Close is idempotent
func TestLRUCache_Close(t *testing.T) {
	cache := NewLRUCache(nil)
	if err := cache.Close(); err != nil {
		t.Errorf("first close: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

// TestWeightedLRUCache_Creation tests weighted LRU cache creation
func TestWeightedLRUCache_Creation(t *testing.T) {
	cache := NewWeightedLRUCache(&CacheConfig{MaxSize: 1024 * 1024})
	t.Cleanup(func() { _ = cache.Close() })

	if cache.Config().EvictionPolicy != "weighted_lru" {
		t.Errorf("expected eviction policy weighted_lru, got %s", cache.Config().EvictionPolicy)
	}
	if cache.Name() != "weighted-lru" {
		t.Errorf("expected default name weighted-lru, got %s", cache.Name())
	}
	if cache.AverageWeight() != 0 {
		t.Error("expected zero average weight for empty cache")
	}
}

// TestWeightedLRUCache_EvictByWeight tests weight-based eviction
func TestWeightedLRUCache_EvictByWeight(t *testing.T) {
	cache := NewWeightedLRUCache(&CacheConfig{
		MaxSize:    1024,
		MaxEntries: 100,
		TTL:        time.Hour,
	})
	t.Cleanup(func() { _ = cache.Close() })

	cache.Put("hot", 0, make([]byte, 100))
	cache.Put("cold", 0, make([]byte, 100))

	for i := 0; i < 10; i++ {
		cache.Get("hot", 0, 100)
	}
	if cache.AverageWeight() <= 0 {
		t.Error("expected positive average weight")
	}

	if !cache.EvictByWeight(100) {
		t.Error("weight-based eviction should succeed")
	}
	if cache.Get("cold", 0, 100) != nil {
		t.Error("cold item should have been evicted")
	}
	if cache.Get("hot", 0, 100) == nil {
		t.Error("hot item should still exist")
	}
}

// TestWeightedLRUCache_PutEvictsLightest tests that overflow evicts by weight, not recency
func TestWeightedLRUCache_PutEvictsLightest(t *testing.T) {
	cache := NewWeightedLRUCache(&CacheConfig{MaxSize: 300, TTL: time.Hour})
	t.Cleanup(func() { _ = cache.Close() })

	cache.Put("hot", 0, make([]byte, 100))
	cache.Put("cold", 0, make([]byte, 100))
	for i := 0; i < 10; i++ {
		cache.Get("hot", 0, 100)
	}
	// cold becomes the most recently used, hot the least
	cache.Get("cold", 0, 100)

	cache.Put("new", 0, make([]byte, 200))

	if cache.Size() != 300 {
		t.Errorf("expected size 300, got %d", cache.Size())
	}
	if cache.Get("hot", 0, 100) == nil {
		t.Error("heaviest item should survive even though it is least recently used")
	}
	if cache.Get("cold", 0, 100) != nil {
		t.Error("lightest older item should have been evicted")
	}
	if cache.Get("new", 0, 200) == nil {
		t.Error("newly inserted item should not be evicted by its own insert")
	}
}

// TestLRUCache_PutEvictsOldest tests that the plain policy still evicts by recency
func TestLRUCache_PutEvictsOldest(t *testing.T) {
	cache := NewLRUCache(&CacheConfig{MaxSize: 300, TTL: time.Hour})
	t.Cleanup(func() { _ = cache.Close() })

	cache.Put("hot", 0, make([]byte, 100))
	cache.Put("cold", 0, make([]byte, 100))
	for i := 0; i < 10; i++ {
		cache.Get("hot", 0, 100)
	}
	cache.Get("cold", 0, 100)

	cache.Put("new", 0, make([]byte, 200))

	if cache.Get("hot", 0, 100) != nil {
		t.Error("least recently used item should have been evicted")
	}
	if cache.Get("cold", 0, 100) == nil {
		t.Error("recently used item should survive")
	}
}
