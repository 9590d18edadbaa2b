package cache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestPersistent(t *testing.T, config *PersistentCacheConfig, opts ...Option) *PersistentCache {
	t.Helper()
	if config.Directory == "" {
		config.Directory = t.TempDir()
	}
	c, err := NewPersistentCache(config, opts...)
	if err != nil {
		t.Fatalf("NewPersistentCache failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// TestNewPersistentCache tests cache creation with various configurations
func TestNewPersistentCache(t *testing.T) {
	tests := []struct {
		name    string
		config  *PersistentCacheConfig
		wantErr bool
		verify  func(t *testing.T, cache *PersistentCache)
	}{
		{
			name:    "nil config is rejected",
			config:  nil,
			wantErr: true,
		},
		{
			name:    "missing directory is rejected",
			config:  &PersistentCacheConfig{MaxSize: 1024},
			wantErr: true,
		},
		{
			name: "custom config applied",
			config: &PersistentCacheConfig{
				Directory:       t.TempDir(),
				MaxSize:         1024 * 1024,
				TTL:             10 * time.Minute,
				IndexFile:       "test-index.json",
				CleanupInterval: 5 * time.Minute,
				SyncInterval:    30 * time.Second,
			},
			verify: func(t *testing.T, cache *PersistentCache) {
				if cache.maxSize != 1024*1024 {
					t.Errorf("expected max size 1MB, got %d", cache.maxSize)
				}
				if cache.Compressed() {
					t.Error("expected compression disabled")
				}
				if cache.config.IndexFile != "test-index.json" {
					t.Errorf("expected index file test-index.json, got %s", cache.config.IndexFile)
				}
			},
		},
		{
			name: "zero values get defaults",
			config: &PersistentCacheConfig{
				Directory: t.TempDir(),
				MaxSize:   1024 * 1024,
			},
			verify: func(t *testing.T, cache *PersistentCache) {
				if cache.config.IndexFile != "cache-index.json" {
					t.Errorf("expected default index file, got %s", cache.config.IndexFile)
				}
				if cache.config.CleanupInterval != 10*time.Minute {
					t.Errorf("expected default cleanup interval, got %v", cache.config.CleanupInterval)
				}
				if cache.config.SyncInterval != time.Minute {
					t.Errorf("expected default sync interval, got %v", cache.config.SyncInterval)
				}
				if cache.Name() != "persistent" {
					t.Errorf("expected default name persistent, got %s", cache.Name())
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, err := NewPersistentCache(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewPersistentCache() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			t.Cleanup(func() { _ = cache.Close() })
			if cache.Directory() != tt.config.Directory {
				t.Errorf("expected directory %s, got %s", tt.config.Directory, cache.Directory())
			}
			tt.verify(t, cache)
		})
	}
}

// TestPersistentCache_PutGet tests basic Put and Get operations
func TestPersistentCache_PutGet(t *testing.T) {
	for _, compression := range []bool{false, true} {
		compression := compression
		name := "plain"
		if compression {
			name = "gzip"
		}
		t.Run(name, func(t *testing.T) {
			cache := newTestPersistent(t, &PersistentCacheConfig{
				MaxSize:     10 * 1024 * 1024,
				TTL:         time.Hour,
				Compression: compression,
			})

			data := []byte("hello persistent world, hello persistent world")
			cache.Put("object", 64, data)

			if got := cache.Get("object", 64, int64(len(data))); string(got) != string(data) {
				t.Errorf("expected %q, got %q", data, got)
			}
			if cache.Get("object", 0, int64(len(data))) != nil {
				t.Error("expected miss for different offset")
			}
		})
	}
}

// TestPersistentCache_TTLExpiration tests TTL-based expiration
func TestPersistentCache_TTLExpiration(t *testing.T) {
	cache := newTestPersistent(t, &PersistentCacheConfig{
		MaxSize: 1024 * 1024,
		TTL:     100 * time.Millisecond,
	})

	cache.Put("test", 0, []byte("data"))
	time.Sleep(150 * time.Millisecond)

	if cache.Get("test", 0, 4) != nil {
		t.Error("item should have expired")
	}
	if cache.Size() != 0 {
		t.Errorf("expired item should be removed, size %d", cache.Size())
	}
}

// TestPersistentCache_Delete tests that Delete removes every range and its file
func TestPersistentCache_Delete(t *testing.T) {
	cache := newTestPersistent(t, &PersistentCacheConfig{MaxSize: 1024 * 1024, TTL: time.Hour})

	cache.Put("user:1", 0, []byte("data1"))
	cache.Put("user:1", 100, []byte("data2"))
	cache.Put("user:2", 0, []byte("data3"))

	item := cache.index[makeCacheKey("user:1", 0, 5)]
	cache.Delete("user:1")

	if len(cache.index) != 1 {
		t.Errorf("expected 1 item after delete, got %d", len(cache.index))
	}
	if _, err := os.Stat(item.FilePath); !os.IsNotExist(err) {
		t.Error("cache file should be removed")
	}
}

// TestPersistentCache_Eviction tests automatic eviction on Put
func TestPersistentCache_Eviction(t *testing.T) {
	cache := newTestPersistent(t, &PersistentCacheConfig{MaxSize: 250, TTL: time.Hour})

	for i := 0; i < 5; i++ {
		cache.Put("key", int64(i*100), make([]byte, 100))
		time.Sleep(2 * time.Millisecond)
	}

	if cache.Size() > 250 {
		t.Errorf("size %d exceeds capacity 250", cache.Size())
	}
	if cache.Get("key", 0, 100) != nil {
		t.Error("oldest entry should have been evicted")
	}
	if cache.Get("key", 400, 100) == nil {
		t.Error("newest entry should remain")
	}
}

// TestPersistentCache_EvictManual tests Evict ordering by access time
func TestPersistentCache_EvictManual(t *testing.T) {
	cache := newTestPersistent(t, &PersistentCacheConfig{MaxSize: 10 * 1024, TTL: time.Hour})

	cache.Put("a", 0, make([]byte, 100))
	time.Sleep(2 * time.Millisecond)
	cache.Put("b", 0, make([]byte, 100))
	time.Sleep(2 * time.Millisecond)
	cache.Get("a", 0, 100)

	if !cache.Evict(100) {
		t.Error("eviction should succeed")
	}
	if cache.Get("b", 0, 100) != nil {
		t.Error("least recently accessed entry should be evicted")
	}
	if cache.Get("a", 0, 100) == nil {
		t.Error("recently accessed entry should remain")
	}
}

// TestPersistentCache_Clear tests Clear operation
func TestPersistentCache_Clear(t *testing.T) {
	cache := newTestPersistent(t, &PersistentCacheConfig{MaxSize: 1024 * 1024, TTL: time.Hour})

	for i := 0; i < 5; i++ {
		cache.Put("key", int64(i), []byte("data"))
	}
	cache.Clear()

	if cache.Size() != 0 || len(cache.index) != 0 {
		t.Errorf("expected empty cache, got size %d entries %d", cache.Size(), len(cache.index))
	}
}

// TestPersistentCache_IndexPersistence tests that the index survives a restart
func TestPersistentCache_IndexPersistence(t *testing.T) {
	dir := t.TempDir()

	cache1, err := NewPersistentCache(&PersistentCacheConfig{
		Directory: dir,
		MaxSize:   10 * 1024 * 1024,
		TTL:       time.Hour,
	})
	if err != nil {
		t.Fatalf("NewPersistentCache failed: %v", err)
	}
	cache1.Put("key1", 0, []byte("data1"))
	cache1.Put("key2", 100, []byte("data2"))
	if err := cache1.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	cache2 := newTestPersistent(t, &PersistentCacheConfig{
		Directory: dir,
		MaxSize:   10 * 1024 * 1024,
		TTL:       time.Hour,
	})

	if got := cache2.Get("key1", 0, 5); string(got) != "data1" {
		t.Errorf("expected 'data1', got %q", got)
	}
	if cache2.Get("key2", 100, 5) == nil {
		t.Error("should be able to retrieve key2 after reload")
	}
	if cache2.Size() != cache1.Size() {
		t.Errorf("expected size %d after reload, got %d", cache1.Size(), cache2.Size())
	}
}

// TestPersistentCache_ChecksumValidation tests checksum verification
func TestPersistentCache_ChecksumValidation(t *testing.T) {
	cache := newTestPersistent(t, &PersistentCacheConfig{MaxSize: 10 * 1024 * 1024, TTL: time.Hour})

	data := []byte("test data")
	cache.Put("test", 0, data)

	item := cache.index[makeCacheKey("test", 0, int64(len(data)))]
	if err := os.WriteFile(item.FilePath, []byte("corrupted"), 0600); err != nil {
		t.Fatalf("failed to corrupt file: %v", err)
	}

	if cache.Get("test", 0, int64(len(data))) != nil {
		t.Error("should return nil for corrupted data")
	}
	if len(cache.index) != 0 {
		t.Error("corrupted entry should be dropped")
	}
}

// TestPersistentCache_Snapshot tests exporting entries from disk
func TestPersistentCache_Snapshot(t *testing.T) {
	cache := newTestPersistent(t, &PersistentCacheConfig{
		MaxSize:     10 * 1024 * 1024,
		TTL:         time.Hour,
		Compression: true,
	})

	cache.Put("b", 0, []byte("second"))
	cache.Put("a", 8, []byte("first"))

	entries := cache.Snapshot()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Key != "a" || entries[0].Offset != 8 || string(entries[0].Data) != "first" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Key != "b" || string(entries[1].Data) != "second" {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}
}

// TestPersistentCache_ConcurrentAccess tests thread-safety
func TestPersistentCache_ConcurrentAccess(t *testing.T) {
	cache := newTestPersistent(t, &PersistentCacheConfig{MaxSize: 50 * 1024 * 1024, TTL: time.Hour})

	var wg sync.WaitGroup
	numGoroutines := 20
	numOpsPerGoroutine := 25

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
			}
		}(i)
	}
	wg.Wait()

	if stats := cache.Stats(); stats.Entries != numGoroutines*numOpsPerGoroutine {
		t.Errorf("expected %d entries, got %d", numGoroutines*numOpsPerGoroutine, stats.Entries)
	}
}

// TestPersistentCache_Stats tests statistics tracking
func TestPersistentCache_Stats(t *testing.T) {
	cache := newTestPersistent(t, &PersistentCacheConfig{MaxSize: 1024, TTL: time.Hour})

	cache.Get("nonexistent", 0, 4)
	cache.Put("key1", 0, []byte("data"))
	cache.Get("key1", 0, 4)

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %d/%d", stats.Hits, stats.Misses)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("expected hit rate 0.5, got %f", stats.HitRate)
	}
	if stats.Capacity != 1024 || stats.Entries != 1 {
		t.Errorf("unexpected capacity/entries: %d/%d", stats.Capacity, stats.Entries)
	}
}

// TestPersistentCache_EmptyData tests that empty data is ignored
func TestPersistentCache_EmptyData(t *testing.T) {
	cache := newTestPersistent(t, &PersistentCacheConfig{MaxSize: 1024, TTL: time.Hour})

	cache.Put("test", 0, []byte{})
	cache.Put("test", 0, nil)

	if len(cache.index) != 0 {
		t.Error("expected empty cache after putting empty data")
	}
}

// TestPersistentCache_PathValidation tests rejection of index paths outside the directory
func TestPersistentCache_PathValidation(t *testing.T) {
	dir := t.TempDir()

	_, err := NewPersistentCache(&PersistentCacheConfig{
		Directory: dir,
		MaxSize:   1024,
		IndexFile: "../../../etc/passwd",
	})
	if err == nil {
		t.Fatal("should reject path traversal in index file")
	}

	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "etc", "passwd")); err == nil {
		t.Error("should not create file outside cache directory")
	}
}
