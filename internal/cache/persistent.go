package cache

import (
	"compress/gzip"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/capadapt/capadapt/internal/adapter"
	"github.com/capadapt/capadapt/pkg/types"
)

// PersistentCache implements a disk-based cache with optional gzip compression
type PersistentCache struct {
	mu          sync.RWMutex
	directory   string
	maxSize     int64
	currentSize int64
	index       map[string]*persistentItem
	config      *PersistentCacheConfig
	stats       types.CacheStats

	name     string
	logger   *slog.Logger
	adapters *adapter.Cache

	stopCh chan struct{}
	closed bool
}

// PersistentCacheConfig represents persistent cache configuration
type PersistentCacheConfig struct {
	Directory       string        `yaml:"directory"`
	MaxSize         int64         `yaml:"max_size"`
	TTL             time.Duration `yaml:"ttl"`
	Compression     bool          `yaml:"compression"`
	IndexFile       string        `yaml:"index_file"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	SyncInterval    time.Duration `yaml:"sync_interval"`
}

type persistentItem struct {
	Key        string    `json:"key"`
	Source     string    `json:"source"`
	FilePath   string    `json:"file_path"`
	Offset     int64     `json:"offset"`
	Size       int64     `json:"size"`
	Timestamp  time.Time `json:"timestamp"`
	AccessTime time.Time `json:"access_time"`
	Compressed bool      `json:"compressed"`
	Checksum   string    `json:"checksum"`
}

// NewPersistentCache creates a persistent cache rooted at config.Directory
func NewPersistentCache(config *PersistentCacheConfig, opts ...Option) (*PersistentCache, error) {
	if config == nil || config.Directory == "" {
		return nil, fmt.Errorf("persistent cache requires a directory")
	}
	if config.IndexFile == "" {
		config.IndexFile = "cache-index.json"
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 10 * time.Minute
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = time.Minute
	}

	if err := os.MkdirAll(config.Directory, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	o := buildOptions("persistent", opts)
	c := &PersistentCache{
		directory: config.Directory,
		maxSize:   config.MaxSize,
		index:     make(map[string]*persistentItem),
		config:    config,
		stats:     types.CacheStats{Capacity: config.MaxSize},
		name:      o.name,
		logger:    o.logger,
		stopCh:    make(chan struct{}),
	}
	c.adapters = adapter.NewCache(c, o.resolver)

	if err := c.loadIndex(); err != nil {
		return nil, fmt.Errorf("failed to load cache index: %w", err)
	}

	go c.cleanupExpired()
	go c.syncIndex()

	return c, nil
}

// Adapt returns the cache's adapter of family f
func (c *PersistentCache) Adapt(f adapter.Family) (adapter.Adapter, error) {
	return c.adapters.Adapt(f)
}

// Name returns the configured cache name
func (c *PersistentCache) Name() string {
	return c.name
}

// Directory returns the cache root directory
func (c *PersistentCache) Directory() string {
	return c.directory
}

// Compressed reports whether new entries are gzip compressed
func (c *PersistentCache) Compressed() bool {
	return c.config.Compression
}

// Get retrieves data from the persistent cache
func (c *PersistentCache) Get(key string, offset, size int64) []byte {
	cacheKey := makeCacheKey(key, offset, size)

	c.mu.RLock()
	item, exists := c.index[cacheKey]
	c.mu.RUnlock()

	if !exists || c.isExpired(item) {
		c.mu.Lock()
		if exists {
			c.removeItem(item)
		}
		c.stats.Misses++
		c.mu.Unlock()
		return nil
	}

	data, err := c.readFromFile(item)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.logger.Warn("dropping unreadable cache entry", "key", cacheKey, "error", err)
		c.removeItem(item)
		c.stats.Misses++
		return nil
	}
	item.AccessTime = time.Now()
	c.stats.Hits++
	return data
}

// Put stores data in the persistent cache
func (c *PersistentCache) Put(key string, offset int64, data []byte) {
	if len(data) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cacheKey := makeCacheKey(key, offset, int64(len(data)))
	if existing, exists := c.index[cacheKey]; exists {
		_ = os.Remove(existing.FilePath)
		c.currentSize -= existing.Size
		delete(c.index, cacheKey)
	}

	now := time.Now()
	item := &persistentItem{
		Key:        cacheKey,
		Source:     key,
		FilePath:   c.generateFilePath(cacheKey),
		Offset:     offset,
		Timestamp:  now,
		AccessTime: now,
		Compressed: c.config.Compression,
		Checksum:   checksum(data),
	}

	written, err := writeToFile(item, data)
	if err != nil {
		c.logger.Warn("failed to write cache entry", "key", cacheKey, "error", err)
		return
	}
	item.Size = written

	c.index[cacheKey] = item
	c.currentSize += written

	for c.maxSize > 0 && c.currentSize > c.maxSize {
		if !c.evictOldest() {
			break
		}
	}
}

// Delete removes every cached range of key
func (c *PersistentCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for cacheKey, item := range c.index {
		if keyMatches(cacheKey, key) {
			c.removeItem(item)
		}
	}
}

// Evict frees at least targetSize bytes, least recently accessed first
func (c *PersistentCache) Evict(targetSize int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]*persistentItem, 0, len(c.index))
	for _, item := range c.index {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].AccessTime.Before(items[j].AccessTime)
	})

	freed := int64(0)
	for _, item := range items {
		if freed >= targetSize {
			break
		}
		freed += item.Size
		c.removeItem(item)
	}
	return freed >= targetSize
}

// Size returns the current on-disk size
func (c *PersistentCache) Size() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentSize
}

// Stats returns cache statistics
func (c *PersistentCache) Stats() types.CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.Size = c.currentSize
	stats.Entries = len(c.index)
	stats.Refresh()
	return stats
}

// Snapshot reads every live entry back from disk. Unreadable entries are skipped.
func (c *PersistentCache) Snapshot() []Entry {
	c.mu.RLock()
	items := make([]*persistentItem, 0, len(c.index))
	for _, item := range c.index {
		if !c.isExpired(item) {
			cp := *item
			items = append(items, &cp)
		}
	}
	c.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		data, err := c.readFromFile(item)
		if err != nil {
			c.logger.Warn("skipping unreadable entry in snapshot", "key", item.Key, "error", err)
			continue
		}
		entries = append(entries, Entry{
			Key:       item.Source,
			Offset:    item.Offset,
			Data:      data,
			Timestamp: item.Timestamp,
		})
	}
	return entries
}

// Clear removes all cached data
func (c *PersistentCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, item := range c.index {
		c.removeItem(item)
	}
}

// Close stops background goroutines and syncs the index
func (c *PersistentCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.stopCh)

	return c.saveIndex()
}

// removeItem must be called with the lock held
func (c *PersistentCache) removeItem(item *persistentItem) {
	if _, ok := c.index[item.Key]; !ok {
		return
	}
	_ = os.Remove(item.FilePath)
	delete(c.index, item.Key)
	c.currentSize -= item.Size
	c.stats.Evictions++
}

func (c *PersistentCache) isExpired(item *persistentItem) bool {
	if c.config.TTL == 0 {
		return false
	}
	return time.Since(item.Timestamp) > c.config.TTL
}

func (c *PersistentCache) generateFilePath(key string) string {
	hash := sha256.Sum256([]byte(key))
	return filepath.Join(c.directory, fmt.Sprintf("%x.cache", hash[:8]))
}

func checksum(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

func writeToFile(item *persistentItem, data []byte) (int64, error) {
	file, err := os.Create(item.FilePath)
	if err != nil {
		return 0, err
	}

	var writeErr error
	if item.Compressed {
		gz := gzip.NewWriter(file)
		if _, writeErr = gz.Write(data); writeErr == nil {
			writeErr = gz.Close()
		}
	} else {
		_, writeErr = file.Write(data)
	}
	if closeErr := file.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		_ = os.Remove(item.FilePath)
		return 0, writeErr
	}

	stat, err := os.Stat(item.FilePath)
	if err != nil {
		return int64(len(data)), nil
	}
	return stat.Size(), nil
}

func (c *PersistentCache) readFromFile(item *persistentItem) ([]byte, error) {
	file, err := os.Open(item.FilePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var reader io.Reader = file
	if item.Compressed {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return nil, err
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if checksum(data) != item.Checksum {
		return nil, fmt.Errorf("checksum mismatch for %s", item.Key)
	}
	return data, nil
}

func (c *PersistentCache) indexPath() (string, error) {
	path := filepath.Join(c.directory, c.config.IndexFile)
	if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(c.directory)) {
		return "", fmt.Errorf("invalid index file path: %s", path)
	}
	return path, nil
}

func (c *PersistentCache) loadIndex() error {
	path, err := c.indexPath()
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer func() { _ = file.Close() }()

	var items map[string]*persistentItem
	if err := json.NewDecoder(file).Decode(&items); err != nil {
		return err
	}

	for key, item := range items {
		if _, err := os.Stat(item.FilePath); os.IsNotExist(err) {
			continue
		}
		c.index[key] = item
		c.currentSize += item.Size
	}
	c.logger.Debug("cache index loaded", "entries", len(c.index), "size", c.currentSize)
	return nil
}

// saveIndex writes the index atomically; callers hold at least a read lock
func (c *PersistentCache) saveIndex() error {
	path, err := c.indexPath()
	if err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(file).Encode(c.index); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

func (c *PersistentCache) evictOldest() bool {
	var oldest *persistentItem
	for _, item := range c.index {
		if oldest == nil || item.AccessTime.Before(oldest.AccessTime) {
			oldest = item
		}
	}
	if oldest == nil {
		return false
	}
	c.removeItem(oldest)
	return true
}

func (c *PersistentCache) cleanupExpired() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			for _, item := range c.index {
				if c.isExpired(item) {
					c.removeItem(item)
				}
			}
			c.mu.Unlock()
		}
	}
}

func (c *PersistentCache) syncIndex() {
	ticker := time.NewTicker(c.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.RLock()
			if err := c.saveIndex(); err != nil {
				c.logger.Warn("failed to sync cache index", "error", err)
			}
			c.mu.RUnlock()
		}
	}
}
