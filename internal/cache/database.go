package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/capadapt/capadapt/internal/adapter"
	"github.com/capadapt/capadapt/pkg/types"
)

// DatabaseConfig configures a badger-backed cache
type DatabaseConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string `yaml:"path"`

	// InMemory keeps the database in memory only
	InMemory bool `yaml:"in_memory"`

	// MaxSize bounds the cached value bytes; zero means unbounded
	MaxSize int64 `yaml:"max_size"`

	// TTL is applied to every entry; zero means entries never expire
	TTL time.Duration `yaml:"ttl"`

	// SyncWrites fsyncs every write
	SyncWrites bool `yaml:"sync_writes"`
}

// DatabaseCache stores ranges in a badger key-value store
type DatabaseCache struct {
	db     *badger.DB
	config DatabaseConfig

	// guards size accounting across Put, Delete and Evict
	mu   sync.Mutex
	size int64

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64

	name     string
	logger   *slog.Logger
	adapters *adapter.Cache

	closeOnce sync.Once
	closeErr  error
}

// badgerLogger adapts slog.Logger to badger's Logger interface
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// NewDatabaseCache opens the badger database described by config
func NewDatabaseCache(config DatabaseConfig, opts ...Option) (*DatabaseCache, error) {
	if !config.InMemory && config.Path == "" {
		return nil, errors.New("database cache requires a path unless in_memory is set")
	}

	o := buildOptions("database", opts)

	var bopts badger.Options
	if config.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(config.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		bopts = badger.DefaultOptions(config.Path)
	}
	bopts = bopts.
		WithSyncWrites(config.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: o.logger})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	c := &DatabaseCache{
		db:     db,
		config: config,
		name:   o.name,
		logger: o.logger,
	}
	c.adapters = adapter.NewCache(c, o.resolver)

	if err := c.recount(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("scan badger database: %w", err)
	}

	return c, nil
}

// Adapt returns the cache's adapter of family f
func (c *DatabaseCache) Adapt(f adapter.Family) (adapter.Adapter, error) {
	return c.adapters.Adapt(f)
}

// Name returns the configured cache name
func (c *DatabaseCache) Name() string {
	return c.name
}

// DB exposes the underlying database
func (c *DatabaseCache) DB() *badger.DB {
	return c.db
}

// Get retrieves data from the database
func (c *DatabaseCache) Get(key string, offset, size int64) []byte {
	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(makeCacheKey(key, offset, size)))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.Warn("database cache read failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil
	}
	c.hits.Add(1)
	return data
}

// Put stores data in the database, evicting the oldest ranges when over MaxSize
func (c *DatabaseCache) Put(key string, offset int64, data []byte) {
	if len(data) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cacheKey := []byte(makeCacheKey(key, offset, int64(len(data))))
	var replaced int64
	err := c.db.Update(func(txn *badger.Txn) error {
		if item, err := txn.Get(cacheKey); err == nil {
			replaced = item.ValueSize()
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		entry := badger.NewEntry(cacheKey, data)
		if c.config.TTL > 0 {
			entry = entry.WithTTL(c.config.TTL)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		c.logger.Warn("database cache write failed", "key", key, "error", err)
		return
	}
	c.size += int64(len(data)) - replaced

	if c.config.MaxSize > 0 && c.size > c.config.MaxSize {
		c.evictLocked(c.size - c.config.MaxSize)
	}
}

// Delete removes every cached range of key
func (c *DatabaseCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	victims, err := c.scan([]byte(key))
	if err != nil {
		c.logger.Warn("database cache scan failed", "key", key, "error", err)
		return
	}
	c.remove(victims)
}

// Evict frees at least targetSize bytes, oldest writes first
func (c *DatabaseCache) Evict(targetSize int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictLocked(targetSize)
}

// Size returns the cached value bytes
func (c *DatabaseCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Stats returns cache statistics
func (c *DatabaseCache) Stats() types.CacheStats {
	c.mu.Lock()
	// expired entries drop out of the running total here
	if err := c.recount(); err != nil {
		c.logger.Warn("database cache scan failed", "error", err)
	}
	size := c.size
	c.mu.Unlock()

	entries, _ := c.scan(nil)
	stats := types.CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      size,
		Capacity:  c.config.MaxSize,
		Entries:   len(entries),
	}
	stats.Refresh()
	return stats
}

// Close closes the database. It is safe to call more than once.
func (c *DatabaseCache) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.db.Close()
	})
	return c.closeErr
}

type dbRecord struct {
	key     []byte
	version uint64
	size    int64
}

// scan lists live keys starting with prefix
func (c *DatabaseCache) scan(prefix []byte) ([]dbRecord, error) {
	var records []dbRecord
	err := c.db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		iopts.PrefetchValues = false
		iopts.Prefix = prefix
		it := txn.NewIterator(iopts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if item.IsDeletedOrExpired() {
				continue
			}
			records = append(records, dbRecord{
				key:     item.KeyCopy(nil),
				version: item.Version(),
				size:    item.ValueSize(),
			})
		}
		return nil
	})
	return records, err
}

func (c *DatabaseCache) recount() error {
	records, err := c.scan(nil)
	if err != nil {
		return err
	}
	c.size = 0
	for _, r := range records {
		c.size += r.size
	}
	return nil
}

func (c *DatabaseCache) evictLocked(targetSize int64) bool {
	records, err := c.scan(nil)
	if err != nil {
		c.logger.Warn("database cache scan failed", "error", err)
		return false
	}
	sort.Slice(records, func(i, j int) bool { return records[i].version < records[j].version })

	freed := int64(0)
	n := 0
	for n < len(records) && freed < targetSize {
		freed += records[n].size
		n++
	}
	c.remove(records[:n])
	return freed >= targetSize
}

func (c *DatabaseCache) remove(records []dbRecord) {
	if len(records) == 0 {
		return
	}

	wb := c.db.NewWriteBatch()
	for _, r := range records {
		if err := wb.Delete(r.key); err != nil {
			wb.Cancel()
			c.logger.Warn("database cache delete failed", "error", err)
			return
		}
	}
	if err := wb.Flush(); err != nil {
		c.logger.Warn("database cache delete failed", "error", err)
		return
	}

	for _, r := range records {
		c.size -= r.size
	}
	c.evictions.Add(uint64(len(records)))
}
