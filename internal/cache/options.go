package cache

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/capadapt/capadapt/internal/adapter"
)

// Option configures a cache at construction.
type Option func(*options)

type options struct {
	name     string
	resolver *adapter.Resolver
	logger   *slog.Logger
}

// WithName sets the name used in logs, metrics and health results.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithResolver binds the cache's adapters to r instead of the process default.
func WithResolver(r *adapter.Resolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(defaultName string, opts []Option) options {
	o := options{name: defaultName}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "cache", "cache", o.name)
	return o
}

// Entry is one cached range, as exported by Snapshot.
type Entry struct {
	Key       string    `json:"key"`
	Offset    int64     `json:"offset"`
	Data      []byte    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshotter is implemented by caches that can export their live entries.
type Snapshotter interface {
	Snapshot() []Entry
}

// Named is implemented by every cache in this package.
type Named interface {
	Name() string
}

func makeCacheKey(key string, offset, size int64) string {
	return fmt.Sprintf("%s:%d:%d", key, offset, size)
}

func keyMatches(cacheKey, key string) bool {
	return len(cacheKey) >= len(key) && cacheKey[:len(key)] == key
}
