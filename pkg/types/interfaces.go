package types

// Cache defines the caching interface
type Cache interface {
	Get(key string, offset, size int64) []byte
	Put(key string, offset int64, data []byte)
	Delete(key string)
	Evict(size int64) bool
	Size() int64
	Stats() CacheStats
}
