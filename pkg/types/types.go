package types

// CacheStats represents cache performance statistics
type CacheStats struct {
	Hits        uint64  `json:"hits" yaml:"hits"`
	Misses      uint64  `json:"misses" yaml:"misses"`
	Evictions   uint64  `json:"evictions" yaml:"evictions"`
	Size        int64   `json:"size" yaml:"size"`
	Capacity    int64   `json:"capacity" yaml:"capacity"`
	Entries     int     `json:"entries" yaml:"entries"`
	HitRate     float64 `json:"hit_rate" yaml:"hit_rate"`
	Utilization float64 `json:"utilization" yaml:"utilization"`
}

// Refresh recomputes HitRate and Utilization from the raw counters.
func (s *CacheStats) Refresh() {
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	} else {
		s.HitRate = 0
	}
	if s.Capacity > 0 {
		s.Utilization = float64(s.Size) / float64(s.Capacity)
	} else {
		s.Utilization = 0
	}
}

// Map flattens the statistics into the key/value form reported by statistics adapters.
func (s CacheStats) Map() map[string]interface{} {
	return map[string]interface{}{
		"hits":        s.Hits,
		"misses":      s.Misses,
		"evictions":   s.Evictions,
		"size":        s.Size,
		"capacity":    s.Capacity,
		"entries":     s.Entries,
		"hit_rate":    s.HitRate,
		"utilization": s.Utilization,
	}
}
