package metrics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/capadapt/capadapt/internal/adapter"
	"github.com/capadapt/capadapt/internal/stats"
	"github.com/capadapt/capadapt/pkg/errors"
	"github.com/capadapt/capadapt/pkg/health"
)

// StatisticsCollector is a prometheus.Collector that adapts every tracked cache to
// stats.CacheStatistics on each scrape. Numeric statistics become gauges; caches
// without statistics support only report their health severity.
type StatisticsCollector struct {
	mu      sync.RWMutex
	targets map[string]adapter.Adaptable

	statistic *prometheus.Desc
	severity  *prometheus.Desc
	failures  *prometheus.Desc
}

// NewStatisticsCollector creates an empty collector.
func NewStatisticsCollector(namespace string, constLabels map[string]string) *StatisticsCollector {
	return &StatisticsCollector{
		targets: make(map[string]adapter.Adaptable),
		statistic: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "statistic"),
			"Numeric cache statistic reported by the cache's statistics adapter",
			[]string{"cache", "statistic"}, constLabels,
		),
		severity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "health_severity"),
			"Worst health severity of the cache (0 ok, 1 warning, 2 error)",
			[]string{"cache"}, constLabels,
		),
		failures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "statistics_resolution_failed"),
			"1 when the cache's statistics adapter could not be resolved",
			[]string{"cache"}, constLabels,
		),
	}
}

// Track adds a cache. Names must be unique.
func (s *StatisticsCollector) Track(name string, a adapter.Adaptable) error {
	if name == "" || a == nil {
		return errors.NewError(errors.ErrCodeInvalidConfig, "tracked cache needs a name and a value").
			WithComponent("metrics")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.targets[name]; exists {
		return errors.NewError(errors.ErrCodeDuplicateRegistration, "cache already tracked: "+name).
			WithComponent("metrics")
	}
	s.targets[name] = a
	return nil
}

// Untrack removes a cache.
func (s *StatisticsCollector) Untrack(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.targets, name)
}

// Describe implements prometheus.Collector.
func (s *StatisticsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.statistic
	ch <- s.severity
	ch <- s.failures
}

// Collect implements prometheus.Collector.
func (s *StatisticsCollector) Collect(ch chan<- prometheus.Metric) {
	s.mu.RLock()
	names := make([]string, 0, len(s.targets))
	for name := range s.targets {
		names = append(names, name)
	}
	targets := make(map[string]adapter.Adaptable, len(s.targets))
	for name, a := range s.targets {
		targets[name] = a
	}
	s.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, name := range names {
		cs, err := stats.Of(targets[name])
		if err != nil {
			ch <- prometheus.MustNewConstMetric(s.failures, prometheus.GaugeValue, 1, name)
			continue
		}
		ch <- prometheus.MustNewConstMetric(s.failures, prometheus.GaugeValue, 0, name)

		severity := health.Worst(cs.CheckHealth(ctx))
		ch <- prometheus.MustNewConstMetric(s.severity, prometheus.GaugeValue, float64(severity), name)

		for key, value := range cs.Statistics(ctx) {
			if v, ok := toFloat(value); ok {
				ch <- prometheus.MustNewConstMetric(s.statistic, prometheus.GaugeValue, v, name, key)
			}
		}
	}
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case time.Duration:
		return v.Seconds(), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
