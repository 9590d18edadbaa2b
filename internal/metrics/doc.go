/*
Package metrics exports adapter resolution, backup and cache statistics to Prometheus.

# Overview

Collector owns a private Prometheus registry. It implements adapter.Observer, so a
resolver built with adapter.WithObserver(collector) reports every resolution:

	collector, err := metrics.NewCollector(metrics.DefaultConfig(), logger)
	if err != nil {
		return err
	}
	resolver, err := adapter.NewResolver(registry, adapter.WithObserver(collector))

Architecture

	┌─────────────┐   ObserveResolution   ┌──────────────────┐
	│  Resolver   ├──────────────────────►│    Collector     │
	└─────────────┘                       │                  │
	┌─────────────┐   RecordBackup        │  ┌────────────┐  │   /metrics
	│ backup.Run  ├──────────────────────►│  │  Registry  ├──┼──────────►
	└─────────────┘                       │  └─────▲──────┘  │   /health
	                                      │        │         │
	                                      │ StatisticsCollector
	                                      └────────┼─────────┘
	                                               │ stats.Of(cache) at scrape time
	                                        tracked caches

# Prometheus Metrics

Counters:
  - capadapt_adapter_resolutions_total{family,outcome}
  - capadapt_backup_runs_total{cache,status}
  - capadapt_backup_bytes_total{cache}
  - capadapt_errors_total{operation,type}

Histograms:
  - capadapt_adapter_resolution_duration_seconds{family}
  - capadapt_backup_duration_seconds{cache}

Gauges, collected on scrape:
  - capadapt_cache_statistic{cache,statistic}
  - capadapt_cache_health_severity{cache}
  - capadapt_cache_statistics_resolution_failed{cache}

Outcomes are the adapter.Outcome values: concrete, embedded, interface, fallback,
ambiguous and error. Error types are the lower-cased error code when the error is
a *errors.CapAdaptError.

# Cache Statistics

Track registers a cache with the statistics collector:

	collector.Track("hot", lruCache)
	collector.Track("db", databaseCache)

Each scrape adapts the cache to stats.CacheStatistics. Numeric values of the
Statistics map become capadapt_cache_statistic gauges. A cache without a
statistics adapter resolves to the null fallback and only exports its health
severity (1, warning).

# HTTP Endpoints

	curl http://localhost:9090/metrics
	curl http://localhost:9090/health
	{"status":"healthy","service":"capadapt","uptime":"2m0s"}

When a health.Tracker is attached with SetHealthTracker, /health reports the
tracker's overall state and per-component states, answering 503 when any
component is unavailable.

# Thread Safety

All Collector and StatisticsCollector methods are safe for concurrent use.
*/
package metrics
