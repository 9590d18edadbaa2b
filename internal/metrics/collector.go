package metrics

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capadapt/capadapt/internal/adapter"
	"github.com/capadapt/capadapt/pkg/errors"
	"github.com/capadapt/capadapt/pkg/health"
)

// Collector exports adapter resolution and backup metrics
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry
	logger   *slog.Logger

	// Prometheus metrics
	resolutions        *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec
	backupRuns         *prometheus.CounterVec
	backupBytes        *prometheus.CounterVec
	backupDuration     *prometheus.HistogramVec
	errorCounter       *prometheus.CounterVec

	statistics *StatisticsCollector
	tracker    *health.Tracker
	started    time.Time

	// HTTP server for metrics endpoint
	server   *http.Server
	listener net.Listener
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Port      int               `yaml:"port"`
	Path      string            `yaml:"path"`
	Labels    map[string]string `yaml:"labels"`
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
}

// DefaultConfig returns the metrics defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Port:      9090,
		Path:      "/metrics",
		Namespace: "capadapt",
		Labels:    make(map[string]string),
	}
}

var _ adapter.Observer = (*Collector)(nil)

// NewCollector creates a new metrics collector
func NewCollector(config *Config, logger *slog.Logger) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	collector := &Collector{
		config:  config,
		logger:  logger.With("component", "metrics"),
		started: time.Now(),
	}
	if !config.Enabled {
		return collector, nil
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}

	collector.registry = prometheus.NewRegistry()
	collector.initMetrics()
	collector.statistics = NewStatisticsCollector(config.Namespace, config.Labels)

	if err := collector.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return collector, nil
}

// Registry returns the collector's Prometheus registry, nil when disabled.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Enabled reports whether metrics are collected.
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// ObserveResolution implements adapter.Observer.
func (c *Collector) ObserveResolution(f adapter.Family, outcome adapter.Outcome, elapsed time.Duration) {
	if !c.config.Enabled {
		return
	}
	family := f.Name()
	c.resolutions.WithLabelValues(family, string(outcome)).Inc()
	c.resolutionDuration.WithLabelValues(family).Observe(elapsed.Seconds())
	if outcome == adapter.OutcomeAmbiguous || outcome == adapter.OutcomeError {
		c.errorCounter.WithLabelValues("resolve", string(outcome)).Inc()
	}
}

// RecordBackup records one backup run of a cache
func (c *Collector) RecordBackup(cacheName string, duration time.Duration, bytes int64, skipped bool, err error) {
	if !c.config.Enabled {
		return
	}

	status := "success"
	switch {
	case err != nil:
		status = "error"
		c.RecordError("backup", err)
	case skipped:
		status = "skipped"
	}

	c.backupRuns.WithLabelValues(cacheName, status).Inc()
	c.backupDuration.WithLabelValues(cacheName).Observe(duration.Seconds())
	if bytes > 0 && err == nil {
		c.backupBytes.WithLabelValues(cacheName).Add(float64(bytes))
	}
}

// RecordError records an error
func (c *Collector) RecordError(operation string, err error) {
	if !c.config.Enabled || err == nil {
		return
	}
	c.errorCounter.WithLabelValues(operation, classifyError(err)).Inc()
}

// Track exports the statistics of a at every scrape under name.
func (c *Collector) Track(name string, a adapter.Adaptable) error {
	if !c.config.Enabled {
		return nil
	}
	return c.statistics.Track(name, a)
}

// SetHealthTracker makes /health report the tracker's overall state.
func (c *Collector) SetHealthTracker(tracker *health.Tracker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracker = tracker
}

// Handler returns the HTTP handler serving the metrics and health endpoints
func (c *Collector) Handler() http.Handler {
	mux := http.NewServeMux()
	if c.config.Enabled {
		mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorLog:          slog.NewLogLogger(c.logger.Handler(), slog.LevelError),
		}))
	}
	mux.HandleFunc("/health", c.healthHandler)
	return mux
}

// Start starts the metrics server. It returns once the listener is bound.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.server != nil {
		return errors.NewError(errors.ErrCodeInvalidState, "metrics server already started").
			WithComponent("metrics")
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", c.config.Port))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConnectionFailed, "failed to bind metrics listener").
			WithComponent("metrics").WithDetail("port", c.config.Port)
	}

	c.listener = listener
	c.server = &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 30 * time.Second, // Prevent Slowloris attacks
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	server := c.server
	go func() {
		if err := server.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			c.logger.Error("Metrics server error", "error", err)
		}
	}()

	c.logger.Info("Metrics server started", "addr", listener.Addr().String(), "path", c.config.Path)
	return nil
}

// Addr returns the bound listener address, empty before Start.
func (c *Collector) Addr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// Stop stops the metrics server
func (c *Collector) Stop(ctx context.Context) error {
	c.mu.Lock()
	server := c.server
	c.server = nil
	c.listener = nil
	c.mu.Unlock()

	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}

// Helper methods

func (c *Collector) initMetrics() {
	labels := prometheus.Labels(c.config.Labels)

	c.resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "adapter_resolutions_total",
			Help:        "Total number of adapter resolutions by outcome",
			ConstLabels: labels,
		},
		[]string{"family", "outcome"},
	)

	c.resolutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "adapter_resolution_duration_seconds",
			Help:        "Duration of adapter resolutions in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.000001, 4, 10), // 1µs to ~262ms
			ConstLabels: labels,
		},
		[]string{"family"},
	)

	c.backupRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "backup_runs_total",
			Help:        "Total number of cache backup runs",
			ConstLabels: labels,
		},
		[]string{"cache", "status"},
	)

	c.backupBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "backup_bytes_total",
			Help:        "Total bytes written by cache backups",
			ConstLabels: labels,
		},
		[]string{"cache"},
	)

	c.backupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "backup_duration_seconds",
			Help:        "Duration of cache backups in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
			ConstLabels: labels,
		},
		[]string{"cache"},
	)

	c.errorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "errors_total",
			Help:        "Total number of errors",
			ConstLabels: labels,
		},
		[]string{"operation", "type"},
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.resolutions,
		c.resolutionDuration,
		c.backupRuns,
		c.backupBytes,
		c.backupDuration,
		c.errorCounter,
		c.statistics,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}
	return nil
}

// classifyError labels err by its error code when it carries one.
func classifyError(err error) string {
	var capErr *errors.CapAdaptError
	if stderrors.As(err, &capErr) {
		return strings.ToLower(string(capErr.Code))
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline"):
		return "timeout"
	case strings.Contains(errStr, "connection"):
		return "connection"
	case strings.Contains(errStr, "not found"):
		return "not_found"
	case strings.Contains(errStr, "permission"), strings.Contains(errStr, "denied"):
		return "permission"
	default:
		return "other"
	}
}

// HTTP handlers

type healthResponse struct {
	Status     string            `json:"status"`
	Service    string            `json:"service"`
	Uptime     string            `json:"uptime"`
	Components map[string]string `json:"components,omitempty"`
}

func (c *Collector) healthHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	tracker := c.tracker
	c.mu.RUnlock()

	resp := healthResponse{
		Status:  health.StateHealthy.String(),
		Service: "capadapt",
		Uptime:  time.Since(c.started).Round(time.Second).String(),
	}
	code := http.StatusOK

	if tracker != nil {
		overall := tracker.GetOverallHealth()
		resp.Status = overall.String()
		resp.Components = make(map[string]string)
		for _, name := range tracker.Components() {
			resp.Components[name] = tracker.GetState(name).String()
		}
		if overall == health.StateUnavailable {
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp) // Ignore write error for health check
}
