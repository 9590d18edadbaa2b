package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/capadapt/capadapt/internal/adapter"
	"github.com/capadapt/capadapt/internal/backup"
	"github.com/capadapt/capadapt/internal/cache"
	"github.com/capadapt/capadapt/internal/circuit"
	"github.com/capadapt/capadapt/internal/config"
	"github.com/capadapt/capadapt/internal/metrics"
	"github.com/capadapt/capadapt/internal/stats"
	"github.com/capadapt/capadapt/internal/storage/s3"
	"github.com/capadapt/capadapt/pkg/errors"
	"github.com/capadapt/capadapt/pkg/health"
	"github.com/capadapt/capadapt/pkg/status"
)

// OperationBackup is the operation type recorded for backup runs.
const OperationBackup = "backup"

// Closer is implemented by every configured cache.
type Closer interface {
	adapter.Adaptable
	Close() error
}

// NamedCache is a cache built from a configuration entry.
type NamedCache struct {
	Name  string
	Kind  string
	Cache Closer
}

// Resolution describes which registration serves a cache for one family.
type Resolution struct {
	Cache          string `json:"cache"`
	Type           string `json:"type"`
	Family         string `json:"family"`
	Implementation string `json:"implementation,omitempty"`
	Fallback       bool   `json:"fallback"`
	Error          string `json:"error,omitempty"`
}

// App wires the adapter registry, the configured caches and their consumers.
type App struct {
	config   *config.Configuration
	logger   *slog.Logger
	registry *adapter.Registry
	resolver *adapter.Resolver
	previous *adapter.Resolver
	caches   []NamedCache
	byName   map[string]int
	metrics  *metrics.Collector
	tracker  *health.Tracker
	runner   *backup.Runner
	breaker  *circuit.Breaker
	ops      *status.Tracker
}

// Declarations returns every adapter registration shipped with capadapt.
func Declarations() []adapter.Registration {
	regs := stats.Declarations()
	return append(regs, backup.Declarations()...)
}

// Families returns the adapter families capadapt declares.
func Families() []adapter.Family {
	return []adapter.Family{stats.Family, backup.Family}
}

// NewRegistry registers Declarations and seals the registry.
func NewRegistry(logger *slog.Logger) (*adapter.Registry, error) {
	registry := adapter.NewRegistry(adapter.WithLogger(logger))
	if err := registry.Register(Declarations()...); err != nil {
		return nil, err
	}
	if err := registry.Seal(); err != nil {
		return nil, err
	}
	return registry, nil
}

// New builds an App from cfg. The resolver it creates is installed as the process
// default until Close.
func New(ctx context.Context, cfg *config.Configuration, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{
		config: cfg,
		logger: logger.With("component", "app"),
		byName: make(map[string]int, len(cfg.Caches)),
	}

	registry, err := NewRegistry(logger)
	if err != nil {
		return nil, fmt.Errorf("build adapter registry: %w", err)
	}
	a.registry = registry

	a.metrics, err = metrics.NewCollector(&metrics.Config{
		Enabled:   cfg.Monitoring.Metrics.Enabled,
		Port:      cfg.Global.MetricsPort,
		Path:      cfg.Monitoring.Metrics.Path,
		Labels:    cfg.Monitoring.Metrics.CustomLabels,
		Namespace: "capadapt",
	}, logger)
	if err != nil {
		return nil, err
	}

	a.resolver, err = adapter.NewResolver(registry,
		adapter.WithLogger(logger),
		adapter.WithObserver(a.metrics),
	)
	if err != nil {
		return nil, err
	}
	a.previous = adapter.Install(a.resolver)

	trackerConfig := health.DefaultConfig()
	if cfg.Monitoring.HealthChecks.Interval > 0 {
		trackerConfig.CheckInterval = cfg.Monitoring.HealthChecks.Interval
	}
	a.tracker = health.NewTracker(trackerConfig)
	a.tracker.OnStateChange(func(component string, oldState, newState health.HealthState, err error) {
		a.logger.Warn("cache health changed",
			"cache", component, "from", oldState.String(), "to", newState.String(), "error", err)
	})
	a.metrics.SetHealthTracker(a.tracker)
	a.ops = status.NewTracker(status.TrackerConfig{HealthTracker: a.tracker})

	for _, def := range cfg.Caches {
		c, err := a.buildCache(def, logger)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("cache %s: %w", def.Name, err)
		}
		a.byName[def.Name] = len(a.caches)
		a.caches = append(a.caches, NamedCache{Name: def.Name, Kind: def.Kind, Cache: c})
		a.tracker.RegisterComponent(def.Name)
		if err := a.metrics.Track(def.Name, c); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	sink, err := a.buildSink(ctx, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if sink != nil {
		a.runner, err = backup.NewRunner(backup.RunnerConfig{
			Sink:   sink,
			Prefix: cfg.Backup.Prefix,
			Retry:  cfg.Backup.Retry,
			Logger: logger,
		})
		if err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	a.logger.Info("capadapt initialized",
		"caches", len(a.caches),
		"registrations", registry.Len(),
		"backup", cfg.Backup.Destination,
	)
	return a, nil
}

func (a *App) buildCache(def config.CacheDefinition, logger *slog.Logger) (Closer, error) {
	opts := []cache.Option{
		cache.WithName(def.Name),
		cache.WithLogger(logger),
		cache.WithResolver(a.resolver),
	}
	defaults := cache.DefaultCacheConfig()

	maxSize := def.MaxSizeBytes()
	if maxSize == 0 {
		maxSize = defaults.MaxSize
	}
	maxEntries := def.MaxEntries
	if maxEntries == 0 {
		maxEntries = defaults.MaxEntries
	}
	ttl := def.TTL
	if ttl == 0 {
		ttl = defaults.TTL
	}

	switch def.Kind {
	case config.KindLRU, config.KindWeightedLRU:
		cc := &cache.CacheConfig{
			MaxSize:         maxSize,
			MaxEntries:      maxEntries,
			TTL:             ttl,
			CleanupInterval: defaults.CleanupInterval,
		}
		if def.Kind == config.KindWeightedLRU {
			return cache.NewWeightedLRUCache(cc, opts...), nil
		}
		return cache.NewLRUCache(cc, opts...), nil

	case config.KindMultiLevel:
		mc := cache.DefaultMultiLevelConfig()
		mc.Policy = def.Policy
		mc.L1Config.Size = maxSize
		mc.L1Config.MaxEntries = maxEntries
		mc.L1Config.TTL = ttl
		if def.Directory != "" {
			mc.L2Config.Enabled = true
			mc.L2Config.Directory = def.Directory
			mc.L2Config.Compression = def.Compression
			if size := def.L2SizeBytes(); size > 0 {
				mc.L2Config.Size = size
			}
		}
		return cache.NewMultiLevelCache(mc, opts...)

	case config.KindPersistent:
		return cache.NewPersistentCache(&cache.PersistentCacheConfig{
			Directory:   def.Directory,
			MaxSize:     maxSize,
			TTL:         ttl,
			Compression: def.Compression,
		}, opts...)

	case config.KindDatabase:
		return cache.NewDatabaseCache(cache.DatabaseConfig{
			Path:       def.Directory,
			InMemory:   def.InMemory,
			MaxSize:    def.MaxSizeBytes(),
			TTL:        def.TTL,
			SyncWrites: def.SyncWrites,
		}, opts...)
	}

	return nil, errors.Newf(errors.ErrCodeInvalidConfig, "unknown cache kind %q", def.Kind).
		WithComponent("app")
}

func (a *App) buildSink(ctx context.Context, logger *slog.Logger) (backup.Sink, error) {
	var sink backup.Sink
	switch a.config.Backup.Destination {
	case config.DestinationFile:
		fs, err := backup.NewFileSink(a.config.Backup.Directory)
		if err != nil {
			return nil, err
		}
		sink = fs
	case config.DestinationS3:
		client, err := s3.NewClient(ctx, &a.config.Backup.S3, logger)
		if err != nil {
			return nil, fmt.Errorf("create s3 backup sink: %w", err)
		}
		sink = client
	default:
		return nil, nil
	}

	bc := a.config.Backup.CircuitBreaker
	bc.OnStateChange = func(name string, from, to circuit.State) {
		a.logger.Warn("backup circuit breaker changed state",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	a.breaker = circuit.NewBreaker("backup-"+a.config.Backup.Destination, bc)
	return backup.NewGuardedSink(sink, a.breaker), nil
}

// Caches returns the configured caches in configuration order.
func (a *App) Caches() []NamedCache {
	out := make([]NamedCache, len(a.caches))
	copy(out, a.caches)
	return out
}

// Cache returns the cache called name.
func (a *App) Cache(name string) (Closer, bool) {
	i, ok := a.byName[name]
	if !ok {
		return nil, false
	}
	return a.caches[i].Cache, true
}

func (a *App) Registry() *adapter.Registry   { return a.registry }
func (a *App) Resolver() *adapter.Resolver   { return a.resolver }
func (a *App) Metrics() *metrics.Collector   { return a.metrics }
func (a *App) Tracker() *health.Tracker      { return a.tracker }
func (a *App) Config() *config.Configuration { return a.config }

// Operations returns the tracker recording backup runs.
func (a *App) Operations() *status.Tracker { return a.ops }

// Breaker returns the breaker guarding the backup destination, or nil when
// backups are disabled.
func (a *App) Breaker() *circuit.Breaker { return a.breaker }

// Stats returns the statistics mapping of every cache, keyed by cache name.
func (a *App) Stats(ctx context.Context) (map[string]map[string]interface{}, error) {
	out := make(map[string]map[string]interface{}, len(a.caches))
	var errs []error
	for _, nc := range a.caches {
		cs, err := stats.Of(nc.Cache)
		if err != nil {
			errs = append(errs, fmt.Errorf("statistics for %s: %w", nc.Name, err))
			continue
		}
		out[nc.Name] = cs.Statistics(ctx)
	}
	return out, stderrors.Join(errs...)
}

// Health runs every cache's health check once and records the results in the tracker.
func (a *App) Health(ctx context.Context) (map[string][]health.Result, error) {
	if timeout := a.config.Monitoring.HealthChecks.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return stats.CheckAll(ctx, a.targets(), a.tracker)
}

func (a *App) targets() []stats.Target {
	targets := make([]stats.Target, len(a.caches))
	for i, nc := range a.caches {
		targets[i] = stats.Target{Name: nc.Name, Cache: nc.Cache}
	}
	return targets
}

// Backup backs up the named caches, or every cache when names is empty.
func (a *App) Backup(ctx context.Context, names ...string) ([]*backup.Result, error) {
	if a.runner == nil {
		return nil, errors.NewError(errors.ErrCodeMissingConfig, "no backup destination configured").
			WithComponent("app").
			WithOperation("backup")
	}
	if len(names) == 0 {
		for _, nc := range a.caches {
			names = append(names, nc.Name)
		}
	}

	var (
		results []*backup.Result
		errs    []error
	)
	for _, name := range names {
		c, ok := a.Cache(name)
		if !ok {
			errs = append(errs, errors.NewError(errors.ErrCodeCacheNotFound, "unknown cache: "+name).
				WithComponent("app").
				WithOperation("backup"))
			continue
		}

		op, opCtx := a.ops.StartOperation(ctx, OperationBackup, name, map[string]interface{}{
			"destination": a.config.Backup.Destination,
		})
		start := time.Now()
		result, err := a.runner.Run(opCtx, name, c)
		if err != nil {
			a.metrics.RecordBackup(name, time.Since(start), 0, false, err)
			_ = a.ops.FailOperation(op.ID, err)
			errs = append(errs, err)
			continue
		}
		a.metrics.RecordBackup(name, result.Duration, result.Report.Bytes, result.Report.Skipped, nil)
		_ = a.ops.CompleteOperation(op.ID, map[string]interface{}{
			"backup_id": result.ID,
			"format":    result.Report.Format,
			"entries":   result.Report.Entries,
			"bytes":     result.Report.Bytes,
			"location":  result.Location,
			"skipped":   result.Report.Skipped,
		})
		results = append(results, result)
	}
	return results, stderrors.Join(errs...)
}

// Resolutions reports, for every cache and family, the registration the resolver
// selects. Nothing is built.
func (a *App) Resolutions() []Resolution {
	var out []Resolution
	for _, nc := range a.caches {
		t := reflect.TypeOf(nc.Cache)
		for _, f := range Families() {
			row := Resolution{Cache: nc.Name, Type: t.String(), Family: f.Name()}
			reg, err := a.resolver.Select(t, f)
			if err != nil {
				row.Error = err.Error()
			} else {
				row.Implementation = reg.Implementation().String()
				row.Fallback = reg.IsFallback()
			}
			out = append(out, row)
		}
	}
	return out
}

// StartHealthChecks runs periodic health checks until ctx is done. It blocks.
func (a *App) StartHealthChecks(ctx context.Context) {
	a.tracker.StartHealthChecks(ctx, func(component string) []health.Result {
		c, ok := a.Cache(component)
		if !ok {
			return nil
		}
		cs, err := stats.Of(c)
		if err != nil {
			return []health.Result{{
				Component: component,
				Severity:  health.SeverityError,
				Message:   err.Error(),
			}}
		}
		checkCtx := ctx
		if timeout := a.config.Monitoring.HealthChecks.Timeout; timeout > 0 {
			var cancel context.CancelFunc
			checkCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return cs.CheckHealth(checkCtx)
	})
}

// Serve exposes metrics and runs health checks until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	if err := a.metrics.Start(ctx); err != nil {
		return err
	}
	if addr := a.metrics.Addr(); addr != "" {
		a.logger.Info("metrics server listening", "addr", addr)
	}

	done := make(chan struct{})
	if a.config.Monitoring.HealthChecks.Enabled {
		go func() {
			defer close(done)
			a.StartHealthChecks(ctx)
		}()
	} else {
		close(done)
	}

	<-ctx.Done()
	<-done

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.metrics.Stop(stopCtx)
}

// Close closes every cache in reverse order and restores the previous default
// resolver. It is safe to call more than once.
func (a *App) Close() error {
	var errs []error
	for i := len(a.caches) - 1; i >= 0; i-- {
		if err := a.caches[i].Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache %s: %w", a.caches[i].Name, err))
		}
	}
	a.caches = nil
	a.byName = map[string]int{}

	if a.resolver != nil && adapter.Default() == a.resolver {
		adapter.Install(a.previous)
	}
	a.resolver = nil
	return stderrors.Join(errs...)
}
