package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/capadapt/capadapt/internal/circuit"
	"github.com/capadapt/capadapt/internal/storage/s3"
	"github.com/capadapt/capadapt/pkg/errors"
	"github.com/capadapt/capadapt/pkg/retry"
	"github.com/capadapt/capadapt/pkg/utils"
)

// Cache kinds
const (
	KindLRU         = "lru"
	KindWeightedLRU = "weighted_lru"
	KindMultiLevel  = "multilevel"
	KindPersistent  = "persistent"
	KindDatabase    = "database"
)

// Backup destinations
const (
	DestinationNone = ""
	DestinationFile = "file"
	DestinationS3   = "s3"
)

// Configuration represents the complete application configuration
type Configuration struct {
	Global     GlobalConfig      `yaml:"global"`
	Caches     []CacheDefinition `yaml:"caches"`
	Backup     BackupConfig      `yaml:"backup"`
	Monitoring MonitoringConfig  `yaml:"monitoring"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel    string               `yaml:"log_level"`
	LogFormat   string               `yaml:"log_format"`
	LogFile     string               `yaml:"log_file"`
	LogRotation utils.RotationConfig `yaml:"log_rotation"`
	MetricsPort int                  `yaml:"metrics_port"`
}

// CacheDefinition describes one named cache
type CacheDefinition struct {
	Name        string        `yaml:"name"`
	Kind        string        `yaml:"kind"`
	MaxSize     string        `yaml:"max_size"`
	MaxEntries  int           `yaml:"max_entries"`
	TTL         time.Duration `yaml:"ttl"`
	Directory   string        `yaml:"directory"`
	Compression bool          `yaml:"compression"`

	// multilevel only
	Policy string `yaml:"policy"`
	L2Size string `yaml:"l2_size"`

	// database only
	InMemory   bool `yaml:"in_memory"`
	SyncWrites bool `yaml:"sync_writes"`
}

// BackupConfig represents backup settings
type BackupConfig struct {
	Destination string       `yaml:"destination"`
	Directory   string       `yaml:"directory"`
	Prefix      string       `yaml:"prefix"`
	S3          s3.Config    `yaml:"s3"`
	Retry       retry.Config `yaml:"retry"`

	// CircuitBreaker guards the destination across runs
	CircuitBreaker circuit.Config `yaml:"circuit_breaker"`
}

// MonitoringConfig represents monitoring settings
type MonitoringConfig struct {
	Metrics      MetricsConfig      `yaml:"metrics"`
	HealthChecks HealthChecksConfig `yaml:"health_checks"`
	API          APIConfig          `yaml:"api"`
}

// APIConfig configures the admin HTTP API served by "capadapt serve"
type APIConfig struct {
	Enabled bool `yaml:"enabled"`

	// Address to bind the server to (e.g., "localhost:8080")
	Address string `yaml:"address"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`

	// EnableCORS enables Cross-Origin Resource Sharing
	EnableCORS bool `yaml:"enable_cors"`

	// EnableMetrics also serves the Prometheus registry at /metrics
	EnableMetrics bool `yaml:"enable_metrics"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled      bool              `yaml:"enabled"`
	Path         string            `yaml:"path"`
	CustomLabels map[string]string `yaml:"custom_labels"`
}

// HealthChecksConfig represents health check settings
type HealthChecksConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	s3cfg := s3.NewDefaultConfig()
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFormat: "text",
			LogRotation: utils.RotationConfig{
				MaxSizeMB:  100,
				MaxBackups: 5,
				Compress:   true,
			},
			MetricsPort: 9090,
		},
		Caches: []CacheDefinition{
			{
				Name:       "default",
				Kind:       KindLRU,
				MaxSize:    "256MB",
				MaxEntries: 100000,
				TTL:        5 * time.Minute,
			},
		},
		Backup: BackupConfig{
			Destination: DestinationNone,
			Directory:   "/var/backups/capadapt",
			Prefix:      "capadapt",
			S3:          *s3cfg,
			Retry:       retry.DefaultConfig(),

			CircuitBreaker: circuit.DefaultConfig(),
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
				CustomLabels: map[string]string{
					"service": "capadapt",
				},
			},
			HealthChecks: HealthChecksConfig{
				Enabled:  true,
				Interval: 30 * time.Second,
				Timeout:  5 * time.Second,
			},
			API: APIConfig{
				Enabled:      false,
				Address:      "localhost:8080",
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  60 * time.Second,
				EnableCORS:   true,
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigLoad, "failed to read config file").
			WithContext("file", filename)
	}

	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigLoad, "failed to parse config file").
			WithContext("file", filename)
	}

	return nil
}

// LoadFromEnv loads configuration from CAPADAPT_* environment variables
func (c *Configuration) LoadFromEnv() error {
	// Global settings
	if val := os.Getenv("CAPADAPT_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = strings.ToUpper(val)
	}
	if val := os.Getenv("CAPADAPT_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = strings.ToLower(val)
	}
	if val := os.Getenv("CAPADAPT_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("CAPADAPT_METRICS_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return envError("CAPADAPT_METRICS_PORT", val, err)
		}
		c.Global.MetricsPort = port
	}

	// Monitoring
	if val := os.Getenv("CAPADAPT_METRICS_ENABLED"); val != "" {
		c.Monitoring.Metrics.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("CAPADAPT_HEALTH_INTERVAL"); val != "" {
		interval, err := time.ParseDuration(val)
		if err != nil {
			return envError("CAPADAPT_HEALTH_INTERVAL", val, err)
		}
		c.Monitoring.HealthChecks.Interval = interval
	}
	if val := os.Getenv("CAPADAPT_API_ADDRESS"); val != "" {
		c.Monitoring.API.Enabled = true
		c.Monitoring.API.Address = val
	}

	// Backup settings
	if val := os.Getenv("CAPADAPT_BACKUP_DESTINATION"); val != "" {
		c.Backup.Destination = strings.ToLower(val)
	}
	if val := os.Getenv("CAPADAPT_BACKUP_DIR"); val != "" {
		c.Backup.Directory = val
	}
	if val := os.Getenv("CAPADAPT_BACKUP_PREFIX"); val != "" {
		c.Backup.Prefix = val
	}
	if val := os.Getenv("CAPADAPT_S3_BUCKET"); val != "" {
		c.Backup.S3.Bucket = val
	}
	if val := os.Getenv("CAPADAPT_S3_REGION"); val != "" {
		c.Backup.S3.Region = val
	}
	if val := os.Getenv("CAPADAPT_S3_ENDPOINT"); val != "" {
		c.Backup.S3.Endpoint = val
		c.Backup.S3.ForcePathStyle = true
	}

	return nil
}

func envError(name, value string, err error) error {
	return errors.Wrap(err, errors.ErrCodeInvalidConfig, "invalid environment variable "+name).
		WithContext("value", value)
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if strings.ToUpper(c.Global.LogLevel) == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return validationError("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	switch c.Global.LogFormat {
	case "", "text", "json":
	default:
		return validationError("invalid log_format: %s (must be text or json)", c.Global.LogFormat)
	}

	if c.Global.LogRotation.MaxSizeMB < 0 || c.Global.LogRotation.MaxBackups < 0 {
		return validationError("log_rotation limits cannot be negative")
	}

	if c.Global.MetricsPort < 0 || c.Global.MetricsPort > 65535 {
		return validationError("metrics_port out of range: %d", c.Global.MetricsPort)
	}

	seen := make(map[string]bool, len(c.Caches))
	for i := range c.Caches {
		def := &c.Caches[i]
		if def.Name == "" {
			return validationError("caches[%d]: name is required", i)
		}
		if seen[def.Name] {
			return validationError("caches[%d]: duplicate cache name %q", i, def.Name)
		}
		seen[def.Name] = true
		if err := def.Validate(); err != nil {
			return err
		}
	}

	switch c.Backup.Destination {
	case DestinationNone:
	case DestinationFile:
		if c.Backup.Directory == "" {
			return validationError("backup.directory is required for file backups")
		}
	case DestinationS3:
		if err := c.Backup.S3.Validate(); err != nil {
			return fmt.Errorf("backup.s3: %w", err)
		}
	default:
		return validationError("invalid backup.destination: %s (must be file or s3)", c.Backup.Destination)
	}
	if c.Backup.Retry.MaxAttempts < 0 {
		return validationError("backup.retry.max_attempts cannot be negative")
	}
	if c.Backup.CircuitBreaker.OpenTimeout < 0 {
		return validationError("backup.circuit_breaker.open_timeout cannot be negative")
	}

	if c.Monitoring.HealthChecks.Enabled && c.Monitoring.HealthChecks.Interval <= 0 {
		return validationError("monitoring.health_checks.interval must be greater than 0")
	}
	if c.Monitoring.API.Enabled && c.Monitoring.API.Address == "" {
		return validationError("monitoring.api.address is required when the api is enabled")
	}

	return nil
}

// Validate checks a single cache definition
func (d *CacheDefinition) Validate() error {
	switch d.Kind {
	case KindLRU, KindWeightedLRU:
	case KindMultiLevel:
		switch d.Policy {
		case "", "inclusive", "exclusive":
		default:
			return validationError("cache %s: invalid policy %q (must be inclusive or exclusive)", d.Name, d.Policy)
		}
		if d.L2Size != "" && d.Directory == "" {
			return validationError("cache %s: directory is required when l2_size is set", d.Name)
		}
		if _, err := parseOptionalSize(d.L2Size); err != nil {
			return validationError("cache %s: invalid l2_size: %v", d.Name, err)
		}
	case KindPersistent:
		if d.Directory == "" {
			return validationError("cache %s: directory is required for persistent caches", d.Name)
		}
	case KindDatabase:
		if d.Directory == "" && !d.InMemory {
			return validationError("cache %s: directory is required unless in_memory is set", d.Name)
		}
	default:
		return validationError("cache %s: unknown kind %q", d.Name, d.Kind)
	}

	if _, err := parseOptionalSize(d.MaxSize); err != nil {
		return validationError("cache %s: invalid max_size: %v", d.Name, err)
	}
	if d.MaxEntries < 0 {
		return validationError("cache %s: max_entries cannot be negative", d.Name)
	}
	if d.TTL < 0 {
		return validationError("cache %s: ttl cannot be negative", d.Name)
	}
	return nil
}

// MaxSizeBytes returns MaxSize in bytes, 0 when unset.
func (d *CacheDefinition) MaxSizeBytes() int64 {
	n, _ := parseOptionalSize(d.MaxSize)
	return n
}

// L2SizeBytes returns L2Size in bytes, 0 when unset.
func (d *CacheDefinition) L2SizeBytes() int64 {
	n, _ := parseOptionalSize(d.L2Size)
	return n
}

func validationError(format string, args ...interface{}) error {
	return errors.Newf(errors.ErrCodeConfigValidation, format, args...).WithComponent("config")
}

var sizeUnits = []struct {
	suffix     string
	multiplier int64
}{
	{"TB", 1024 * 1024 * 1024 * 1024},
	{"GB", 1024 * 1024 * 1024},
	{"MB", 1024 * 1024},
	{"KB", 1024},
	{"B", 1},
}

// ParseSize parses sizes such as "512", "64KB" or "1.5GB" into bytes
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.ToUpper(strings.TrimSpace(sizeStr))
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Handle plain numbers
	if val, err := strconv.ParseInt(sizeStr, 10, 64); err == nil {
		if val < 0 {
			return 0, fmt.Errorf("negative size: %s", sizeStr)
		}
		return val, nil
	}

	for _, unit := range sizeUnits {
		if strings.HasSuffix(sizeStr, unit.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(sizeStr, unit.suffix))
			val, err := strconv.ParseFloat(numStr, 64)
			if err != nil || val < 0 {
				break
			}
			return int64(val * float64(unit.multiplier)), nil
		}
	}

	return 0, fmt.Errorf("invalid size format: %s", sizeStr)
}

func parseOptionalSize(sizeStr string) (int64, error) {
	if strings.TrimSpace(sizeStr) == "" {
		return 0, nil
	}
	return ParseSize(sizeStr)
}
