package s3

import (
	"time"

	"github.com/capadapt/capadapt/pkg/errors"
)

// Config represents S3 backup sink configuration
type Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	ForcePathStyle  bool   `yaml:"force_path_style"`

	// Performance settings
	MaxRetries     int           `yaml:"max_retries"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Concurrency    int           `yaml:"concurrency"`

	// Advanced settings
	UseAccelerate bool `yaml:"use_accelerate"`
	UseDualStack  bool `yaml:"use_dual_stack"`

	// CargoShip optimization settings
	EnableCargoShipOptimization bool  `yaml:"enable_cargoship_optimization"`
	MultipartThreshold          int64 `yaml:"multipart_threshold"`
	MultipartChunkSize          int64 `yaml:"multipart_chunk_size"`

	// Storage tier for backup objects ("STANDARD", "STANDARD_IA", ...)
	StorageTier string `yaml:"storage_tier"`
}

// NewDefaultConfig returns a configuration with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Region:                      "us-east-1",
		MaxRetries:                  3,
		RequestTimeout:              30 * time.Second,
		Concurrency:                 4,
		EnableCargoShipOptimization: true,
		MultipartThreshold:          32 * 1024 * 1024,
		MultipartChunkSize:          16 * 1024 * 1024,
		StorageTier:                 TierStandardIA,
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.NewError(errors.ErrCodeMissingConfig, "bucket name cannot be empty").
			WithComponent("s3").WithOperation("validate")
	}
	if c.MaxRetries < 0 {
		return errors.NewError(errors.ErrCodeInvalidConfig, "max_retries cannot be negative").
			WithComponent("s3").WithDetail("max_retries", c.MaxRetries)
	}
	if c.Concurrency < 0 {
		return errors.NewError(errors.ErrCodeInvalidConfig, "concurrency cannot be negative").
			WithComponent("s3").WithDetail("concurrency", c.Concurrency)
	}
	if c.MultipartChunkSize > 0 && c.MultipartChunkSize < minPartSize {
		return errors.Newf(errors.ErrCodeInvalidConfig,
			"multipart_chunk_size must be at least %d bytes", minPartSize).
			WithComponent("s3").WithDetail("multipart_chunk_size", c.MultipartChunkSize)
	}
	if c.StorageTier != "" && !IsValidTier(c.StorageTier) {
		return errors.NewError(errors.ErrCodeInvalidConfig, "unknown storage tier: "+c.StorageTier).
			WithComponent("s3").WithDetail("storage_tier", c.StorageTier)
	}
	return nil
}

// S3 rejects multipart parts smaller than 5 MiB.
const minPartSize = 5 * 1024 * 1024
