package s3

import (
	"bytes"
	"context"
	stderrors "errors"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	awsconfig "github.com/scttfrdmn/cargoship/pkg/aws/config"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"

	"github.com/capadapt/capadapt/pkg/errors"
)

// objectAPI is the subset of the S3 client the sink needs.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type uploadFunc func(ctx context.Context, archive cargoships3.Archive) error

// Client stores backup artifacts in an S3 bucket
type Client struct {
	api    objectAPI
	upload uploadFunc
	config *Config
	logger *slog.Logger
}

// NewClient creates a new S3 backup client
func NewClient(ctx context.Context, cfg *Config, logger *slog.Logger) (*Client, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithRetryMaxAttempts(cfg.MaxRetries),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}

	// Load AWS configuration
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigLoad, "failed to load AWS config").
			WithComponent("s3")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
		if cfg.UseAccelerate {
			o.UseAccelerate = true
		}
		if cfg.UseDualStack {
			o.EndpointOptions.UseDualStackEndpoint = aws.DualStackEndpointStateEnabled
		}
	})

	c := newClient(client, cfg, logger)
	if cfg.EnableCargoShipOptimization {
		transporter := cargoships3.NewTransporter(client, awsconfig.S3Config{
			Bucket:             cfg.Bucket,
			StorageClass:       convertTierToCargoShipStorageClass(cfg.StorageTier),
			MultipartThreshold: cfg.MultipartThreshold,
			MultipartChunkSize: cfg.MultipartChunkSize,
			Concurrency:        cfg.Concurrency,
		})
		c.upload = func(ctx context.Context, archive cargoships3.Archive) error {
			result, err := transporter.Upload(ctx, archive)
			if err != nil {
				return err
			}
			c.logger.Debug("CargoShip optimized upload completed",
				"key", archive.Key,
				"size", archive.Size,
				"throughput", result.Throughput,
				"duration", result.Duration)
			return nil
		}
	}

	c.logger.Info("S3 backup client initialized",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"cargoship_enabled", c.upload != nil)
	return c, nil
}

func newClient(api objectAPI, cfg *Config, logger *slog.Logger) *Client {
	return &Client{
		api:    api,
		config: cfg,
		logger: logger.With("component", "s3", "bucket", cfg.Bucket),
	}
}

// Bucket returns the configured bucket name
func (c *Client) Bucket() string {
	return c.config.Bucket
}

// Key returns the object key a backup name is stored under.
func (c *Client) Key(name string) string {
	name = strings.TrimLeft(name, "/")
	if c.config.Prefix == "" {
		return name
	}
	return path.Join(c.config.Prefix, name)
}

// Store uploads body under name and returns its s3:// location.
func (c *Client) Store(ctx context.Context, name string, body []byte) (string, error) {
	if name == "" {
		return "", errors.NewError(errors.ErrCodeInvalidConfig, "object name cannot be empty").
			WithComponent("s3").WithOperation("Store")
	}
	if c.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}

	key := c.Key(name)
	location := "s3://" + c.config.Bucket + "/" + key

	if c.upload != nil {
		err := c.upload(ctx, cargoships3.Archive{
			Key:          key,
			Reader:       bytes.NewReader(body),
			Size:         int64(len(body)),
			StorageClass: convertTierToCargoShipStorageClass(c.config.StorageTier),
			Metadata: map[string]string{
				"capadapt-backup": "true",
				"content-type":    contentType(key),
			},
		})
		if err == nil {
			return location, nil
		}
		if ctx.Err() != nil {
			return "", c.translateError(ctx.Err(), "PutObject", key)
		}
		c.logger.Warn("CargoShip optimization failed, falling back to standard S3", "key", key, "error", err)
	}

	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.config.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType(key)),
		StorageClass:  convertTierToStorageClass(c.config.StorageTier),
		Metadata:      map[string]string{"capadapt-backup": "true"},
	})
	if err != nil {
		return "", c.translateError(err, "PutObject", key)
	}

	c.logger.Debug("Backup object stored", "key", key, "size", len(body))
	return location, nil
}

// HealthCheck verifies the bucket is reachable
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.config.Bucket)})
	if err != nil {
		return c.translateError(err, "HeadBucket", "")
	}
	return nil
}

func (c *Client) translateError(err error, operation, key string) error {
	var code errors.ErrorCode
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		code = errors.ErrCodeOperationTimeout
	case stderrors.Is(err, context.Canceled):
		code = errors.ErrCodeOperationCanceled
	case isErrorType[*s3types.NoSuchBucket](err):
		code = errors.ErrCodeBucketNotFound
	default:
		code = errors.ErrCodeStorageWrite
		var apiErr smithy.APIError
		if stderrors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "NoSuchBucket", "NotFound":
				code = errors.ErrCodeBucketNotFound
			case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
				code = errors.ErrCodeAccessDenied
			case "SlowDown", "RequestTimeout", "ServiceUnavailable", "InternalError":
				code = errors.ErrCodeNetworkError
			}
		}
	}

	e := errors.Wrap(err, code, operation+" failed").
		WithComponent("s3").
		WithOperation(operation).
		WithContext("bucket", c.config.Bucket)
	if key != "" {
		e = e.WithContext("key", key)
	}
	return e
}

func contentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".jsonl"):
		return "application/x-ndjson"
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// isErrorType checks if an error is of a specific type
func isErrorType[T error](err error) bool {
	var target T
	return stderrors.As(err, &target)
}
