/*
Package s3 stores cache backup artifacts in an AWS S3 bucket.

Client implements backup.Sink. Uploads go through the CargoShip transporter
when optimization is enabled and fall back to a plain PutObject when the
transporter fails:

	┌──────────────────────┐
	│   backup.Runner      │
	└──────────┬───────────┘
	           │ Store(ctx, name, body)
	┌──────────▼───────────┐
	│      s3.Client       │
	│  key = prefix/name   │
	└──────────┬───────────┘
	           │
	┌──────────▼───────────┐     failure     ┌──────────────┐
	│ CargoShip transporter├────────────────►│  PutObject   │
	└──────────────────────┘                 └──────────────┘

# Usage

	cfg := s3.NewDefaultConfig()
	cfg.Bucket = "cache-backups"
	cfg.Prefix = "prod"

	client, err := s3.NewClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	runner, err := backup.NewRunner(backup.RunnerConfig{Sink: client})

Static credentials are used when AccessKeyID and SecretAccessKey are set;
otherwise the default AWS credential chain applies. Endpoint and
ForcePathStyle support S3-compatible stores such as MinIO.

# Storage Tiers

Backups default to STANDARD_IA. StorageTier accepts any of the Tier
constants and is mapped to both the SDK and the CargoShip storage class.

# Errors

Failures are returned as *errors.CapAdaptError with component "s3":
BUCKET_NOT_FOUND, ACCESS_DENIED, OPERATION_TIMEOUT, OPERATION_CANCELED,
NETWORK_ERROR for throttling and 5xx responses, and STORAGE_WRITE
otherwise. NETWORK_ERROR and STORAGE_WRITE are retryable, so the backup
runner retries them.
*/
package s3
