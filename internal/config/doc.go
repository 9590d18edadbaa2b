/*
Package config loads and validates capadapt configuration.

Configuration comes from three sources, later ones overriding earlier ones:

	┌─────────────────────────────────────────────┐
	│        Environment Variables                │ ← Highest Priority
	│           (CAPADAPT_*)                      │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration File (YAML)           │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                    │ ← Lowest Priority
	└─────────────────────────────────────────────┘

# Usage

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("/etc/capadapt/config.yaml"); err != nil {
		return err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

Unknown keys in the YAML file are rejected.

# File Format

	global:
	  log_level: INFO        # DEBUG, INFO, WARN, ERROR
	  log_format: text       # text or json
	  metrics_port: 9090

	caches:
	  - name: hot
	    kind: weighted_lru   # lru, weighted_lru, multilevel, persistent, database
	    max_size: 256MB
	    max_entries: 100000
	    ttl: 5m
	  - name: tiered
	    kind: multilevel
	    max_size: 64MB       # L1
	    l2_size: 4GB
	    directory: /var/cache/capadapt/tiered
	    policy: inclusive    # or exclusive
	  - name: index
	    kind: database
	    directory: /var/lib/capadapt/index
	    sync_writes: true

	backup:
	  destination: s3        # "", file or s3
	  directory: /var/backups/capadapt
	  prefix: nightly
	  s3:
	    bucket: cache-backups
	    region: us-east-1
	    storage_tier: STANDARD_IA
	  retry:
	    max_attempts: 3
	    initial_delay: 200ms

	monitoring:
	  metrics:
	    enabled: true
	    path: /metrics
	  health_checks:
	    enabled: true
	    interval: 30s
	    timeout: 5s

Sizes accept plain byte counts or B, KB, MB, GB and TB suffixes (see ParseSize).

# Environment Variables

	CAPADAPT_LOG_LEVEL           global.log_level
	CAPADAPT_LOG_FORMAT          global.log_format
	CAPADAPT_METRICS_PORT        global.metrics_port
	CAPADAPT_METRICS_ENABLED     monitoring.metrics.enabled
	CAPADAPT_HEALTH_INTERVAL     monitoring.health_checks.interval
	CAPADAPT_BACKUP_DESTINATION  backup.destination
	CAPADAPT_BACKUP_DIR          backup.directory
	CAPADAPT_BACKUP_PREFIX       backup.prefix
	CAPADAPT_S3_BUCKET           backup.s3.bucket
	CAPADAPT_S3_REGION           backup.s3.region
	CAPADAPT_S3_ENDPOINT         backup.s3.endpoint (also forces path-style)

Malformed numeric or duration values fail with INVALID_CONFIG.

# Validation

Validate returns CONFIG_VALIDATION errors for unknown log levels and formats,
duplicate or unnamed caches, unknown cache kinds, missing directories for
on-disk caches, malformed sizes, and incomplete backup destinations.
*/
package config
