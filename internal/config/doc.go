/*
Package config loads routefs configuration from defaults, YAML and the
environment.

# Precedence

	defaults (NewDefault) < YAML file (LoadFromFile) < ROUTEFS_* environment

Command-line flags are applied by cmd/routefs after Load and win over all
three.

	cfg, err := config.Load("/etc/routefs/config.yaml")
	if err != nil {
		return err
	}
	opts := cfg.MountOptions()
	defaults := cfg.AttributeDefaults()

# File Format

	global:
	  log_level: INFO        # DEBUG, INFO, WARN, ERROR
	  log_format: console    # console or json
	  log_file: ""           # stderr when empty

	mount:
	  path: /mnt/routefs
	  fsname: routefs
	  subtype: routefs
	  allow_other: false
	  debug: false
	  direct_io: true
	  attr_timeout: 1s
	  entry_timeout: 1s

	attributes:            # defaults for listing entries that omit fields
	  size: 100
	  file_mode: 0644
	  dir_mode: 0755
	  # uid and gid default to the process owner

	metrics:
	  enabled: false
	  port: 9100
	  path: /metrics

	source:
	  type: static           # static or s3
	  static:
	    /hello.txt: "hello"
	  s3:
	    bucket: my-bucket
	    prefix: exports/
	    region: us-east-1
	    endpoint: http://localhost:9000
	    use_path_style: true

# Environment

	ROUTEFS_LOG_LEVEL, ROUTEFS_LOG_FORMAT, ROUTEFS_LOG_FILE
	ROUTEFS_MOUNT_PATH, ROUTEFS_FSNAME, ROUTEFS_ALLOW_OTHER, ROUTEFS_DEBUG,
	ROUTEFS_DIRECT_IO, ROUTEFS_ATTR_TIMEOUT, ROUTEFS_ENTRY_TIMEOUT
	ROUTEFS_ATTR_SIZE
	ROUTEFS_METRICS_ENABLED, ROUTEFS_METRICS_PORT
	ROUTEFS_SOURCE, ROUTEFS_S3_BUCKET, ROUTEFS_S3_PREFIX, ROUTEFS_S3_REGION,
	ROUTEFS_S3_ENDPOINT, ROUTEFS_S3_USE_PATH_STYLE

Empty variables are ignored. A value that fails to parse makes LoadFromEnv
return a CONFIG_LOAD error; the field keeps its previous value.

# Validation

Validate runs go-playground/validator struct tags and then the cross-field
rules: a known log level, a port when metrics are enabled, a bucket for an
s3 source, paired static credentials and absolute static file paths.
Failures carry the CONFIG_VALIDATION code and the offending field in the
error context under "field".
*/
package config
