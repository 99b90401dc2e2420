package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v2"

	"github.com/routefs/routefs/internal/cache"
	"github.com/routefs/routefs/internal/fuse"
	"github.com/routefs/routefs/pkg/errors"
)

// Source kinds accepted by SourceConfig.Type.
const (
	SourceStatic = "static"
	SourceS3     = "s3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ROUTEFS_"

// DefaultMaxObjectSize bounds the content held per open descriptor.
const DefaultMaxObjectSize = 256 << 20

// Configuration represents the complete application configuration
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	Mount      MountConfig      `yaml:"mount"`
	Attributes AttributesConfig `yaml:"attributes"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Source     SourceConfig     `yaml:"source"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level" validate:"required"`
	LogFormat string `yaml:"log_format" validate:"omitempty,oneof=console text json"`
	LogFile   string `yaml:"log_file"`
}

// MountConfig holds the kernel mount settings
type MountConfig struct {
	Path         string        `yaml:"path"`
	FSName       string        `yaml:"fsname" validate:"required"`
	Subtype      string        `yaml:"subtype"`
	AllowOther   bool          `yaml:"allow_other"`
	Debug        bool          `yaml:"debug"`
	DirectIO     bool          `yaml:"direct_io"`
	AttrTimeout  time.Duration `yaml:"attr_timeout" validate:"min=0"`
	EntryTimeout time.Duration `yaml:"entry_timeout" validate:"min=0"`
}

// AttributesConfig holds the defaults applied to listing entries that omit
// attribute fields. UID and GID default to the process owner when unset.
type AttributesConfig struct {
	Size     uint64  `yaml:"size"`
	FileMode uint32  `yaml:"file_mode" validate:"max=511"`
	DirMode  uint32  `yaml:"dir_mode" validate:"max=511"`
	UID      *uint32 `yaml:"uid,omitempty"`
	GID      *uint32 `yaml:"gid,omitempty"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port" validate:"min=0,max=65535"`
	Path    string `yaml:"path" validate:"omitempty,startswith=/"`
}

// SourceConfig selects the content served under the mount
type SourceConfig struct {
	Type   string            `yaml:"type" validate:"oneof=static s3"`
	Static map[string]string `yaml:"static"`
	S3     S3Config          `yaml:"s3"`
}

// S3Config represents the object store backing an s3 source
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint" validate:"omitempty,url"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	// MaxRetries caps request attempts; 0 keeps the SDK default.
	MaxRetries int `yaml:"max_retries" validate:"min=0,max=20"`
	// MaxObjectSize is the largest object a read materializes, in bytes.
	// 0 disables the limit.
	MaxObjectSize int64 `yaml:"max_object_size" validate:"min=0"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	mount := fuse.DefaultMountOptions()
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFormat: "console",
		},
		Mount: MountConfig{
			FSName:       mount.FSName,
			Subtype:      mount.Subtype,
			DirectIO:     mount.DirectIO,
			AttrTimeout:  mount.AttrTimeout,
			EntryTimeout: mount.EntryTimeout,
		},
		Attributes: AttributesConfig{
			Size:     cache.DefaultSize,
			FileMode: cache.DefaultFileMode,
			DirMode:  cache.DefaultDirMode,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9100,
			Path:    "/metrics",
		},
		Source: SourceConfig{
			Type: SourceStatic,
			S3: S3Config{
				Region:        "us-east-1",
				MaxRetries:    3,
				MaxObjectSize: DefaultMaxObjectSize,
			},
		},
	}
}

// Load builds a configuration from defaults, the optional YAML file and
// the environment, in that order, and validates the result.
func Load(filename string) (*Configuration, error) {
	cfg := NewDefault()
	if filename != "" {
		if err := cfg.LoadFromFile(filename); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigLoad, "failed to read config file").
			WithComponent("config").
			WithContext("file", filename)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigLoad, "failed to parse config file").
			WithComponent("config").
			WithContext("file", filename)
	}

	return nil
}

// LoadFromEnv applies ROUTEFS_* environment overrides. A value that does
// not parse is reported rather than ignored.
func (c *Configuration) LoadFromEnv() error {
	env := envReader{}

	// Global settings
	env.str("LOG_LEVEL", &c.Global.LogLevel)
	env.str("LOG_FORMAT", &c.Global.LogFormat)
	env.str("LOG_FILE", &c.Global.LogFile)

	// Mount settings
	env.str("MOUNT_PATH", &c.Mount.Path)
	env.str("FSNAME", &c.Mount.FSName)
	env.boolean("ALLOW_OTHER", &c.Mount.AllowOther)
	env.boolean("DEBUG", &c.Mount.Debug)
	env.boolean("DIRECT_IO", &c.Mount.DirectIO)
	env.duration("ATTR_TIMEOUT", &c.Mount.AttrTimeout)
	env.duration("ENTRY_TIMEOUT", &c.Mount.EntryTimeout)

	// Attribute defaults
	if val, ok := env.lookup("ATTR_SIZE"); ok {
		size, err := strconv.ParseUint(val, 10, 64)
		env.record("ATTR_SIZE", val, err)
		if err == nil {
			c.Attributes.Size = size
		}
	}

	// Metrics settings
	env.boolean("METRICS_ENABLED", &c.Metrics.Enabled)
	env.integer("METRICS_PORT", &c.Metrics.Port)

	// Source settings
	env.str("SOURCE", &c.Source.Type)
	env.str("S3_BUCKET", &c.Source.S3.Bucket)
	env.str("S3_PREFIX", &c.Source.S3.Prefix)
	env.str("S3_REGION", &c.Source.S3.Region)
	env.str("S3_ENDPOINT", &c.Source.S3.Endpoint)
	env.boolean("S3_USE_PATH_STYLE", &c.Source.S3.UsePathStyle)
	env.integer("S3_MAX_RETRIES", &c.Source.S3.MaxRetries)
	env.bytes("S3_MAX_OBJECT_SIZE", &c.Source.S3.MaxObjectSize)

	return env.err
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

// MountOptions converts the mount section for the kernel binding.
func (c *Configuration) MountOptions() *fuse.MountOptions {
	return &fuse.MountOptions{
		FSName:       c.Mount.FSName,
		Subtype:      c.Mount.Subtype,
		AllowOther:   c.Mount.AllowOther,
		Debug:        c.Mount.Debug,
		DirectIO:     c.Mount.DirectIO,
		AttrTimeout:  c.Mount.AttrTimeout,
		EntryTimeout: c.Mount.EntryTimeout,
	}
}

// AttributeDefaults converts the attributes section for the dispatcher.
func (c *Configuration) AttributeDefaults() cache.Defaults {
	defaults := cache.NewDefaults()
	defaults.Size = c.Attributes.Size
	defaults.FileMode = c.Attributes.FileMode
	if c.Attributes.UID != nil {
		defaults.UID = *c.Attributes.UID
	}
	if c.Attributes.GID != nil {
		defaults.GID = *c.Attributes.GID
	}
	return defaults
}

type envReader struct {
	err error
}

func (e *envReader) lookup(key string) (string, bool) {
	val, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

func (e *envReader) record(key, val string, err error) {
	if err == nil || e.err != nil {
		return
	}
	e.err = errors.Wrap(err, errors.ErrCodeConfigLoad, "invalid environment override").
		WithComponent("config").
		WithContext("variable", EnvPrefix+key).
		WithContext("value", val)
}

func (e *envReader) str(key string, dst *string) {
	if val, ok := e.lookup(key); ok {
		*dst = val
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	val, ok := e.lookup(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseBool(strings.ToLower(val))
	e.record(key, val, err)
	if err == nil {
		*dst = parsed
	}
}

func (e *envReader) integer(key string, dst *int) {
	val, ok := e.lookup(key)
	if !ok {
		return
	}
	parsed, err := strconv.Atoi(val)
	e.record(key, val, err)
	if err == nil {
		*dst = parsed
	}
}

// bytes accepts plain byte counts and sizes such as "64MiB" or "1GB".
func (e *envReader) bytes(key string, dst *int64) {
	val, ok := e.lookup(key)
	if !ok {
		return
	}
	parsed, err := humanize.ParseBytes(val)
	if err == nil && parsed > math.MaxInt64 {
		err = fmt.Errorf("size out of range")
	}
	e.record(key, val, err)
	if err == nil {
		*dst = int64(parsed)
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	val, ok := e.lookup(key)
	if !ok {
		return
	}
	parsed, err := time.ParseDuration(val)
	e.record(key, val, err)
	if err == nil {
		*dst = parsed
	}
}
