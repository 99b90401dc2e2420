// routefs mounts a read-only filesystem whose directories and files are
// answered by route handlers over a static tree or an S3 bucket.
//
// Usage:
//
//	routefs [flags] [mount-point]
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/routefs/routefs/internal/adapter"
	"github.com/routefs/routefs/internal/config"
	"github.com/routefs/routefs/pkg/utils"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := loadConfig(args, os.Stderr)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := adapter.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down", zap.String("mount_point", cfg.Mount.Path))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Stop(shutdownCtx); err != nil {
		// Already logged per path by the session.
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	return nil
}

// flagValues mirrors the command-line overrides.
type flagValues struct {
	configPath  string
	mountPath   string
	logLevel    string
	logFormat   string
	logFile     string
	source      string
	bucket      string
	prefix      string
	region      string
	endpoint    string
	pathStyle   bool
	metricsPort int
	allowOther  bool
	debug       bool
}

// loadConfig layers defaults, the config file, the environment and the
// flags that were set, then validates the result.
func loadConfig(args []string, usage io.Writer) (*config.Configuration, error) {
	var v flagValues

	flagSet := pflag.NewFlagSet("routefs", pflag.ContinueOnError)
	flagSet.SetOutput(usage)
	flagSet.StringVarP(&v.configPath, "config", "c", "", "path to a YAML configuration file")
	flagSet.StringVarP(&v.mountPath, "mount", "m", "", "mount point (or the first argument)")
	flagSet.StringVar(&v.logLevel, "log-level", "", "log level: DEBUG, INFO, WARN, ERROR")
	flagSet.StringVar(&v.logFormat, "log-format", "", "log format: console or json")
	flagSet.StringVar(&v.logFile, "log-file", "", "write logs to this file instead of stderr")
	flagSet.StringVar(&v.source, "source", "", "content source: static, s3 or s3://bucket/prefix")
	flagSet.StringVar(&v.bucket, "bucket", "", "S3 bucket for the s3 source")
	flagSet.StringVar(&v.prefix, "prefix", "", "S3 key prefix mapped to the mount root")
	flagSet.StringVar(&v.region, "region", "", "S3 region")
	flagSet.StringVar(&v.endpoint, "endpoint", "", "S3-compatible endpoint URL")
	flagSet.BoolVar(&v.pathStyle, "path-style", false, "use path-style S3 addressing")
	flagSet.IntVar(&v.metricsPort, "metrics-port", 0, "serve Prometheus metrics on this port")
	flagSet.BoolVar(&v.allowOther, "allow-other", false, "allow other users to access the mount")
	flagSet.BoolVar(&v.debug, "debug", false, "enable debug logging and FUSE tracing")
	flagSet.Usage = func() {
		fmt.Fprintf(usage, "Usage: routefs [flags] [mount-point]\n\nFlags:\n")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}

	cfg := config.NewDefault()
	if v.configPath != "" {
		if err := cfg.LoadFromFile(v.configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	rest := flagSet.Args()
	switch {
	case len(rest) > 1:
		return nil, fmt.Errorf("unexpected argument: %s", rest[1])
	case len(rest) == 1 && v.mountPath != "":
		return nil, fmt.Errorf("mount point given twice: --mount %s and %s", v.mountPath, rest[0])
	case len(rest) == 1:
		cfg.Mount.Path = rest[0]
	}

	if err := applyFlags(cfg, flagSet, &v); err != nil {
		return nil, err
	}
	if cfg.Mount.Path == "" {
		return nil, fmt.Errorf("a mount point is required (--mount or first argument)")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(cfg *config.Configuration, flagSet *pflag.FlagSet, v *flagValues) error {
	set := flagSet.Changed

	if set("mount") {
		cfg.Mount.Path = v.mountPath
	}
	if set("log-level") {
		cfg.Global.LogLevel = strings.ToUpper(v.logLevel)
	}
	if set("log-format") {
		cfg.Global.LogFormat = v.logFormat
	}
	if set("log-file") {
		cfg.Global.LogFile = v.logFile
	}
	if set("source") {
		kind, bucket, prefix, err := adapter.ParseSourceURI(v.source)
		if err != nil {
			return err
		}
		cfg.Source.Type = kind
		if bucket != "" {
			cfg.Source.S3.Bucket = bucket
			cfg.Source.S3.Prefix = prefix
		}
	}
	if set("bucket") {
		cfg.Source.S3.Bucket = v.bucket
	}
	if set("prefix") {
		cfg.Source.S3.Prefix = v.prefix
	}
	if set("region") {
		cfg.Source.S3.Region = v.region
	}
	if set("endpoint") {
		cfg.Source.S3.Endpoint = v.endpoint
	}
	if set("path-style") {
		cfg.Source.S3.UsePathStyle = v.pathStyle
	}
	if set("metrics-port") {
		cfg.Metrics.Port = v.metricsPort
		cfg.Metrics.Enabled = v.metricsPort > 0
	}
	if set("allow-other") {
		cfg.Mount.AllowOther = v.allowOther
	}
	if set("debug") && v.debug {
		cfg.Global.LogLevel = "DEBUG"
		cfg.Mount.Debug = true
	}
	return nil
}

func newLogger(cfg *config.Configuration) (*zap.Logger, error) {
	return utils.NewLogger(utils.LoggerConfig{
		Level:  cfg.Global.LogLevel,
		Format: cfg.Global.LogFormat,
		File:   cfg.Global.LogFile,
	})
}
