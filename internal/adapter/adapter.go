package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/routefs/routefs/internal/config"
	"github.com/routefs/routefs/internal/fuse"
	"github.com/routefs/routefs/internal/metrics"
	"github.com/routefs/routefs/internal/storage/s3"
	"github.com/routefs/routefs/internal/storage/static"
	"github.com/routefs/routefs/pkg/routefs"
	"github.com/routefs/routefs/pkg/utils"
)

// Adapter wires a configured source, the metrics endpoint and one mount.
type Adapter struct {
	config    *config.Configuration
	logger    *zap.Logger
	app       *routefs.App
	session   *routefs.Session
	collector *metrics.Collector
	s3API     s3.API
	factory   routefs.MountFactory
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithS3API replaces the S3 client built from configuration.
func WithS3API(api s3.API) Option {
	return func(a *Adapter) { a.s3API = api }
}

// WithMountFactory replaces the kernel binding.
func WithMountFactory(factory routefs.MountFactory) Option {
	return func(a *Adapter) { a.factory = factory }
}

// New validates cfg and registers the configured source.
func New(ctx context.Context, cfg *config.Configuration, logger *zap.Logger, opts ...Option) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &Adapter{
		config: cfg,
		logger: utils.LoggerOrNop(logger),
	}
	for _, opt := range opts {
		opt(a)
	}

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   cfg.Metrics.Enabled,
		Port:      cfg.Metrics.Port,
		Path:      cfg.Metrics.Path,
		Namespace: "routefs",
	}, a.logger)
	if err != nil {
		return nil, err
	}
	a.collector = collector

	defaults := cfg.AttributeDefaults()
	a.app = routefs.New(routefs.Options{
		Logger:   a.logger,
		Metrics:  collector,
		Defaults: &defaults,
	})

	if err := a.registerSource(ctx); err != nil {
		return nil, err
	}

	var sessionOpts []routefs.SessionOption
	if a.factory != nil {
		sessionOpts = append(sessionOpts, routefs.WithMountFactory(a.factory))
	}
	a.session = routefs.NewSession(a.logger, sessionOpts...)

	return a, nil
}

func (a *Adapter) registerSource(ctx context.Context) error {
	switch a.config.Source.Type {
	case config.SourceStatic:
		src := static.New(a.config.Source.Static, a.config.Attributes.DirMode, time.Now())
		if err := a.app.Ls(static.Pattern, src.Listing()); err != nil {
			return err
		}
		if err := a.app.Read(static.Pattern, src.Read()); err != nil {
			return err
		}
		a.logger.Info("serving static files", zap.Int("files", len(src.Paths())))

	case config.SourceS3:
		s3cfg := a.config.Source.S3
		api := a.s3API
		if api == nil {
			client, err := s3.NewClient(ctx, &s3.Config{
				Region:          s3cfg.Region,
				Endpoint:        s3cfg.Endpoint,
				AccessKeyID:     s3cfg.AccessKeyID,
				SecretAccessKey: s3cfg.SecretAccessKey,
				ForcePathStyle:  s3cfg.UsePathStyle,
				MaxRetries:      s3cfg.MaxRetries,
			})
			if err != nil {
				return err
			}
			api = client
		}

		src := &s3.Source{
			API:           api,
			Bucket:        s3cfg.Bucket,
			Prefix:        s3cfg.Prefix,
			DirMode:       a.config.Attributes.DirMode,
			MaxObjectSize: s3cfg.MaxObjectSize,
			Logger:        a.logger,
		}
		if err := a.app.Ls(src.Pattern(), src.Listing()); err != nil {
			return err
		}
		if err := a.app.Read(src.Pattern(), src.Read()); err != nil {
			return err
		}
		a.logger.Info("serving bucket",
			zap.String("bucket", s3cfg.Bucket),
			zap.String("prefix", s3cfg.Prefix))

	default:
		return fmt.Errorf("unsupported source type: %s", a.config.Source.Type)
	}
	return nil
}

// Start serves metrics and mounts the configured path.
func (a *Adapter) Start(ctx context.Context) error {
	if err := a.collector.Start(ctx); err != nil {
		return err
	}

	a.logger.Info("starting routefs",
		zap.String("mount_point", a.config.Mount.Path),
		zap.String("source", a.config.Source.Type),
		zap.String("binding", fuse.BindingName),
		zap.Strings("routes", a.app.Routes()))

	if err := a.session.Mount(ctx, a.config.Mount.Path, a.app, a.config.MountOptions()); err != nil {
		_ = a.collector.Stop(ctx)
		return err
	}
	return nil
}

// Stop unmounts everything and stops the metrics endpoint. It is safe to
// call more than once.
func (a *Adapter) Stop(ctx context.Context) error {
	var result *multierror.Error
	if err := a.session.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := a.collector.Stop(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// App returns the routes being served.
func (a *Adapter) App() *routefs.App {
	return a.app
}

// Session returns the mount session.
func (a *Adapter) Session() *routefs.Session {
	return a.session
}

// ParseSourceURI reads a --source value: "static", "s3" or
// "s3://bucket/prefix". Bucket and prefix are empty unless given.
func ParseSourceURI(uri string) (kind, bucket, prefix string, err error) {
	switch uri {
	case config.SourceStatic, config.SourceS3:
		return uri, "", "", nil
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to parse URI: %w", err)
	}

	switch parsed.Scheme {
	case "s3":
		if parsed.Host == "" {
			return "", "", "", fmt.Errorf("S3 URI must include bucket name")
		}
		prefix = strings.TrimPrefix(parsed.Path, "/")
		return config.SourceS3, parsed.Host, prefix, nil
	default:
		return "", "", "", fmt.Errorf("unsupported source: %q (use static, s3 or s3://bucket/prefix)", uri)
	}
}
