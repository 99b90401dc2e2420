/*
Package adapter assembles a routefs host from configuration.

The Adapter is the piece cmd/routefs drives. It turns a validated
config.Configuration into a running mount:

	source (static | s3)  ->  routefs.App  ->  routefs.Session  ->  kernel
	                              |
	                        metrics.Collector  ->  /metrics, /health

Lifecycle:

	a, err := adapter.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	<-signals
	return a.Stop(context.Background())

New registers one listing route and one read route for the configured
source. Start serves metrics when enabled, then mounts cfg.Mount.Path and
returns once the binding confirms. Stop closes the session, which
unmounts and aggregates failures, and shuts the metrics server down.

ParseSourceURI accepts the --source flag forms "static", "s3" and
"s3://bucket/prefix".

Tests swap the S3 client with WithS3API and the kernel binding with
WithMountFactory.
*/
package adapter
