/*
Package metrics exports routefs dispatcher observations as Prometheus metrics.

# Overview

Collector implements types.MetricsCollector. The dispatcher reports every
kernel operation it answers, every fallback reply, every recovered handler
panic and the sizes of its attribute cache and open descriptor table.

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      9100,
		Path:      "/metrics",
		Namespace: "routefs",
	}, logger)
	if err != nil {
		return err
	}

	if err := collector.Start(ctx); err != nil {
		return err
	}
	defer collector.Stop(ctx)

	d := dispatch.New(dispatch.Options{Logger: logger, Metrics: collector})

A disabled collector accepts every call and records nothing, so callers
never need a nil check.

# Exported Metrics

With the default namespace:

	routefs_operations_total{operation,status}       counter
	routefs_operation_duration_seconds{operation}    histogram
	routefs_operation_size{operation}                histogram
	routefs_fallbacks_total{operation}               counter
	routefs_handler_panics_total{route}              counter
	routefs_open_descriptors                         gauge
	routefs_cached_attributes                        gauge

status is "success" when the kernel received a non-negative reply and
"error" otherwise. operation_size counts bytes for read and entries for
readdir.

# HTTP Endpoints

Handler and Start expose:

	/metrics            Prometheus exposition (OpenMetrics enabled)
	/health             {"status":"healthy","service":"routefs"}
	/debug/operations   per-operation counts, sizes and average durations

Each Collector owns a private registry, so several collectors can coexist
in one process, which the tests rely on.
*/
package metrics
