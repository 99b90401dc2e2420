package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/routefs/routefs/pkg/types"
	"github.com/routefs/routefs/pkg/utils"
)

var _ types.MetricsCollector = (*Collector)(nil)

// Collector records dispatcher observations as Prometheus metrics
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry
	logger   *zap.Logger

	// Prometheus metrics
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	operationSize     *prometheus.HistogramVec
	fallbackCounter   *prometheus.CounterVec
	panicCounter      *prometheus.CounterVec
	openDescriptors   prometheus.Gauge
	cachedAttributes  prometheus.Gauge

	// Internal tracking
	operations map[string]*OperationMetrics
	lastReset  time.Time

	server *http.Server
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// DefaultConfig returns the metrics defaults: disabled, port 9100.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   false,
		Port:      9100,
		Path:      "/metrics",
		Namespace: "routefs",
	}
}

// OperationMetrics tracks metrics for a specific operation type
type OperationMetrics struct {
	Count         int64         `json:"count"`
	TotalDuration time.Duration `json:"total_duration"`
	TotalSize     int64         `json:"total_size"`
	Errors        int64         `json:"errors"`
	LastOperation time.Time     `json:"last_operation"`
	AvgDuration   time.Duration `json:"avg_duration"`
}

// NewCollector creates a new metrics collector. A disabled collector
// accepts every observation and records nothing.
func NewCollector(config *Config, logger *zap.Logger) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}

	collector := &Collector{
		config:     config,
		logger:     utils.LoggerOrNop(logger).Named("metrics"),
		operations: make(map[string]*OperationMetrics),
		lastReset:  time.Now(),
	}
	if !config.Enabled {
		return collector, nil
	}

	collector.registry = prometheus.NewRegistry()
	collector.initMetrics()
	if err := collector.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return collector, nil
}

// Enabled reports whether observations are recorded.
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// Registry returns the Prometheus registry, nil when disabled.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics, health and debug endpoints.
func (c *Collector) Handler() http.Handler {
	mux := http.NewServeMux()
	if c.registry != nil {
		mux.Handle(c.path(), promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}
	mux.HandleFunc("/health", c.healthHandler)
	mux.HandleFunc("/debug/operations", c.debugOperationsHandler)
	return mux
}

// Start serves Handler on the configured port until Stop is called.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", c.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen for metrics: %w", err)
	}

	c.server = &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := c.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			c.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	c.logger.Info("metrics server listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", c.path()))
	return nil
}

// Stop stops the metrics server
func (c *Collector) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

// RecordOperation records an operation with its metrics
func (c *Collector) RecordOperation(operation string, duration time.Duration, size int64, success bool) {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	metrics, exists := c.operations[operation]
	if !exists {
		metrics = &OperationMetrics{}
		c.operations[operation] = metrics
	}
	metrics.Count++
	metrics.TotalDuration += duration
	metrics.TotalSize += size
	if !success {
		metrics.Errors++
	}
	metrics.LastOperation = time.Now()
	metrics.AvgDuration = time.Duration(int64(metrics.TotalDuration) / metrics.Count)
	c.mu.Unlock()

	status := "success"
	if !success {
		status = "error"
	}
	c.operationCounter.With(prometheus.Labels{"operation": operation, "status": status}).Inc()
	c.operationDuration.With(prometheus.Labels{"operation": operation}).Observe(duration.Seconds())
	if size > 0 {
		c.operationSize.With(prometheus.Labels{"operation": operation}).Observe(float64(size))
	}
}

// RecordFallback counts an operation answered without a handler.
func (c *Collector) RecordFallback(operation string) {
	if !c.config.Enabled {
		return
	}
	c.fallbackCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordHandlerPanic counts a recovered handler panic.
func (c *Collector) RecordHandlerPanic(route string) {
	if !c.config.Enabled {
		return
	}
	c.panicCounter.With(prometheus.Labels{"route": route}).Inc()
}

// UpdateOpenDescriptors sets the open descriptor gauge.
func (c *Collector) UpdateOpenDescriptors(count int) {
	if !c.config.Enabled {
		return
	}
	c.openDescriptors.Set(float64(count))
}

// UpdateCachedAttributes sets the cached attribute gauge.
func (c *Collector) UpdateCachedAttributes(count int) {
	if !c.config.Enabled {
		return
	}
	c.cachedAttributes.Set(float64(count))
}

// GetOperations returns a copy of the per-operation counters
func (c *Collector) GetOperations() map[string]OperationMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	operations := make(map[string]OperationMetrics, len(c.operations))
	for k, v := range c.operations {
		operations[k] = *v
	}
	return operations
}

// ResetMetrics resets the per-operation counters
func (c *Collector) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.operations = make(map[string]*OperationMetrics)
	c.lastReset = time.Now()
}

func (c *Collector) path() string {
	if c.config.Path == "" {
		return "/metrics"
	}
	return c.config.Path
}

func (c *Collector) initMetrics() {
	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "operations_total",
			Help:      "Total number of filesystem operations",
		},
		[]string{"operation", "status"},
	)

	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "operation_duration_seconds",
			Help:      "Duration of filesystem operations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16), // 100µs to ~3s
		},
		[]string{"operation"},
	)

	c.operationSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "operation_size",
			Help:      "Bytes read or entries listed per operation",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 12),
		},
		[]string{"operation"},
	)

	c.fallbackCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "fallbacks_total",
			Help:      "Operations answered by the fallback instead of a handler",
		},
		[]string{"operation"},
	)

	c.panicCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "handler_panics_total",
			Help:      "Handler panics recovered by the dispatcher",
		},
		[]string{"route"},
	)

	c.openDescriptors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "open_descriptors",
			Help:      "Number of open file descriptors",
		},
	)

	c.cachedAttributes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "cached_attributes",
			Help:      "Number of paths in the attribute cache",
		},
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.operationCounter,
		c.operationDuration,
		c.operationSize,
		c.fallbackCounter,
		c.panicCounter,
		c.openDescriptors,
		c.cachedAttributes,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}
	return nil
}

// HTTP handlers

func (c *Collector) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","service":"routefs"}`))
}

func (c *Collector) debugOperationsHandler(w http.ResponseWriter, r *http.Request) {
	operations := c.GetOperations()

	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	sort.Strings(names)

	type row struct {
		Operation string `json:"operation"`
		OperationMetrics
	}
	rows := make([]row, 0, len(names))
	for _, name := range names {
		rows = append(rows, row{Operation: name, OperationMetrics: operations[name]})
	}

	c.mu.RLock()
	uptime := time.Since(c.lastReset)
	c.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"uptime":     uptime.String(),
		"operations": rows,
	})
}
