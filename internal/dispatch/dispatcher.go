package dispatch

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/routefs/routefs/internal/cache"
	"github.com/routefs/routefs/pkg/errors"
	"github.com/routefs/routefs/pkg/route"
	"github.com/routefs/routefs/pkg/types"
	"github.com/routefs/routefs/pkg/utils"
)

// Options configures a Dispatcher
type Options struct {
	Logger  *zap.Logger
	Metrics types.MetricsCollector

	// Defaults fills omitted listing attributes and the root record.
	// Nil means cache.NewDefaults().
	Defaults *cache.Defaults
}

// Dispatcher routes kernel operations to registered handlers and owns the
// attribute cache and open file table of one mount.
type Dispatcher struct {
	logger   *zap.Logger
	metrics  types.MetricsCollector
	defaults cache.Defaults

	mu            sync.RWMutex
	registrations []*registration

	attrs *cache.AttributeCache
	files *cache.OpenFileTable
}

// registration pairs a compiled route with the handler for its operation.
// Exactly one of listing and read is set.
type registration struct {
	matcher *route.Matcher
	listing types.ListingHandler
	read    types.ReadHandler
}

// match is a registration that accepted a path, with its captured params.
type match struct {
	reg    *registration
	params types.Params
}

// New creates a dispatcher with no routes.
func New(opts Options) *Dispatcher {
	defaults := cache.NewDefaults()
	if opts.Defaults != nil {
		defaults = *opts.Defaults
	}
	if defaults.Now == nil {
		defaults.Now = time.Now
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}

	return &Dispatcher{
		logger:   utils.LoggerOrNop(opts.Logger).Named("dispatch"),
		metrics:  metrics,
		defaults: defaults,
		attrs:    cache.NewAttributeCache(),
		files:    cache.NewOpenFileTable(),
	}
}

// RegisterListing adds a directory listing handler for pattern.
func (d *Dispatcher) RegisterListing(pattern string, handler types.ListingHandler) error {
	if handler == nil {
		return invalidHandler(pattern, types.OpReadDir)
	}
	return d.add(pattern, types.OpReadDir, &registration{listing: handler})
}

// RegisterRead adds a file read handler for pattern.
func (d *Dispatcher) RegisterRead(pattern string, handler types.ReadHandler) error {
	if handler == nil {
		return invalidHandler(pattern, types.OpRead)
	}
	return d.add(pattern, types.OpRead, &registration{read: handler})
}

// Register adds handler for pattern and op. The handler must have the
// signature of types.ListingHandler for readdir and types.ReadHandler for read.
func (d *Dispatcher) Register(pattern string, op types.Operation, handler any) error {
	switch op {
	case types.OpReadDir:
		switch h := handler.(type) {
		case types.ListingHandler:
			return d.RegisterListing(pattern, h)
		case func(*types.Request, types.ListingResponse, types.NextFunc):
			return d.RegisterListing(pattern, h)
		}
	case types.OpRead:
		switch h := handler.(type) {
		case types.ReadHandler:
			return d.RegisterRead(pattern, h)
		case func(*types.Request, types.ReadResponse, types.NextFunc):
			return d.RegisterRead(pattern, h)
		}
	default:
		return errors.NewError(errors.ErrCodeRouteInvalid, fmt.Sprintf("unknown operation %q", op)).
			WithComponent("dispatch").
			WithContext("route", pattern)
	}
	return invalidHandler(pattern, op)
}

func (d *Dispatcher) add(pattern string, op types.Operation, reg *registration) error {
	matcher, err := route.Compile(pattern, op)
	if err != nil {
		return err
	}
	reg.matcher = matcher

	d.mu.Lock()
	d.registrations = append(d.registrations, reg)
	d.mu.Unlock()

	d.logger.Debug("route registered",
		zap.String("route", pattern),
		zap.String("op", op.String()))
	return nil
}

// matches returns the registrations accepting path for op, in registration order.
func (d *Dispatcher) matches(path string, op types.Operation) []match {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var found []match
	for _, reg := range d.registrations {
		if params, ok := reg.matcher.Match(path, op); ok {
			found = append(found, match{reg: reg, params: params})
		}
	}
	return found
}

// Routes returns the registered patterns with their operation, in
// registration order.
func (d *Dispatcher) Routes() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	routes := make([]string, 0, len(d.registrations))
	for _, reg := range d.registrations {
		routes = append(routes, reg.matcher.Operation().String()+" "+reg.matcher.Route())
	}
	return routes
}

// Attributes exposes the attribute cache populated by listings.
func (d *Dispatcher) Attributes() *cache.AttributeCache {
	return d.attrs
}

// Files exposes the open file table.
func (d *Dispatcher) Files() *cache.OpenFileTable {
	return d.files
}

func invalidHandler(pattern string, op types.Operation) error {
	return errors.NewError(errors.ErrCodeRouteInvalid, "handler has the wrong signature for its operation").
		WithComponent("dispatch").
		WithOperation(op.String()).
		WithContext("route", pattern)
}

type nopMetrics struct{}

func (nopMetrics) RecordOperation(string, time.Duration, int64, bool) {}
func (nopMetrics) RecordFallback(string)                              {}
func (nopMetrics) RecordHandlerPanic(string)                          {}
func (nopMetrics) UpdateOpenDescriptors(int)                          {}
func (nopMetrics) UpdateCachedAttributes(int)                         {}
