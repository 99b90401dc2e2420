package dispatch

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/routefs/routefs/pkg/types"
)

// link is one matched handler in a chain.
type link[T any] struct {
	route   string
	params  types.Params
	handler types.Handler[T]
}

// chain runs matched handlers from the last registered to the first. Each
// handler's next invokes the link registered immediately before it, and the
// first registered link's next invokes the fallback.
type chain[T any] struct {
	ctx      context.Context
	op       types.Operation
	path     string
	links    []link[T]
	res      *response[T]
	fallback func(res *response[T])

	logger  *zap.Logger
	metrics types.MetricsCollector
}

func (c *chain[T]) start() {
	c.invoke(len(c.links) - 1)
}

// invoke runs the link at position i, or the fallback once i is below zero.
func (c *chain[T]) invoke(i int) {
	if i < 0 {
		c.metrics.RecordFallback(c.op.String())
		c.fallback(c.res)
		return
	}

	l := c.links[i]
	var called atomic.Bool
	next := func() {
		if !called.CompareAndSwap(false, true) {
			c.logger.Debug("next called more than once",
				zap.String("route", l.route),
				zap.String("path", c.path))
			return
		}
		c.invoke(i - 1)
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler panicked",
				zap.String("route", l.route),
				zap.String("op", c.op.String()),
				zap.String("path", c.path),
				zap.Any("panic", r),
				zap.Stack("stack"))
			c.metrics.RecordHandlerPanic(l.route)
			var zero T
			c.res.finish(types.StatusIO, zero)
		}
	}()

	l.handler(types.NewRequest(c.ctx, c.op, c.path, l.params), c.res, next)
}

// run dispatches path through links and blocks until the first reply.
// Handlers may reply from another goroutine; a handler that neither replies
// nor calls next blocks the caller indefinitely.
func run[T any](ctx context.Context, d *Dispatcher, op types.Operation, path string, links []link[T],
	fallback func(res *response[T]), deliver func(status int, value T) reply[T]) reply[T] {
	done := make(chan reply[T], 1)
	res := newResponse(d.logger, op, path, func(status int, value T) {
		done <- deliver(status, value)
	})

	c := &chain[T]{
		ctx:      ctx,
		op:       op,
		path:     path,
		links:    links,
		res:      res,
		fallback: fallback,
		logger:   d.logger,
		metrics:  d.metrics,
	}
	c.start()

	return <-done
}
