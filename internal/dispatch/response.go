package dispatch

import (
	"sync"

	"go.uber.org/zap"

	"github.com/routefs/routefs/pkg/types"
)

// reply is the finalized answer to one dispatch.
type reply[T any] struct {
	status int
	value  T
}

// response implements types.Response. The status in effect when Send is
// first called is delivered together with the value; later sends are dropped.
type response[T any] struct {
	logger *zap.Logger
	op     types.Operation
	path   string

	mu      sync.Mutex
	status  int
	sent    bool
	deliver func(status int, value T)
}

func newResponse[T any](logger *zap.Logger, op types.Operation, path string, deliver func(int, T)) *response[T] {
	return &response[T]{
		logger:  logger,
		op:      op,
		path:    path,
		deliver: deliver,
	}
}

// Status sets the status delivered by the next Send.
func (r *response[T]) Status(code int) types.Response[T] {
	r.mu.Lock()
	if !r.sent {
		r.status = code
	}
	r.mu.Unlock()
	return r
}

// Send finalizes the reply with value.
func (r *response[T]) Send(value T) {
	r.mu.Lock()
	if r.sent {
		r.mu.Unlock()
		r.logger.Warn("response already sent",
			zap.String("op", r.op.String()),
			zap.String("path", r.path))
		return
	}
	r.sent = true
	status := r.status
	r.mu.Unlock()

	r.deliver(status, value)
}

// finish replies with status and value, ignoring any status set by a
// handler, unless a reply was already sent.
func (r *response[T]) finish(status int, value T) {
	r.mu.Lock()
	if r.sent {
		r.mu.Unlock()
		return
	}
	r.sent = true
	r.mu.Unlock()

	r.deliver(status, value)
}
