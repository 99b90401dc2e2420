package types

import "time"

// Response is the fluent reply handle passed to handlers. Status may be
// called any number of times, the last value wins; Send finalizes the reply
// and only its first call has any effect.
type Response[T any] interface {
	Status(code int) Response[T]
	Send(value T)
}

// ListingResponse answers a directory listing with ordered entries.
type ListingResponse = Response[[]Entry]

// ReadResponse answers a read with the full file content.
type ReadResponse = Response[[]byte]

// NextFunc defers to the next lower-priority matching handler.
type NextFunc func()

// Handler answers a matched operation by sending on res or calling next.
type Handler[T any] func(req *Request, res Response[T], next NextFunc)

// ListingHandler answers directory listings.
type ListingHandler = Handler[[]Entry]

// ReadHandler answers file reads.
type ReadHandler = Handler[[]byte]

// MetricsCollector receives dispatcher observations
type MetricsCollector interface {
	RecordOperation(operation string, duration time.Duration, size int64, success bool)
	RecordFallback(operation string)
	RecordHandlerPanic(route string)
	UpdateOpenDescriptors(count int)
	UpdateCachedAttributes(count int)
}
