package types

import "context"

// Stream is a lazy, unbounded sequence of watch events for one resource kind.
//
// Next blocks until an event is available, the stream ends, or ctx is done.
// A clean end of stream is reported as io.EOF; any other error is a stream
// failure. Reconnects, retries, and resume-after-error are the stream's own
// business: the engine never re-opens a stream.
type Stream interface {
	Next(ctx context.Context) (*Event, error)
}

// Source opens watch streams. The namespace scopes the stream; the empty
// string means cluster-wide.
type Source interface {
	Stream(ctx context.Context, resource Resource, namespace string) Stream
}

// Handler processes one (possibly coalesced) event for one object.
//
// Handlers run on the worker's goroutine and may block; a returned error is
// logged and swallowed. It never stops the worker, and the event is not
// re-delivered. Retry policy, if any, belongs to the handler itself.
type Handler func(ctx context.Context, ev *Event) error
