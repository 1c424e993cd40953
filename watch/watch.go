// Package watch turns the interleaved event stream of one resource kind into
// strictly-ordered per-object processing.
//
// Each object is identified by its uid and handled sequentially: its events
// reach the handler in arrival order, with rapid bursts collapsed to their
// latest member. Distinct objects are handled in parallel by fire-and-forget
// workers, bounded by a pool. Queues and workers are created on the first
// event for an object and destroyed after a period of silence, so a
// long-running watch does not accumulate state for objects that went quiet.
package watch

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/yaoapp/kun/log"

	"github.com/olivier-mauras/kopf/watch/types"
)

// watcher holds the per-watch state: one stream, one handler, one queue
// table, one worker pool.
type watcher struct {
	resource types.Resource
	handler  types.Handler
	cfg      Config
	table    *queueTable
	pool     *workerPool
}

// Watch consumes the event stream of one resource kind and dispatches every
// event to its object's worker, spawning workers on demand. It returns when
// the stream ends: nil on clean exhaustion or cancellation of ctx, otherwise
// the stream's error. Either way, the workers are first given a bounded
// grace period to finish (depletion), then the pool is closed, forcibly
// cancelling any stragglers.
func Watch(ctx context.Context, source types.Source, resource types.Resource, namespace string, handler types.Handler, opts ...Option) error {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	w := &watcher{
		resource: resource,
		handler:  handler,
		cfg:      cfg,
		table:    newQueueTable(),
		pool:     newWorkerPool(cfg.WorkersLimit, cfg.ExitTimeout),
	}

	// Pool closure must happen no matter how consumption or depletion end.
	defer w.pool.close()

	err := w.consume(ctx, source.Stream(ctx, resource, namespace))
	w.deplete()

	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// consume reads the stream strictly sequentially and routes each event into
// its object's queue. The first event for an object creates the queue and
// spawns its worker; both are fire-and-forget, the dispatcher never waits
// for a worker.
func (w *watcher) consume(ctx context.Context, stream types.Stream) error {
	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			return err
		}

		key := types.ObjectRef{Resource: w.resource, Uid: ev.ObjectUid()}
		if created := w.table.push(key, ev); created {
			key := key
			w.pool.spawn(func(ctx context.Context) {
				w.worker(ctx, key)
			})
		}
	}
}

// deplete lets the existing workers finish gracefully before the pool kills
// them: every queue gets the end-of-stream marker, then the table is polled
// until it empties, the workers all stop, or the exit timeout elapses.
// Leftover keys are reported, not failed on: shutdown is bounded by design
// and never blocks on a stuck handler.
func (w *watcher) deplete() {
	w.table.broadcastEOS()

	interval := w.cfg.ExitTimeout / types.DepletionPollingFraction
	deadline := time.Now().Add(w.cfg.ExitTimeout)
	for w.table.size() > 0 && w.pool.activeCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(interval)
	}

	if keys := w.table.keys(); len(keys) > 0 {
		log.Warn("watch %s: unprocessed queues left for %v", w.resource, keys)
	}
}
