package watch

import (
	"context"
	"errors"

	"github.com/yaoapp/kun/log"

	"github.com/olivier-mauras/kopf/watch/types"
)

// worker consumes one object's queue until idle-timeout or end-of-stream,
// then removes the object's entry from the table and returns.
//
// The loop is a small state machine: wait for an event (idle timeout),
// coalesce a burst (batch window, latest event wins), dispatch, repeat.
// The end-of-stream marker never erases a real event already held: the
// worker drains whatever is queued, dispatches the last real event, and
// only then terminates.
func (w *watcher) worker(ctx context.Context, key types.ObjectRef) {
	q, ok := w.table.get(key)
	if !ok {
		return
	}

	// The entry must be gone on every exit path, panics included, so the
	// table never claims a live worker that is not there. remove tolerates
	// the entry being absent (removeIfIdle may have beaten it) and will not
	// touch a successor's queue.
	defer w.table.remove(key, q)

	stop := false
	for !stop {
		it, err := q.pop(ctx, w.cfg.IdleTimeout)
		if errors.Is(err, errReceiveTimeout) {
			// Idle long enough: release the queue. Refused only when an
			// event sneaked in after the timeout; then keep consuming.
			if w.table.removeIfIdle(key, q) {
				return
			}
			continue
		}
		if err != nil {
			return // forced shutdown via pool closure
		}

		// Coalesce the burst: within the batch window, a newer event
		// supersedes the held one; the end-of-stream marker requests a stop
		// but keeps the held event so the last state still gets dispatched.
		for {
			next, err := q.pop(ctx, w.cfg.BatchWindow)
			if errors.Is(err, errReceiveTimeout) {
				break
			}
			if err != nil {
				return
			}
			if next.eos {
				stop = true
				continue
			}
			it = next
		}

		// A bare end-of-stream with no real event coalesced around it:
		// nothing to dispatch, terminate right away.
		if it.eos {
			return
		}

		w.dispatch(ctx, key, it.event)
	}
}

// dispatch invokes the handler for one event. Handler failures and panics
// are logged and swallowed: one bad event must not stop the object's worker
// nor affect any other object.
func (w *watcher) dispatch(ctx context.Context, key types.ObjectRef, ev *types.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("watch worker: handler panic: key=%s err=%v; ignoring the event", key, r)
		}
	}()

	if err := w.handler(ctx, ev); err != nil {
		log.Error("watch worker: handler failed: key=%s err=%v; ignoring the event", key, err)
	}
}
