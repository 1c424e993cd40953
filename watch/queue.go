package watch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/olivier-mauras/kopf/watch/types"
)

// errReceiveTimeout distinguishes a timed-receive expiry from cancellation.
// The idle timeout ends the worker; the batch window ends only coalescing.
var errReceiveTimeout = errors.New("watch: receive timed out")

// item is one slot of a per-object queue: either a real event or the
// end-of-stream marker. The marker is a tagged variant, not an in-band
// event value, so it can never collide with a real payload.
type item struct {
	event *types.Event
	eos   bool
}

// eventQueue is the unbounded FIFO between the dispatcher and one worker.
// The dispatcher is the only writer, the owning worker the only reader.
type eventQueue struct {
	mu    sync.Mutex
	items []item
	ready chan struct{} // wakeup signal, capacity 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{ready: make(chan struct{}, 1)}
}

// push appends an item. Never blocks, never fails: the queue is unbounded
// so the dispatcher is never suspended by a slow worker.
func (q *eventQueue) push(it item) {
	q.mu.Lock()
	q.items = append(q.items, it)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// pop receives the next item, waiting up to timeout. Returns
// errReceiveTimeout on expiry and ctx.Err() on cancellation.
func (q *eventQueue) pop(ctx context.Context, timeout time.Duration) (item, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			it := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return it, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-timer.C:
			return item{}, errReceiveTimeout
		case <-ctx.Done():
			return item{}, ctx.Err()
		}
	}
}

func (q *eventQueue) empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

// queueTable maps object keys to their pending-event queues. It is the
// single source of truth for "is there a live worker for this key":
// the dispatcher inserts entries, each worker removes its own.
type queueTable struct {
	mu     sync.Mutex
	queues map[types.ObjectRef]*eventQueue
}

func newQueueTable() *queueTable {
	return &queueTable{queues: make(map[types.ObjectRef]*eventQueue)}
}

// push enqueues an event for the key, creating the queue if absent.
// Lookup and enqueue happen under one lock so an entry can never vanish
// between the two; returns whether a new queue (hence a new worker) is needed.
func (t *queueTable) push(key types.ObjectRef, ev *types.Event) (created bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, ok := t.queues[key]
	if !ok {
		q = newEventQueue()
		t.queues[key] = q
		created = true
	}
	q.push(item{event: ev})
	return created
}

func (t *queueTable) get(key types.ObjectRef) (*eventQueue, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	q, ok := t.queues[key]
	return q, ok
}

// remove deletes the key's entry, but only if it still is the given queue:
// once a worker released its key, the dispatcher may have re-created the
// entry for a successor worker, and that one is not ours to delete.
// Tolerates the entry being absent already.
func (t *queueTable) remove(key types.ObjectRef, q *eventQueue) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.queues[key] == q {
		delete(t.queues, key)
	}
}

// removeIfIdle deletes the key's entry only if its queue is still empty.
// An idle-expired worker must call this instead of remove: if the dispatcher
// pushed an event between the expiry and the removal, the removal is refused
// and the worker resumes consuming, so the event is never orphaned.
func (t *queueTable) removeIfIdle(key types.ObjectRef, q *eventQueue) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.queues[key]
	if !ok || cur != q {
		return true
	}
	if !cur.empty() {
		return false
	}
	delete(t.queues, key)
	return true
}

// broadcastEOS pushes the end-of-stream marker onto every queue, waking
// workers blocked in their receive. Part of the depletion protocol.
func (t *queueTable) broadcastEOS() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, q := range t.queues {
		q.push(item{eos: true})
	}
}

func (t *queueTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queues)
}

func (t *queueTable) keys() []types.ObjectRef {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]types.ObjectRef, 0, len(t.queues))
	for key := range t.queues {
		keys = append(keys, key)
	}
	return keys
}
