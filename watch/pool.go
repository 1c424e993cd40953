package watch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yaoapp/kun/log"
)

// workerPool bounds the number of concurrently running per-key workers.
//
// Capacity is enforced with a buffered-channel semaphore: spawn always
// accepts the task, but its goroutine does not begin the task until a slot
// frees. This starting-delay is the only backpressure in the engine; it
// throttles concurrent handler invocations, never stream consumption.
//
// The pool carries its own context, detached from the watch context, so that
// workers survive stream cancellation long enough for graceful depletion.
// close cancels that context and is the single forced-cancellation path.
type workerPool struct {
	sem          chan struct{}
	wg           sync.WaitGroup
	active       atomic.Int32
	abandonAfter time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func newWorkerPool(limit int, abandonAfter time.Duration) *workerPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &workerPool{
		sem:          make(chan struct{}, limit),
		abandonAfter: abandonAfter,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// spawn runs task as a fire-and-forget goroutine once a pool slot is free.
// Never fails due to capacity. The task receives the pool's context and is
// expected to return promptly once it is cancelled.
func (p *workerPool) spawn(task func(ctx context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case p.sem <- struct{}{}:
		case <-p.ctx.Done():
			return
		}
		defer func() { <-p.sem }()

		p.active.Add(1)
		defer p.active.Add(-1)

		task(p.ctx)
	}()
}

// activeCount reports the tasks currently running (started, not finished).
func (p *workerPool) activeCount() int {
	return int(p.active.Load())
}

// close cancels all outstanding tasks and waits for them to unwind, but not
// forever: a task stuck in a handler that ignores its context cannot be
// killed, so after abandonAfter the pool gives up on it and returns. Safe
// with zero tasks active; safe to call more than once.
func (p *workerPool) close() {
	p.once.Do(func() {
		p.cancel()

		unwound := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(unwound)
		}()
		select {
		case <-unwound:
		case <-time.After(p.abandonAfter):
			log.Warn("worker pool: %d workers did not unwind in %v, abandoning them", p.activeCount(), p.abandonAfter)
		}
	})
}
