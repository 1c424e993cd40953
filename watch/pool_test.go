package watch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_CapacityBound(t *testing.T) {
	pool := newWorkerPool(3, time.Second)
	defer pool.close()

	var peak, current atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		pool.spawn(func(ctx context.Context) {
			defer wg.Done()
			c := current.Add(1)
			for {
				old := peak.Load()
				if c <= old || peak.CompareAndSwap(old, c) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			current.Add(-1)
		})
	}
	wg.Wait()

	if p := peak.Load(); p > 3 {
		t.Fatalf("peak concurrency %d exceeded the pool capacity 3", p)
	}
	if p := peak.Load(); p < 2 {
		t.Fatalf("peak concurrency %d seems too low", p)
	}
}

func TestPool_SpawnNeverRejects(t *testing.T) {
	pool := newWorkerPool(1, time.Second)
	defer pool.close()

	// Saturate the single slot, then spawn more: every spawn is accepted,
	// the extra tasks simply start later.
	var started atomic.Int32
	release := make(chan struct{})
	pool.spawn(func(ctx context.Context) {
		started.Add(1)
		<-release
	})
	for i := 0; i < 5; i++ {
		pool.spawn(func(ctx context.Context) {
			started.Add(1)
		})
	}

	time.Sleep(50 * time.Millisecond)
	if n := started.Load(); n != 1 {
		t.Fatalf("expected only the first task running, got %d", n)
	}

	close(release)
	time.Sleep(100 * time.Millisecond)
	if n := started.Load(); n != 6 {
		t.Fatalf("expected all 6 tasks to have run, got %d", n)
	}
}

func TestPool_ActiveCount(t *testing.T) {
	pool := newWorkerPool(4, time.Second)
	defer pool.close()

	if pool.activeCount() != 0 {
		t.Fatalf("fresh pool should be idle, got %d", pool.activeCount())
	}

	release := make(chan struct{})
	for i := 0; i < 3; i++ {
		pool.spawn(func(ctx context.Context) {
			<-release
		})
	}
	time.Sleep(50 * time.Millisecond)

	if n := pool.activeCount(); n != 3 {
		t.Fatalf("expected 3 active tasks, got %d", n)
	}

	close(release)
	time.Sleep(50 * time.Millisecond)
	if n := pool.activeCount(); n != 0 {
		t.Fatalf("expected 0 active tasks after release, got %d", n)
	}
}

func TestPool_CloseCancelsRunning(t *testing.T) {
	pool := newWorkerPool(2, time.Second)

	var cancelled atomic.Int32
	for i := 0; i < 2; i++ {
		pool.spawn(func(ctx context.Context) {
			<-ctx.Done()
			cancelled.Add(1)
		})
	}
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		pool.close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("close did not return")
	}
	if n := cancelled.Load(); n != 2 {
		t.Fatalf("expected both tasks cancelled, got %d", n)
	}
}

func TestPool_CloseDiscardsQueued(t *testing.T) {
	pool := newWorkerPool(1, time.Second)

	var ran atomic.Int32
	block := make(chan struct{})
	pool.spawn(func(ctx context.Context) {
		ran.Add(1)
		select {
		case <-block:
		case <-ctx.Done():
		}
	})
	// Still waiting for the slot when the pool closes: must never run.
	pool.spawn(func(ctx context.Context) {
		ran.Add(1)
	})
	time.Sleep(20 * time.Millisecond)

	pool.close()
	if n := ran.Load(); n != 1 {
		t.Fatalf("expected only the first task to run, got %d", n)
	}
}

func TestPool_CloseIdempotent(t *testing.T) {
	pool := newWorkerPool(2, time.Second)
	pool.close() // zero tasks active
	pool.close() // and again, from an error path
}
