package watch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/olivier-mauras/kopf/watch/types"
)

var testResource = types.Resource{Group: "zalando.org", Version: "v1", Plural: "kopfexamples"}

func testKey(uid string) types.ObjectRef {
	return types.ObjectRef{Resource: testResource, Uid: types.ObjectUid(uid)}
}

func testEvent(uid string) *types.Event {
	return &types.Event{
		Type: "MODIFIED",
		Object: map[string]any{
			"metadata": map[string]any{"uid": uid},
		},
	}
}

// --- eventQueue ---

func TestQueue_FIFO(t *testing.T) {
	q := newEventQueue()
	q.push(item{event: testEvent("a")})
	q.push(item{event: testEvent("b")})
	q.push(item{event: testEvent("c")})

	for _, want := range []string{"a", "b", "c"} {
		it, err := q.pop(context.Background(), time.Second)
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if got := string(it.event.ObjectUid()); got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}
}

func TestQueue_PopTimeout(t *testing.T) {
	q := newEventQueue()

	start := time.Now()
	_, err := q.pop(context.Background(), 30*time.Millisecond)
	if !errors.Is(err, errReceiveTimeout) {
		t.Fatalf("expected errReceiveTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("pop returned too early: %v", elapsed)
	}
}

func TestQueue_PopWakesOnPush(t *testing.T) {
	q := newEventQueue()

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.push(item{event: testEvent("late")})
	}()

	it, err := q.pop(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if string(it.event.ObjectUid()) != "late" {
		t.Fatalf("unexpected item: %+v", it)
	}
}

func TestQueue_PopCancelled(t *testing.T) {
	q := newEventQueue()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := q.pop(ctx, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestQueue_EOSIsNotAnEvent(t *testing.T) {
	q := newEventQueue()
	q.push(item{eos: true})

	it, err := q.pop(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if !it.eos || it.event != nil {
		t.Fatalf("expected a bare eos item, got %+v", it)
	}
}

// --- queueTable ---

func TestTable_PushCreatesOnce(t *testing.T) {
	table := newQueueTable()
	key := testKey("u1")

	if created := table.push(key, testEvent("u1")); !created {
		t.Fatal("first push should create the queue")
	}
	if created := table.push(key, testEvent("u1")); created {
		t.Fatal("second push should reuse the queue")
	}
	if table.size() != 1 {
		t.Fatalf("expected 1 entry, got %d", table.size())
	}

	q, ok := table.get(key)
	if !ok {
		t.Fatal("queue missing")
	}
	for i := 0; i < 2; i++ {
		if _, err := q.pop(context.Background(), time.Second); err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
	}
}

func TestTable_RemoveIfIdle_RefusedWhenNonEmpty(t *testing.T) {
	table := newQueueTable()
	key := testKey("u1")
	table.push(key, testEvent("u1"))
	q, _ := table.get(key)

	if table.removeIfIdle(key, q) {
		t.Fatal("removal must be refused while the queue holds an event")
	}

	if _, err := q.pop(context.Background(), time.Second); err != nil {
		t.Fatalf("pop: %v", err)
	}
	if !table.removeIfIdle(key, q) {
		t.Fatal("removal should succeed once the queue is drained")
	}
	if table.size() != 0 {
		t.Fatalf("expected empty table, got %d entries", table.size())
	}
}

func TestTable_RemoveToleratesAbsent(t *testing.T) {
	table := newQueueTable()
	key := testKey("gone")
	table.remove(key, newEventQueue()) // no entry, no panic

	if !table.removeIfIdle(key, newEventQueue()) {
		t.Fatal("removeIfIdle on an absent entry should report done")
	}
}

func TestTable_RemoveSparesSuccessor(t *testing.T) {
	table := newQueueTable()
	key := testKey("u1")

	table.push(key, testEvent("u1"))
	old, _ := table.get(key)
	_, _ = old.pop(context.Background(), time.Second)
	if !table.removeIfIdle(key, old) {
		t.Fatal("idle removal should succeed")
	}

	// The dispatcher re-creates the entry for a successor worker.
	table.push(key, testEvent("u1"))

	// The old worker's deferred removal must not touch the new queue.
	table.remove(key, old)
	if table.size() != 1 {
		t.Fatal("the successor's queue entry was removed by its predecessor")
	}
}

func TestTable_BroadcastEOS(t *testing.T) {
	table := newQueueTable()
	keys := []types.ObjectRef{testKey("a"), testKey("b"), testKey("c")}
	for _, key := range keys {
		table.push(key, testEvent(string(key.Uid)))
	}

	table.broadcastEOS()

	for _, key := range keys {
		q, ok := table.get(key)
		if !ok {
			t.Fatalf("queue for %s missing", key)
		}
		it, err := q.pop(context.Background(), time.Second)
		if err != nil || it.eos {
			t.Fatalf("expected the real event first, got %+v err=%v", it, err)
		}
		it, err = q.pop(context.Background(), time.Second)
		if err != nil || !it.eos {
			t.Fatalf("expected eos after the real event, got %+v err=%v", it, err)
		}
	}
}
