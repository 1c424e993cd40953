package watch_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/olivier-mauras/kopf/watch"
	"github.com/olivier-mauras/kopf/watch/types"
)

// ---------------------------------------------------------------------------
// Benchmark: dispatch throughput across many objects (bursts coalesce, so
// handled events may be fewer than pushed events; that is the point).
// ---------------------------------------------------------------------------

func BenchmarkWatch_ManyObjects(b *testing.B) {
	var handled atomic.Int64
	handler := func(ctx context.Context, ev *types.Event) error {
		handled.Add(1)
		return nil
	}

	source, ch := newSource(1 << 16)
	done := make(chan error, 1)
	go func() {
		done <- watch.Watch(context.Background(), source, testResource, "", handler,
			watch.WithWorkersLimit(256),
			watch.WithIdleTimeout(time.Second),
			watch.WithBatchWindow(time.Millisecond),
			watch.WithExitTimeout(5*time.Second),
		)
	}()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ch <- event(fmt.Sprintf("obj-%d", i%512), "MODIFIED")
	}
	b.StopTimer()

	close(ch)
	<-done
	b.ReportMetric(float64(handled.Load()), "events_handled")
}
