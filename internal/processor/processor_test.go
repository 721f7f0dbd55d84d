package processor

import (
	"context"
	"testing"
	"time"

	"cropwatch/internal/worker"
)

// A consumer failure must tear down the stats reporter too. The reporter only
// exits on context cancellation, so shutdown's wg.Wait would hang forever if
// the failure path returned without cancelling the internal context.
func TestStatsReporterStopsOnCancel(t *testing.T) {
	p := New(nil)
	p.workerPool = worker.NewPool(worker.Config{
		Deliveries: make(chan worker.Delivery),
	})

	runCtx, cancel := context.WithCancel(context.Background())

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.reportStats(runCtx)
	}()

	cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stats reporter did not stop after cancellation")
	}
}
