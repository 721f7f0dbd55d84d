package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"cropwatch/internal/metrics"
	"cropwatch/internal/models"
	"cropwatch/internal/worker"
)

// mockHandler is a mock implementation of Handler for testing
type mockHandler struct {
	calls atomic.Uint64
	err   error
	panic bool
}

func (m *mockHandler) Process(ctx context.Context, reading *models.SensorReading) error {
	m.calls.Add(1)
	if m.panic {
		panic("boom")
	}
	return m.err
}

// mockDelivery records which settlement action was taken
type mockDelivery struct {
	payload []byte

	completed    atomic.Bool
	abandoned    atomic.Bool
	deadLettered atomic.Bool
	reason       string
	description  string
}

func (d *mockDelivery) Payload() []byte { return d.payload }

func (d *mockDelivery) Complete(ctx context.Context) error {
	d.completed.Store(true)
	return nil
}

func (d *mockDelivery) Abandon() {
	d.abandoned.Store(true)
}

func (d *mockDelivery) DeadLetter(ctx context.Context, reason, description string) error {
	d.deadLettered.Store(true)
	d.reason = reason
	d.description = description
	return nil
}

func validPayload(t *testing.T) []byte {
	t.Helper()
	payload, err := json.Marshal(&models.SensorReading{
		ReadingID:     uuid.New(),
		FieldID:       uuid.New(),
		SoilHumidity:  40,
		Temperature:   20,
		Precipitation: 0,
		RecordedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return payload
}

// runOne pushes a single delivery through a one-worker pool and waits for it
// to settle.
func runOne(t *testing.T, handler *mockHandler, delivery *mockDelivery) {
	t.Helper()

	ch := make(chan worker.Delivery, 1)
	pool := worker.NewPool(worker.Config{
		Handler:    handler,
		Deliveries: ch,
		Workers:    1,
	})

	pool.Start()
	ch <- delivery
	close(ch)
	pool.Wait()
}

func TestSuccessfulProcessingCompletesDelivery(t *testing.T) {
	handler := &mockHandler{}
	delivery := &mockDelivery{payload: validPayload(t)}

	runOne(t, handler, delivery)

	if handler.calls.Load() != 1 {
		t.Errorf("handler calls = %d, want 1", handler.calls.Load())
	}
	if !delivery.completed.Load() {
		t.Error("delivery should be completed")
	}
	if delivery.abandoned.Load() || delivery.deadLettered.Load() {
		t.Error("only one settlement action may be taken")
	}
}

func TestProcessingFailureAbandonsDelivery(t *testing.T) {
	handler := &mockHandler{err: errors.New("transient store failure")}
	delivery := &mockDelivery{payload: validPayload(t)}

	runOne(t, handler, delivery)

	if !delivery.abandoned.Load() {
		t.Error("delivery should be abandoned for redelivery")
	}
	if delivery.completed.Load() || delivery.deadLettered.Load() {
		t.Error("failed delivery must not be acknowledged or dead-lettered")
	}
}

func TestMalformedPayloadIsDeadLettered(t *testing.T) {
	handler := &mockHandler{}
	delivery := &mockDelivery{payload: []byte(`{not json`)}

	runOne(t, handler, delivery)

	if handler.calls.Load() != 0 {
		t.Error("engine must not be invoked for an undecodable payload")
	}
	if !delivery.deadLettered.Load() {
		t.Fatal("malformed payload should be dead-lettered")
	}
	if delivery.reason != worker.ReasonInvalidPayload {
		t.Errorf("reason = %q, want %q", delivery.reason, worker.ReasonInvalidPayload)
	}
	if delivery.description == "" {
		t.Error("dead-letter description should not be empty")
	}
	if delivery.completed.Load() || delivery.abandoned.Load() {
		t.Error("dead-lettered delivery must not be otherwise settled")
	}
}

func TestInvalidReadingIsDeadLettered(t *testing.T) {
	handler := &mockHandler{}
	// Decodable JSON but missing identifiers.
	delivery := &mockDelivery{payload: []byte(`{"soilHumidity": 20}`)}

	runOne(t, handler, delivery)

	if handler.calls.Load() != 0 {
		t.Error("engine must not be invoked for a malformed reading")
	}
	if !delivery.deadLettered.Load() {
		t.Fatal("invalid reading should be dead-lettered")
	}
	if delivery.reason != worker.ReasonInvalidPayload {
		t.Errorf("reason = %q, want %q", delivery.reason, worker.ReasonInvalidPayload)
	}
}

func TestHandlerPanicAbandonsDelivery(t *testing.T) {
	handler := &mockHandler{panic: true}
	delivery := &mockDelivery{payload: validPayload(t)}

	runOne(t, handler, delivery)

	if !delivery.abandoned.Load() {
		t.Error("panicking handler should leave the delivery abandoned")
	}
	if delivery.completed.Load() {
		t.Error("panicking handler must not acknowledge the delivery")
	}
}

func TestOutOfRangeMetricsStillProcessed(t *testing.T) {
	handler := &mockHandler{}
	// Sensor glitches produce values outside physical ranges. They are still
	// well formed, so they reach the engine instead of the dead-letter topic.
	payload, err := json.Marshal(&models.SensorReading{
		ReadingID:     uuid.New(),
		FieldID:       uuid.New(),
		SoilHumidity:  150,
		Temperature:   20,
		Precipitation: -3,
		RecordedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	delivery := &mockDelivery{payload: payload}

	runOne(t, handler, delivery)

	if handler.calls.Load() != 1 {
		t.Errorf("handler calls = %d, want 1", handler.calls.Load())
	}
	if !delivery.completed.Load() {
		t.Error("out-of-range reading should complete, not dead-letter")
	}
	if delivery.deadLettered.Load() {
		t.Error("out-of-range reading must not be dead-lettered")
	}
}

func TestQueueCapacityGaugeMatchesDeliveryChannel(t *testing.T) {
	ch := make(chan worker.Delivery, 7)
	worker.NewPool(worker.Config{
		Handler:    &mockHandler{},
		Deliveries: ch,
		Workers:    1,
	})

	// The gauge must describe the channel workers actually drain, or the
	// reported prefetch bound is wrong.
	if got := testutil.ToFloat64(metrics.WorkerQueueCapacity); got != 7 {
		t.Errorf("queue capacity gauge = %v, want 7", got)
	}
}

func TestPoolStats(t *testing.T) {
	handler := &mockHandler{}
	ch := make(chan worker.Delivery, 4)
	pool := worker.NewPool(worker.Config{
		Handler:    handler,
		Deliveries: ch,
		Workers:    2,
	})

	pool.Start()
	for i := 0; i < 3; i++ {
		ch <- &mockDelivery{payload: validPayload(t)}
	}
	ch <- &mockDelivery{payload: []byte(`broken`)}
	close(ch)
	pool.Wait()

	stats := pool.Stats()
	if stats.Processed != 3 {
		t.Errorf("processed = %d, want 3", stats.Processed)
	}
	if stats.DeadLettered != 1 {
		t.Errorf("dead-lettered = %d, want 1", stats.DeadLettered)
	}
	if stats.Failed != 0 {
		t.Errorf("failed = %d, want 0", stats.Failed)
	}
}
