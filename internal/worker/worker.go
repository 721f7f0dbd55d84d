package worker

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"cropwatch/internal/logger"
	"cropwatch/internal/metrics"
	"cropwatch/internal/models"
)

// ReasonInvalidPayload is the dead-letter reason code for undecodable or
// malformed sensor reading payloads.
const ReasonInvalidPayload = "invalid_payload"

// Handler processes one deserialized reading. Implemented by the alert engine.
type Handler interface {
	Process(ctx context.Context, reading *models.SensorReading) error
}

// Delivery is a settleable inbound message. Exactly one settlement action is
// taken per delivery: Complete after a successful cycle, Abandon on any
// processing failure (the broker redelivers), DeadLetter for terminal
// malformed payloads.
type Delivery interface {
	Payload() []byte
	Complete(ctx context.Context) error
	Abandon()
	DeadLetter(ctx context.Context, reason, description string) error
}

// Pool manages the workers that drain deliveries and run them through the
// engine. The worker count is the bound on concurrently processed messages.
type Pool struct {
	handler    Handler
	deliveries <-chan Delivery
	workers    int

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// Metrics
	processed    atomic.Uint64
	failed       atomic.Uint64
	deadLettered atomic.Uint64
}

// Config holds worker pool configuration
type Config struct {
	Handler    Handler
	Deliveries <-chan Delivery
	Workers    int
}

// NewPool creates a new worker pool
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Both queue gauges describe the one channel the workers drain.
	metrics.WorkerQueueCapacity.Set(float64(cap(cfg.Deliveries)))

	return &Pool{
		handler:    cfg.Handler,
		deliveries: cfg.Deliveries,
		workers:    cfg.Workers,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins processing deliveries
func (p *Pool) Start() {
	log := logger.WithComponent("worker_pool")
	log.Info().
		Int("workers", p.workers).
		Msg("starting worker pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop gracefully stops all workers
func (p *Pool) Stop() {
	log := logger.WithComponent("worker_pool")
	log.Info().Msg("stopping worker pool")
	p.cancel()
	p.wg.Wait()
	log.Info().Msg("worker pool stopped")
}

// Wait blocks until every worker has exited, which happens after the delivery
// channel is closed and drained.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// worker processes deliveries from the channel
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	log := logger.WithComponent("worker").With().Int("worker_id", id).Logger()

	log.Info().Msg("worker started")
	defer log.Info().Msg("worker stopped")

	for {
		select {
		case <-p.ctx.Done():
			return

		case delivery, ok := <-p.deliveries:
			if !ok {
				return
			}
			metrics.WorkerQueueSize.Set(float64(len(p.deliveries)))
			p.handle(delivery)
		}
	}
}

// handle runs the full consume, evaluate, settle cycle for one delivery.
func (p *Pool) handle(delivery Delivery) {
	log := logger.WithComponent("worker")
	start := time.Now()

	// Panic recovery: a panic while processing is a logic error and settles
	// like any other processing failure, unacknowledged for redelivery.
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			log.Error().
				Interface("panic", r).
				Bytes("stack", stack).
				Msg("worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("worker").Inc()
			metrics.EventsConsumed.WithLabelValues("error").Inc()
			p.failed.Add(1)
			delivery.Abandon()
		}
	}()
	defer func() {
		metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	var reading models.SensorReading
	if err := json.Unmarshal(delivery.Payload(), &reading); err != nil {
		p.deadLetter(delivery, "failed to deserialize sensor reading: "+err.Error())
		return
	}

	if err := reading.Validate(); err != nil {
		p.deadLetter(delivery, "invalid sensor reading: "+err.Error())
		return
	}

	if err := p.handler.Process(p.ctx, &reading); err != nil {
		log.Error().
			Err(err).
			Str("reading_id", reading.ReadingID.String()).
			Str("field_id", reading.FieldID.String()).
			Msg("processing failed, leaving message for redelivery")

		p.failed.Add(1)
		metrics.EventsConsumed.WithLabelValues("error").Inc()
		delivery.Abandon()
		return
	}

	if err := delivery.Complete(p.ctx); err != nil {
		// The unit of work is committed; a failed ack only means the broker
		// may redeliver, which the idempotent rule checks tolerate.
		log.Error().
			Err(err).
			Str("reading_id", reading.ReadingID.String()).
			Msg("failed to acknowledge message")

		p.failed.Add(1)
		metrics.EventsConsumed.WithLabelValues("error").Inc()
		return
	}

	p.processed.Add(1)
	metrics.EventsConsumed.WithLabelValues("success").Inc()
}

// deadLetter settles a terminal, non-retryable delivery.
func (p *Pool) deadLetter(delivery Delivery, description string) {
	log := logger.WithComponent("worker")
	log.Warn().
		Str("reason", ReasonInvalidPayload).
		Str("description", description).
		Msg("routing message to dead-letter topic")

	p.deadLettered.Add(1)
	metrics.EventsConsumed.WithLabelValues("dead_letter").Inc()

	if err := delivery.DeadLetter(p.ctx, ReasonInvalidPayload, description); err != nil {
		log.Error().Err(err).Msg("dead-letter routing failed")
		p.failed.Add(1)
	}
}

// Stats returns worker pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Processed:    p.processed.Load(),
		Failed:       p.failed.Load(),
		DeadLettered: p.deadLettered.Load(),
	}
}

// Stats holds worker pool metrics
type Stats struct {
	Processed    uint64
	Failed       uint64
	DeadLettered uint64
}
