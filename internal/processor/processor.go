// Package processor wires the service together: store, engine, consumer,
// worker pool, and the operational HTTP endpoints.
package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cropwatch/internal/config"
	"cropwatch/internal/engine"
	"cropwatch/internal/kafka"
	"cropwatch/internal/logger"
	"cropwatch/internal/middleware"
	"cropwatch/internal/store"
	"cropwatch/internal/worker"
)

// Processor is the high-level coordinator for consuming readings, evaluating
// rules, and persisting alerts and field status.
type Processor struct {
	cfg        *config.Config
	store      *store.Postgres
	consumer   *kafka.Consumer
	workerPool *worker.Pool
	httpServer *http.Server
	wg         sync.WaitGroup
}

// New constructs a Processor with given config.
func New(cfg *config.Config) *Processor {
	return &Processor{cfg: cfg}
}

// Run starts background goroutines and blocks until context cancelled.
func (p *Processor) Run(ctx context.Context) error {
	log := logger.WithComponent("processor")
	log.Info().Msg("processor starting")

	st, err := store.NewPostgres(ctx, p.cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	p.store = st
	defer p.store.Close()
	log.Info().Msg("store initialized")

	eng := engine.New(p.store)

	p.consumer, err = kafka.NewConsumer(kafka.Config{
		Brokers:         p.cfg.Kafka.Brokers,
		Topic:           p.cfg.Kafka.Topic,
		GroupID:         p.cfg.Kafka.GroupID,
		DeadLetterTopic: p.cfg.Kafka.DeadLetterTopic,
		QueueCapacity:   p.cfg.Pipeline.QueueCapacity,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize consumer: %w", err)
	}
	log.Info().
		Strs("brokers", p.cfg.Kafka.Brokers).
		Str("topic", p.cfg.Kafka.Topic).
		Str("dead_letter_topic", p.cfg.Kafka.DeadLetterTopic).
		Msg("kafka consumer initialized")

	// Bridge concrete kafka deliveries into the worker pool's channel. This is
	// the single queue between fetch loop and workers; the pool owns its gauges.
	deliveries := make(chan worker.Delivery, p.cfg.Pipeline.QueueCapacity)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(deliveries)
		for d := range p.consumer.Deliveries() {
			deliveries <- d
		}
	}()

	p.workerPool = worker.NewPool(worker.Config{
		Handler:    eng,
		Deliveries: deliveries,
		Workers:    p.cfg.Pipeline.Workers,
	})
	p.workerPool.Start()
	log.Info().Int("workers", p.cfg.Pipeline.Workers).Msg("worker pool initialized")

	p.initHTTPServer()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Info().Str("addr", p.cfg.HTTP.Addr).Msg("starting HTTP server")
		if err := p.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Internal context so a consumer failure also stops the background
	// goroutines that otherwise only exit on the caller's cancellation.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Fetch loop
	consumerErr := make(chan error, 1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		consumerErr <- p.consumer.Start(runCtx)
	}()

	// Stats reporting goroutine
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.reportStats(runCtx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case runErr = <-consumerErr:
		if runErr != nil {
			log.Error().Err(runErr).Msg("consumer failed")
		}
	}

	cancel()
	if err := p.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// initHTTPServer sets up the operational endpoints
func (p *Processor) initHTTPServer() {
	mux := http.NewServeMux()

	mux.Handle("/health", middleware.Chain(
		http.HandlerFunc(p.healthHandler),
		middleware.Recovery,
		middleware.Logging,
	))
	mux.Handle("/stats", middleware.Chain(
		http.HandlerFunc(p.statsHandler),
		middleware.Recovery,
		middleware.Logging,
	))
	mux.Handle("/metrics", promhttp.Handler())

	p.httpServer = &http.Server{
		Addr:         p.cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// shutdown performs graceful shutdown
func (p *Processor) shutdown() error {
	log := logger.WithComponent("processor")
	log.Info().Msg("initiating graceful shutdown")

	// 1. Stop fetching: closing the reader unblocks the fetch loop, which
	// closes the delivery channel and lets the workers drain.
	log.Info().Msg("closing kafka consumer")
	if err := p.consumer.Close(); err != nil {
		log.Error().Err(err).Msg("consumer close error")
	}

	// 2. Wait for in-flight messages to settle (with timeout)
	done := make(chan struct{})
	go func() {
		p.workerPool.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("workers stopped gracefully")
	case <-time.After(15 * time.Second):
		log.Warn().Msg("worker shutdown timeout - cancelling in-flight work")
		p.workerPool.Stop()
	}

	// 3. Stop the HTTP server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	if err := p.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 4. Wait for all goroutines
	p.wg.Wait()

	log.Info().Msg("processor stopped gracefully")
	return nil
}

// reportStats periodically logs statistics
func (p *Processor) reportStats(ctx context.Context) {
	log := logger.WithComponent("processor")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := p.workerPool.Stats()
			log.Info().
				Uint64("processed", stats.Processed).
				Uint64("failed", stats.Failed).
				Uint64("dead_lettered", stats.DeadLettered).
				Msg("stats")
		}
	}
}

// healthHandler handles health check requests
func (p *Processor) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := p.store.Ping(ctx); err != nil {
		http.Error(w, fmt.Sprintf("unhealthy: %v", err), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// statsHandler returns current statistics
func (p *Processor) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := p.workerPool.Stats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
		"worker": {
			"processed": %d,
			"failed": %d,
			"dead_lettered": %d
		}
	}`,
		stats.Processed,
		stats.Failed,
		stats.DeadLettered,
	)
}
