// Package kafka bridges the sensor-readings topic to the processing workers.
// Consumption uses explicit offset commits: a delivery is completed only after
// the engine's transaction commits, abandoned deliveries stay uncommitted for
// broker-driven redelivery, and undecodable payloads go to the dead-letter
// topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/segmentio/kafka-go"

	"cropwatch/internal/logger"
	"cropwatch/internal/metrics"
)

// ErrConsumerClosed is returned when starting a consumer that was closed.
var ErrConsumerClosed = errors.New("consumer is closed")

// Config holds consumer configuration.
type Config struct {
	Brokers         []string
	Topic           string
	GroupID         string
	DeadLetterTopic string
	// QueueCapacity bounds the reader's internal prefetch. The delivery
	// channel itself is unbuffered; queueing between fetch loop and workers
	// belongs to the pool's channel.
	QueueCapacity int
}

// Consumer reads messages from the inbound topic and hands them to workers as
// settleable deliveries.
type Consumer struct {
	reader     *kafka.Reader
	dlq        *kafka.Writer
	deliveries chan *Delivery
	tracker    *commitTracker

	closeOnce sync.Once
}

// NewConsumer creates a consumer-group reader plus the dead-letter writer.
func NewConsumer(cfg Config) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("group ID is required")
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 10
	}
	if cfg.DeadLetterTopic == "" {
		cfg.DeadLetterTopic = cfg.Topic + ".deadletter"
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:       cfg.Brokers,
		GroupID:       cfg.GroupID,
		Topic:         cfg.Topic,
		QueueCapacity: cfg.QueueCapacity,
		MinBytes:      1,
		MaxBytes:      1 << 20,
	})

	dlq := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.DeadLetterTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}

	return &Consumer{
		reader:     reader,
		dlq:        dlq,
		deliveries: make(chan *Delivery),
		tracker:    newCommitTracker(),
	}, nil
}

// Deliveries is the channel workers drain.
func (c *Consumer) Deliveries() <-chan *Delivery {
	return c.deliveries
}

// Start fetches messages until ctx is cancelled or the reader is closed, then
// closes the delivery channel.
func (c *Consumer) Start(ctx context.Context) error {
	log := logger.WithComponent("consumer")
	log.Info().
		Str("topic", c.reader.Config().Topic).
		Str("group_id", c.reader.Config().GroupID).
		Msg("consumer started")

	defer close(c.deliveries)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				log.Info().Msg("consumer stopping")
				return nil
			}
			return fmt.Errorf("fetch failed: %w", err)
		}

		c.tracker.observe(msg.Partition, msg.Offset)

		select {
		case c.deliveries <- &Delivery{msg: msg, consumer: c}:
		case <-ctx.Done():
			return nil
		}
	}
}

// Close shuts down the reader and dead-letter writer.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if rErr := c.reader.Close(); rErr != nil {
			err = rErr
		}
		if wErr := c.dlq.Close(); wErr != nil && err == nil {
			err = wErr
		}
	})
	return err
}

// Delivery is one in-flight message plus its settlement handles. Exactly one
// of Complete, Abandon, or DeadLetter should be called per delivery.
type Delivery struct {
	msg      kafka.Message
	consumer *Consumer
}

// Payload returns the raw message body.
func (d *Delivery) Payload() []byte { return d.msg.Value }

// Complete acknowledges the message. The group offset only moves once every
// earlier offset of the partition has settled, so completing a later message
// never acknowledges an abandoned earlier one.
func (d *Delivery) Complete(ctx context.Context) error {
	return d.consumer.commitSettled(ctx, d.msg)
}

// Abandon leaves the offset uncommitted so the broker redelivers the message
// from the last committed position. No local retry or backoff happens here.
func (d *Delivery) Abandon() {
	log := logger.WithComponent("consumer")
	log.Warn().
		Str("topic", d.msg.Topic).
		Int("partition", d.msg.Partition).
		Int64("offset", d.msg.Offset).
		Msg("delivery abandoned for redelivery")
}

// DeadLetter routes the message to the dead-letter topic with a machine
// readable reason and a description, then commits the original offset. Dead
// lettered messages are terminal and never retried.
func (d *Delivery) DeadLetter(ctx context.Context, reason, description string) error {
	err := d.consumer.dlq.WriteMessages(ctx, kafka.Message{
		Key:   d.msg.Key,
		Value: d.msg.Value,
		Headers: []kafka.Header{
			{Key: "reason", Value: []byte(reason)},
			{Key: "description", Value: []byte(description)},
		},
	})
	if err != nil {
		return fmt.Errorf("dead-letter publish failed: %w", err)
	}

	metrics.DeadLetterTotal.WithLabelValues(reason).Inc()

	if err := d.consumer.commitSettled(ctx, d.msg); err != nil {
		return fmt.Errorf("dead-letter commit failed: %w", err)
	}

	return nil
}

// commitSettled marks the offset settled and commits the partition's
// contiguous settled prefix, if it advanced. A held-back settlement is not an
// error; its commit happens when the offsets before it settle, or after
// redelivery if they never do.
func (c *Consumer) commitSettled(ctx context.Context, msg kafka.Message) error {
	watermark, ok := c.tracker.settle(msg.Partition, msg.Offset)
	if !ok {
		return nil
	}

	m := msg
	m.Offset = watermark
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}

	return nil
}
