package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"govdash/pkg/logger"
)

const (
	readBackoffMin = 500 * time.Millisecond
	readBackoffMax = 30 * time.Second
)

// Consumer reads one topic for one consumer group
type Consumer struct {
	reader *kafka.Reader
	log    *logger.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int
}

// NewConsumer creates a consumer that starts at the newest offset; a
// relay only cares about events published while it runs
func NewConsumer(cfg ConsumerConfig, log *logger.Logger) *Consumer {
	if cfg.MinBytes == 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 1 << 20
	}

	log = log.With("component", "kafka_consumer", "topic", cfg.Topic, "group_id", cfg.GroupID)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		MaxWait:     time.Second,
		StartOffset: kafka.LastOffset,
	})

	log.Infow("Kafka consumer created", "brokers", cfg.Brokers)

	return &Consumer{
		reader: reader,
		log:    log,
	}
}

// MessageHandler processes a single message
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// Consume reads messages until ctx is cancelled, calling handler for each.
// Handler errors are logged and skip the message. Read errors back off
// exponentially so an unreachable broker does not spin.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	c.log.Info("Starting consumer...")

	backoff := readBackoffMin
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("Consumer stopped")
				return ctx.Err()
			}

			c.log.Warnw("Failed to read message", "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				c.log.Info("Consumer stopped")
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, readBackoffMax)
			continue
		}
		backoff = readBackoffMin

		if err := handler(ctx, msg); err != nil {
			c.log.Warnw("Failed to handle message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", string(msg.Key),
				"error", err,
			)
		}
	}
}

// Close closes the reader, unblocking Consume
func (c *Consumer) Close() error {
	return c.reader.Close()
}
