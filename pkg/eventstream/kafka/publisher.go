// Package kafka implements the eventstream publisher on a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mnemohq/mnemo/pkg/eventstream"
)

// DefaultTopic is the interaction-event topic when none is configured.
const DefaultTopic = "mnemo.interactions"

// Config holds Kafka publisher configuration.
type Config struct {
	// Brokers is the bootstrap broker list.
	Brokers []string

	// Topic is the destination topic. Defaults to DefaultTopic.
	Topic string
}

// Publisher writes interaction events to Kafka, keyed by channel id so a
// channel's events stay ordered within a partition.
type Publisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewPublisher creates a Kafka-backed eventstream publisher.
func NewPublisher(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	return &Publisher{writer: writer, logger: logger}, nil
}

// PublishInteraction writes one event. Publish failures are logged and
// returned; callers treat them as fire-and-forget losses, never as reply
// failures.
func (p *Publisher) PublishInteraction(ctx context.Context, event *eventstream.InteractionEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling interaction event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ChannelID),
		Value: payload,
	})
	if err != nil {
		p.logger.Warn("interaction event publish failed",
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
		return fmt.Errorf("publishing interaction event: %w", err)
	}

	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
