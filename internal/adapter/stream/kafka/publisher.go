package kafka

import (
	"context"
	"fmt"
	"time"

	"sim-provisioning-notifier/config"
	"sim-provisioning-notifier/internal/core/domain"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher mirrors committed lifecycle events onto a Kafka topic.
// Messages are keyed by SIM id so each SIM's events stay ordered within a partition.
type Publisher struct {
	writer messageWriter
	topic  string
}

// NewPublisher creates a Publisher for cfg.Topic on cfg.Brokers.
func NewPublisher(cfg config.KafkaConfig) (*Publisher, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("kafka publisher requires brokers and a topic")
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
		},
		topic: cfg.Topic,
	}, nil
}

// Publish writes one event. payload is the same JSON delivered to webhooks.
func (p *Publisher) Publish(ctx context.Context, event *domain.DomainEvent, payload []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Sim.SimID.String()),
		Value: payload,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID.String())},
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.EventID, p.topic, err)
	}
	return nil
}

// Close flushes pending messages and releases the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
