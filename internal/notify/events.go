package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/logger"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventChannel publishes every event to a Kafka topic, keyed by recipient so
// one user's events stay ordered.
type EventChannel struct {
	writer messageWriter
	topic  string
}

func NewEventChannel(brokers []string, topic string) (*EventChannel, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka event channel requires at least one broker")
	}
	return &EventChannel{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topic: topic,
	}, nil
}

func (c *EventChannel) Name() string { return "kafka" }

func (c *EventChannel) Deliver(ctx context.Context, event domain.Event, _ *domain.User) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	logger.ExternalServiceCall("kafka", "WriteMessages", "topic", c.topic, "type", event.Type)
	err = c.writer.WriteMessages(ctx, kafka.Message{
		Topic: c.topic,
		Key:   []byte(event.UserID),
		Value: payload,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
	logger.ExternalServiceResult("kafka", "WriteMessages", err, "topic", c.topic)
	return err
}

func (c *EventChannel) Close() error {
	return c.writer.Close()
}
