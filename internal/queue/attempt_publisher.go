package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// AttemptPublisher emits attempt lifecycle events to Kafka.
type AttemptPublisher struct {
	writer *kafka.Writer
}

// NewAttemptPublisher constructs a publisher for the given topic.
func NewAttemptPublisher(k *Kafka, topic string) *AttemptPublisher {
	return &AttemptPublisher{writer: k.NewWriter(topic)}
}

// PublishAttempt writes the event to Kafka, keyed by attempt id so all
// transitions of one attempt land on the same partition in order.
func (p *AttemptPublisher) PublishAttempt(ctx context.Context, event AttemptEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("attempt publisher: marshal event: %w", err)
	}

	record := kafka.Message{
		Key:   event.AttemptID[:],
		Value: value,
		Time:  time.Now().UTC(),
	}

	if err := p.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("attempt publisher: write event: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *AttemptPublisher) Close() error {
	return p.writer.Close()
}
