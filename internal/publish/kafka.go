package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/efreitasn/marketsim/internal/domain"
)

// messageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes each tick as one message keyed by tick ID.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a synchronous publisher for topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// PublishTick writes one message keyed by the tick ID and waits for the
// brokers to acknowledge it.
func (p *KafkaPublisher) PublishTick(ctx context.Context, report *domain.TickReport) error {
	value, err := json.Marshal(NewTickEvent(report))
	if err != nil {
		return fmt.Errorf("marshal tick %s: %w", report.TickID, err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(report.TickID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(EventTickCompleted)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka publish tick %s: %w", report.TickID, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
