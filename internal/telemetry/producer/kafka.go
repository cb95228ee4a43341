package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"gym-frontdesk/backend/internal/telemetry/domain"
)

const (
	writeTimeout = 5 * time.Second
	batchTimeout = 50 * time.Millisecond

	// HeaderEventType and HeaderSource let consumers route without decoding the value.
	HeaderEventType = "event_type"
	HeaderSource    = "source"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer writes telemetry events to one Kafka topic.
type KafkaProducer struct {
	writer messageWriter
}

// NewKafkaProducer returns a producer for topic. It returns (nil, nil) when brokers or topic are
// empty; a nil *KafkaProducer is a valid no-op sink.
func NewKafkaProducer(brokers []string, topic string) (*KafkaProducer, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, nil
	}
	return &KafkaProducer{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		RequiredAcks: kafka.RequireOne,
	}}, nil
}

// Emit writes event as JSON. Messages are keyed by operator so one operator's session, device and
// shift events keep their order within a partition; events without an operator are keyed by source.
func (p *KafkaProducer) Emit(ctx context.Context, event *domain.Event) error {
	if p == nil || event == nil {
		return nil
	}
	msg, err := message(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s: %w", event.Type, err)
	}
	return nil
}

func message(event *domain.Event) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	key := event.UserID
	if key == "" {
		key = event.Source
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(event.Type)},
			{Key: HeaderSource, Value: []byte(event.Source)},
		},
	}, nil
}

// Close flushes and closes the writer. A nil producer is a no-op.
func (p *KafkaProducer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}

var _ Producer = (*KafkaProducer)(nil)
