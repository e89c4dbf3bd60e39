package mq

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes alert events to a Kafka topic, keyed by sensor
// type so that events of one sensor stay ordered within a partition.
type KafkaPublisher struct {
	writer kafkaMessageWriter
	topic  string
	logger *zap.Logger
}

// NewKafkaPublisher creates a synchronous writer for topic.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) (*KafkaPublisher, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("kafka topic must not be empty")
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}

	logger.Info("kafka publisher configured",
		zap.Strings("brokers", brokers),
		zap.String("topic", topic),
	)

	return newKafkaPublisher(writer, topic, logger), nil
}

func newKafkaPublisher(writer kafkaMessageWriter, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, topic: topic, logger: logger}
}

// PublishAlert writes one alert event.
func (p *KafkaPublisher) PublishAlert(ctx context.Context, event AlertEvent) error {
	body, err := event.encode()
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.SensorType),
		Value: body,
		Time:  time.UnixMilli(event.Timestamp),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID)},
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event to %s: %w", p.topic, err)
	}

	p.logger.Debug("published alert event",
		zap.String("topic", p.topic),
		zap.String("event_id", event.EventID),
		zap.String("sensor_type", event.SensorType),
	)
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
