package telemetry

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by session so one session stays on one partition
type KafkaPublisher struct {
	writer kafkaMessageWriter
	log    *slog.Logger
}

// NewKafkaPublisher creates an async writer. Delivery errors surface through the log.
func NewKafkaPublisher(brokers []string, topic string, log *slog.Logger) (*KafkaPublisher, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("kafka topic must not be empty")
	}
	if len(brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}

	log = log.With(slog.String("component", "kafka_publisher"))
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Warn("kafka_publish_err", slog.Int("messages", len(messages)), slog.Any("err", err))
			}
		},
	}

	log.Info("kafka_publisher_ready", slog.String("topic", topic), slog.Any("brokers", brokers))
	return &KafkaPublisher{writer: w, log: log}, nil
}

func newKafkaPublisher(w kafkaMessageWriter, log *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, log: log.With(slog.String("component", "kafka_publisher"))}
}

// Publish queues one event
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := encode(ev)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}

	msg := kafka.Message{
		Key:   []byte(ev.Session),
		Value: payload,
		Time:  ev.Time,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "kafka publish")
	}
	return nil
}

// Close flushes pending messages
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
