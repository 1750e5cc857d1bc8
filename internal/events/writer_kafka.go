package events

import (
	"context"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaWriter publishes events in the cloudevents structured JSON mode,
// keyed by subject so the events of one task stay ordered.
type KafkaWriter struct {
	writer messageWriter
}

func NewKafkaWriter(brokers []string) *KafkaWriter {
	return newKafkaWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: true,
	})
}

func newKafkaWriter(w messageWriter) *KafkaWriter {
	return &KafkaWriter{writer: w}
}

func (k *KafkaWriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	value, err := e.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding event %s: %w", e.ID(), err)
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(e.Subject()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/cloudevents+json")},
			{Key: "ce_type", Value: []byte(e.Type())},
		},
		Time: e.Time(),
	})
	if err != nil {
		return fmt.Errorf("kafka publish to %s: %w", topic, err)
	}
	return nil
}

func (k *KafkaWriter) Close(_ context.Context) error {
	return k.writer.Close()
}
