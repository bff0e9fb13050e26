package outbox

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer часть kafka.Writer, которая нужна диспетчеру
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Dispatcher публикует события outbox в топик
type Dispatcher struct {
	logger   *zap.Logger
	producer Producer
	topic    string
}

func NewDispatcher(logger *zap.Logger, producer Producer, topic string) *Dispatcher {
	return &Dispatcher{logger: logger, producer: producer, topic: topic}
}

// NewKafkaWriter создаёт writer с подтверждением от всех реплик
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

// Dispatch отправляет одно событие; ключ сообщения = id агрегата
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	headers := make([]kafka.Header, 0, len(event.Headers)+2)
	for k, v := range event.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	headers = append(headers, kafka.Header{Key: "event_type", Value: []byte(event.Type)})
	if event.Traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(event.Traceparent)})
	}

	msg := kafka.Message{
		Key:     []byte(event.AggregateID),
		Value:   event.Payload,
		Headers: headers,
	}
	if d.topic != "" {
		msg.Topic = d.topic
	}

	if err := d.producer.WriteMessages(ctx, msg); err != nil {
		d.logger.Error("Outbox dispatch failed",
			zap.Int64("event_id", event.ID),
			zap.String("type", event.Type),
			zap.Error(err))
		return fmt.Errorf("dispatch event %d: %w", event.ID, err)
	}

	d.logger.Debug("Outbox event dispatched",
		zap.Int64("event_id", event.ID),
		zap.String("type", event.Type))
	return nil
}
