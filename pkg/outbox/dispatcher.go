package outbox

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/storefront/pkg/tracing"
)

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Dispatcher struct {
	log          *slog.Logger
	producer     Producer
	defaultTopic string
	tracer       trace.Tracer
}

// NewDispatcher builds a dispatcher. defaultTopic is used for events parked
// without a topic.
func NewDispatcher(log *slog.Logger, producer Producer, defaultTopic string) *Dispatcher {
	return &Dispatcher{log: log, producer: producer, defaultTopic: defaultTopic, tracer: otel.Tracer("outbox-relay")}
}

// Dispatch delivers one parked event. The delivery span continues the
// trace the event was parked under.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	topic := event.Topic
	if topic == "" {
		topic = d.defaultTopic
	}

	ctx, span := d.tracer.Start(tracing.WithTraceparent(ctx, event.Traceparent), "outbox.Dispatch", trace.WithAttributes(
		attribute.Int64("event_id", event.ID),
		attribute.String("topic", topic),
		attribute.Int("retry_count", event.RetryCount),
	))
	defer span.End()

	headers := make([]kafka.Header, 0, len(event.Headers)+2)
	for k, v := range event.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	headers = append(headers, kafka.Header{Key: "event_type", Value: []byte(event.Type)})
	if event.Traceparent != "" {
		tracing.HeaderCarrier{Headers: &headers}.Set(tracing.TraceparentHeader, event.Traceparent)
	}

	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(event.AggregateID),
		Value:   event.Payload,
		Headers: headers,
	}
	if err := d.producer.WriteMessages(ctx, msg); err != nil {
		d.log.Error("outbox dispatch failed", "event_id", event.ID, "topic", topic, "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	d.log.Info("outbox dispatched", "event_id", event.ID, "type", event.Type, "topic", topic)
	return nil
}
