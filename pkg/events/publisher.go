// Package events publishes domain events to Kafka with two delivery
// guarantees: best-effort for notifications whose loss is tolerable, and
// retried-then-parked for events downstream systems depend on.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dmehra2102/storefront/pkg/outbox"
	"github.com/dmehra2102/storefront/pkg/retry"
	"github.com/dmehra2102/storefront/pkg/tracing"
)

type Event struct {
	Topic   string
	Key     string
	Type    string
	Payload any
}

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Parker stores events whose delivery attempts ran out.
type Parker interface {
	Insert(ctx context.Context, event outbox.Event) error
}

type Publisher struct {
	log     *slog.Logger
	sync    Producer
	async   Producer
	parker  Parker
	policy  retry.Policy
	timeout time.Duration

	failures metric.Int64Counter
}

type Option func(*Publisher)

func WithPolicy(p retry.Policy) Option { return func(pub *Publisher) { pub.policy = p } }

// WithParker enables parking exhausted events in the outbox.
func WithParker(p Parker) Option { return func(pub *Publisher) { pub.parker = p } }

// NewPublisher builds a publisher. async is used for best-effort events and
// may be the same producer as sync.
func NewPublisher(log *slog.Logger, sync, async Producer, opts ...Option) *Publisher {
	p := &Publisher{
		log:     log,
		sync:    sync,
		async:   async,
		policy:  retry.PublishPolicy(),
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}

	counter, err := otel.Meter("storefront/events").Int64Counter("events.publish.failures",
		metric.WithDescription("events that could not be delivered to the broker"))
	if err != nil {
		log.Warn("events: failure counter unavailable", "err", err)
	}
	p.failures = counter
	return p
}

// Publish sends e without waiting for the outcome. Failures are logged and
// never reach the caller.
func (p *Publisher) Publish(ctx context.Context, e Event) {
	msg, err := p.message(ctx, e)
	if err != nil {
		p.log.Error("best-effort event not encoded", "topic", e.Topic, "err", err)
		return
	}
	if err := p.async.WriteMessages(ctx, msg); err != nil {
		p.countFailure(ctx, e.Topic, "best_effort")
		p.log.Warn("best-effort event publish failed", "topic", e.Topic, "key", e.Key, "err", err)
	}
}

// PublishWithRetry delivers e synchronously under the retry policy. When
// every attempt fails the event is parked in the outbox for the relay, so
// the caller never observes a publish error.
func (p *Publisher) PublishWithRetry(ctx context.Context, e Event) {
	ctx = context.WithoutCancel(ctx)

	msg, err := p.message(ctx, e)
	if err != nil {
		p.log.Error("event not encoded", "topic", e.Topic, "err", err)
		return
	}

	err = p.policy.Do(ctx, func(ctx context.Context, attempt int) (bool, error) {
		wctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		if err := p.sync.WriteMessages(wctx, msg); err != nil {
			p.log.Warn("event publish attempt failed", "topic", e.Topic, "key", e.Key, "attempt", attempt+1, "err", err)
			return false, err
		}
		return true, nil
	})
	if err == nil {
		return
	}

	p.countFailure(ctx, e.Topic, "retried")
	if p.parker == nil {
		p.log.Error("event lost after retries", "topic", e.Topic, "key", e.Key, "err", err)
		return
	}

	parked := outbox.Event{
		Topic:         e.Topic,
		AggregateType: e.Topic,
		AggregateID:   e.Key,
		Type:          e.Type,
		Payload:       msg.Value,
		Traceparent:   tracing.Traceparent(ctx),
	}
	if perr := p.parker.Insert(ctx, parked); perr != nil {
		p.log.Error("event lost after retries, outbox insert failed", "topic", e.Topic, "key", e.Key, "err", errors.Join(err, perr))
		return
	}
	p.log.Error("event publish failed after retries, parked in outbox", "topic", e.Topic, "key", e.Key, "err", err)
}

func (p *Publisher) message(ctx context.Context, e Event) (kafka.Message, error) {
	value, err := json.Marshal(e.Payload)
	if err != nil {
		return kafka.Message{}, err
	}
	var headers []kafka.Header
	if e.Type != "" {
		headers = append(headers, kafka.Header{Key: "event_type", Value: []byte(e.Type)})
	}
	return kafka.Message{
		Topic:   e.Topic,
		Key:     []byte(e.Key),
		Value:   value,
		Headers: tracing.InjectKafkaHeaders(ctx, headers),
		Time:    time.Now().UTC(),
	}, nil
}

func (p *Publisher) countFailure(ctx context.Context, topic, mode string) {
	if p.failures == nil {
		return
	}
	p.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("mode", mode),
	))
}
