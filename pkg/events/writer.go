package events

import (
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// NewSyncWriter returns a writer that waits for every in-sync replica to
// acknowledge. Messages carry their own topic.
func NewSyncWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}
}

// NewAsyncWriter returns a fire-and-forget writer. Delivery failures only
// reach the log.
func NewAsyncWriter(brokers []string, log *slog.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  true,
		BatchTimeout:           50 * time.Millisecond,
		Completion: func(msgs []kafka.Message, err error) {
			if err == nil {
				return
			}
			for _, m := range msgs {
				log.Warn("best-effort event not delivered", "topic", m.Topic, "key", string(m.Key), "err", err)
			}
		},
	}
}
