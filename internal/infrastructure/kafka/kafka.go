// Package kafka appends order events to a topic keyed by order id, giving
// downstream consumers a per-order ordered history.
package kafka

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/brewtopia/cafepos/internal/infrastructure/notify"

	"github.com/segmentio/kafka-go"
)

const DefaultTopic = "cafepos.orders"

// messageWriter abstracts kafka.Writer for testability.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Sink struct {
	writer messageWriter
	closer io.Closer
	topic  string
}

// NewSink builds a synchronous writer. brokers is a comma-separated list.
func NewSink(brokers, topic string) (*Sink, error) {
	addrs := splitBrokers(brokers)
	if len(addrs) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Async:                  false,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Sink{writer: w, closer: w, topic: topic}, nil
}

// NewSinkWith is only for tests to inject a fake writer.
func NewSinkWith(w messageWriter, topic string) *Sink {
	return &Sink{writer: w, topic: topic}
}

func (s *Sink) Name() string { return "kafka" }

func (s *Sink) Deliver(ctx context.Context, msg notify.Message) error {
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Key),
		Value: msg.Body,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(msg.ID)},
			{Key: "event", Value: []byte(msg.Kind)},
			{Key: "content-type", Value: []byte("application/json")},
		},
	})
}

func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func splitBrokers(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
