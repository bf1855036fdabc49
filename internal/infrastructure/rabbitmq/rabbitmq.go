// Package rabbitmq publishes order events to a fanout exchange so other
// services (kitchen screens, receipt printers) can bind their own queues.
package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/brewtopia/cafepos/internal/infrastructure/notify"

	amqp "github.com/rabbitmq/amqp091-go"
)

const DefaultExchange = "orders_fanout"

var ErrNack = errors.New("rabbitmq: publish NACK from broker")

// channel is the subset of *amqp.Channel the sink uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Sink publishes with publisher confirms. Publishes are serialized and
// confirmations are matched by delivery tag, so a late confirm for a publish
// that timed out is skipped rather than credited to the next one.
type Sink struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	acks     <-chan amqp.Confirmation
	exchange string
	tag      uint64
}

// Dial connects, declares the durable fanout exchange and enables confirms.
func Dial(url, exchange string) (*Sink, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	return &Sink{conn: conn, ch: ch, acks: acks, exchange: exchange}, nil
}

func newSink(ch channel, acks <-chan amqp.Confirmation, exchange string) *Sink {
	return &Sink{ch: ch, acks: acks, exchange: exchange}
}

func (s *Sink) Name() string { return "rabbitmq" }

func (s *Sink) Deliver(ctx context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.ch.PublishWithContext(ctx, s.exchange, "", false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    msg.ID,
		Type:         string(msg.Kind),
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{"order_id": msg.Key},
		Body:         msg.Body,
	})
	if err != nil {
		return err
	}
	s.tag++

	for {
		select {
		case conf, ok := <-s.acks:
			if !ok {
				return amqp.ErrClosed
			}
			if conf.DeliveryTag < s.tag {
				continue
			}
			if !conf.Ack {
				return ErrNack
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Sink) Ping() error {
	if s.conn == nil || s.conn.IsClosed() {
		return errors.New("rabbitmq: connection is closed")
	}
	return nil
}

func (s *Sink) Close() error {
	var errs []error
	if s.ch != nil {
		errs = append(errs, s.ch.Close())
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
	}
	return errors.Join(errs...)
}
