package rabbitmq

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/brewtopia/cafepos/internal/domain/order"
	"github.com/brewtopia/cafepos/internal/infrastructure/notify"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	published []amqp.Publishing
	exchanges []string
	acks      chan amqp.Confirmation
	ack       bool
	err       error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, _ string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.exchanges = append(f.exchanges, exchange)
	f.published = append(f.published, msg)
	f.acks <- amqp.Confirmation{DeliveryTag: uint64(len(f.published)), Ack: f.ack}
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func newFake(ack bool) *fakeChannel {
	return &fakeChannel{acks: make(chan amqp.Confirmation, 1), ack: ack}
}

var msg = notify.Message{ID: "evt-1", Kind: domain.EventPaid, Key: "42", Body: []byte(`{"event":"paid"}`)}

func TestDeliverPublishesPersistentJSON(t *testing.T) {
	ch := newFake(true)
	sink := newSink(ch, ch.acks, DefaultExchange)

	require.NoError(t, sink.Deliver(context.Background(), msg))
	require.Len(t, ch.published, 1)

	pub := ch.published[0]
	assert.Equal(t, DefaultExchange, ch.exchanges[0])
	assert.Equal(t, amqp.Persistent, pub.DeliveryMode)
	assert.Equal(t, "application/json", pub.ContentType)
	assert.Equal(t, "paid", pub.Type)
	assert.Equal(t, "evt-1", pub.MessageId)
	assert.Equal(t, "42", pub.Headers["order_id"])
	assert.Equal(t, msg.Body, pub.Body)
}

func TestDeliverReportsNack(t *testing.T) {
	ch := newFake(false)
	sink := newSink(ch, ch.acks, DefaultExchange)
	assert.ErrorIs(t, sink.Deliver(context.Background(), msg), ErrNack)
}

func TestDeliverGivesUpWhenContextEnds(t *testing.T) {
	acks := make(chan amqp.Confirmation)
	ch := &fakeChannel{acks: make(chan amqp.Confirmation, 1), ack: true}
	sink := newSink(ch, acks, DefaultExchange)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, sink.Deliver(ctx, msg), context.DeadlineExceeded)
}

func TestDeliverSkipsStaleConfirms(t *testing.T) {
	acks := make(chan amqp.Confirmation, 2)
	ch := &fakeChannel{acks: make(chan amqp.Confirmation, 2), ack: true}
	sink := newSink(ch, acks, DefaultExchange)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, sink.Deliver(ctx, msg), context.DeadlineExceeded)

	// The first publish's confirm arrives late, followed by the second's.
	acks <- amqp.Confirmation{DeliveryTag: 1, Ack: false}
	acks <- amqp.Confirmation{DeliveryTag: 2, Ack: true}
	assert.NoError(t, sink.Deliver(context.Background(), msg))
}

func TestDeliverPropagatesPublishError(t *testing.T) {
	ch := newFake(true)
	ch.err = errors.New("channel closed")
	sink := newSink(ch, ch.acks, DefaultExchange)
	assert.Error(t, sink.Deliver(context.Background(), msg))
}
