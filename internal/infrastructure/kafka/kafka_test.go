package kafka

import (
	"context"
	"errors"
	"testing"

	domain "github.com/brewtopia/cafepos/internal/domain/order"
	"github.com/brewtopia/cafepos/internal/infrastructure/notify"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWriter implements messageWriter for tests.
type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestDeliverKeysByOrder(t *testing.T) {
	w := &fakeWriter{}
	sink := NewSinkWith(w, DefaultTopic)

	err := sink.Deliver(context.Background(), notify.Message{
		ID: "evt-9", Kind: domain.EventUpdated, Key: "17", Body: []byte(`{"event":"updated"}`),
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	m := w.msgs[0]
	assert.Equal(t, "17", string(m.Key))
	assert.JSONEq(t, `{"event":"updated"}`, string(m.Value))

	headers := map[string]string{}
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "evt-9", headers["event_id"])
	assert.Equal(t, "updated", headers["event"])
}

func TestDeliverPropagatesWriterError(t *testing.T) {
	sink := NewSinkWith(&fakeWriter{err: errors.New("leader not available")}, DefaultTopic)
	assert.Error(t, sink.Deliver(context.Background(), notify.Message{Key: "1"}))
	assert.NoError(t, sink.Close())
}

func TestNewSinkNeedsBrokers(t *testing.T) {
	_, err := NewSink(" , ", "")
	assert.Error(t, err)

	sink, err := NewSink("localhost:9092, localhost:9093", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultTopic, sink.topic)
	assert.NoError(t, sink.Close())
}
