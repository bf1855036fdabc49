package outbox

import (
	"context"
	"sync"
	"testing"
	"time"

	domoutbox "github.com/brewtopia/cafepos/internal/domain/outbox"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

type testEvent struct {
	name string
	seq  int
}

func (e testEvent) EventName() string { return e.name }

func TestBusDeliversInPublishOrder(t *testing.T) {
	bus := NewBus(nil)
	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	bus.Subscribe("order.updated", func(_ context.Context, e domoutbox.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.(testEvent).seq)
		if len(got) == 100 {
			close(done)
		}
		return nil
	})
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	for i := 0; i < 100; i++ {
		require.NoError(t, bus.Publish(context.Background(), testEvent{name: "order.updated", seq: i}))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("events not delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	for i, seq := range got {
		assert.Equal(t, i, seq)
	}
}

func TestPublishNeverBlocksOnFullQueue(t *testing.T) {
	bus := NewBus(nil, WithQueueSize(1))

	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "x"}))
	err := bus.Publish(context.Background(), testEvent{name: "x"})
	assert.ErrorIs(t, err, domoutbox.ErrBackpressure)
}

func TestPublishAfterStopIsRejected(t *testing.T) {
	bus := NewBus(nil)
	bus.Start(context.Background())
	bus.Stop(context.Background())

	err := bus.Publish(context.Background(), testEvent{name: "x"})
	assert.ErrorIs(t, err, domoutbox.ErrClosed)
}

func TestStopDrainsQueuedEvents(t *testing.T) {
	bus := NewBus(nil)
	var mu sync.Mutex
	count := 0
	bus.Subscribe("x", func(context.Context, domoutbox.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(context.Background(), testEvent{name: "x", seq: i}))
	}
	bus.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	bus.Stop(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, count)
}

func TestHandlerPanicDoesNotKillBus(t *testing.T) {
	bus := NewBus(nil)
	delivered := make(chan struct{}, 1)

	bus.Subscribe("x", func(_ context.Context, e domoutbox.Event) error {
		if e.(testEvent).seq == 0 {
			panic("boom")
		}
		delivered <- struct{}{}
		return nil
	})
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "x", seq: 0}))
	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "x", seq: 1}))

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("bus stopped after handler panic")
	}
}

func TestHandlerTimeoutCancelsStuckHandler(t *testing.T) {
	bus := NewBus(nil, WithHandlerTimeout(50*time.Millisecond))
	results := make(chan error, 2)

	bus.Subscribe("x", func(ctx context.Context, e domoutbox.Event) error {
		if e.(testEvent).seq == 0 {
			<-ctx.Done()
			results <- ctx.Err()
			return ctx.Err()
		}
		results <- nil
		return nil
	})
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	start := time.Now()
	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "x", seq: 0}))
	require.NoError(t, bus.Publish(context.Background(), testEvent{name: "x", seq: 1}))

	for i := 0; i < 2; i++ {
		select {
		case err := <-results:
			if i == 0 {
				assert.ErrorIs(t, err, context.DeadlineExceeded)
			} else {
				assert.NoError(t, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("stuck handler was not cancelled")
		}
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestHandlersSeePublisherSpan(t *testing.T) {
	bus := NewBus(nil)
	seen := make(chan trace.SpanContext, 1)
	bus.Subscribe("x", func(ctx context.Context, _ domoutbox.Event) error {
		seen <- trace.SpanContextFromContext(ctx)
		return nil
	})
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1},
		SpanID:     trace.SpanID{2},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	require.NoError(t, bus.Publish(ctx, testEvent{name: "x"}))

	select {
	case got := <-seen:
		assert.Equal(t, sc.TraceID(), got.TraceID())
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
}
