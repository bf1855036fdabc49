package outbox

import (
	"context"
	"errors"
)

// ErrClosed is returned by publishers that have been stopped.
var ErrClosed = errors.New("outbox: closed")

// ErrBackpressure is returned when an event could not be queued without blocking.
var ErrBackpressure = errors.New("outbox: queue full")

// Event is any domain event with a name identifier.
type Event interface {
	EventName() string
}

// Handler processes a published event.
type Handler func(ctx context.Context, e Event) error

// Publisher hands events to interested subscribers. Implementations must not
// block the caller on subscriber delivery.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers for event names.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
