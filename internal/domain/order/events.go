package order

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventPaid    EventKind = "paid"
)

// EventKinds lists every kind the lifecycle engine publishes.
var EventKinds = []EventKind{EventCreated, EventUpdated, EventPaid}

// Event is the lifecycle notification handed to the broadcaster after a
// mutation has committed. Order is a detached copy.
type Event struct {
	ID         string
	Kind       EventKind
	Order      *Order
	OccurredAt time.Time
}

func (e Event) EventName() string { return EventName(e.Kind) }

// EventName maps a kind to the bus subject, e.g. "order.created".
func EventName(kind EventKind) string { return "order." + string(kind) }

func NewEvent(kind EventKind, o *Order) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Order:      o.Clone(),
		OccurredAt: time.Now().UTC(),
	}
}
