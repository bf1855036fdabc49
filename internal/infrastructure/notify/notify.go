// Package notify relays committed order events from the bus to every
// configured sink (displays, brokers).
package notify

import (
	"context"
	"strconv"
	"time"

	domain "github.com/brewtopia/cafepos/internal/domain/order"
	domoutbox "github.com/brewtopia/cafepos/internal/domain/outbox"
	"github.com/brewtopia/cafepos/internal/observability"
	"github.com/brewtopia/cafepos/internal/observability/logctx"
	workerpresentation "github.com/brewtopia/cafepos/internal/presentation/worker"
	"github.com/brewtopia/cafepos/internal/wire"

	"go.opentelemetry.io/otel/trace"
)

const componentRelay = "notify_relay"

// Message is an encoded event ready for a sink.
type Message struct {
	ID   string
	Kind domain.EventKind
	// Key is the order id; brokers use it to keep one order's events together.
	Key  string
	Body []byte
}

// Sink delivers messages to one destination. Deliver must respect ctx and
// must not block indefinitely.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, msg Message) error
}

// Relay fans events out to sinks. A failing sink is logged and does not
// affect the others.
type Relay struct {
	sinks []Sink
	tel   observability.Observability
	log   observability.Logger

	extCounter   observability.Counter
	extHistogram observability.Histogram
}

func NewRelay(tel observability.Observability, sinks ...Sink) *Relay {
	if tel == nil {
		tel = observability.Nop()
	}
	metrics := tel.Metrics()
	return &Relay{
		sinks:        sinks,
		tel:          tel,
		log:          tel.Logger().With(observability.F("component", componentRelay)),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

// Register subscribes the relay to every order event kind.
func (r *Relay) Register(sub domoutbox.Subscriber) {
	for _, kind := range domain.EventKinds {
		sub.Subscribe(domain.EventName(kind), r.Handle)
	}
}

func (r *Relay) Sinks() []string {
	names := make([]string, 0, len(r.sinks))
	for _, s := range r.sinks {
		names = append(names, s.Name())
	}
	return names
}

func (r *Relay) Handle(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(domain.Event)
	if !ok || evt.Order == nil {
		return nil
	}

	sc := trace.SpanContextFromContext(ctx)
	ctx = workerpresentation.WithEventContext(ctx, r.log, r.tel, sc.TraceID(), sc.SpanID(), map[string]string{
		"event_id": evt.ID,
		"event":    evt.EventName(),
	})

	body, err := wire.EncodeEvent(evt)
	if err != nil {
		return err
	}
	msg := Message{
		ID:   evt.ID,
		Kind: evt.Kind,
		Key:  strconv.FormatInt(evt.Order.ID, 10),
		Body: body,
	}

	for _, s := range r.sinks {
		r.deliver(ctx, s, msg)
	}
	return nil
}

func (r *Relay) deliver(ctx context.Context, s Sink, msg Message) {
	start := time.Now()
	err := s.Deliver(ctx, msg)
	lat := time.Since(start).Seconds()

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	endpoint := domain.EventName(msg.Kind)
	r.extCounter.Add(1,
		observability.L("peer", s.Name()),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	r.extHistogram.Observe(lat,
		observability.L("peer", s.Name()),
		observability.L("endpoint", endpoint),
	)

	if err != nil {
		logctx.FromOr(ctx, r.log).Warn("notify_delivery_failed",
			observability.F("sink", s.Name()),
			observability.F("order_id", msg.Key),
			observability.F("error", err.Error()),
		)
	}
}
