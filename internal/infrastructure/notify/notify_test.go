package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/brewtopia/cafepos/internal/domain/order"
	domoutbox "github.com/brewtopia/cafepos/internal/domain/outbox"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	name string
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (c *captureSink) Name() string { return c.name }

func (c *captureSink) Deliver(_ context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return c.err
}

type mapSubscriber map[string][]domoutbox.Handler

func (m mapSubscriber) Subscribe(name string, h domoutbox.Handler) { m[name] = append(m[name], h) }

func paidEvent(t *testing.T) domain.Event {
	t.Helper()
	o, err := domain.New(2, []domain.Line{{MenuItemID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(99)}}, time.Now())
	require.NoError(t, err)
	o.ID = 8
	return domain.NewEvent(domain.EventPaid, o)
}

func TestRegisterCoversEveryKind(t *testing.T) {
	sub := mapSubscriber{}
	NewRelay(nil).Register(sub)

	for _, kind := range domain.EventKinds {
		assert.Len(t, sub[domain.EventName(kind)], 1, kind)
	}
}

func TestHandleEncodesOnceForAllSinks(t *testing.T) {
	broken := &captureSink{name: "broken", err: errors.New("down")}
	ok := &captureSink{name: "ok"}
	relay := NewRelay(nil, broken, ok)
	evt := paidEvent(t)

	require.NoError(t, relay.Handle(context.Background(), evt))

	require.Len(t, ok.msgs, 1, "a failing sink does not starve the next one")
	require.Len(t, broken.msgs, 1)
	msg := ok.msgs[0]
	assert.Equal(t, "8", msg.Key)
	assert.Equal(t, evt.ID, msg.ID)
	assert.Equal(t, broken.msgs[0].Body, msg.Body)

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.Equal(t, "paid", body["event"])
	assert.Equal(t, []string{"broken", "ok"}, relay.Sinks())
}
