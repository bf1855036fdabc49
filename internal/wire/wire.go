// Package wire defines the JSON shapes shared by the REST API and every
// notification sink.
package wire

import (
	"encoding/json"
	"time"

	domain "github.com/brewtopia/cafepos/internal/domain/order"

	"github.com/shopspring/decimal"
)

type Item struct {
	MenuItemID int64       `json:"menuItemId"`
	Name       string      `json:"name"`
	Quantity   int         `json:"quantity"`
	UnitPrice  json.Number `json:"unitPrice"`
	Subtotal   json.Number `json:"subtotal"`
}

type Order struct {
	ID        int64       `json:"id"`
	TableNo   int         `json:"tableNo"`
	Total     json.Number `json:"total"`
	Paid      bool        `json:"paid"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Items     []Item      `json:"items"`
}

// Event is one realtime/broker message: {"event":"paid","order":{...}}.
type Event struct {
	ID         string    `json:"id"`
	Event      string    `json:"event"`
	Order      Order     `json:"order"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Money renders an exact decimal as a JSON number.
func Money(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func FromOrder(o *domain.Order) Order {
	out := Order{
		ID:        o.ID,
		TableNo:   o.TableNo,
		Total:     Money(o.Total),
		Paid:      o.Paid,
		CreatedAt: o.CreatedAt.UTC(),
		UpdatedAt: o.UpdatedAt.UTC(),
		Items:     make([]Item, 0, len(o.Lines)),
	}
	for _, l := range o.Lines {
		out.Items = append(out.Items, Item{
			MenuItemID: l.MenuItemID,
			Name:       l.Name,
			Quantity:   l.Quantity,
			UnitPrice:  Money(l.UnitPrice),
			Subtotal:   Money(l.Subtotal()),
		})
	}
	return out
}

func FromOrders(orders []*domain.Order) []Order {
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, FromOrder(o))
	}
	return out
}

func FromEvent(e domain.Event) Event {
	return Event{
		ID:         e.ID,
		Event:      string(e.Kind),
		Order:      FromOrder(e.Order),
		OccurredAt: e.OccurredAt,
	}
}

// EncodeEvent marshals e in the broadcast format.
func EncodeEvent(e domain.Event) ([]byte, error) {
	return json.Marshal(FromEvent(e))
}
