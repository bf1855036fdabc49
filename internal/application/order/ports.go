package order

import "time"

// Clock supplies the current time; tests pin it.
type Clock func() time.Time

// LineInput is one requested line before catalog resolution.
type LineInput struct {
	MenuItemID int64
	Quantity   int
}

type CreateOrderInput struct {
	TableNo int
	Lines   []LineInput
}

type ReplaceOrderInput struct {
	OrderID int64
	TableNo int
	Lines   []LineInput
}
