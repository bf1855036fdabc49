package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("order: not found")
	ErrAlreadyPaid     = errors.New("order: already paid")
	ErrInvalidMenuItem = errors.New("order: invalid menu item")
	ErrValidation      = errors.New("order: validation failed")
	ErrInvalidRange    = errors.New("order: invalid date range")
	ErrRepository      = errors.New("order: repository failure")
)

// Upper bounds that keep every total representable in the stores
// (NUMERIC(14,2) and int64 cents).
const MaxQuantity = 10_000

var MaxTotal = decimal.RequireFromString("999999999999.99")

type Status string

const (
	StatusUnpaid Status = "unpaid"
	StatusPaid   Status = "paid"
)

// Line is one menu item on an order. UnitPrice is the catalog price captured
// when the line was written and is never refreshed from the catalog.
type Line struct {
	MenuItemID int64
	Name       string
	Quantity   int
	UnitPrice  decimal.Decimal
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID        int64
	TableNo   int
	Lines     []Line
	Total     decimal.Decimal
	Paid      bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New builds an unpaid order. The ID is left zero for the repository to assign.
func New(tableNo int, lines []Line, now time.Time) (*Order, error) {
	if err := validate(tableNo, lines); err != nil {
		return nil, err
	}
	o := &Order{
		TableNo:   tableNo,
		Lines:     cloneLines(lines),
		Total:     Total(lines),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return o, nil
}

// Replace drops every line and installs the new set, recomputing the total.
func (o *Order) Replace(tableNo int, lines []Line, now time.Time) error {
	if _, err := o.state().OnReplace(o); err != nil {
		return err
	}
	if err := validate(tableNo, lines); err != nil {
		return err
	}
	o.TableNo = tableNo
	o.Lines = cloneLines(lines)
	o.Total = Total(lines)
	o.UpdatedAt = now
	return nil
}

// MarkPaid reports whether the call changed the order.
func (o *Order) MarkPaid(now time.Time) bool {
	if o.Paid {
		return false
	}
	next := o.state().OnPaid(o)
	o.Paid = next.Status() == StatusPaid
	o.UpdatedAt = now
	return true
}

func (o *Order) Status() Status {
	return o.state().Status()
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Lines = cloneLines(o.Lines)
	return &clone
}

// Total sums unitPrice*quantity over lines.
func Total(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

func validate(tableNo int, lines []Line) error {
	if tableNo <= 0 {
		return validationError("table number must be a positive integer")
	}
	if len(lines) == 0 {
		return validationError("at least one item is required")
	}
	for _, l := range lines {
		if l.Quantity < 1 {
			return validationError("quantity must be at least 1")
		}
		if l.Quantity > MaxQuantity {
			return validationError(fmt.Sprintf("quantity must be at most %d", MaxQuantity))
		}
		if l.UnitPrice.IsNegative() {
			return validationError("unit price must not be negative")
		}
	}
	if Total(lines).GreaterThan(MaxTotal) {
		return validationError("order total exceeds " + MaxTotal.StringFixed(2))
	}
	return nil
}

func cloneLines(lines []Line) []Line {
	if lines == nil {
		return nil
	}
	return append([]Line(nil), lines...)
}
