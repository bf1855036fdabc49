package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository is the durable store for orders and their lines.
//
// ReplaceLines must be atomic across deleting the old lines, inserting the new
// ones and updating total/table, and must refuse paid orders with ErrAlreadyPaid.
// FindByCreatedRange bounds are inclusive and results are newest first.
// Range aggregates cover the same inclusive window.
type Repository interface {
	Create(ctx context.Context, o *Order) (*Order, error)
	ReplaceLines(ctx context.Context, id int64, lines []Line, total decimal.Decimal, tableNo int, at time.Time) (*Order, error)
	SetPaid(ctx context.Context, id int64, at time.Time) (*Order, error)
	FindByID(ctx context.Context, id int64) (*Order, error)
	FindByCreatedRange(ctx context.Context, start, end time.Time) ([]*Order, error)
	SumAndCountByRange(ctx context.Context, start, end time.Time) (Aggregate, error)
	TopItemsByQuantity(ctx context.Context, start, end time.Time, limit int) ([]ItemTally, error)
}

// Aggregate holds the summary figures over orders created in a range.
type Aggregate struct {
	TotalSales decimal.Decimal
	OrderCount int
	PaidCount  int
}

// ItemTally is a per-menu-item quantity sum. Revenue uses the snapshot
// unit prices stored on the lines.
type ItemTally struct {
	MenuItemID int64
	Quantity   int
	Revenue    decimal.Decimal
}
