package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/brewtopia/cafepos/internal/domain/order"

	"github.com/shopspring/decimal"
)

type OrderRepository struct {
	mu     sync.RWMutex
	nextID int64
	orders map[int64]*domain.Order
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders: make(map[int64]*domain.Order),
	}
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	_ = ctx
	if order == nil {
		return nil, fmt.Errorf("order repository: order is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	stored := order.Clone()
	stored.ID = r.nextID
	r.orders[stored.ID] = stored
	return stored.Clone(), nil
}

func (r *OrderRepository) ReplaceLines(ctx context.Context, id int64, lines []domain.Line, total decimal.Decimal, tableNo int, at time.Time) (*domain.Order, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if order.Paid {
		return nil, domain.ErrAlreadyPaid
	}

	order.Lines = append([]domain.Line(nil), lines...)
	order.Total = total
	order.TableNo = tableNo
	order.UpdatedAt = at
	return order.Clone(), nil
}

func (r *OrderRepository) SetPaid(ctx context.Context, id int64, at time.Time) (*domain.Order, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !order.Paid {
		order.Paid = true
		order.UpdatedAt = at
	}
	return order.Clone(), nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return order.Clone(), nil
}

func (r *OrderRepository) FindByCreatedRange(ctx context.Context, start, end time.Time) ([]*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	out := make([]*domain.Order, 0)
	for _, order := range r.inRange(start, end) {
		out = append(out, order.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *OrderRepository) SumAndCountByRange(ctx context.Context, start, end time.Time) (domain.Aggregate, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	agg := domain.Aggregate{TotalSales: decimal.Zero}
	for _, order := range r.inRange(start, end) {
		agg.TotalSales = agg.TotalSales.Add(order.Total)
		agg.OrderCount++
		if order.Paid {
			agg.PaidCount++
		}
	}
	return agg, nil
}

func (r *OrderRepository) TopItemsByQuantity(ctx context.Context, start, end time.Time, limit int) ([]domain.ItemTally, error) {
	_ = ctx

	r.mu.RLock()
	byItem := make(map[int64]*domain.ItemTally)
	for _, order := range r.inRange(start, end) {
		for _, line := range order.Lines {
			tally, ok := byItem[line.MenuItemID]
			if !ok {
				tally = &domain.ItemTally{MenuItemID: line.MenuItemID, Revenue: decimal.Zero}
				byItem[line.MenuItemID] = tally
			}
			tally.Quantity += line.Quantity
			tally.Revenue = tally.Revenue.Add(line.Subtotal())
		}
	}
	r.mu.RUnlock()

	out := make([]domain.ItemTally, 0, len(byItem))
	for _, tally := range byItem {
		out = append(out, *tally)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity == out[j].Quantity {
			return out[i].MenuItemID < out[j].MenuItemID
		}
		return out[i].Quantity > out[j].Quantity
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// inRange must be called with r.mu held.
func (r *OrderRepository) inRange(start, end time.Time) []*domain.Order {
	var out []*domain.Order
	for _, order := range r.orders {
		if order.CreatedAt.Before(start) || order.CreatedAt.After(end) {
			continue
		}
		out = append(out, order)
	}
	return out
}
