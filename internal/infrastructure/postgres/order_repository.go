package postgres

import (
	"context"
	"fmt"
	"time"

	domain "github.com/brewtopia/cafepos/internal/domain/order"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// queryer is satisfied by both the pool and a transaction.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const orderColumns = `id, table_no, total::text, paid, created_at, updated_at`

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if order == nil {
		return nil, fmt.Errorf("order repository: order is required")
	}

	var created *domain.Order
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx,
			`INSERT INTO orders (table_no, total, paid, created_at, updated_at)
			 VALUES ($1, $2::numeric, $3, $4, $5) RETURNING id`,
			order.TableNo, numeric(order.Total), order.Paid, order.CreatedAt, order.UpdatedAt,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if err := insertLines(ctx, tx, id, order.Lines); err != nil {
			return err
		}
		created, err = findByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ReplaceLines locks the order row so a concurrent SetPaid cannot slip in
// between the paid check and the line rewrite.
func (r *OrderRepository) ReplaceLines(ctx context.Context, id int64, lines []domain.Line, total decimal.Decimal, tableNo int, at time.Time) (*domain.Order, error) {
	var updated *domain.Order
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var paid bool
		err := tx.QueryRow(ctx, `SELECT paid FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&paid)
		if isNoRows(err) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		if paid {
			return domain.ErrAlreadyPaid
		}

		if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
			return fmt.Errorf("delete lines: %w", err)
		}
		if err := insertLines(ctx, tx, id, lines); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE orders SET table_no = $1, total = $2::numeric, updated_at = $3 WHERE id = $4`,
			tableNo, numeric(total), at, id,
		); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		updated, err = findByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *OrderRepository) SetPaid(ctx context.Context, id int64, at time.Time) (*domain.Order, error) {
	if _, err := r.pool.Exec(ctx,
		`UPDATE orders SET paid = TRUE, updated_at = $1 WHERE id = $2 AND NOT paid`, at, id,
	); err != nil {
		return nil, fmt.Errorf("set paid: %w", err)
	}
	return findByID(ctx, r.pool, id)
}

func (r *OrderRepository) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	return findByID(ctx, r.pool, id)
}

func (r *OrderRepository) FindByCreatedRange(ctx context.Context, start, end time.Time) ([]*domain.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+`
		   FROM orders
		  WHERE created_at BETWEEN $1 AND $2
		  ORDER BY created_at DESC, id DESC`,
		start, end,
	)
	if err != nil {
		return nil, err
	}
	orders, err := scanOrders(rows)
	if err != nil || len(orders) == 0 {
		return orders, err
	}

	byID := make(map[int64]*domain.Order, len(orders))
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}
	if err := loadLines(ctx, r.pool, ids, byID); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) SumAndCountByRange(ctx context.Context, start, end time.Time) (domain.Aggregate, error) {
	var (
		total       string
		count, paid int
	)
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(total), 0)::text, COUNT(*), COUNT(*) FILTER (WHERE paid)
		   FROM orders
		  WHERE created_at BETWEEN $1 AND $2`,
		start, end,
	).Scan(&total, &count, &paid)
	if err != nil {
		return domain.Aggregate{}, err
	}
	sum, err := parseNumeric(total)
	if err != nil {
		return domain.Aggregate{}, err
	}
	return domain.Aggregate{TotalSales: sum, OrderCount: count, PaidCount: paid}, nil
}

func (r *OrderRepository) TopItemsByQuantity(ctx context.Context, start, end time.Time, limit int) ([]domain.ItemTally, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT oi.menu_item_id, SUM(oi.quantity)::int AS qty, SUM(oi.quantity * oi.unit_price)::text
		   FROM order_items oi
		   JOIN orders o ON o.id = oi.order_id
		  WHERE o.created_at BETWEEN $1 AND $2
		  GROUP BY oi.menu_item_id
		  ORDER BY qty DESC, oi.menu_item_id ASC
		  LIMIT $3`,
		start, end, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ItemTally, 0, limit)
	for rows.Next() {
		var (
			t       domain.ItemTally
			revenue string
		)
		if err := rows.Scan(&t.MenuItemID, &t.Quantity, &revenue); err != nil {
			return nil, err
		}
		if t.Revenue, err = parseNumeric(revenue); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func insertLines(ctx context.Context, tx pgx.Tx, orderID int64, lines []domain.Line) error {
	batch := &pgx.Batch{}
	for i, l := range lines {
		batch.Queue(
			`INSERT INTO order_items (order_id, position, menu_item_id, quantity, unit_price)
			 VALUES ($1, $2, $3, $4, $5::numeric)`,
			orderID, i, l.MenuItemID, l.Quantity, numeric(l.UnitPrice),
		)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert lines: %w", err)
	}
	return nil
}

func findByID(ctx context.Context, q queryer, id int64) (*domain.Order, error) {
	rows, err := q.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, domain.ErrNotFound
	}
	o := orders[0]
	if err := loadLines(ctx, q, []int64{id}, map[int64]*domain.Order{id: o}); err != nil {
		return nil, err
	}
	return o, nil
}

func loadLines(ctx context.Context, q queryer, ids []int64, byID map[int64]*domain.Order) error {
	rows, err := q.Query(ctx,
		`SELECT order_id, menu_item_id, quantity, unit_price::text
		   FROM order_items
		  WHERE order_id = ANY($1)
		  ORDER BY order_id, position`,
		ids,
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID int64
			l       domain.Line
			price   string
		)
		if err := rows.Scan(&orderID, &l.MenuItemID, &l.Quantity, &price); err != nil {
			return err
		}
		if l.UnitPrice, err = parseNumeric(price); err != nil {
			return err
		}
		if o, ok := byID[orderID]; ok {
			o.Lines = append(o.Lines, l)
		}
	}
	return rows.Err()
}

func scanOrders(rows pgx.Rows) ([]*domain.Order, error) {
	defer rows.Close()
	out := make([]*domain.Order, 0)
	for rows.Next() {
		var (
			o     domain.Order
			total string
		)
		if err := rows.Scan(&o.ID, &o.TableNo, &total, &o.Paid, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		t, err := parseNumeric(total)
		if err != nil {
			return nil, err
		}
		o.Total = t
		out = append(out, &o)
	}
	return out, rows.Err()
}
