package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/brewtopia/cafepos/internal/domain/order"

	"github.com/shopspring/decimal"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if order == nil {
		return nil, fmt.Errorf("order repository: order is required")
	}

	total, err := toMinor(order.Total)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO orders (table_no, total_minor, paid, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		order.TableNo, total, boolInt(order.Paid), order.CreatedAt.UnixMilli(), order.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := insertLines(ctx, tx, id, order.Lines); err != nil {
		return nil, err
	}

	created, err := findByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit order: %w", err)
	}
	return created, nil
}

func (r *OrderRepository) ReplaceLines(ctx context.Context, id int64, lines []domain.Line, total decimal.Decimal, tableNo int, at time.Time) (*domain.Order, error) {
	totalMinor, err := toMinor(total)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var paid bool
	err = tx.QueryRowContext(ctx, `SELECT paid FROM orders WHERE id = ?`, id).Scan(&paid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if paid {
		return nil, domain.ErrAlreadyPaid
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete lines: %w", err)
	}
	if err := insertLines(ctx, tx, id, lines); err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET table_no = ?, total_minor = ?, updated_at = ? WHERE id = ? AND paid = 0`,
		tableNo, totalMinor, at.UnixMilli(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, domain.ErrAlreadyPaid
	}

	updated, err := findByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit replace: %w", err)
	}
	return updated, nil
}

func (r *OrderRepository) SetPaid(ctx context.Context, id int64, at time.Time) (*domain.Order, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET paid = 1, updated_at = ? WHERE id = ? AND paid = 0`,
		at.UnixMilli(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("set paid: %w", err)
	}
	if _, err := res.RowsAffected(); err != nil {
		return nil, err
	}
	return findByID(ctx, r.db, id)
}

func (r *OrderRepository) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	return findByID(ctx, r.db, id)
}

func (r *OrderRepository) FindByCreatedRange(ctx context.Context, start, end time.Time) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, table_no, total_minor, paid, created_at, updated_at
		   FROM orders
		  WHERE created_at BETWEEN ? AND ?
		  ORDER BY created_at DESC, id DESC`,
		start.UnixMilli(), end.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	byID := make(map[int64]*domain.Order, len(orders))
	ids := make([]any, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}
	lineRows, err := r.db.QueryContext(ctx,
		`SELECT order_id, menu_item_id, quantity, unit_price_minor
		   FROM order_items
		  WHERE order_id IN (`+placeholders(len(ids))+`)
		  ORDER BY order_id, position`,
		ids...,
	)
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()
	for lineRows.Next() {
		var orderID int64
		line, err := scanLine(lineRows, &orderID)
		if err != nil {
			return nil, err
		}
		o := byID[orderID]
		o.Lines = append(o.Lines, line)
	}
	return orders, lineRows.Err()
}

func (r *OrderRepository) SumAndCountByRange(ctx context.Context, start, end time.Time) (domain.Aggregate, error) {
	var total, count, paid int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_minor), 0), COUNT(*), COALESCE(SUM(paid), 0)
		   FROM orders
		  WHERE created_at BETWEEN ? AND ?`,
		start.UnixMilli(), end.UnixMilli(),
	).Scan(&total, &count, &paid)
	if err != nil {
		return domain.Aggregate{}, err
	}
	return domain.Aggregate{
		TotalSales: fromMinor(total),
		OrderCount: int(count),
		PaidCount:  int(paid),
	}, nil
}

func (r *OrderRepository) TopItemsByQuantity(ctx context.Context, start, end time.Time, limit int) ([]domain.ItemTally, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT oi.menu_item_id, SUM(oi.quantity) AS qty, SUM(oi.quantity * oi.unit_price_minor)
		   FROM order_items oi
		   JOIN orders o ON o.id = oi.order_id
		  WHERE o.created_at BETWEEN ? AND ?
		  GROUP BY oi.menu_item_id
		  ORDER BY qty DESC, oi.menu_item_id ASC
		  LIMIT ?`,
		start.UnixMilli(), end.UnixMilli(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ItemTally, 0, limit)
	for rows.Next() {
		var t domain.ItemTally
		var qty, revenue int64
		if err := rows.Scan(&t.MenuItemID, &qty, &revenue); err != nil {
			return nil, err
		}
		t.Quantity = int(qty)
		t.Revenue = fromMinor(revenue)
		out = append(out, t)
	}
	return out, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertLines(ctx context.Context, tx execer, orderID int64, lines []domain.Line) error {
	for i, l := range lines {
		price, err := toMinor(l.UnitPrice)
		if err != nil {
			return fmt.Errorf("line %d: %w", i, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, position, menu_item_id, quantity, unit_price_minor) VALUES (?, ?, ?, ?, ?)`,
			orderID, i, l.MenuItemID, l.Quantity, price,
		)
		if err != nil {
			return fmt.Errorf("insert line %d: %w", i, err)
		}
	}
	return nil
}

func findByID(ctx context.Context, q querier, id int64) (*domain.Order, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, table_no, total_minor, paid, created_at, updated_at FROM orders WHERE id = ?`, id)
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

	lineRows, err := q.QueryContext(ctx,
		`SELECT order_id, menu_item_id, quantity, unit_price_minor
		   FROM order_items WHERE order_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()
	for lineRows.Next() {
		var orderID int64
		line, err := scanLine(lineRows, &orderID)
		if err != nil {
			return nil, err
		}
		o.Lines = append(o.Lines, line)
	}
	return o, lineRows.Err()
}

func scanOrders(rows *sql.Rows) ([]*domain.Order, error) {
	defer rows.Close()
	out := make([]*domain.Order, 0)
	for rows.Next() {
		var (
			o                domain.Order
			total            int64
			created, updated int64
		)
		if err := rows.Scan(&o.ID, &o.TableNo, &total, &o.Paid, &created, &updated); err != nil {
			return nil, err
		}
		o.Total = fromMinor(total)
		o.CreatedAt = time.UnixMilli(created)
		o.UpdatedAt = time.UnixMilli(updated)
		out = append(out, &o)
	}
	return out, rows.Err()
}

func scanLine(rows *sql.Rows, orderID *int64) (domain.Line, error) {
	var l domain.Line
	var price int64
	if err := rows.Scan(orderID, &l.MenuItemID, &l.Quantity, &price); err != nil {
		return domain.Line{}, err
	}
	l.UnitPrice = fromMinor(price)
	return l, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
