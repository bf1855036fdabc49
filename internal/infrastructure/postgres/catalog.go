package postgres

import (
	"context"
	"fmt"

	"github.com/brewtopia/cafepos/internal/domain/catalog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Catalog struct {
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

const itemColumns = `id, name, price::text, is_veg, is_active, category_id`

func (c *Catalog) Resolve(ctx context.Context, id int64) (catalog.MenuItem, error) {
	rows, err := c.pool.Query(ctx, `SELECT `+itemColumns+` FROM menu_items WHERE id = $1`, id)
	if err != nil {
		return catalog.MenuItem{}, err
	}
	item, err := pgx.CollectExactlyOneRow(rows, scanItem)
	if isNoRows(err) {
		return catalog.MenuItem{}, catalog.ErrNotFound
	}
	return item, err
}

func (c *Catalog) Menu(ctx context.Context) ([]catalog.Category, error) {
	rows, err := c.pool.Query(ctx, `SELECT id, name, sort_order FROM categories ORDER BY sort_order, id`)
	if err != nil {
		return nil, err
	}
	cats, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Category, error) {
		cat := catalog.Category{Items: make([]catalog.MenuItem, 0)}
		err := row.Scan(&cat.ID, &cat.Name, &cat.SortOrder)
		return cat, err
	})
	if err != nil {
		return nil, err
	}

	index := make(map[int64]int, len(cats))
	for i, cat := range cats {
		index[cat.ID] = i
	}

	rows, err = c.pool.Query(ctx, `SELECT `+itemColumns+` FROM menu_items WHERE is_active ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if i, ok := index[item.CategoryID]; ok {
			cats[i].Items = append(cats[i].Items, item)
		}
	}
	return cats, nil
}

// Seed upserts categories and items by id in one transaction.
func (c *Catalog) Seed(ctx context.Context, categories []catalog.Category) error {
	return pgx.BeginFunc(ctx, c.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, cat := range categories {
			batch.Queue(
				`INSERT INTO categories (id, name, sort_order) VALUES ($1, $2, $3)
				 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, sort_order = EXCLUDED.sort_order`,
				cat.ID, cat.Name, cat.SortOrder,
			)
			for _, item := range cat.Items {
				batch.Queue(
					`INSERT INTO menu_items (id, name, price, is_veg, is_active, category_id)
					 VALUES ($1, $2, $3::numeric, $4, $5, $6)
					 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price,
					   is_veg = EXCLUDED.is_veg, is_active = EXCLUDED.is_active, category_id = EXCLUDED.category_id`,
					item.ID, item.Name, numeric(item.Price), item.IsVeg, item.IsActive, cat.ID,
				)
			}
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("seed menu: %w", err)
		}
		return nil
	})
}

func scanItem(row pgx.CollectableRow) (catalog.MenuItem, error) {
	var (
		item  catalog.MenuItem
		price string
	)
	if err := row.Scan(&item.ID, &item.Name, &price, &item.IsVeg, &item.IsActive, &item.CategoryID); err != nil {
		return catalog.MenuItem{}, err
	}
	p, err := parseNumeric(price)
	if err != nil {
		return catalog.MenuItem{}, err
	}
	item.Price = p
	return item, nil
}
