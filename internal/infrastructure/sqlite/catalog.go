package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/brewtopia/cafepos/internal/domain/catalog"
)

type Catalog struct {
	db *sql.DB
}

func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) Resolve(ctx context.Context, id int64) (catalog.MenuItem, error) {
	var (
		item  catalog.MenuItem
		price int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT id, name, price_minor, is_veg, is_active, category_id FROM menu_items WHERE id = ?`, id,
	).Scan(&item.ID, &item.Name, &price, &item.IsVeg, &item.IsActive, &item.CategoryID)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.MenuItem{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.MenuItem{}, err
	}
	item.Price = fromMinor(price)
	return item, nil
}

func (c *Catalog) Menu(ctx context.Context) ([]catalog.Category, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, name, sort_order FROM categories ORDER BY sort_order, id`)
	if err != nil {
		return nil, err
	}
	var out []catalog.Category
	index := make(map[int64]int)
	for rows.Next() {
		cat := catalog.Category{Items: make([]catalog.MenuItem, 0)}
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.SortOrder); err != nil {
			rows.Close()
			return nil, err
		}
		index[cat.ID] = len(out)
		out = append(out, cat)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemRows, err := c.db.QueryContext(ctx,
		`SELECT id, name, price_minor, is_veg, is_active, category_id
		   FROM menu_items WHERE is_active = 1 ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var item catalog.MenuItem
		var price int64
		if err := itemRows.Scan(&item.ID, &item.Name, &price, &item.IsVeg, &item.IsActive, &item.CategoryID); err != nil {
			return nil, err
		}
		item.Price = fromMinor(price)
		if i, ok := index[item.CategoryID]; ok {
			out[i].Items = append(out[i].Items, item)
		}
	}
	return out, itemRows.Err()
}

// Seed upserts categories and items by id. Items absent from categories are left alone.
func (c *Catalog) Seed(ctx context.Context, categories []catalog.Category) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, cat := range categories {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO categories (id, name, sort_order) VALUES (?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET name = excluded.name, sort_order = excluded.sort_order`,
			cat.ID, cat.Name, cat.SortOrder,
		)
		if err != nil {
			return fmt.Errorf("seed category %q: %w", cat.Name, err)
		}
		for _, item := range cat.Items {
			price, err := toMinor(item.Price)
			if err != nil {
				return fmt.Errorf("seed item %q: %w", item.Name, err)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO menu_items (id, name, price_minor, is_veg, is_active, category_id) VALUES (?, ?, ?, ?, ?, ?)
				 ON CONFLICT(id) DO UPDATE SET name = excluded.name, price_minor = excluded.price_minor,
				   is_veg = excluded.is_veg, is_active = excluded.is_active, category_id = excluded.category_id`,
				item.ID, item.Name, price, boolInt(item.IsVeg), boolInt(item.IsActive), cat.ID,
			)
			if err != nil {
				return fmt.Errorf("seed item %q: %w", item.Name, err)
			}
		}
	}
	return tx.Commit()
}
