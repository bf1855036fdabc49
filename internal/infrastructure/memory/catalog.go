package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/brewtopia/cafepos/internal/domain/catalog"

	"github.com/shopspring/decimal"
)

// Catalog is an in-process menu, seeded once and read by the lifecycle engine.
type Catalog struct {
	mu         sync.RWMutex
	items      map[int64]catalog.MenuItem
	categories []catalog.Category
}

func NewCatalog(categories []catalog.Category) *Catalog {
	c := &Catalog{items: make(map[int64]catalog.MenuItem)}
	for _, cat := range categories {
		items := cat.Items
		cat.Items = nil
		c.categories = append(c.categories, cat)
		for _, item := range items {
			item.CategoryID = cat.ID
			c.items[item.ID] = item
		}
	}
	return c
}

func (c *Catalog) Resolve(ctx context.Context, id int64) (catalog.MenuItem, error) {
	_ = ctx

	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[id]
	if !ok {
		return catalog.MenuItem{}, catalog.ErrNotFound
	}
	return item, nil
}

func (c *Catalog) Menu(ctx context.Context) ([]catalog.Category, error) {
	_ = ctx

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]catalog.Category, 0, len(c.categories))
	for _, cat := range c.categories {
		cat.Items = make([]catalog.MenuItem, 0)
		for _, item := range c.items {
			if item.CategoryID == cat.ID && item.IsActive {
				cat.Items = append(cat.Items, item)
			}
		}
		sort.Slice(cat.Items, func(i, j int) bool { return cat.Items[i].Name < cat.Items[j].Name })
		out = append(out, cat)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

// SetPrice changes the current price of an item. Existing order lines keep their snapshot.
func (c *Catalog) SetPrice(id int64, price decimal.Decimal) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[id]
	if !ok {
		return false
	}
	item.Price = price
	c.items[id] = item
	return true
}

// SetActive toggles availability for an item.
func (c *Catalog) SetActive(id int64, active bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[id]
	if !ok {
		return false
	}
	item.IsActive = active
	c.items[id] = item
	return true
}

// Remove deletes an item so it no longer resolves.
func (c *Catalog) Remove(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
}
