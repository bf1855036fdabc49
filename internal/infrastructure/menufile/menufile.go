// Package menufile reads the YAML menu seed used to populate catalog backends.
package menufile

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/brewtopia/cafepos/internal/domain/catalog"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type document struct {
	Categories []categoryEntry `yaml:"categories"`
}

type categoryEntry struct {
	ID        int64       `yaml:"id"`
	Name      string      `yaml:"name"`
	SortOrder int         `yaml:"sortOrder"`
	Items     []itemEntry `yaml:"items"`
}

type itemEntry struct {
	ID     int64  `yaml:"id"`
	Name   string `yaml:"name"`
	Price  string `yaml:"price"`
	Veg    *bool  `yaml:"veg"`
	Active *bool  `yaml:"active"`
}

// Load parses the menu file at path.
func Load(path string) ([]catalog.Category, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("menufile: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a menu document. Ids left out are assigned in file order,
// continuing after the highest id seen so far. Veg and active default to true.
func Parse(r io.Reader) ([]catalog.Category, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("menufile: decode: %w", err)
	}

	var nextCategory, nextItem int64
	seenCategory := make(map[int64]bool)
	seenItem := make(map[int64]bool)
	out := make([]catalog.Category, 0, len(doc.Categories))

	for i, c := range doc.Categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("menufile: category %d has no name", i+1)
		}
		id := c.ID
		if id == 0 {
			id = nextCategory + 1
		}
		if seenCategory[id] {
			return nil, fmt.Errorf("menufile: duplicate category id %d", id)
		}
		seenCategory[id] = true
		nextCategory = max(nextCategory, id)

		sortOrder := c.SortOrder
		if sortOrder == 0 {
			sortOrder = i + 1
		}
		cat := catalog.Category{ID: id, Name: name, SortOrder: sortOrder}

		for _, it := range c.Items {
			item, err := toItem(it, id, nextItem)
			if err != nil {
				return nil, fmt.Errorf("menufile: category %q: %w", name, err)
			}
			if seenItem[item.ID] {
				return nil, fmt.Errorf("menufile: duplicate item id %d", item.ID)
			}
			seenItem[item.ID] = true
			nextItem = max(nextItem, item.ID)
			cat.Items = append(cat.Items, item)
		}
		out = append(out, cat)
	}
	return out, nil
}

func toItem(it itemEntry, categoryID, lastID int64) (catalog.MenuItem, error) {
	name := strings.TrimSpace(it.Name)
	if name == "" {
		return catalog.MenuItem{}, fmt.Errorf("item without name")
	}
	price, err := decimal.NewFromString(strings.TrimSpace(it.Price))
	if err != nil {
		return catalog.MenuItem{}, fmt.Errorf("item %q: price %q: %w", name, it.Price, err)
	}
	if !price.IsPositive() {
		return catalog.MenuItem{}, fmt.Errorf("item %q: price must be positive", name)
	}
	// Stores keep prices in cents.
	if !price.Equal(price.Round(2)) {
		return catalog.MenuItem{}, fmt.Errorf("item %q: price %s has more than 2 decimal places", name, price)
	}
	id := it.ID
	if id == 0 {
		id = lastID + 1
	}
	return catalog.MenuItem{
		ID:         id,
		Name:       name,
		Price:      price,
		IsVeg:      boolOr(it.Veg, true),
		IsActive:   boolOr(it.Active, true),
		CategoryID: categoryID,
	}, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
