package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("catalog: menu item not found")

// UnknownItemName is shown for lines whose menu item no longer resolves.
const UnknownItemName = "Unknown Item"

type MenuItem struct {
	ID         int64
	Name       string
	Price      decimal.Decimal
	IsVeg      bool
	IsActive   bool
	CategoryID int64
}

type Category struct {
	ID        int64
	Name      string
	SortOrder int
	Items     []MenuItem
}

// Lookup is the read-only view of the menu owned by the catalog collaborator.
type Lookup interface {
	// Resolve returns ErrNotFound for unknown ids. Inactive items are returned
	// with IsActive=false; callers decide what that means.
	Resolve(ctx context.Context, id int64) (MenuItem, error)
	// Menu returns categories by sort order, each with active items by name.
	Menu(ctx context.Context) ([]Category, error)
}
