package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/brewtopia/cafepos/internal/domain/catalog"
	domain "github.com/brewtopia/cafepos/internal/domain/order"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newOrder(t *testing.T, table int, created time.Time, lines ...domain.Line) *domain.Order {
	t.Helper()
	o, err := domain.New(table, lines, created)
	require.NoError(t, err)
	return o
}

func TestOrderRepositoryAssignsSequentialIDs(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	now := time.Now()

	first, err := repo.Create(ctx, newOrder(t, 1, now, domain.Line{MenuItemID: 1, Quantity: 1, UnitPrice: dec(10)}))
	require.NoError(t, err)
	second, err := repo.Create(ctx, newOrder(t, 2, now, domain.Line{MenuItemID: 1, Quantity: 1, UnitPrice: dec(10)}))
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)

	_, err = repo.FindByID(ctx, 3)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrderRepositoryReturnsDetachedCopies(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()

	created, err := repo.Create(ctx, newOrder(t, 1, time.Now(), domain.Line{MenuItemID: 1, Quantity: 1, UnitPrice: dec(10)}))
	require.NoError(t, err)
	created.Lines[0].Quantity = 42

	got, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Lines[0].Quantity)
}

func TestReplaceLinesRefusesPaidOrders(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	now := time.Now()

	o, err := repo.Create(ctx, newOrder(t, 1, now, domain.Line{MenuItemID: 1, Quantity: 2, UnitPrice: dec(10)}))
	require.NoError(t, err)
	_, err = repo.SetPaid(ctx, o.ID, now)
	require.NoError(t, err)

	_, err = repo.ReplaceLines(ctx, o.ID, []domain.Line{{MenuItemID: 2, Quantity: 1, UnitPrice: dec(5)}}, dec(5), 3, now)
	assert.ErrorIs(t, err, domain.ErrAlreadyPaid)

	got, err := repo.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, got.Total.Equal(dec(20)))
	assert.Equal(t, 1, got.TableNo)
}

func TestRangeQueries(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	day := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	start, end := day, day.Add(24*time.Hour-time.Millisecond)

	_, err := repo.Create(ctx, newOrder(t, 1, day, domain.Line{MenuItemID: 1, Quantity: 2, UnitPrice: dec(50)}))
	require.NoError(t, err)
	late, err := repo.Create(ctx, newOrder(t, 2, end,
		domain.Line{MenuItemID: 2, Quantity: 2, UnitPrice: dec(30)},
		domain.Line{MenuItemID: 3, Quantity: 1, UnitPrice: dec(70)},
	))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newOrder(t, 3, end.Add(time.Millisecond), domain.Line{MenuItemID: 1, Quantity: 9, UnitPrice: dec(50)}))
	require.NoError(t, err)
	_, err = repo.SetPaid(ctx, late.ID, end)
	require.NoError(t, err)

	orders, err := repo.FindByCreatedRange(ctx, start, end)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, late.ID, orders[0].ID, "newest first")

	agg, err := repo.SumAndCountByRange(ctx, start, end)
	require.NoError(t, err)
	assert.True(t, agg.TotalSales.Equal(dec(230)))
	assert.Equal(t, 2, agg.OrderCount)
	assert.Equal(t, 1, agg.PaidCount)

	top, err := repo.TopItemsByQuantity(ctx, start, end, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, int64(1), top[0].MenuItemID, "quantity ties break by item id")
	assert.Equal(t, int64(2), top[1].MenuItemID)
	assert.True(t, top[1].Revenue.Equal(dec(60)))
}

func TestConcurrentCreatesGetUniqueIDs(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan int64, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := domain.New(1, []domain.Line{{MenuItemID: 1, Quantity: 1, UnitPrice: dec(1)}}, time.Now())
			if err != nil {
				return
			}
			created, err := repo.Create(ctx, o)
			if err == nil {
				ids <- created.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, 50)
}

func TestCatalogMenuListsActiveItemsByName(t *testing.T) {
	cat := NewCatalog([]catalog.Category{
		{ID: 2, Name: "Snacks", SortOrder: 2, Items: []catalog.MenuItem{
			{ID: 3, Name: "Nachos", Price: dec(119), IsActive: true},
		}},
		{ID: 1, Name: "Teas", SortOrder: 1, Items: []catalog.MenuItem{
			{ID: 1, Name: "Masala Tea", Price: dec(20), IsActive: true},
			{ID: 2, Name: "Black Tea", Price: dec(29), IsActive: false},
			{ID: 4, Name: "Lemon Tea", Price: dec(29), IsActive: true},
		}},
	})

	menu, err := cat.Menu(context.Background())
	require.NoError(t, err)
	require.Len(t, menu, 2)
	assert.Equal(t, "Teas", menu[0].Name)
	require.Len(t, menu[0].Items, 2)
	assert.Equal(t, "Lemon Tea", menu[0].Items[0].Name)
	assert.Equal(t, "Masala Tea", menu[0].Items[1].Name)

	item, err := cat.Resolve(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, item.IsActive, "inactive items still resolve")

	assert.True(t, cat.SetPrice(1, dec(25)))
	item, err = cat.Resolve(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, item.Price.Equal(dec(25)))

	cat.Remove(1)
	_, err = cat.Resolve(context.Background(), 1)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}
