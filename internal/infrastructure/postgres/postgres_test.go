package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/brewtopia/cafepos/internal/domain/catalog"
	domain "github.com/brewtopia/cafepos/internal/domain/order"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericRoundTrip(t *testing.T) {
	for _, s := range []string{"0.10", "49.99", "130.00", "1234567.50"} {
		d := decimal.RequireFromString(s)
		got, err := parseNumeric(numeric(d))
		require.NoError(t, err)
		assert.True(t, got.Equal(d), s)
	}
	_, err := parseNumeric("NaN?")
	assert.Error(t, err)
}

// testPool connects to CAFEPOS_TEST_DATABASE_URL and starts from empty tables.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("CAFEPOS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CAFEPOS_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE order_items, orders, menu_items, categories RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return pool
}

func TestOrderRepositoryAgainstPostgres(t *testing.T) {
	pool := testPool(t)
	repo := NewOrderRepository(pool)
	ctx := context.Background()
	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	o, err := domain.New(5, []domain.Line{
		{MenuItemID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("50")},
		{MenuItemID: 2, Quantity: 1, UnitPrice: decimal.RequireFromString("30")},
	}, at)
	require.NoError(t, err)

	created, err := repo.Create(ctx, o)
	require.NoError(t, err)
	assert.True(t, created.Total.Equal(decimal.NewFromInt(130)))
	require.Len(t, created.Lines, 2)

	_, err = repo.SetPaid(ctx, created.ID, at)
	require.NoError(t, err)
	_, err = repo.ReplaceLines(ctx, created.ID, created.Lines[:1], decimal.NewFromInt(100), 5, at)
	assert.ErrorIs(t, err, domain.ErrAlreadyPaid)

	start, end := domain.DayBounds(at, time.UTC)
	agg, err := repo.SumAndCountByRange(ctx, start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, agg.OrderCount)
	assert.Equal(t, 1, agg.PaidCount)

	top, err := repo.TopItemsByQuantity(ctx, start, end, 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, int64(1), top[0].MenuItemID)

	_, err = repo.FindByID(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCatalogAgainstPostgres(t *testing.T) {
	pool := testPool(t)
	cat := NewCatalog(pool)
	ctx := context.Background()

	require.NoError(t, cat.Seed(ctx, []catalog.Category{{
		ID: 1, Name: "Teas", SortOrder: 1,
		Items: []catalog.MenuItem{
			{ID: 1, Name: "Lemon Tea", Price: decimal.RequireFromString("29"), IsActive: true},
			{ID: 2, Name: "Black Tea", Price: decimal.RequireFromString("29"), IsActive: false},
		},
	}}))

	menu, err := cat.Menu(ctx)
	require.NoError(t, err)
	require.Len(t, menu, 1)
	assert.Len(t, menu[0].Items, 1)

	_, err = cat.Resolve(ctx, 42)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}
