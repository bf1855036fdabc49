package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brewtopia/cafepos/internal/domain/catalog"
	domain "github.com/brewtopia/cafepos/internal/domain/order"
	"github.com/brewtopia/cafepos/internal/infrastructure/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	agg     *Aggregator
	repo    *memory.OrderRepository
	catalog *memory.Catalog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memory.NewOrderRepository()
	cat := memory.NewCatalog([]catalog.Category{{
		ID: 1, Name: "All", SortOrder: 1,
		Items: []catalog.MenuItem{
			{ID: 1, Name: "Cold Coffee", Price: dec("50"), IsActive: true},
			{ID: 2, Name: "Lemon Tea", Price: dec("30"), IsActive: true},
			{ID: 3, Name: "Fries", Price: dec("89"), IsActive: true},
			{ID: 4, Name: "Momos", Price: dec("99"), IsActive: true},
			{ID: 5, Name: "Brownie", Price: dec("79"), IsActive: true},
			{ID: 6, Name: "Pizza", Price: dec("129"), IsActive: true},
		},
	}})
	return &fixture{
		agg:     NewAggregator(repo, cat, WithLocation(time.UTC)),
		repo:    repo,
		catalog: cat,
	}
}

func (f *fixture) seed(t *testing.T, at time.Time, paid bool, lines ...domain.Line) {
	t.Helper()
	o, err := domain.New(1, lines, at)
	require.NoError(t, err)
	created, err := f.repo.Create(context.Background(), o)
	require.NoError(t, err)
	if paid {
		_, err = f.repo.SetPaid(context.Background(), created.ID, at)
		require.NoError(t, err)
	}
}

func line(id int64, qty int, price string) domain.Line {
	return domain.Line{MenuItemID: id, Quantity: qty, UnitPrice: dec(price)}
}

func TestSummaryOverEmptyRange(t *testing.T) {
	f := newFixture(t)

	s, err := f.agg.Execute(context.Background(), SummaryQuery{From: "2026-10-01", To: "2026-10-01"})
	require.NoError(t, err)

	assert.True(t, s.TotalSales.IsZero())
	assert.Equal(t, 0, s.OrderCount)
	assert.True(t, s.AvgOrderValue.IsZero())
	assert.Equal(t, 0, s.PaidCount)
	assert.NotNil(t, s.TopItems)
	assert.Empty(t, s.TopItems)
}

func TestSummaryIncludesBothDayBoundaries(t *testing.T) {
	f := newFixture(t)
	f.seed(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), true, line(1, 2, "50"))
	f.seed(t, time.Date(2026, 10, 2, 23, 59, 59, 999_000_000, time.UTC), false, line(2, 1, "30"))
	f.seed(t, time.Date(2026, 10, 3, 0, 0, 0, 0, time.UTC), true, line(3, 9, "89"))
	f.seed(t, time.Date(2026, 9, 30, 23, 59, 59, 999_000_000, time.UTC), true, line(3, 9, "89"))

	s, err := f.agg.Execute(context.Background(), SummaryQuery{From: "2026-10-01", To: "2026-10-02"})
	require.NoError(t, err)

	assert.Equal(t, "130", s.TotalSales.String())
	assert.Equal(t, 2, s.OrderCount)
	assert.Equal(t, "65", s.AvgOrderValue.String())
	assert.Equal(t, 1, s.PaidCount)
}

func TestAverageRoundsToCents(t *testing.T) {
	f := newFixture(t)
	day := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	f.seed(t, day, false, line(1, 1, "10"))
	f.seed(t, day, false, line(1, 1, "10"))
	f.seed(t, day, false, line(1, 1, "0.01"))

	s, err := f.agg.Execute(context.Background(), SummaryQuery{From: "2026-10-01", To: "2026-10-01"})
	require.NoError(t, err)
	assert.Equal(t, "20.01", s.TotalSales.String())
	assert.Equal(t, "6.67", s.AvgOrderValue.String())
}

func TestTopItemsRankByQuantityThenID(t *testing.T) {
	f := newFixture(t)
	day := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	f.seed(t, day, false, line(6, 1, "129"), line(5, 3, "79"), line(4, 3, "99"))
	f.seed(t, day, false, line(1, 5, "50"), line(2, 2, "30"), line(3, 2, "89"))
	f.seed(t, day, false, line(1, 1, "45"))

	s, err := f.agg.Execute(context.Background(), SummaryQuery{From: "2026-10-01", To: "2026-10-01"})
	require.NoError(t, err)
	require.Len(t, s.TopItems, TopItemsLimit)

	ids := make([]int64, 0, len(s.TopItems))
	for _, it := range s.TopItems {
		ids = append(ids, it.MenuItemID)
	}
	assert.Equal(t, []int64{1, 4, 5, 2, 3}, ids)
	assert.Equal(t, "Cold Coffee", s.TopItems[0].Name)
	assert.Equal(t, 6, s.TopItems[0].Quantity)
	assert.Equal(t, "295", s.TopItems[0].Revenue.String(), "revenue uses snapshot prices")
}

func TestUnresolvableItemsGetPlaceholder(t *testing.T) {
	f := newFixture(t)
	day := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	f.seed(t, day, false, line(1, 3, "50"), line(2, 2, "30"))
	f.catalog.Remove(1)
	f.catalog.SetActive(2, false)

	s, err := f.agg.Execute(context.Background(), SummaryQuery{From: "2026-10-01", To: "2026-10-01"})
	require.NoError(t, err)
	require.Len(t, s.TopItems, 2)
	for _, it := range s.TopItems {
		assert.Equal(t, catalog.UnknownItemName, it.Name)
		assert.True(t, it.Revenue.IsZero())
	}
	assert.Equal(t, "210", s.TotalSales.String(), "order totals are unaffected")
}

func TestInvalidRanges(t *testing.T) {
	f := newFixture(t)
	cases := map[string]SummaryQuery{
		"missing from": {To: "2026-10-01"},
		"missing to":   {From: "2026-10-01"},
		"bad format":   {From: "01/10/2026", To: "2026-10-01"},
		"bad date":     {From: "2026-02-30", To: "2026-03-01"},
		"reversed":     {From: "2026-10-02", To: "2026-10-01"},
	}
	for name, q := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.agg.Execute(context.Background(), q)
			assert.ErrorIs(t, err, domain.ErrInvalidRange)
		})
	}
}

type failingRepo struct {
	domain.Repository
}

func (failingRepo) SumAndCountByRange(context.Context, time.Time, time.Time) (domain.Aggregate, error) {
	return domain.Aggregate{}, errors.New("connection reset")
}

func (failingRepo) TopItemsByQuantity(context.Context, time.Time, time.Time, int) ([]domain.ItemTally, error) {
	return nil, nil
}

func TestRepositoryFailureSurfacesAsRepositoryError(t *testing.T) {
	f := newFixture(t)
	agg := NewAggregator(failingRepo{Repository: f.repo}, f.catalog)

	_, err := agg.Execute(context.Background(), SummaryQuery{From: "2026-10-01", To: "2026-10-01"})
	assert.ErrorIs(t, err, domain.ErrRepository)
}
