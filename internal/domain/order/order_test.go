package order

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func price(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestNewComputesTotalFromLines(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	o, err := New(5, []Line{
		{MenuItemID: 1, Quantity: 2, UnitPrice: price(50)},
		{MenuItemID: 2, Quantity: 1, UnitPrice: price(30)},
	}, now)
	require.NoError(t, err)

	assert.True(t, o.Total.Equal(price(130)), "total = %s", o.Total)
	assert.Equal(t, StatusUnpaid, o.Status())
	assert.Equal(t, now, o.CreatedAt)
	assert.Len(t, o.Lines, 2)
}

func TestNewRejectsBadInput(t *testing.T) {
	cases := map[string]struct {
		table int
		lines []Line
	}{
		"no lines":       {table: 1, lines: nil},
		"zero quantity":  {table: 1, lines: []Line{{MenuItemID: 1, Quantity: 0, UnitPrice: price(10)}}},
		"zero table":     {table: 0, lines: []Line{{MenuItemID: 1, Quantity: 1, UnitPrice: price(10)}}},
		"quantity limit": {table: 5, lines: []Line{{MenuItemID: 1, Quantity: MaxQuantity + 1, UnitPrice: price(50)}}},
		"total too high": {table: 5, lines: []Line{{MenuItemID: 1, Quantity: MaxQuantity, UnitPrice: price(1_000_000_000)}}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(tc.table, tc.lines, time.Now())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}

func TestNewAcceptsBoundaryQuantity(t *testing.T) {
	o, err := New(5, []Line{{MenuItemID: 1, Quantity: MaxQuantity, UnitPrice: price(50)}}, time.Now())
	require.NoError(t, err)
	assert.True(t, o.Total.Equal(price(500_000)))
}

func TestTotalKeepsExactDecimals(t *testing.T) {
	lines := make([]Line, 0, 10)
	for i := 0; i < 10; i++ {
		lines = append(lines, Line{MenuItemID: int64(i + 1), Quantity: 3, UnitPrice: decimal.RequireFromString("0.10")})
	}
	assert.Equal(t, "3", Total(lines).String())
}

func TestReplaceOverwritesLines(t *testing.T) {
	o, err := New(5, []Line{
		{MenuItemID: 1, Quantity: 2, UnitPrice: price(50)},
		{MenuItemID: 2, Quantity: 1, UnitPrice: price(30)},
	}, time.Now())
	require.NoError(t, err)

	require.NoError(t, o.Replace(7, []Line{{MenuItemID: 1, Quantity: 1, UnitPrice: price(50)}}, time.Now()))
	assert.Equal(t, 7, o.TableNo)
	assert.Len(t, o.Lines, 1)
	assert.True(t, o.Total.Equal(price(50)))
}

func TestPaidOrderRefusesReplace(t *testing.T) {
	o, err := New(5, []Line{{MenuItemID: 1, Quantity: 2, UnitPrice: price(50)}}, time.Now())
	require.NoError(t, err)

	assert.True(t, o.MarkPaid(time.Now()))
	assert.False(t, o.MarkPaid(time.Now()), "second mark is a no-op")

	err = o.Replace(9, nil, time.Now())
	assert.ErrorIs(t, err, ErrAlreadyPaid, "paid check wins over payload validation")
	assert.Equal(t, 5, o.TableNo)
	assert.True(t, o.Total.Equal(price(100)))
}

func TestCloneDetachesLines(t *testing.T) {
	o, err := New(1, []Line{{MenuItemID: 1, Quantity: 1, UnitPrice: price(10)}}, time.Now())
	require.NoError(t, err)

	c := o.Clone()
	c.Lines[0].Quantity = 99
	assert.Equal(t, 1, o.Lines[0].Quantity)
}

func TestEventName(t *testing.T) {
	o, err := New(1, []Line{{MenuItemID: 1, Quantity: 1, UnitPrice: price(10)}}, time.Now())
	require.NoError(t, err)

	evt := NewEvent(EventPaid, o)
	assert.Equal(t, "order.paid", evt.EventName())
	assert.NotSame(t, o, evt.Order)
}

func TestDayBoundsSpansWholeDay(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	start, end := DayBounds(time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC), loc)

	assert.Equal(t, time.Date(2026, 10, 17, 0, 0, 0, 0, loc), start)
	assert.Equal(t, time.Date(2026, 10, 17, 23, 59, 59, 999_000_000, loc), end)
}
