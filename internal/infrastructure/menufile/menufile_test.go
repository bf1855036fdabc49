package menufile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
categories:
  - name: Signature Teas
    sortOrder: 1
    items:
      - {name: Brewtopia Masala Tea, price: 20}
      - {name: Lemon Tea, price: "29.50"}
  - name: Snacks (Non-Veg)
    items:
      - {id: 10, name: Chicken Popcorn, price: 149, veg: false}
      - {name: Old Wings, price: 199, active: false}
`

func TestParseAssignsIDsInFileOrder(t *testing.T) {
	cats, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, cats, 2)

	assert.Equal(t, int64(1), cats[0].ID)
	assert.Equal(t, int64(2), cats[1].ID)
	assert.Equal(t, 2, cats[1].SortOrder)

	teas := cats[0].Items
	require.Len(t, teas, 2)
	assert.Equal(t, int64(1), teas[0].ID)
	assert.Equal(t, int64(2), teas[1].ID)
	assert.Equal(t, "29.5", teas[1].Price.String())
	assert.True(t, teas[0].IsVeg)
	assert.True(t, teas[0].IsActive)

	snacks := cats[1].Items
	assert.Equal(t, int64(10), snacks[0].ID)
	assert.False(t, snacks[0].IsVeg)
	assert.Equal(t, int64(11), snacks[1].ID)
	assert.False(t, snacks[1].IsActive)
	assert.Equal(t, int64(2), snacks[1].CategoryID)
}

func TestParseRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"bad price":      "categories:\n  - name: A\n    items:\n      - {name: X, price: abc}\n",
		"zero price":     "categories:\n  - name: A\n    items:\n      - {name: X, price: 0}\n",
		"sub-cent price": "categories:\n  - name: A\n    items:\n      - {name: X, price: \"1.005\"}\n",
		"no name":        "categories:\n  - name: A\n    items:\n      - {price: 10}\n",
		"duplicate id":   "categories:\n  - name: A\n    items:\n      - {id: 1, name: X, price: 1}\n      - {id: 1, name: Y, price: 1}\n",
		"unknown field":  "categories:\n  - name: A\n    colour: red\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseAcceptsTrailingZeroCents(t *testing.T) {
	cats, err := Parse(strings.NewReader("categories:\n  - name: A\n    items:\n      - {name: X, price: \"4.500\"}\n"))
	require.NoError(t, err)
	require.Len(t, cats[0].Items, 1)
	assert.Equal(t, "4.5", cats[0].Items[0].Price.String())
}

func TestParseEmptyDocument(t *testing.T) {
	cats, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, cats)
}
