package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var all = []Migration{
	{Version: "1.10.0", Up: "c"},
	{Version: "1.0.0", Up: "a"},
	{Version: "1.2.0", Up: "b"},
}

func TestPendingOrdersBySemver(t *testing.T) {
	got, err := Pending("", all)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].Up, got[1].Up, got[2].Up})
}

func TestPendingSkipsApplied(t *testing.T) {
	got, err := Pending("1.2.0", all)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1.10.0", got[0].Version)

	got, err = Pending("1.10.0", all)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPendingRejectsGarbage(t *testing.T) {
	_, err := Pending("not-a-version", all)
	assert.Error(t, err)

	_, err = Pending("", []Migration{{Version: "x.y"}})
	assert.Error(t, err)
}

func TestLatest(t *testing.T) {
	v, err := Latest(all)
	require.NoError(t, err)
	assert.Equal(t, "1.10.0", v)
}
