package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultRegionsHaveCitiesAndCodes(t *testing.T) {
	t.Parallel()

	table := DefaultRegions()
	require.NotEmpty(t, table)
	seen := map[string]struct{}{}
	for _, r := range table {
		require.NotEmpty(t, r.Name)
		require.NotEmpty(t, r.Code)
		require.NotEmpty(t, r.Cities)
		_, dup := seen[r.Code]
		require.False(t, dup, "duplicate region code %s", r.Code)
		seen[r.Code] = struct{}{}
	}
}

func TestFilterRegions(t *testing.T) {
	t.Parallel()

	table := DefaultRegions()

	require.Equal(t, table, FilterRegions(table, nil))

	got := FilterRegions(table, []string{"浙江", "北京"})
	require.Len(t, got, 2)
	// Table order wins over filter order.
	require.Equal(t, "北京", got[0].Name)
	require.Equal(t, "浙江", got[1].Name)

	require.Empty(t, FilterRegions(table, []string{"不存在"}))
}
