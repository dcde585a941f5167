package gnetdag_test

import (
	"testing"

	"github.com/gordian-engine/godos/gnetdag"
	"github.com/stretchr/testify/require"
)

// Most of these tests use a branch factor of 3,
// resulting in layers like:
//	0 (L0)
//	1 2 3 (L1)
//	4 5 6 7 8 9 10 11 12 (L2)
//	13 14 15 16... (L3)

func TestFanoutTree_Layer(t *testing.T) {
	t.Parallel()

	tree := gnetdag.FanoutTree{BranchFactor: 3}
	require.Equal(t, 0, tree.Layer(0))
	require.Equal(t, 1, tree.Layer(1))
	require.Equal(t, 1, tree.Layer(3))
	require.Equal(t, 2, tree.Layer(4))
	require.Equal(t, 2, tree.Layer(12))
	require.Equal(t, 3, tree.Layer(13))

	tree.BranchFactor = 5
	require.Equal(t, 1, tree.Layer(4))
	require.Equal(t, 2, tree.Layer(6))
}

func TestFanoutTree_Parent(t *testing.T) {
	t.Parallel()

	tree := gnetdag.FanoutTree{BranchFactor: 3}
	require.Equal(t, -1, tree.Parent(0))

	for i, want := range map[int]int{
		1: 0, 2: 0, 3: 0,
		4: 1, 5: 1, 6: 1,
		7: 2, 9: 2,
		10: 3, 12: 3,
		13: 4,
	} {
		require.Equal(t, want, tree.Parent(i), "parent of %d", i)
	}
}

func TestFanoutTree_Children(t *testing.T) {
	t.Parallel()

	tree := gnetdag.FanoutTree{BranchFactor: 3}

	require.Equal(t, 1, tree.FirstChild(0))
	require.Equal(t, 4, tree.FirstChild(1))
	require.Equal(t, 13, tree.FirstChild(4))

	require.Equal(t, []int{1, 2, 3}, tree.Children(0, 13))
	require.Equal(t, []int{10, 11, 12}, tree.Children(3, 13))

	// Truncated at the end of the slice.
	require.Equal(t, []int{4, 5}, tree.Children(1, 6))
	require.Empty(t, tree.Children(2, 6))

	// Every non-root entry is reachable from exactly one parent.
	const n = 40
	seen := make([]int, n)
	for i := range n {
		for _, c := range tree.Children(i, n) {
			seen[c]++
			require.Equal(t, i, tree.Parent(c))
		}
	}
	require.Zero(t, seen[0])
	for i := 1; i < n; i++ {
		require.Equal(t, 1, seen[i], "entry %d", i)
	}
}

func TestRotate(t *testing.T) {
	t.Parallel()

	const n = 5
	for origin := range n {
		require.Equal(t, 0, gnetdag.Rotate(origin, origin, n))
		for idx := range n {
			require.Equal(t, idx, gnetdag.Unrotate(gnetdag.Rotate(idx, origin, n), origin, n))
		}
	}
}
