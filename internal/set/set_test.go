package set_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/causaldb/causaldb/internal/set"
)

func TestOfAndContains(t *testing.T) {
	s := set.Of(1, 2, 3)
	require.True(t, s.Contains(2))
	require.False(t, s.Contains(4))
	require.Equal(t, 3, s.Len())
}

func TestUnionDifference(t *testing.T) {
	a := set.Of(1, 2)
	b := set.Of(2, 3)
	a.Union(b)
	require.ElementsMatch(t, []int{1, 2, 3}, a.List())

	a.Difference(set.Of(2))
	require.ElementsMatch(t, []int{1, 3}, a.List())
}

func TestCloneIsIndependent(t *testing.T) {
	a := set.Of("x")
	b := a.Clone()
	b.Add("y")
	require.False(t, a.Contains("y"))
	require.True(t, b.Contains("y"))
}

func TestEquals(t *testing.T) {
	require.True(t, set.Of(1, 2).Equals(set.Of(2, 1)))
	require.False(t, set.Of(1, 2).Equals(set.Of(1)))
}
