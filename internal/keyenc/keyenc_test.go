package keyenc_test

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/causaldb/causaldb/internal/keyenc"
)

func TestEncodeOrderedPreservesIntOrder(t *testing.T) {
	ints := []int64{-100, -1, 0, 1, 42, 1000}
	var encoded [][]byte
	for _, v := range ints {
		b, err := keyenc.EncodeOrdered(v)
		require.NoError(t, err)
		encoded = append(encoded, b)
	}
	require.True(t, sort.SliceIsSorted(encoded, func(i, j int) bool { return bytes.Compare(encoded[i], encoded[j]) < 0 }))
}

func TestEncodeOrderedPreservesFloatOrder(t *testing.T) {
	floats := []float64{-3.5, -0.001, 0, 0.001, 2.5, 100.0}
	var encoded [][]byte
	for _, v := range floats {
		b, err := keyenc.EncodeOrdered(v)
		require.NoError(t, err)
		encoded = append(encoded, b)
	}
	require.True(t, sort.SliceIsSorted(encoded, func(i, j int) bool { return bytes.Compare(encoded[i], encoded[j]) < 0 }))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []any{nil, true, false, int64(42), int64(-7), 3.14, "hello"}
	for _, c := range cases {
		b, err := keyenc.EncodeOrdered(c)
		require.NoError(t, err)
		got, err := keyenc.DecodeOrdered(b)
		require.NoError(t, err)
		require.Equal(t, c, got)
	}
}

func TestCompositeKeyRoundTrip(t *testing.T) {
	ck, err := keyenc.CompositeKey(int64(30), "doc-1")
	require.NoError(t, err)
	key, id, err := keyenc.DecodeComposite(ck)
	require.NoError(t, err)
	require.Equal(t, int64(30), key)
	require.Equal(t, "doc-1", id)
}

func TestCompositeKeyOrdersByPrimaryThenDocID(t *testing.T) {
	a, err := keyenc.CompositeKey(int64(20), "a")
	require.NoError(t, err)
	b, err := keyenc.CompositeKey(int64(20), "b")
	require.NoError(t, err)
	c, err := keyenc.CompositeKey(int64(30), "a")
	require.NoError(t, err)

	require.True(t, bytes.Compare(a, b) < 0)
	require.True(t, bytes.Compare(b, c) < 0)
}

func TestBoundsEncloseExactPrimary(t *testing.T) {
	lo, err := keyenc.LowerBound(int64(20))
	require.NoError(t, err)
	hi, err := keyenc.UpperBound(int64(20))
	require.NoError(t, err)

	matching, err := keyenc.CompositeKey(int64(20), "anything")
	require.NoError(t, err)
	before, err := keyenc.CompositeKey(int64(19), "z")
	require.NoError(t, err)
	after, err := keyenc.CompositeKey(int64(21), "a")
	require.NoError(t, err)

	require.True(t, bytes.Compare(lo, matching) <= 0)
	require.True(t, bytes.Compare(matching, hi) <= 0)
	require.True(t, bytes.Compare(before, lo) < 0)
	require.True(t, bytes.Compare(hi, after) < 0)
}
