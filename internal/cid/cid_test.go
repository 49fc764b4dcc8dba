package cid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDeterministic(t *testing.T) {
	a := New(CodecEvent, []byte("hello"))
	b := New(CodecEvent, []byte("hello"))
	require.Equal(t, a, b)

	c := New(CodecRaw, []byte("hello"))
	require.NotEqual(t, a, c, "same bytes under a different codec tag must differ")
}

func TestStringRoundTrip(t *testing.T) {
	want := New(CodecProllyNode, []byte("tree node payload"))
	s := want.String()
	got, err := Parse(s)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse("not-base58-!!!")
	require.Error(t, err)
}

func TestLessIsTotalOrder(t *testing.T) {
	a := New(CodecRaw, []byte("a"))
	b := New(CodecRaw, []byte("b"))
	require.NotEqual(t, Less(a, b), Less(b, a))
	require.False(t, Less(a, a))
}

func TestUndef(t *testing.T) {
	require.True(t, Undef.IsUndef())
	require.False(t, New(CodecRaw, nil).IsUndef())
}
