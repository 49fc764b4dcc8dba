package codec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/causaldb/causaldb/internal/cid"
)

func TestEncodeDeterministic(t *testing.T) {
	rec := EventRecord{
		Parents: []cid.CID{cid.New(cid.CodecEvent, []byte("p1")), cid.New(cid.CodecEvent, []byte("p2"))},
		Data:    EventData{Kind: EventPut, Key: "k", Value: []byte("v")},
	}

	b1, c1, err := Encode(cid.CodecEvent, rec)
	require.NoError(t, err)
	b2, c2, err := Encode(cid.CodecEvent, rec)
	require.NoError(t, err)

	require.Equal(t, b1, b2)
	require.Equal(t, c1, c2)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := EventRecord{
		Parents: nil,
		Data:    EventData{Kind: EventDel, Key: "deleted-key"},
	}
	b, _, err := Encode(cid.CodecEvent, want)
	require.NoError(t, err)

	var got EventRecord
	require.NoError(t, Decode(b, &got))
	require.Equal(t, want.Data, got.Data)
}

func TestNodeRecordRoundTrip(t *testing.T) {
	child := cid.New(cid.CodecProllyNode, []byte("child"))
	want := NodeRecord{
		Level: 1,
		Leaf:  false,
		Entries: []NodeEntry{
			{Key: []byte("a"), Child: child},
		},
	}
	b, _, err := Encode(cid.CodecProllyNode, want)
	require.NoError(t, err)

	var got NodeRecord
	require.NoError(t, Decode(b, &got))
	require.Equal(t, want, got)
}

func TestDecodeGarbageFails(t *testing.T) {
	var rec EventRecord
	err := Decode([]byte{0xff, 0xff, 0xff}, &rec)
	require.Error(t, err)
}
