package clock_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/causaldb/causaldb/internal/blockstore"
	"github.com/causaldb/causaldb/internal/cid"
	"github.com/causaldb/causaldb/internal/clock"
	"github.com/causaldb/causaldb/internal/codec"
	"github.com/causaldb/causaldb/internal/set"
)

func putEvent(t *testing.T, ctx context.Context, store blockstore.Store, parents []cid.CID, data codec.EventData) cid.CID {
	t.Helper()
	ev, bytes, err := clock.CreateEvent(parents, data)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, ev.CID, bytes))
	return ev.CID
}

func TestAdvanceLinear(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemory()

	e1 := putEvent(t, ctx, store, nil, codec.EventData{Kind: codec.EventPut, Key: "k0", Value: []byte("A")})
	head, err := clock.Advance(ctx, store, nil, e1)
	require.NoError(t, err)
	require.Equal(t, set.Of(e1), head)

	e2 := putEvent(t, ctx, store, []cid.CID{e1}, codec.EventData{Kind: codec.EventPut, Key: "k1", Value: []byte("B")})
	head, err = clock.Advance(ctx, store, head, e2)
	require.NoError(t, err)
	require.Equal(t, set.Of(e2), head, "linear history collapses to a single tip")
}

func TestAdvanceConcurrentBranches(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemory()

	genesis := putEvent(t, ctx, store, nil, codec.EventData{Kind: codec.EventPut, Key: "k0", Value: []byte("a")})
	head := set.Of(genesis)

	b1 := putEvent(t, ctx, store, []cid.CID{genesis}, codec.EventData{Kind: codec.EventPut, Key: "k1", Value: []byte("b1")})
	b2 := putEvent(t, ctx, store, []cid.CID{genesis}, codec.EventData{Kind: codec.EventPut, Key: "k2", Value: []byte("b2")})

	head, err := clock.Advance(ctx, store, head, b1)
	require.NoError(t, err)
	head, err = clock.Advance(ctx, store, head, b2)
	require.NoError(t, err)

	require.Equal(t, 2, head.Len(), "two events with a common ancestor are concurrent frontier members")
	require.True(t, head.Contains(b1))
	require.True(t, head.Contains(b2))
}

func TestAdvanceIdempotent(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemory()

	e1 := putEvent(t, ctx, store, nil, codec.EventData{Kind: codec.EventPut, Key: "k", Value: []byte("v")})
	head, err := clock.Advance(ctx, store, nil, e1)
	require.NoError(t, err)

	again, err := clock.Advance(ctx, store, head, e1)
	require.NoError(t, err)
	require.Equal(t, head, again)
}

func TestAdvanceWithHeadMemberLeavesHeadUnchanged(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemory()

	genesis := putEvent(t, ctx, store, nil, codec.EventData{Kind: codec.EventPut, Key: "k0", Value: []byte("a")})
	head := set.Of(genesis)

	// Advancing with an event that is already in the head should not move it.
	head2, err := clock.Advance(ctx, store, head, genesis)
	require.NoError(t, err)
	require.Equal(t, head, head2)
}

func TestSinceLinear(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemory()

	e1 := putEvent(t, ctx, store, nil, codec.EventData{Kind: codec.EventPut, Key: "key0", Value: []byte("A")})
	head, err := clock.Advance(ctx, store, nil, e1)
	require.NoError(t, err)
	e2 := putEvent(t, ctx, store, []cid.CID{e1}, codec.EventData{Kind: codec.EventPut, Key: "key1", Value: []byte("B")})
	head, err = clock.Advance(ctx, store, head, e2)
	require.NoError(t, err)

	all, err := clock.Since(ctx, store, head, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, e2, all[0].CID, "reverse-topological: newest first")
	require.Equal(t, e1, all[1].CID)

	capturedHead := head
	e3 := putEvent(t, ctx, store, []cid.CID{e2}, codec.EventData{Kind: codec.EventPut, Key: "key2", Value: []byte("C")})
	head, err = clock.Advance(ctx, store, head, e3)
	require.NoError(t, err)

	delta, err := clock.Since(ctx, store, head, capturedHead)
	require.NoError(t, err)
	require.Len(t, delta, 1)
	require.Equal(t, "key2", delta[0].Record.Data.Key)
}

func TestMissingEventError(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemory()
	bogus := cid.New(cid.CodecEvent, []byte("never stored"))

	_, err := clock.Advance(ctx, store, nil, bogus)
	var missing *clock.MissingEventError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, bogus, missing.CID)
}

func TestFetchDecodeErrorIsCodecDecodeError(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemory()
	garbage := cid.New(cid.CodecEvent, []byte("not a valid event record"))
	require.NoError(t, store.Put(ctx, garbage, []byte{0xff, 0xff, 0xff}))

	_, err := clock.Advance(ctx, store, nil, garbage)
	var decodeErr *codec.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	require.Equal(t, garbage, decodeErr.CID)
}
