package blockstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/causaldb/causaldb/internal/blockstore"
	"github.com/causaldb/causaldb/internal/blockstore/blockstoremock"
	"github.com/causaldb/causaldb/internal/cid"
)

func TestMemoryPutGet(t *testing.T) {
	ctx := context.Background()
	s := blockstore.NewMemory()

	c := cid.New(cid.CodecRaw, []byte("payload"))
	require.NoError(t, s.Put(ctx, c, []byte("payload")))

	b, err := s.Get(ctx, c)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), b.Bytes)

	has, err := s.Has(ctx, c)
	require.NoError(t, err)
	require.True(t, has)
}

func TestMemoryGetMissing(t *testing.T) {
	s := blockstore.NewMemory()
	_, err := s.Get(context.Background(), cid.New(cid.CodecRaw, []byte("nope")))
	require.ErrorIs(t, err, blockstore.ErrNotFound)
}

func TestMemoryPutIdempotent(t *testing.T) {
	ctx := context.Background()
	s := blockstore.NewMemory()
	c := cid.New(cid.CodecRaw, []byte("x"))
	require.NoError(t, s.Put(ctx, c, []byte("x")))
	require.NoError(t, s.Put(ctx, c, []byte("x")))

	entries, err := s.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestMemoryMutationIsolation(t *testing.T) {
	ctx := context.Background()
	s := blockstore.NewMemory()
	c := cid.New(cid.CodecRaw, []byte("x"))
	orig := []byte("x")
	require.NoError(t, s.Put(ctx, c, orig))
	orig[0] = 'y'

	b, err := s.Get(ctx, c)
	require.NoError(t, err)
	require.Equal(t, byte('x'), b.Bytes[0], "store must not alias caller-owned buffers")
}

func TestMockStoreSimulatesIOError(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := blockstoremock.NewMockStore(ctrl)

	wantErr := errors.New("disk on fire")
	c := cid.New(cid.CodecRaw, []byte("x"))
	m.EXPECT().Get(gomock.Any(), c).Return(blockstore.Block{}, wantErr)

	_, err := m.Get(context.Background(), c)
	require.ErrorIs(t, err, wantErr)
}
