// Package blockstore implements the content-addressed byte-blob store
// every other causaldb component reads and writes blocks through (spec
// §4.A). Writes from a single database are serialised by the caller
// (the CRDT engine); reads are concurrent-safe.
package blockstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/causaldb/causaldb/internal/cid"
)

// ErrNotFound is returned by Get when the requested CID is absent.
var ErrNotFound = errors.New("blockstore: not found")

// Block is an immutable (cid, bytes) pair (spec §4.A). The bundled
// stores keep the first bytes put under a CID and do not check that the
// CID is the hash of those bytes.
type Block struct {
	CID   cid.CID
	Bytes []byte
}

// Store is the capability interface every engine component depends on.
// Modeled on the teacher's state-over-database idiom
// (engine/dag/state/state.go held a github.com/luxfi/database-backed
// store behind a narrow interface); here the interface is the spec's
// own block store contract rather than a vertex-specific one.
//
// Every method accepts a context so an implementation backed by real
// I/O (Pebble) can honor cancellation at its I/O boundary, per §5.
type Store interface {
	// Put stores bytes under cid. Put is idempotent: putting the same
	// (cid, bytes) pair twice is a no-op the second time.
	Put(ctx context.Context, c cid.CID, bytes []byte) error

	// Get returns the block stored under c, or ErrNotFound.
	Get(ctx context.Context, c cid.CID) (Block, error)

	// Has reports whether c is present without fetching its bytes.
	Has(ctx context.Context, c cid.CID) (bool, error)

	// Entries iterates every stored block, for testing and for
	// replica-to-replica sync.
	Entries(ctx context.Context) ([]Block, error)
}

// Memory is an in-memory Store, the default for an embedded database
// that doesn't need cross-session durability.
type Memory struct {
	mu     sync.RWMutex
	blocks map[cid.CID][]byte
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{blocks: make(map[cid.CID][]byte)}
}

func (m *Memory) Put(_ context.Context, c cid.CID, bytes []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blocks[c]; ok {
		return nil
	}
	cp := make([]byte, len(bytes))
	copy(cp, bytes)
	m.blocks[c] = cp
	return nil
}

func (m *Memory) Get(_ context.Context, c cid.CID) (Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocks[c]
	if !ok {
		return Block{}, fmt.Errorf("%w: %s", ErrNotFound, c)
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return Block{CID: c, Bytes: cp}, nil
}

func (m *Memory) Has(_ context.Context, c cid.CID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blocks[c]
	return ok, nil
}

func (m *Memory) Entries(_ context.Context) ([]Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Block, 0, len(m.blocks))
	for c, b := range m.blocks {
		cp := make([]byte, len(b))
		copy(cp, b)
		out = append(out, Block{CID: c, Bytes: cp})
	}
	return out, nil
}
