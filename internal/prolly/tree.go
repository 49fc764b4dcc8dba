// Package prolly implements the content-defined, history-independent
// balanced B-tree that stores a causaldb database's materialised
// key-value state (spec §4.D). Its shape is grounded on two pack
// references: dolthub/dolt's tree.Chunker
// (go/store/prolly/tree/chunker.go — append pairs one at a time, a
// rolling hash over each key decides node boundaries, boundaries are
// promoted into parent-level nodes recursively until one node remains,
// the root) and 0xlemi/microprolly's smaller TreeBuilder/CAS shape
// (simpler, non-generic API closer to what this module needs). The
// chunker itself (chunker.go) is a plain FNV-1a hash of each key's bytes
// rather than Dolt's val.Tuple-based nodeSplitter, since this module has
// no analogue of Dolt's tuple encoding.
package prolly

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/causaldb/causaldb/internal/blockstore"
	"github.com/causaldb/causaldb/internal/cid"
	"github.com/causaldb/causaldb/internal/codec"
)

// Entry is one key/value pair of the tree's logical contents.
type Entry struct {
	Key   []byte
	Value []byte
}

// Mutation is one entry of a bulk update batch: a put (Del == false) or
// a delete (Del == true, Value ignored) (spec §4.D: "tree.bulk(entries)").
type Mutation struct {
	Key   []byte
	Value []byte
	Del   bool
}

// Tree is an immutable-per-version handle on a prolly tree rooted at a
// content-addressed block. Mutating operations (Bulk) don't mutate this
// value; they return a new root CID and the blocks newly produced.
type Tree struct {
	store blockstore.Store
	root  cid.CID
	empty bool
}

// Load opens an existing tree by its root CID. A zero/undef root opens
// an empty tree (spec §3: "An empty head means empty database" has the
// analogous reading for a tree that has never been written to).
func Load(store blockstore.Store, root cid.CID) *Tree {
	return &Tree{store: store, root: root, empty: root.IsUndef()}
}

// Root returns the tree's current root CID. Calling Root on an empty
// tree returns the zero CID.
func (t *Tree) Root() cid.CID { return t.root }

// Create builds a fresh tree from an arbitrary (not necessarily sorted)
// batch of entries, writing every emitted node to the store and
// returning a handle on the resulting tree plus the blocks it created
// (spec §4.D: "emits blocks in bottom-up order; the last block is the
// root").
func Create(ctx context.Context, store blockstore.Store, entries []Entry) (*Tree, []blockstore.Block, error) {
	if len(entries) == 0 {
		return &Tree{store: store, empty: true}, nil, nil
	}

	sorted := append([]Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return bytes.Compare(sorted[i].Key, sorted[j].Key) < 0 })
	dedupeSortedEntries(&sorted)

	leafNodes := make([]levelEntry, len(sorted))
	for i, e := range sorted {
		leafNodes[i] = levelEntry{key: e.Key, value: e.Value}
	}

	root, blocks, err := buildLevels(ctx, store, leafNodes, 0, true)
	if err != nil {
		return nil, nil, err
	}
	return &Tree{store: store, root: root}, blocks, nil
}

// dedupeSortedEntries keeps the last occurrence of each key, matching
// bulk-apply's "last mutation in the batch wins" semantics when Create
// is fed an already-deduplicated-by-caller batch that nonetheless has
// accidental duplicates.
func dedupeSortedEntries(sorted *[]Entry) {
	s := *sorted
	out := s[:0]
	for i := 0; i < len(s); i++ {
		if i+1 < len(s) && bytes.Equal(s[i].Key, s[i+1].Key) {
			continue
		}
		out = append(out, s[i])
	}
	*sorted = out
}

// levelEntry is one entry at an arbitrary tree level: a leaf (key,
// value) pair or an internal (maxKeyOfSubtree, childCID) pair.
type levelEntry struct {
	key   []byte
	value []byte
	child cid.CID
}

// buildLevels chunks entries into nodes at level, recursing upward
// until exactly one node remains; that node's CID is the root.
func buildLevels(ctx context.Context, store blockstore.Store, entries []levelEntry, level uint8, leaf bool) (cid.CID, []blockstore.Block, error) {
	var blocks []blockstore.Block
	var parent []levelEntry

	chunk := make([]levelEntry, 0, bucketFactor*2)
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		rec := codec.NodeRecord{Level: level, Leaf: leaf, Entries: make([]codec.NodeEntry, len(chunk))}
		for i, le := range chunk {
			rec.Entries[i] = codec.NodeEntry{Key: le.key, Value: le.value, Child: le.child}
		}
		bytes_, c, err := codec.Encode(cid.CodecProllyNode, rec)
		if err != nil {
			return fmt.Errorf("prolly: encode node: %w", err)
		}
		if err := store.Put(ctx, c, bytes_); err != nil {
			return fmt.Errorf("prolly: store node: %w", err)
		}
		blocks = append(blocks, blockstore.Block{CID: c, Bytes: bytes_})
		parent = append(parent, levelEntry{key: chunk[len(chunk)-1].key, child: c})
		chunk = chunk[:0]
		return nil
	}

	for _, e := range entries {
		chunk = append(chunk, e)
		if len(chunk) >= maxNodeEntries || isBoundary(e.key) {
			if err := flush(); err != nil {
				return cid.CID{}, nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return cid.CID{}, nil, err
	}

	if len(parent) == 1 {
		return parent[0].child, blocks, nil
	}
	rootCID, upperBlocks, err := buildLevels(ctx, store, parent, level+1, false)
	if err != nil {
		return cid.CID{}, nil, err
	}
	return rootCID, append(blocks, upperBlocks...), nil
}

func (t *Tree) loadNode(ctx context.Context, c cid.CID) (codec.NodeRecord, error) {
	blk, err := t.store.Get(ctx, c)
	if err != nil {
		return codec.NodeRecord{}, fmt.Errorf("prolly: load node %s: %w", c, err)
	}
	var rec codec.NodeRecord
	if err := codec.Decode(blk.Bytes, &rec); err != nil {
		return codec.NodeRecord{}, &codec.DecodeError{CID: c, Err: err}
	}
	return rec, nil
}

// ErrNotFound is returned by Get when the key is absent from the tree.
var ErrNotFound = blockstore.ErrNotFound

// Get returns the value stored under key.
func (t *Tree) Get(ctx context.Context, key []byte) ([]byte, error) {
	if t.empty || t.root.IsUndef() {
		return nil, fmt.Errorf("prolly: get %q: %w", key, ErrNotFound)
	}
	return t.getFrom(ctx, t.root, key)
}

func (t *Tree) getFrom(ctx context.Context, node cid.CID, key []byte) ([]byte, error) {
	rec, err := t.loadNode(ctx, node)
	if err != nil {
		return nil, err
	}
	if rec.Leaf {
		for _, e := range rec.Entries {
			if bytes.Equal(e.Key, key) {
				return e.Value, nil
			}
		}
		return nil, fmt.Errorf("prolly: get %q: %w", key, ErrNotFound)
	}
	// Internal node: entries are keyed by the max key of their
	// subtree, in ascending order; descend into the first child whose
	// max key is >= the search key.
	for _, e := range rec.Entries {
		if bytes.Compare(key, e.Key) <= 0 {
			return t.getFrom(ctx, e.Child, key)
		}
	}
	return nil, fmt.Errorf("prolly: get %q: %w", key, ErrNotFound)
}

// GetMany returns the values for keys, in input order, silently
// skipping keys that are absent (spec §4.D: "skipping missing").
func (t *Tree) GetMany(ctx context.Context, keys [][]byte) ([][]byte, error) {
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		v, err := t.Get(ctx, k)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Range returns every entry with lo <= key <= hi, ordered by key
// (spec §4.D: "inclusive-inclusive"). A nil lo means "no lower bound";
// a nil hi means "no upper bound".
func (t *Tree) Range(ctx context.Context, lo, hi []byte) ([]Entry, error) {
	if t.empty || t.root.IsUndef() {
		return nil, nil
	}
	var out []Entry
	if err := t.rangeFrom(ctx, t.root, lo, hi, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Tree) rangeFrom(ctx context.Context, node cid.CID, lo, hi []byte, out *[]Entry) error {
	rec, err := t.loadNode(ctx, node)
	if err != nil {
		return err
	}
	if rec.Leaf {
		for _, e := range rec.Entries {
			if lo != nil && bytes.Compare(e.Key, lo) < 0 {
				continue
			}
			if hi != nil && bytes.Compare(e.Key, hi) > 0 {
				continue
			}
			*out = append(*out, Entry{Key: e.Key, Value: e.Value})
		}
		return nil
	}
	for _, e := range rec.Entries {
		if lo != nil && bytes.Compare(e.Key, lo) < 0 {
			continue
		}
		if err := t.rangeFrom(ctx, e.Child, lo, hi, out); err != nil {
			return err
		}
		if hi != nil && bytes.Compare(e.Key, hi) > 0 {
			break
		}
	}
	return nil
}

// Bulk applies a batch of puts/deletes and returns the new root CID
// plus the blocks newly added to the store (spec §4.D: "Must be
// deterministic: equal input batches from equal input trees produce
// equal root CIDs").
//
// This implementation rebuilds the tree from its full materialised
// contents on every call rather than patching only the affected chunk
// boundaries (the approach dolthub/dolt's chunker takes). A full
// rebuild is correct — the result depends only on the final key set,
// which is exactly the history-independence property invariant 2 (§3)
// requires — but it is not the efficient approach a production prolly
// tree takes; see DESIGN.md.
func (t *Tree) Bulk(ctx context.Context, mutations []Mutation) (cid.CID, []blockstore.Block, error) {
	existing := make(map[string][]byte)
	if !t.empty && !t.root.IsUndef() {
		rows, err := t.Range(ctx, nil, nil)
		if err != nil {
			return cid.CID{}, nil, err
		}
		for _, e := range rows {
			existing[string(e.Key)] = e.Value
		}
	}

	for _, m := range mutations {
		if m.Del {
			delete(existing, string(m.Key))
			continue
		}
		existing[string(m.Key)] = m.Value
	}

	entries := make([]Entry, 0, len(existing))
	for k, v := range existing {
		entries = append(entries, Entry{Key: []byte(k), Value: v})
	}

	// Build into a scratch store first so the Has check below still sees
	// which blocks the real store lacked before this call.
	newTree, blocks, err := Create(ctx, blockstore.NewMemory(), entries)
	if err != nil {
		return cid.CID{}, nil, err
	}

	additions := make([]blockstore.Block, 0, len(blocks))
	for _, b := range blocks {
		has, err := t.store.Has(ctx, b.CID)
		if err != nil {
			return cid.CID{}, nil, err
		}
		if !has {
			if err := t.store.Put(ctx, b.CID, b.Bytes); err != nil {
				return cid.CID{}, nil, fmt.Errorf("prolly: store node: %w", err)
			}
			additions = append(additions, b)
		}
	}

	return newTree.root, additions, nil
}
