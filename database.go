// Package causaldb implements a small embedded, content-addressed
// document database: mutable key-to-document mappings whose history is
// a Merkle DAG of event blocks (the clock), with materialised state
// kept in a prolly tree of immutable content-addressed blocks.
// Replicas sharing a block store converge deterministically after
// exchanging event references.
//
// Database is the CRDT engine (put/del/get/getAll/changesSince/
// advance); Index layers a secondary-index engine on top of it. Both
// are grounded on the teacher's engine/dag.Engine and
// engine/dag/state.State shape (build something referencing prior
// state, then advance the frontier), generalised from a single
// blockchain-consensus vertex DAG to a document database's branching,
// re-mergeable clock.
package causaldb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/causaldb/causaldb/internal/blockstore"
	"github.com/causaldb/causaldb/internal/cid"
	"github.com/causaldb/causaldb/internal/clock"
	"github.com/causaldb/causaldb/internal/codec"
	"github.com/causaldb/causaldb/internal/debounce"
	"github.com/causaldb/causaldb/internal/prolly"
	"github.com/causaldb/causaldb/internal/set"
)

// Entry is one materialised key/value pair, as returned by GetAll.
type Entry struct {
	Key   string
	Value []byte
}

// docRecord is the value actually stored in the materialised tree for
// each key: the value (or tombstone) alongside the CID of the event
// that wrote it. Tracking the origin CID lets a later Advance compare
// a remote delta's candidates against whatever already won this key on
// this replica, not just against the other events in that one delta
// (conflict.go). Deletes are stored as a tombstone record rather than
// removed from the tree so that provenance survives for future merges
// to reason about; Get/GetAll/ChangesSince filter tombstones out of
// what callers see.
type docRecord struct {
	Origin    cid.CID
	Tombstone bool
	Value     []byte
}

// originWidth is the fixed width of a CID's MarshalBinary encoding
// (one codec-tag byte plus the digest), which is what makes docRecord's
// framing a plain fixed-prefix split rather than needing a length
// prefix of its own.
const originWidth = 1 + cid.Size

func encodeDocRecord(r docRecord) []byte {
	ob, _ := r.Origin.MarshalBinary() // CID.MarshalBinary never fails
	out := make([]byte, 0, len(ob)+1+len(r.Value))
	out = append(out, ob...)
	if r.Tombstone {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	out = append(out, r.Value...)
	return out
}

func decodeDocRecord(raw []byte) (docRecord, error) {
	if len(raw) < originWidth+1 {
		return docRecord{}, fmt.Errorf("causaldb: decode doc record: truncated (%d bytes)", len(raw))
	}
	var origin cid.CID
	if err := origin.UnmarshalBinary(raw[:originWidth]); err != nil {
		return docRecord{}, fmt.Errorf("causaldb: decode doc record: %w", err)
	}
	return docRecord{
		Origin:    origin,
		Tombstone: raw[originWidth] != 0,
		Value:     raw[originWidth+1:],
	}, nil
}

// ChangeRow is one entry of a ChangesSince result: the latest known
// state of Key, and whether that state is a deletion.
type ChangeRow struct {
	Key   string
	Value []byte
	Del   bool
}

// PutResult is the outcome of Put/Del (spec §4.E/§6).
type PutResult struct {
	Event     clock.Event
	Head      clock.Head
	Root      cid.CID
	Additions []blockstore.Block
}

type subscriber struct {
	fn        func()
	debouncer *debounce.Debouncer
}

// Database is one embeddable, single-process handle on a causaldb
// document database. All mutating methods serialise on an internal
// mutex (spec §5: "implementations may enforce this with an internal
// mutex"); methods accept a context.Context for cancellation at
// block-store I/O boundaries even though the bundled blockstore.Memory
// never blocks (blockstore.Pebble does).
type Database struct {
	mu    sync.Mutex
	store blockstore.Store
	head  clock.Head
	root  cid.CID
	log   *zap.Logger

	subsMu sync.Mutex
	subs   map[string]*subscriber
}

// Open returns a new Database over store with an empty clock (spec §6:
// "open(blockstore) → Database"). Pass a nil logger to use a no-op
// logger.
func Open(store blockstore.Store, logger *zap.Logger) *Database {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Database{
		store: store,
		log:   logger,
		subs:  make(map[string]*subscriber),
	}
}

// Head returns a copy of the current clock head.
func (d *Database) Head() clock.Head {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.head.Clone()
}

// RootCID returns the CID of the current materialised prolly tree root,
// or the undefined CID if the database is empty.
func (d *Database) RootCID() cid.CID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.root
}

// Put creates a Put event for {key, value}, applies it to the
// materialised tree, and advances the head to the new event (spec
// §4.E "put").
func (d *Database) Put(ctx context.Context, key string, value []byte) (PutResult, error) {
	return d.apply(ctx, codec.EventData{Kind: codec.EventPut, Key: key, Value: value})
}

// Del creates a Del event for key, applies the deletion to the
// materialised tree, and advances the head (spec §4.E "del").
func (d *Database) Del(ctx context.Context, key string) (PutResult, error) {
	return d.apply(ctx, codec.EventData{Kind: codec.EventDel, Key: key})
}

func (d *Database) apply(ctx context.Context, data codec.EventData) (PutResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ev, raw, err := clock.CreateEvent(d.head.List(), data)
	if err != nil {
		return PutResult{}, fmt.Errorf("causaldb: create event: %w", err)
	}
	if err := d.store.Put(ctx, ev.CID, raw); err != nil {
		return PutResult{}, &StoreIOError{Err: err}
	}

	tree := prolly.Load(d.store, d.root)
	rec := docRecord{Origin: ev.CID, Tombstone: data.Kind == codec.EventDel, Value: data.Value}
	mutation := prolly.Mutation{Key: []byte(data.Key), Value: encodeDocRecord(rec)}
	newRoot, additions, err := tree.Bulk(ctx, []prolly.Mutation{mutation})
	if err != nil {
		return PutResult{}, fmt.Errorf("causaldb: apply to tree: %w", err)
	}

	newHead, err := clock.Advance(ctx, d.store, d.head, ev.CID)
	if err != nil {
		return PutResult{}, d.wrapClockErr(err)
	}

	d.head = newHead
	d.root = newRoot
	d.log.Debug("applied event", zap.String("cid", ev.CID.String()), zap.String("key", data.Key), zap.Int("head_size", newHead.Len()))
	d.notify()

	return PutResult{Event: ev, Head: newHead.Clone(), Root: newRoot, Additions: additions}, nil
}

// Get returns the materialised value for key, or ErrNotFound (spec
// §4.E "get").
func (d *Database) Get(ctx context.Context, key string) ([]byte, error) {
	d.mu.Lock()
	tree := prolly.Load(d.store, d.root)
	d.mu.Unlock()

	raw, err := tree.Get(ctx, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("causaldb: get %q: %w", key, ErrNotFound)
	}
	rec, err := decodeDocRecord(raw)
	if err != nil {
		return nil, &DecodeError{CID: d.RootCID(), Err: err}
	}
	if rec.Tombstone {
		return nil, fmt.Errorf("causaldb: get %q: %w", key, ErrNotFound)
	}
	return rec.Value, nil
}

// GetAll returns every materialised entry in key order (spec §4.E
// "getAll").
func (d *Database) GetAll(ctx context.Context) ([]Entry, error) {
	d.mu.Lock()
	root := d.root
	tree := prolly.Load(d.store, root)
	d.mu.Unlock()

	rows, err := tree.Range(ctx, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("causaldb: getAll: %w", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		rec, err := decodeDocRecord(r.Value)
		if err != nil {
			return nil, &DecodeError{CID: root, Err: err}
		}
		if rec.Tombstone {
			continue
		}
		out = append(out, Entry{Key: string(r.Key), Value: rec.Value})
	}
	return out, nil
}

// ChangesSince returns the rows changed since sinceHead and the head at
// call time (spec §4.E "changesSince"). A nil or empty sinceHead
// returns the full materialised state.
func (d *Database) ChangesSince(ctx context.Context, sinceHead clock.Head) ([]ChangeRow, clock.Head, error) {
	d.mu.Lock()
	head := d.head.Clone()
	store := d.store
	d.mu.Unlock()

	if sinceHead.Len() == 0 {
		all, err := d.GetAll(ctx)
		if err != nil {
			return nil, head, err
		}
		rows := make([]ChangeRow, len(all))
		for i, e := range all {
			rows[i] = ChangeRow{Key: e.Key, Value: e.Value}
		}
		return rows, head, nil
	}

	events, err := clock.Since(ctx, store, head, sinceHead)
	if err != nil {
		return nil, head, d.wrapClockErr(err)
	}

	seen := make(map[string]bool, len(events))
	var rows []ChangeRow
	for _, ev := range events {
		if seen[ev.Record.Data.Key] {
			continue
		}
		seen[ev.Record.Data.Key] = true
		rows = append(rows, ChangeRow{
			Key:   ev.Record.Data.Key,
			Value: ev.Record.Data.Value,
			Del:   ev.Record.Data.Kind == codec.EventDel,
		})
	}
	return rows, head, nil
}

// Advance merges a remote event CID into this database's clock,
// recomputing the materialised tree by replaying only the delta (spec
// §4.E "advance"). Convergence follows because events are
// content-addressed and causally linked, advance is commutative and
// associative on heads, the conflict resolver is a pure function of the
// event set, and the prolly tree is history-independent.
func (d *Database) Advance(ctx context.Context, eventCID cid.CID) (clock.Head, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	newHead, err := clock.Advance(ctx, d.store, d.head, eventCID)
	if err != nil {
		return d.head.Clone(), d.wrapClockErr(err)
	}
	if newHead.Equals(d.head) {
		return newHead.Clone(), nil
	}

	delta, err := clock.Since(ctx, d.store, newHead, d.head)
	if err != nil {
		return d.head.Clone(), d.wrapClockErr(err)
	}

	tree := prolly.Load(d.store, d.root)
	mutations, err := resolveConflicts(ctx, tree, d.store, delta)
	if err != nil {
		return d.head.Clone(), fmt.Errorf("causaldb: advance: resolve conflicts: %w", err)
	}
	if len(mutations) > 0 {
		newRoot, _, err := tree.Bulk(ctx, mutations)
		if err != nil {
			return d.head.Clone(), fmt.Errorf("causaldb: advance: apply delta: %w", err)
		}
		d.root = newRoot
	}

	d.head = newHead
	d.log.Debug("advanced head", zap.String("cid", eventCID.String()), zap.Int("head_size", newHead.Len()), zap.Int("delta_events", len(delta)))
	d.notify()
	return newHead.Clone(), nil
}

// SetClock replaces the current head wholesale, e.g. when restoring a
// previously marshalled clock handle (spec §6 "setClock"), and rebuilds
// the materialised tree to match it. Every event reachable from head is
// treated as one combined delta against an empty tree and resolved
// through the same per-key conflict rule Advance uses (conflict.go),
// so the resulting root is whatever Advance would have produced by
// learning the same events one at a time — setting the head without
// also rebuilding the tree would leave the two silently inconsistent,
// since there is no other path (short of replaying every event through
// Advance, which SetClock exists to avoid) that brings the tree back
// in line with an adopted head.
func (d *Database) SetClock(ctx context.Context, head clock.Head) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	events, err := clock.Since(ctx, d.store, head, nil)
	if err != nil {
		return d.wrapClockErr(err)
	}

	emptyTree := prolly.Load(d.store, cid.Undef)
	mutations, err := resolveConflicts(ctx, emptyTree, d.store, events)
	if err != nil {
		return fmt.Errorf("causaldb: set clock: resolve conflicts: %w", err)
	}

	newRoot := cid.Undef
	if len(mutations) > 0 {
		newRoot, _, err = emptyTree.Bulk(ctx, mutations)
		if err != nil {
			return fmt.Errorf("causaldb: set clock: apply: %w", err)
		}
	}

	d.head = head.Clone()
	d.root = newRoot
	return nil
}

// ClockHandle is the JSON-serializable shape external binding layers
// persist and restore a clock through (spec §6: "Serialized clock
// handle", `{ clock: [cidString] }`).
type ClockHandle struct {
	Clock []string `json:"clock"`
}

// MarshalClock renders the current head as a binding-layer-portable
// handle.
func (d *Database) MarshalClock() ClockHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := d.head.List()
	sort.Slice(ids, func(i, j int) bool { return cid.Less(ids[i], ids[j]) })
	out := make([]string, len(ids))
	for i, c := range ids {
		out[i] = c.String()
	}
	return ClockHandle{Clock: out}
}

// UnmarshalClock restores the head (and, via SetClock, the materialised
// tree) from a handle previously produced by MarshalClock (or an
// equivalent external representation).
func (d *Database) UnmarshalClock(ctx context.Context, h ClockHandle) error {
	head := set.New[cid.CID](len(h.Clock))
	for _, s := range h.Clock {
		c, err := cid.Parse(s)
		if err != nil {
			return fmt.Errorf("causaldb: unmarshal clock: %w", err)
		}
		head.Add(c)
	}
	return d.SetClock(ctx, head)
}

// Subscribe registers fn to be called whenever a mutation occurs,
// debounced by debounce.DefaultInterval (spec §6 "subscribe", default
// 250ms). Calling Subscribe again with the same label replaces the
// previous subscription.
func (d *Database) Subscribe(label string, fn func()) {
	d.SubscribeInterval(label, debounce.DefaultInterval, fn)
}

// SubscribeInterval is Subscribe with an explicit debounce interval
// (spec §6 "coalesce bursts using a trailing debounce of configurable
// interval").
func (d *Database) SubscribeInterval(label string, interval time.Duration, fn func()) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	if old, ok := d.subs[label]; ok {
		old.debouncer.Stop()
	}
	d.subs[label] = &subscriber{fn: fn, debouncer: debounce.New(interval, fn)}
}

// Unsubscribe removes a subscription registered under label.
func (d *Database) Unsubscribe(label string) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	if s, ok := d.subs[label]; ok {
		s.debouncer.Stop()
		delete(d.subs, label)
	}
}

// notify triggers every subscriber's debounced fan-out. Called with
// d.mu already held by the mutating method it finishes.
func (d *Database) notify() {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	for _, s := range d.subs {
		s.debouncer.Trigger()
	}
}

func (d *Database) wrapClockErr(err error) error {
	var missing *clock.MissingEventError
	if errors.As(err, &missing) {
		return fmt.Errorf("%w: %s", ErrMissingEvent, missing.CID)
	}
	return err
}
