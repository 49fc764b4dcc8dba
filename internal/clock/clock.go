// Package clock implements the Merkle DAG of event blocks that records
// a causaldb database's causal history (spec §4.C). It is the direct
// descendant of the teacher's dag.DAG (dag/dag.go: a Block{ID, Parents}
// map plus a tips set maintained on AddBlock) and engine/dag/vertex.go
// (a Vertex carrying parentIDs) — generalised from "track tips, whoever
// has no children" into the full three-way ancestor/descendant/
// concurrent reasoning Advance requires, since a document database's
// head can genuinely branch and later re-merge, unlike the teacher's
// single confirmed tip.
package clock

import (
	"context"
	"fmt"
	"sort"

	"github.com/causaldb/causaldb/internal/blockstore"
	"github.com/causaldb/causaldb/internal/cid"
	"github.com/causaldb/causaldb/internal/codec"
	"github.com/causaldb/causaldb/internal/set"
)

// MissingEventError is raised when advancing or traversing the clock
// references an event CID unreachable in the block store (spec §7).
type MissingEventError struct {
	CID cid.CID
}

func (e *MissingEventError) Error() string {
	return fmt.Sprintf("clock: missing event %s", e.CID)
}

// Head is the unordered set of frontier event CIDs: those not known to
// be an ancestor of any other known event (spec §3). The zero value is
// an empty head, "empty database".
type Head = set.Set[cid.CID]

// Event pairs a decoded event record with the CID it was stored under.
type Event struct {
	CID    cid.CID
	Record codec.EventRecord
}

// CreateEvent encodes {parents, data} and returns the resulting event
// block alongside the CID it will be stored under. It does not touch
// the block store (spec §4.C: "Does not insert").
func CreateEvent(parents []cid.CID, data codec.EventData) (Event, []byte, error) {
	rec := codec.EventRecord{Parents: parents, Data: data}
	bytes, c, err := codec.Encode(cid.CodecEvent, rec)
	if err != nil {
		return Event{}, nil, fmt.Errorf("clock: create event: %w", err)
	}
	return Event{CID: c, Record: rec}, bytes, nil
}

// fetch loads and decodes the event stored at c.
func fetch(ctx context.Context, store blockstore.Store, c cid.CID) (Event, error) {
	blk, err := store.Get(ctx, c)
	if err != nil {
		return Event{}, &MissingEventError{CID: c}
	}
	var rec codec.EventRecord
	if err := codec.Decode(blk.Bytes, &rec); err != nil {
		return Event{}, &codec.DecodeError{CID: c, Err: err}
	}
	return Event{CID: c, Record: rec}, nil
}

// ancestorClosure returns the set of CIDs reachable from roots via
// parent edges, inclusive of the roots themselves. BFS is memoised in
// the returned/visited map for the duration of this one call, per
// spec's "memoised per call".
func ancestorClosure(ctx context.Context, store blockstore.Store, roots ...cid.CID) (set.Set[cid.CID], error) {
	visited := set.New[cid.CID](len(roots) * 4)
	queue := append([]cid.CID(nil), roots...)
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if visited.Contains(c) {
			continue
		}
		visited.Add(c)
		ev, err := fetch(ctx, store, c)
		if err != nil {
			return nil, err
		}
		for _, p := range ev.Record.Parents {
			if !visited.Contains(p) {
				queue = append(queue, p)
			}
		}
	}
	return visited, nil
}

// isAncestor reports whether candidate is an ancestor of (or equal to)
// of.
func isAncestor(ctx context.Context, store blockstore.Store, candidate, of cid.CID) (bool, error) {
	if candidate == of {
		return true, nil
	}
	anc, err := ancestorClosure(ctx, store, of)
	if err != nil {
		return false, err
	}
	return anc.Contains(candidate), nil
}

// IsAncestor reports whether candidate is an ancestor of (or equal to)
// of. Exported for conflict resolution, which needs to relate an event
// outside the delta it is currently resolving (the origin of whatever
// value is already materialised for a key) to the delta's candidates.
func IsAncestor(ctx context.Context, store blockstore.Store, candidate, of cid.CID) (bool, error) {
	return isAncestor(ctx, store, candidate, of)
}

// Advance applies the head-maintenance rules of spec §4.C to head given
// a newly-observed event CID, returning the updated head.
func Advance(ctx context.Context, store blockstore.Store, head Head, newEventCID cid.CID) (Head, error) {
	// 1. newEventCid already in head: unchanged.
	if head.Contains(newEventCID) {
		return head, nil
	}

	// 2. If any h in head is an ancestor of newEventCid, remove all
	// such h and add newEventCid.
	newEventAncestors, err := ancestorClosure(ctx, store, newEventCID)
	if err != nil {
		return head, err
	}
	next := head.Clone()
	replaced := false
	for h := range head {
		if newEventAncestors.Contains(h) {
			next.Remove(h)
			replaced = true
		}
	}
	if replaced {
		next.Add(newEventCID)
		return next, nil
	}

	// 3. Else if newEventCid is an ancestor of any h in head, unchanged.
	for h := range head {
		anc, err := isAncestor(ctx, store, newEventCID, h)
		if err != nil {
			return head, err
		}
		if anc {
			return head, nil
		}
	}

	// 4. Otherwise newEventCid is concurrent with the existing head.
	next = head.Clone()
	next.Add(newEventCID)
	return next, nil
}

// Since returns the events reachable from head but not from sinceHead,
// in reverse-topological order (each event precedes its own parents)
// with ties between concurrent events broken by ascending CID byte
// order, per spec §4.C.
func Since(ctx context.Context, store blockstore.Store, head, sinceHead Head) ([]Event, error) {
	excluded := set.New[cid.CID](sinceHead.Len() * 4)
	if sinceHead.Len() > 0 {
		var err error
		excluded, err = ancestorClosure(ctx, store, sinceHead.List()...)
		if err != nil {
			return nil, err
		}
	}

	visited := set.New[cid.CID](8)
	frontier := head.List()
	var out []Event

	for len(frontier) > 0 {
		sort.Slice(frontier, func(i, j int) bool { return cid.Less(frontier[i], frontier[j]) })
		c := frontier[0]
		frontier = frontier[1:]

		if visited.Contains(c) || excluded.Contains(c) {
			continue
		}
		visited.Add(c)

		ev, err := fetch(ctx, store, c)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)

		for _, p := range ev.Record.Parents {
			if !visited.Contains(p) && !excluded.Contains(p) {
				frontier = append(frontier, p)
			}
		}
	}
	return out, nil
}
