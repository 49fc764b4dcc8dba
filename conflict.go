package causaldb

import (
	"bytes"
	"context"
	"errors"
	"sort"

	"github.com/causaldb/causaldb/internal/blockstore"
	"github.com/causaldb/causaldb/internal/cid"
	"github.com/causaldb/causaldb/internal/clock"
	"github.com/causaldb/causaldb/internal/codec"
	"github.com/causaldb/causaldb/internal/prolly"
	"github.com/causaldb/causaldb/internal/set"
)

// resolveConflicts turns a clock delta into a deterministic batch of
// tree mutations, at most one per distinct key touched by the delta
// (none for a key whose existing tree entry still wins) (spec §4.E
// "advance" step 2: "per-key conflict resolution = pick the entry from
// the event with highest CID byte order among those with no descendant
// in the delta").
//
// For each key, "descendant" is evaluated against the other candidate
// events for that same key within the delta *and* against whatever
// event already wrote the key into tree (the value the tree currently
// holds carries its writer's CID — see docRecord): an event whose
// write to the key is superseded by a causally-later write, whether
// that later write is another delta candidate or the key's existing
// entry, is dropped, leaving only the causally-maximal (possibly
// concurrent) candidates, among which the highest CID wins. Comparing
// only within the delta and ignoring the tree's existing entry would
// let a replica's own prior write to a key get unconditionally
// overwritten by a concurrent remote delta, breaking convergence
// (§8 scenario S3, invariant 1).
func resolveConflicts(ctx context.Context, tree *prolly.Tree, store blockstore.Store, delta []clock.Event) ([]prolly.Mutation, error) {
	byCID := make(map[cid.CID]clock.Event, len(delta))
	for _, e := range delta {
		byCID[e.CID] = e
	}

	memo := make(map[cid.CID]set.Set[cid.CID])
	var ancestorsWithin func(c cid.CID) set.Set[cid.CID]
	ancestorsWithin = func(c cid.CID) set.Set[cid.CID] {
		if acc, ok := memo[c]; ok {
			return acc
		}
		acc := set.New[cid.CID](4)
		memo[c] = acc // break cycles defensively; the DAG is acyclic in practice
		if ev, ok := byCID[c]; ok {
			for _, p := range ev.Record.Parents {
				if _, inDelta := byCID[p]; !inDelta {
					continue
				}
				acc.Add(p)
				acc.Union(ancestorsWithin(p))
			}
		}
		memo[c] = acc
		return acc
	}

	candidatesByKey := make(map[string][]clock.Event)
	var keyOrder []string
	for _, e := range delta {
		k := e.Record.Data.Key
		if _, ok := candidatesByKey[k]; !ok {
			keyOrder = append(keyOrder, k)
		}
		candidatesByKey[k] = append(candidatesByKey[k], e)
	}
	sort.Strings(keyOrder)

	mutations := make([]prolly.Mutation, 0, len(candidatesByKey))
	for _, key := range keyOrder {
		candidates := candidatesByKey[key]
		deltaWinner := pickWinner(candidates, ancestorsWithin)

		origin, supersededOrAbsent, err := existingOrigin(ctx, tree, store, key, candidates)
		if err != nil {
			return nil, err
		}
		if !supersededOrAbsent && cid.Less(deltaWinner.CID, origin) {
			// The tree's current entry for this key is concurrent with
			// every delta candidate and has a higher CID: it already
			// won and the tree needs no mutation for this key.
			continue
		}

		mutations = append(mutations, prolly.Mutation{
			Key: []byte(key),
			Value: encodeDocRecord(docRecord{
				Origin:    deltaWinner.CID,
				Tombstone: deltaWinner.Record.Data.Kind == codec.EventDel,
				Value:     deltaWinner.Record.Data.Value,
			}),
		})
	}

	sort.Slice(mutations, func(i, j int) bool { return bytes.Compare(mutations[i].Key, mutations[j].Key) < 0 })
	return mutations, nil
}

// existingOrigin loads the writer CID already recorded for key in tree,
// if any, and reports whether it is superseded by (an ancestor of) one
// of candidates — in which case the tree's entry plays no further part
// in picking this key's winner — or absent entirely (no prior entry).
func existingOrigin(ctx context.Context, tree *prolly.Tree, store blockstore.Store, key string, candidates []clock.Event) (cid.CID, bool, error) {
	raw, err := tree.Get(ctx, []byte(key))
	if err != nil {
		if errors.Is(err, prolly.ErrNotFound) {
			return cid.CID{}, true, nil
		}
		return cid.CID{}, false, err
	}
	rec, err := decodeDocRecord(raw)
	if err != nil {
		return cid.CID{}, false, &DecodeError{CID: tree.Root(), Err: err}
	}
	for _, c := range candidates {
		superseded, err := clock.IsAncestor(ctx, store, rec.Origin, c.CID)
		if err != nil {
			return cid.CID{}, false, err
		}
		if superseded {
			return rec.Origin, true, nil
		}
	}
	return rec.Origin, false, nil
}

func pickWinner(candidates []clock.Event, ancestorsWithin func(cid.CID) set.Set[cid.CID]) clock.Event {
	if len(candidates) == 1 {
		return candidates[0]
	}

	var maximal []clock.Event
	for _, c := range candidates {
		superseded := false
		for _, other := range candidates {
			if other.CID == c.CID {
				continue
			}
			if ancestorsWithin(other.CID).Contains(c.CID) {
				superseded = true
				break
			}
		}
		if !superseded {
			maximal = append(maximal, c)
		}
	}

	winner := maximal[0]
	for _, c := range maximal[1:] {
		if cid.Less(winner.CID, c.CID) {
			winner = c
		}
	}
	return winner
}
