package prolly

import "hash/fnv"

// bucketFactor is the content-defined chunker's target average node
// size: each entry independently has a 1/bucketFactor chance of ending
// the chunk it's in, so chunks average bucketFactor entries (spec §4.D:
// "chunker = bucket-factor 3"). A node therefore averages three
// entries regardless of where a batch's insertion order starts, which
// is what makes two trees built from the same key set converge to the
// same shape no matter how the keys arrived.
const bucketFactor = 3

// maxNodeEntries backstops the (probabilistic) boundary rule so a
// pathological run of keys that never lands on a boundary still
// produces a bounded node instead of growing forever. The teacher's
// grounding reference for this algorithm (dolthub/dolt's
// nodeSplitter/chunker) has an equivalent hard cap for the same reason.
const maxNodeEntries = 64

// isBoundary reports whether the entry whose comparator key is
// keyBytes should end the current chunk. The decision is a pure
// function of the key bytes alone (not of position or prior state),
// which is what gives the chunker its content-defined property: the
// same key always makes the same boundary decision, so equal key sets
// produce equal chunk boundaries independent of insertion order.
func isBoundary(keyBytes []byte) bool {
	h := fnv.New64a()
	_, _ = h.Write(keyBytes)
	return h.Sum64()%bucketFactor == 0
}
