// Package codec encodes and decodes the two record shapes causaldb
// persists as blocks: clock events and prolly tree nodes.
//
// Encoding is canonical CBOR (github.com/fxamacker/cbor/v2 with
// CanonicalEncOptions): map keys sorted, definite-length arrays and
// maps, minimal integer encoding. Canonical mode is load-bearing here,
// not an optimization: two replicas that encode the same logical record
// must produce byte-identical output so they derive the same CID (§6,
// "equivalent records always hash to the same CID across replicas").
// encoding/json was the teacher's own codec backend (codec/codec.go) but
// JSON key order is implementation-defined, so it cannot satisfy that
// requirement; CBOR's canonical mode can.
package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/causaldb/causaldb/internal/cid"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	opts := cbor.CanonicalEncOptions()
	m, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building canonical encode mode: %v", err))
	}
	encMode = m

	dopts := cbor.DecOptions{}
	dm, err := dopts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building decode mode: %v", err))
	}
	decMode = dm
}

// Encode canonically encodes v and returns both the bytes and the CID
// those bytes hash to under the given codec tag.
func Encode(tag cid.Codec, v any) ([]byte, cid.CID, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, cid.CID{}, fmt.Errorf("codec: encode: %w", err)
	}
	return b, cid.New(tag, b), nil
}

// Decode decodes bytes into v. Callers should attribute decode failures
// to the originating CID to produce a DecodeError.
func Decode(b []byte, v any) error {
	if err := decMode.Unmarshal(b, v); err != nil {
		return fmt.Errorf("codec: decode: %w", err)
	}
	return nil
}

// DecodeError reports that the bytes stored under CID failed to decode
// under the codec they were declared with (spec §7). Defined here
// rather than in the root package so the two call sites that actually
// observe a decode failure against a known CID — clock.fetch and
// prolly.Tree.loadNode — can construct it directly without importing
// back up to the root package.
type DecodeError struct {
	CID cid.CID
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: decode %s: %v", e.CID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EventKind distinguishes the Put/Del variants of EventData. CBOR has no
// native sum type, so the union is represented as a Kind tag plus both
// (optional) payload fields.
type EventKind uint8

const (
	EventPut EventKind = iota
	EventDel
)

// EventData is the tagged Put/Del payload of an event block (spec §3).
type EventData struct {
	Kind  EventKind `cbor:"1,keyasint"`
	Key   string    `cbor:"2,keyasint"`
	Value []byte    `cbor:"3,keyasint,omitempty"`
}

// EventRecord is the decoded shape of an event block: its parent CIDs
// plus its Put/Del payload (spec §3, "Event block").
type EventRecord struct {
	Parents []cid.CID `cbor:"1,keyasint"`
	Data    EventData `cbor:"2,keyasint"`
}

// NodeEntry is one key/value pair (leaf level) or one key/child-CID pair
// (internal level) of a prolly tree node.
type NodeEntry struct {
	Key   []byte  `cbor:"1,keyasint"`
	Value []byte  `cbor:"2,keyasint,omitempty"`
	Child cid.CID `cbor:"3,keyasint"`
}

// NodeRecord is the decoded shape of a prolly tree node (spec §3,
// "Prolly tree"). Leaf nodes carry (key,value) entries; internal nodes
// carry (maxKeyOfSubtree, childCID) entries.
type NodeRecord struct {
	Level   uint8       `cbor:"1,keyasint"`
	Leaf    bool        `cbor:"2,keyasint"`
	Entries []NodeEntry `cbor:"3,keyasint"`
}
