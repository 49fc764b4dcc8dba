// Package cid implements the content identifiers used to address every
// block (event or prolly tree node) stored by causaldb.
//
// A CID is a SHA-256 digest of a block's canonical encoding paired with a
// codec tag identifying what kind of record the block decodes to. Two
// blocks with byte-identical canonical encodings always produce the same
// CID, which is what makes the prolly tree and the event log
// content-addressed and history-independent.
package cid

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// Codec tags the kind of record a block decodes to. These are local to
// causaldb, not a registry shared across implementations.
type Codec uint64

const (
	CodecRaw        Codec = iota // opaque bytes, no further structure
	CodecEvent                   // an encoded clock event ({parents, data})
	CodecProllyNode               // an encoded prolly tree node
)

func (c Codec) String() string {
	switch c {
	case CodecRaw:
		return "raw"
	case CodecEvent:
		return "event"
	case CodecProllyNode:
		return "prolly-node"
	default:
		return fmt.Sprintf("codec(%d)", uint64(c))
	}
}

// Size is the digest width of the hash function used throughout causaldb
// (SHA-256, fixed per the component parameters shared by every tree and
// event in a database).
const Size = sha256.Size

// CID is an opaque, fixed-width handle: a content hash plus a codec tag.
// Equality is plain struct equality.
type CID struct {
	hash  [Size]byte
	codec Codec
}

// Undef is the zero CID. It never equals a real CID because New always
// hashes at least the empty input, and is reserved for "no value" in call
// sites that need a sentinel (e.g. an empty parents list is represented
// as a nil slice, not Undef, so Undef is rarely observed in practice).
var Undef CID

// New computes the CID of bytes under the given codec tag.
func New(codec Codec, bytes []byte) CID {
	return CID{hash: sha256.Sum256(bytes), codec: codec}
}

// Codec returns the codec tag this CID was created with.
func (c CID) Codec() Codec { return c.codec }

// IsUndef reports whether c is the zero value.
func (c CID) IsUndef() bool { return c == Undef }

// Bytes returns the raw digest bytes (without the codec tag) as a new
// slice safe for the caller to retain.
func (c CID) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, c.hash[:])
	return out
}

// MarshalBinary implements encoding.BinaryMarshaler so a CID can be
// embedded directly in a canonical-CBOR record (cbor/v2 encodes
// encoding.BinaryMarshaler values as a byte string); CID's fields are
// unexported precisely so this is the only encoding path.
func (c CID) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 1+Size)
	buf = append(buf, byte(c.codec))
	buf = append(buf, c.hash[:]...)
	return buf, nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (c *CID) UnmarshalBinary(buf []byte) error {
	if len(buf) != 1+Size {
		return fmt.Errorf("cid: unmarshal: got %d bytes, want %d", len(buf), 1+Size)
	}
	c.codec = Codec(buf[0])
	copy(c.hash[:], buf[1:])
	return nil
}

// String renders the CID as a base58-encoded codec-tag+digest, the usual
// human-readable rendering for content identifiers in hash-addressed
// systems (analogous to an IPFS/multiformats CID string).
func (c CID) String() string {
	buf := make([]byte, 0, 1+Size)
	buf = append(buf, byte(c.codec))
	buf = append(buf, c.hash[:]...)
	return base58.Encode(buf)
}

// Parse decodes a CID previously produced by String.
func Parse(s string) (CID, error) {
	buf, err := base58.Decode(s)
	if err != nil {
		return CID{}, fmt.Errorf("cid: decode %q: %w", s, err)
	}
	if len(buf) != 1+Size {
		return CID{}, fmt.Errorf("cid: %q decodes to %d bytes, want %d", s, len(buf), 1+Size)
	}
	var c CID
	c.codec = Codec(buf[0])
	copy(c.hash[:], buf[1:])
	return c, nil
}

// Less defines a total order on CIDs (byte-lexicographic on the digest,
// then by codec tag) used as the deterministic CID tiebreak for
// concurrent writes (§4.E, §9 open question 3). The prolly tree does not
// use it; tree keys are compared with bytes.Compare.
func Less(a, b CID) bool {
	for i := range a.hash {
		if a.hash[i] != b.hash[i] {
			return a.hash[i] < b.hash[i]
		}
	}
	return a.codec < b.codec
}
