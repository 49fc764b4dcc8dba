// Package keyenc implements the order-preserving byte encoding the
// index engine needs for its composite `[emittedKey, docId]` tree keys
// (spec §4.F: "Range-scan indexRoot on [[lo, minId], [hi, maxId]]").
// The prolly tree only knows byte-lexicographic key order (bytes.Compare
// in internal/prolly), so an emitted key of any supported Go type
// must round-trip through a byte encoding that preserves that type's
// natural order.
//
// No library in the pack implements ordered key encoding (pebble's own
// ordered-bytes tricks live deep in its internal sstable code, not an
// importable package), so this is built directly on encoding/binary
// and math.Float64bits following the standard technique CockroachDB's
// own key encoding is built on: flip/set the sign bit of a float's or
// int's big-endian bit pattern so unsigned byte comparison matches
// numeric comparison, and escape embedded zero bytes before
// concatenating a second field so the boundary between fields can't be
// mistaken for data.
package keyenc

import (
	"encoding/binary"
	"fmt"
	"math"
)

type tag byte

const (
	tagNil tag = iota
	tagBool
	tagInt64
	tagFloat64
	tagString
)

// EncodeOrdered renders v as bytes whose unsigned lexicographic order
// matches v's natural order among values of the same Go type. Supported
// types: nil, bool, int, int64, float64, string.
func EncodeOrdered(v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return []byte{byte(tagNil)}, nil
	case bool:
		b := byte(0)
		if x {
			b = 1
		}
		return []byte{byte(tagBool), b}, nil
	case int:
		return EncodeOrdered(int64(x))
	case int64:
		u := uint64(x) ^ (1 << 63)
		buf := make([]byte, 9)
		buf[0] = byte(tagInt64)
		binary.BigEndian.PutUint64(buf[1:], u)
		return buf, nil
	case float64:
		bits := math.Float64bits(x)
		if bits>>63 == 1 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		buf := make([]byte, 9)
		buf[0] = byte(tagFloat64)
		binary.BigEndian.PutUint64(buf[1:], bits)
		return buf, nil
	case string:
		buf := make([]byte, 1+len(x))
		buf[0] = byte(tagString)
		copy(buf[1:], x)
		return buf, nil
	default:
		return nil, fmt.Errorf("keyenc: unsupported key type %T", v)
	}
}

// DecodeOrdered inverts EncodeOrdered.
func DecodeOrdered(buf []byte) (any, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("keyenc: empty key")
	}
	switch tag(buf[0]) {
	case tagNil:
		return nil, nil
	case tagBool:
		if len(buf) < 2 {
			return nil, fmt.Errorf("keyenc: truncated bool key")
		}
		return buf[1] == 1, nil
	case tagInt64:
		if len(buf) < 9 {
			return nil, fmt.Errorf("keyenc: truncated int64 key")
		}
		u := binary.BigEndian.Uint64(buf[1:9])
		return int64(u ^ (1 << 63)), nil
	case tagFloat64:
		if len(buf) < 9 {
			return nil, fmt.Errorf("keyenc: truncated float64 key")
		}
		bits := binary.BigEndian.Uint64(buf[1:9])
		if bits>>63 == 1 {
			bits &^= 1 << 63
		} else {
			bits = ^bits
		}
		return math.Float64frombits(bits), nil
	case tagString:
		return string(buf[1:]), nil
	default:
		return nil, fmt.Errorf("keyenc: unknown tag %d", buf[0])
	}
}

// escapeAndTerminate escapes embedded 0x00 bytes in raw as the pair
// 0x00,0xFF and appends the 0x00,0x00 terminator marking the end of the
// primary field. This is the standard ordered-bytes escaping scheme
// (zero-escape-and-terminate) that lets a second field be concatenated
// immediately after without disturbing byte-lexicographic order.
func escapeAndTerminate(raw []byte) []byte {
	out := make([]byte, 0, len(raw)+2)
	for _, b := range raw {
		out = append(out, b)
		if b == 0x00 {
			out = append(out, 0xFF)
		}
	}
	out = append(out, 0x00, 0x00)
	return out
}

// unescapeSplit inverts escapeAndTerminate, returning the unescaped
// primary field and whatever bytes follow its terminator.
func unescapeSplit(buf []byte) (primary, rest []byte) {
	out := make([]byte, 0, len(buf))
	for i := 0; i < len(buf); {
		if buf[i] == 0x00 {
			if i+1 < len(buf) && buf[i+1] == 0x00 {
				return out, buf[i+2:]
			}
			out = append(out, 0x00)
			i += 2
			continue
		}
		out = append(out, buf[i])
		i++
	}
	return out, nil
}

// CompositeKey builds the index engine's forward-tree key: an
// order-preserving encoding of key followed by docID (spec §4.F: "new
// forward entries {key: [emittedKey, docId], ...}").
func CompositeKey(key any, docID string) ([]byte, error) {
	raw, err := EncodeOrdered(key)
	if err != nil {
		return nil, err
	}
	return append(escapeAndTerminate(raw), []byte(docID)...), nil
}

// DecodeComposite inverts CompositeKey.
func DecodeComposite(buf []byte) (key any, docID string, err error) {
	primary, rest := unescapeSplit(buf)
	k, err := DecodeOrdered(primary)
	if err != nil {
		return nil, "", err
	}
	return k, string(rest), nil
}

// LowerBound returns the composite-key range lower bound that includes
// every docID emitted under key (the terminator-only encoding is a
// byte-prefix of every real composite key sharing that primary value,
// so it compares less-than-or-equal to all of them and strictly greater
// than any composite key with a smaller primary value).
func LowerBound(key any) ([]byte, error) {
	raw, err := EncodeOrdered(key)
	if err != nil {
		return nil, err
	}
	return escapeAndTerminate(raw), nil
}

// sentinelWidth bounds the assumed maximum docID length for
// UpperBound's sentinel suffix. A docID longer than this (or containing
// a raw 0xFF byte) could in principle sort after the sentinel and be
// missed by a range query; this is a known, documented simplification
// rather than a fully general solution (a fully general one would need
// an unbounded "increment the last byte of the primary's encoding"
// exclusive-bound scheme).
const sentinelWidth = 256

// UpperBound returns the composite-key range upper bound that includes
// every docID emitted under key.
func UpperBound(key any) ([]byte, error) {
	raw, err := EncodeOrdered(key)
	if err != nil {
		return nil, err
	}
	out := escapeAndTerminate(raw)
	for i := 0; i < sentinelWidth; i++ {
		out = append(out, 0xFF)
	}
	return out, nil
}
