package causaldb

import (
	"errors"
	"fmt"

	"github.com/causaldb/causaldb/internal/codec"
)

// ErrNotFound is returned by Get when the key is absent or deleted
// (spec §7). Index queries with no matching entry return an empty
// result instead.
var ErrNotFound = errors.New("causaldb: not found")

// ErrMissingEvent is returned when Advance or SetClock reference an
// event CID unreachable in the block store (spec §7). Callers typically
// fetch the missing block and retry.
var ErrMissingEvent = errors.New("causaldb: missing event")

// DecodeError reports that the bytes stored under a CID did not decode
// under the codec they were declared with (spec §7, fatal for the
// operation touching that block). It is an alias of codec.DecodeError,
// the type clock.fetch and prolly.Tree actually construct when a
// decode fails, so errors.As(err, &de) with de a *causaldb.DecodeError
// matches those values directly.
type DecodeError = codec.DecodeError

// IndexBuildError wraps an error returned by a user-supplied mapFn, or a
// failure reading or writing the index trees, during an index refresh
// (Index.updateIndexLocked); the index state is left unchanged. A panic
// raised by mapFn is not recovered and is not wrapped.
type IndexBuildError struct {
	Err error
}

func (e *IndexBuildError) Error() string {
	return fmt.Sprintf("causaldb: index build: %v", e.Err)
}

func (e *IndexBuildError) Unwrap() error { return e.Err }

// StoreIOError wraps a failure from the underlying block store (spec
// §7, "the engine makes no partial mutations visible").
type StoreIOError struct {
	Err error
}

func (e *StoreIOError) Error() string {
	return fmt.Sprintf("causaldb: store i/o: %v", e.Err)
}

func (e *StoreIOError) Unwrap() error { return e.Err }
