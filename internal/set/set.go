// Package set provides a small generic set, used by internal/clock to
// represent the DAG head (an unordered set of frontier event CIDs) and
// by the root package's conflict resolution and clock-handle restore
// wherever a dedup-by-CID set is convenient. Adapted from the teacher's own utils/set.Set[T] (this
// module keeps the same Of/Add/Union/Difference/Contains shape, trimmed
// to the operations causaldb actually calls).
package set

import (
	"fmt"
	"strings"

	"golang.org/x/exp/maps"
)

// The minimum capacity of a set.
const minSetSize = 16

// Set is a set of elements.
type Set[T comparable] map[T]struct{}

// Of returns a Set initialized with elts.
func Of[T comparable](elts ...T) Set[T] {
	s := New[T](len(elts))
	s.Add(elts...)
	return s
}

// New returns a new set with initial capacity size. More or fewer than
// size elements can still be added.
func New[T comparable](size int) Set[T] {
	if size < 0 {
		return Set[T]{}
	}
	return make(map[T]struct{}, size)
}

func (s *Set[T]) resize(size int) {
	if *s == nil {
		if minSetSize > size {
			size = minSetSize
		}
		*s = make(map[T]struct{}, size)
	}
}

// Add adds every element to this set. Elements already present are a
// no-op.
func (s *Set[T]) Add(elts ...T) {
	s.resize(2 * len(elts))
	for _, elt := range elts {
		(*s)[elt] = struct{}{}
	}
}

// Union adds every element of other into s.
func (s *Set[T]) Union(other Set[T]) {
	s.resize(2 * other.Len())
	for elt := range other {
		(*s)[elt] = struct{}{}
	}
}

// Difference removes every element of other from s.
func (s *Set[T]) Difference(other Set[T]) {
	for elt := range other {
		delete(*s, elt)
	}
}

// Contains reports whether elt is in the set.
func (s Set[T]) Contains(elt T) bool {
	_, ok := s[elt]
	return ok
}

// Len returns the number of elements in the set.
func (s Set[T]) Len() int {
	return len(s)
}

// List converts the set into a slice, in unspecified order.
func (s Set[T]) List() []T {
	return maps.Keys(s)
}

// Remove deletes elts from the set.
func (s *Set[T]) Remove(elts ...T) {
	for _, elt := range elts {
		delete(*s, elt)
	}
}

// Equals reports whether s and other contain the same elements.
func (s Set[T]) Equals(other Set[T]) bool {
	return maps.Equal(s, other)
}

// Clone returns an independent copy of s.
func (s Set[T]) Clone() Set[T] {
	out := New[T](s.Len())
	out.Union(s)
	return out
}

// String renders the set for debug logging.
func (s Set[T]) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	first := true
	for elt := range s {
		if !first {
			sb.WriteString(", ")
		}
		first = false
		sb.WriteString(fmt.Sprintf("%v", elt))
	}
	sb.WriteString("}")
	return sb.String()
}
