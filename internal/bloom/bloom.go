// Package bloom implements the indexer's subscription filter: a
// fixed-size byte mask with AND-containment semantics (spec.md
// GLOSSARY), not a classical hash-parameterized bloom filter. A
// client's subscription is a set of these masks; a transaction is of
// interest to the client if any one mask "contains" its txid.
package bloom

import "errors"

// DefaultSize is the wire default byte width used by the client RPC
// protocol (spec.md §6.2, BloomFilter32).
const DefaultSize = 32

// Filter is a fixed-size byte mask. Contains(x) holds iff, for every
// byte index i, (filter[i] & x[i]) == x[i] — every bit set in x must
// also be set in the filter. Insert(x) sets filter |= x. False
// positives are possible (a filter can contain unrelated values once
// enough bits are set); false negatives are not.
type Filter struct {
	bits []byte
}

// New allocates a zero Filter of n bytes. n must be positive.
func New(n int) (*Filter, error) {
	if n <= 0 {
		return nil, errors.New("bloom: size must be positive")
	}
	return &Filter{bits: make([]byte, n)}, nil
}

// NewDefault allocates a zero Filter of DefaultSize bytes.
func NewDefault() *Filter {
	f, _ := New(DefaultSize)
	return f
}

// FromBytes copies b into a new Filter. The slice is not retained.
func FromBytes(b []byte) *Filter {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &Filter{bits: cp}
}

// Size returns the byte width of the filter.
func (f *Filter) Size() int { return len(f.bits) }

// Bytes returns a copy of the underlying mask.
func (f *Filter) Bytes() []byte {
	cp := make([]byte, len(f.bits))
	copy(cp, f.bits)
	return cp
}

// Contains reports whether every bit set in x is also set in f. x
// shorter than f is padded on the right with zero bytes (those
// positions trivially match); x longer than f always fails to match on
// the excess bytes unless they are all zero.
func (f *Filter) Contains(x []byte) bool {
	for i := 0; i < len(x); i++ {
		var fb byte
		if i < len(f.bits) {
			fb = f.bits[i]
		}
		if fb&x[i] != x[i] {
			return false
		}
	}
	return true
}

// Insert ORs x into the filter in place, growing no further than the
// filter's own size (bytes of x beyond the filter's width are ignored).
// Insert is commutative and idempotent: inserting the same or
// different values any number of times, in any order, yields the same
// result.
func (f *Filter) Insert(x []byte) {
	n := len(x)
	if n > len(f.bits) {
		n = len(f.bits)
	}
	for i := 0; i < n; i++ {
		f.bits[i] |= x[i]
	}
}

// WithInserted returns a new Filter equal to f with x inserted, leaving
// f unmodified.
func (f *Filter) WithInserted(x []byte) *Filter {
	cp := FromBytes(f.bits)
	cp.Insert(x)
	return cp
}

// Equal reports whether two filters have identical byte masks.
func (f *Filter) Equal(other *Filter) bool {
	if other == nil || len(f.bits) != len(other.bits) {
		return false
	}
	for i := range f.bits {
		if f.bits[i] != other.bits[i] {
			return false
		}
	}
	return true
}

// Key returns a string usable as a map key for de-duplicating filters
// within a set (e.g. a client's TrackingSet).
func (f *Filter) Key() string { return string(f.bits) }
