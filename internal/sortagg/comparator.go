// Package sortagg implements the Sorted Aggregator: a partitioned,
// optionally-accumulating insert phase backed by internal/binstore,
// followed by a cooperative partition sort and a k-way merge cursor that
// spills to mmap-backed scratch files under memory pressure. It is the
// batch-processing half of the engine's two stateful operators, the other
// being internal/session.
package sortagg

import "bytes"

// Comparator orders raw key bytes. Implementations must be a total order:
// Compare(a, b) < 0 iff a sorts before b, 0 iff equal, > 0 otherwise.
type Comparator interface {
	Compare(a, b []byte) int
}

// ByteComparator orders keys lexicographically by byte value, the default
// for string-like keys such as the "1".."1000000" decimal-string scenario.
type ByteComparator struct{}

// Compare implements Comparator.
func (ByteComparator) Compare(a, b []byte) int { return bytes.Compare(a, b) }

// SortOrder selects ascending or descending partition sort order.
type SortOrder int

const (
	// Asc sorts keys ascending: cmp(prev, next) <= 0.
	Asc SortOrder = iota
	// Desc sorts keys descending: cmp(prev, next) >= 0.
	Desc
)
