package sortagg

import "github.com/dreamware/flowcore/internal/binstore"

// Config is the Sorted Aggregator's configuration surface: comparator,
// order, optional accumulator, partition count, and the spilling knobs from
// the external interfaces section.
type Config struct {
	Comparator Comparator
	Order      SortOrder

	// Accumulator folds values sharing a key into one. Nil means no
	// accumulation: every Accept call produces a distinct record, and
	// duplicate keys are emitted in insertion order on the cursor.
	Accumulator binstore.Accumulator

	// Partitions is the number of partitions records are hashed into
	// (rounded up to a power of two by the underlying binstore.PartitionedStore).
	Partitions int

	// SortSliceBudget bounds how many partitions a single Sort() call
	// sorts before returning, the cooperative "bounded slice" of work.
	SortSliceBudget int

	// SpillingEnabled turns on scratch-file spilling of sorted runs that
	// exceed SpillingBufferSize bytes once sorted.
	SpillingEnabled    bool
	SpillingBufferSize int64
	SpillingChunkSize  int

	// SpillDir is the directory spill scratch files are created in; empty
	// uses the OS default temp directory.
	SpillDir string
}

// DefaultConfig returns a Config with ByteComparator, ascending order, no
// accumulator, 16 partitions, a sort budget of 4 partitions per call, and
// spilling disabled.
func DefaultConfig() Config {
	return Config{
		Comparator:         ByteComparator{},
		Order:              Asc,
		Partitions:         16,
		SortSliceBudget:    4,
		SpillingBufferSize: 4 * 1024 * 1024,
		SpillingChunkSize:  64 * 1024,
	}
}
