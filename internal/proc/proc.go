// Package proc defines the Processor SPI that user-supplied computations
// implement, the per-instance Context an executor hands to them at init,
// and the Collector contract windowing operators (internal/session) and
// user processors share for grouping semantics.
package proc

import "github.com/dreamware/flowcore/internal/item"

// Context describes one processor instance's place among its vertex's
// parallel instances.
type Context struct {
	GlobalParallelism int
	LocalParallelism  int
	InstanceIndex     int
}

// Outbox is the subset of internal/edge.Outbox a Processor needs; kept as
// an interface here so proc has no import-cycle dependency on edge's
// concrete ring-buffer implementation.
type Outbox interface {
	// Add enqueues item into the bucket for ordinal, or into every bucket
	// when ordinal == -1. It returns false if the target bucket is full
	// (backpressure); the processor must re-present the same item later.
	Add(ordinal int, it item.Item) bool
	// HasReachedLimit reports whether the bucket for ordinal is at its
	// high-water mark and cooperative processors should yield.
	HasReachedLimit(ordinal int) bool
}

// Processor is the SPI every DAG vertex instance implements. A `false`
// return from TryProcess or TryProcessWatermark means "re-present the same
// item on the next call"; a `false` from Complete means "more work
// remains, call me again".
type Processor interface {
	// Init is called once before any TryProcess call, with the outbox the
	// processor should write to and its instance Context.
	Init(outbox Outbox, ctx Context) error

	// TryProcess attempts to consume one item received on the inbound
	// edge identified by ordinal. Returns false to request redelivery.
	TryProcess(ordinal int, it item.Item) bool

	// TryProcessWatermark attempts to observe a coherent watermark on
	// ordinal. Returns false to request redelivery.
	TryProcessWatermark(ordinal int, wm int64) bool

	// Complete is invoked repeatedly once every inbound edge has reported
	// Done, until it returns true.
	Complete() bool

	// Close releases any resources the processor holds. Called exactly
	// once, whether the job completed, failed, or was cancelled.
	Close() error

	// IsCooperative reports whether the processor yields promptly at call
	// boundaries (cooperative) or may block for a while (non-cooperative,
	// scheduled on a dedicated goroutine).
	IsCooperative() bool
}

// ProcessorFactory constructs one Processor instance for a given Context.
// The executor calls it once per parallel instance of a vertex.
type ProcessorFactory func(ctx Context) Processor

// Collector is the grouping contract from the external interfaces:
// Supplier creates a fresh accumulator, Accumulator folds one item in,
// Combiner merges two accumulators (must be associative — see
// SPEC_FULL.md §5 on the non-associative open question), and Finisher
// converts an accumulator to its externally visible result.
type Collector[T, A, R any] struct {
	Supplier    func() A
	Accumulator func(A, T) A
	Combiner    func(A, A) A
	Finisher    func(A) R
}
