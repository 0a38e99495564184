// Package tasklet implements the cooperative scheduling unit that wraps one
// proc.Processor instance: it drains that instance's inbound edges in
// priority order, feeds items to the processor, and lets the processor push
// results to its Outbox, per spec.md §4.5. The Executor drives Tasklets to
// quiescence; a Tasklet itself never blocks — Call always returns promptly,
// the same cooperative contract the teacher repo's health_monitor poll loop
// follows (bounded work per tick, no blocking syscalls on the hot path).
package tasklet

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/dreamware/flowcore/internal/edge"
	"github.com/dreamware/flowcore/internal/flog"
	"github.com/dreamware/flowcore/internal/flowerr"
	"github.com/dreamware/flowcore/internal/item"
	"github.com/dreamware/flowcore/internal/proc"
)

// State is the progress report a Tasklet hands back to its Executor each
// call, shared with internal/edge since both describe the same three
// outcomes.
type State = edge.ProgressState

const (
	NoProgress  = edge.NoProgress
	MadeProgress = edge.MadeProgress
	Done        = edge.Done
)

// InboundEdge pairs one inbound edge ordinal with the Inbox aggregating its
// upstream producer instances. Callers (the executor's wiring step) must
// supply these already ordered by ascending edge priority — lower priority
// drains first on each Call, per spec.md §4.5 step 1.
type InboundEdge struct {
	Ordinal int
	Inbox   *edge.Inbox
}

type pendingItem struct {
	ordinal int
	it      item.Item
}

// Tasklet wraps one proc.Processor instance plus its inbound edges and
// Outbox. It is not safe for concurrent use: the executor guarantees at
// most one worker calls Call (or Close) on a given Tasklet at any instant.
type Tasklet struct {
	ID       uuid.UUID
	Name     string
	processor proc.Processor
	inbound   []InboundEdge
	outbox    *edge.Outbox

	pending []pendingItem
	done    bool
	closed  bool
}

// New builds a Tasklet around processor, with inbound already priority
// ordered and outbox the per-edge-ordinal output buckets the executor wired
// for this vertex instance.
func New(name string, processor proc.Processor, inbound []InboundEdge, outbox *edge.Outbox) *Tasklet {
	return &Tasklet{
		ID:        uuid.New(),
		Name:      name,
		processor: processor,
		inbound:   inbound,
		outbox:    outbox,
	}
}

// Call runs one scheduling quantum: drain, process, and — once every
// inbound edge has reported Done and the local backlog is empty — poll
// Complete. It never blocks. A non-nil error means the job must fail with
// that cause (flowerr.WatermarkMisorder or flowerr.ProcessorFailure);
// Call returns Done alongside it since no further scheduling is useful.
func (t *Tasklet) Call() (State, error) {
	if t.done {
		return Done, nil
	}

	progressed := false
	allInboundDone := true

	// Step 1: drain inbound edges, lowest priority first, respecting each
	// Inbox's own watermark-coherence protocol.
	for _, in := range t.inbound {
		state := in.Inbox.DrainTo(func(it item.Item) bool {
			t.pending = append(t.pending, pendingItem{ordinal: in.Ordinal, it: it})
			return true
		})
		if err := in.Inbox.Err(); err != nil {
			t.done = true
			return Done, err
		}
		if state != Done {
			allInboundDone = false
		}
	}

	// Step 2: feed the local backlog to the processor, in arrival order,
	// stopping at the first item it asks to see again.
	consumed := 0
	for _, p := range t.pending {
		ok, err := t.tryProcessOne(p)
		if err != nil {
			t.done = true
			return Done, err
		}
		if !ok {
			break
		}
		consumed++
		progressed = true
	}
	if consumed > 0 {
		remaining := len(t.pending) - consumed
		copy(t.pending[:remaining], t.pending[consumed:])
		t.pending = t.pending[:remaining]
	}

	// Step 3 (flush) is implicit: Outbox.Add writes straight into the
	// shared downstream Queues, so there is no separate local buffer to
	// drain here — merging the bucket and the conveyor queue means a
	// single bounded-capacity check governs backpressure instead of two.

	// Step 4: once every inbound edge is exhausted and nothing is left to
	// process locally, poll Complete until it signals done.
	if allInboundDone && len(t.pending) == 0 {
		finished, err := t.callComplete()
		if err != nil {
			t.done = true
			return Done, err
		}
		if finished {
			t.broadcastEndOfStream()
			t.done = true
			return Done, nil
		}
		progressed = true
	}

	if progressed {
		return MadeProgress, nil
	}
	return NoProgress, nil
}

func (t *Tasklet) callComplete() (finished bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = flowerr.ProcessorFailure(t.Name+".Complete", fmt.Errorf("panic: %v", r))
		}
	}()
	finished = t.processor.Complete()
	return finished, nil
}

func (t *Tasklet) tryProcessOne(p pendingItem) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = flowerr.ProcessorFailure(
				fmt.Sprintf("%s.TryProcess(ordinal=%d)", t.Name, p.ordinal),
				fmt.Errorf("panic: %v", r))
		}
	}()
	if p.it.IsWatermark() {
		ok = t.processor.TryProcessWatermark(p.ordinal, p.it.Watermark)
	} else {
		ok = t.processor.TryProcess(p.ordinal, p.it)
	}
	return ok, nil
}

// broadcastEndOfStream fans an end-of-stream sentinel out to every outgoing
// edge so downstream Inboxes learn this producer instance is finished.
func (t *Tasklet) broadcastEndOfStream() {
	for !t.outbox.Add(-1, item.EndOfStream()) {
		// Backpressure on close is a last-resort spin: by the time every
		// inbound edge is Done there is nothing left to make room, so this
		// only loops while downstream is catching up on already-queued
		// data, which is bounded by the queues' own capacity.
	}
	flog.With("tasklet", t.Name, "id", t.ID.String()).Debug("tasklet done, end-of-stream broadcast")
}

// Init delegates to the wrapped processor, passing its Outbox and Context.
func (t *Tasklet) Init(ctx proc.Context) error {
	return t.processor.Init(t.outbox, ctx)
}

// Close delegates to the wrapped processor exactly once; subsequent calls
// are no-ops, matching the "Close invoked exactly once" contract in spec.md
// §5.
func (t *Tasklet) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.processor.Close()
}

// IsDone reports whether this Tasklet has finished (Complete returned true
// and end-of-stream has been broadcast).
func (t *Tasklet) IsDone() bool { return t.done }

// IsCooperative delegates to the wrapped processor.
func (t *Tasklet) IsCooperative() bool { return t.processor.IsCooperative() }
