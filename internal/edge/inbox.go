package edge

import (
	"github.com/dreamware/flowcore/internal/flowerr"
	"github.com/dreamware/flowcore/internal/item"
)

// ProgressState reports what a single DrainTo (or Tasklet.Call) accomplished,
// per spec.md §4.4/§4.5.
type ProgressState int

const (
	// NoProgress means nothing was drained and the inbox isn't done.
	NoProgress ProgressState = iota
	// MadeProgress means at least one item was drained this call.
	MadeProgress
	// Done means every upstream producer has reported end-of-stream.
	Done
)

func (s ProgressState) String() string {
	switch s {
	case MadeProgress:
		return "made-progress"
	case Done:
		return "done"
	default:
		return "no-progress"
	}
}

// Inbox aggregates one Queue per upstream producer instance feeding a single
// inbound edge ordinal, draining them round-robin while enforcing the
// watermark-coherence protocol from spec.md §4.4: all live producers must
// report the same watermark value before it is forwarded downstream as one
// aligned watermark.
type Inbox struct {
	queues         []*Queue
	done           []bool
	watermarkFound []bool
	lastWatermark  int64
	pending        bool
	cursor         int
	err            error

	// hasStashed/stashed hold an item that was already popped off its
	// queue but rejected by the collector (collector returned false), so
	// DrainTo can re-present it first on the next call instead of
	// dropping it.
	hasStashed bool
	stashed    item.Item
}

// NewInbox builds an Inbox over one Queue per upstream producer instance.
// The caller (executor wiring) creates these Queues once per edge and hands
// the producer side to the corresponding Outbox bucket.
func NewInbox(queues []*Queue) *Inbox {
	return &Inbox{
		queues:         queues,
		done:           make([]bool, len(queues)),
		watermarkFound: make([]bool, len(queues)),
	}
}

// NumProducers reports how many upstream producer instances feed this inbox.
func (ib *Inbox) NumProducers() int { return len(ib.queues) }

// Err returns the sticky WatermarkMisorder error once one producer's
// watermark disagrees with an already-latched value. Once set, DrainTo keeps
// returning Done and Err keeps returning this error; the caller (Tasklet)
// fails the job.
func (ib *Inbox) Err() error { return ib.err }

func (ib *Inbox) allLiveDone() bool {
	for _, d := range ib.done {
		if !d {
			return false
		}
	}
	return true
}

func (ib *Inbox) aligned() bool {
	if !ib.pending {
		return false
	}
	for i, d := range ib.done {
		if d {
			continue
		}
		if !ib.watermarkFound[i] {
			return false
		}
	}
	return true
}

func (ib *Inbox) observeWatermark(producer int, seq int64) error {
	if ib.pending {
		if seq != ib.lastWatermark {
			return flowerr.WatermarkMisorder(
				"fan-in producer disagreed on pending watermark value")
		}
	} else {
		ib.pending = true
		ib.lastWatermark = seq
	}
	ib.watermarkFound[producer] = true
	return nil
}

func (ib *Inbox) resetAlignment() {
	ib.pending = false
	for i := range ib.watermarkFound {
		ib.watermarkFound[i] = false
	}
}

// emit hands it to collector, stashing it for redelivery on a future
// DrainTo call if the collector rejects it. it has already been popped off
// its queue by the time emit is called, so a false return must not lose it.
func (ib *Inbox) emit(collector func(item.Item) bool, it item.Item) bool {
	if collector(it) {
		return true
	}
	ib.hasStashed = true
	ib.stashed = it
	return false
}

// DrainTo pulls every currently-available item across all producers,
// round-robin starting from a cursor that advances each call for fairness,
// and hands each to collector in arrival order. A producer whose watermark
// flag is already set for the pending alignment is skipped until every
// other live producer catches up, per the coherence protocol; a producer is
// also never drained past a watermark it has just observed, so a fast
// producer can't push items downstream that should have followed a later,
// not-yet-aligned watermark. collector returning false stops draining
// immediately (e.g. the caller's local staging queue is full) and DrainTo
// returns whatever progress was made so far; the rejected item is kept and
// re-presented to collector first on the next call, so it is never lost.
func (ib *Inbox) DrainTo(collector func(item.Item) bool) ProgressState {
	if ib.err != nil {
		return Done
	}
	n := len(ib.queues)
	if n == 0 {
		return Done
	}

	progress := false
	stopped := false

	if ib.hasStashed {
		if !collector(ib.stashed) {
			return NoProgress
		}
		ib.hasStashed = false
		progress = true
	}

	for !stopped {
		passProgress := false
		for step := 0; step < n; step++ {
			i := (ib.cursor + step) % n
			if ib.done[i] {
				continue
			}
			if ib.pending && ib.watermarkFound[i] {
				continue
			}
			for {
				it, ok := ib.queues[i].TryPop()
				if !ok {
					break
				}
				progress = true
				passProgress = true

				watermarkBreak := false
				switch {
				case it.IsEndOfStream():
					ib.done[i] = true
					if ib.aligned() {
						if !ib.emit(collector, item.NewWatermark(ib.lastWatermark)) {
							stopped = true
						}
						ib.resetAlignment()
					}
				case it.IsWatermark():
					if err := ib.observeWatermark(i, it.Watermark); err != nil {
						ib.err = err
						stopped = true
					} else {
						if ib.aligned() {
							if !ib.emit(collector, item.NewWatermark(ib.lastWatermark)) {
								stopped = true
							}
							ib.resetAlignment()
						}
						watermarkBreak = true
					}
				default:
					if !ib.emit(collector, it) {
						stopped = true
					}
				}
				if stopped {
					break
				}
				if watermarkBreak {
					// Per the coherence protocol, don't drain producer i
					// past a watermark it hasn't aligned on yet (or has
					// just aligned and reset) — the guard at the top of
					// this loop re-evaluates producer i's eligibility on
					// the next pass, keeping it parked until every other
					// live producer catches up.
					break
				}
			}
			if stopped {
				break
			}
		}
		if n > 0 {
			ib.cursor = (ib.cursor + 1) % n
		}
		if !passProgress {
			break
		}
	}

	if ib.err != nil {
		return Done
	}
	if ib.allLiveDone() {
		return Done
	}
	if progress {
		return MadeProgress
	}
	return NoProgress
}
