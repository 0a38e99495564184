package session

import (
	"github.com/google/btree"

	"github.com/dreamware/flowcore/internal/proc"
)

// intervalEntry is one node of a per-key ordered-by-Start interval tree.
type intervalEntry[Acc any] struct {
	iv  Interval
	acc Acc
}

func intervalLess[Acc any](a, b intervalEntry[Acc]) bool {
	return a.iv.Start < b.iv.Start
}

// deadlineEntry maps one BeyondEnd timestamp to the set of keys with a
// window ending there.
type deadlineEntry[K comparable] struct {
	at   int64
	keys map[K]struct{}
}

func deadlineLess[K comparable](a, b deadlineEntry[K]) bool {
	return a.at < b.at
}

// Operator is the Session-Window Operator, generic over key type K, event
// type E, running-accumulator type Acc, and finished-result type Result.
// It is not safe for concurrent use; a tasklet drives it from a single
// goroutine, same as every other operator in the engine.
type Operator[K comparable, E any, Acc any, Result any] struct {
	gap       int64
	tsFn      func(E) int64
	keyFn     func(E) K
	collector proc.Collector[E, Acc, Result]

	perKey        map[K]*btree.BTreeG[intervalEntry[Acc]]
	deadline      *btree.BTreeG[deadlineEntry[K]]
	lastWatermark int64
}

// NewOperator creates a Session-Window Operator with session gap G, event
// timestamp and key extractors, and the collector describing how events
// fold into a running accumulator and how a finished accumulator produces
// a result.
func NewOperator[K comparable, E any, Acc any, Result any](
	gap int64,
	tsFn func(E) int64,
	keyFn func(E) K,
	collector proc.Collector[E, Acc, Result],
) *Operator[K, E, Acc, Result] {
	return &Operator[K, E, Acc, Result]{
		gap:       gap,
		tsFn:      tsFn,
		keyFn:     keyFn,
		collector: collector,
		perKey:    make(map[K]*btree.BTreeG[intervalEntry[Acc]]),
		deadline:  btree.NewG(32, deadlineLess[K]),
	}
}

// OnItem assigns event to a session window, merging with one or two
// touching windows as needed, per spec.md §4.3. Events with a timestamp at
// or before the last watermark are dropped (late). OnItem never emits;
// OnWatermark is the sole emission point.
func (o *Operator[K, E, Acc, Result]) OnItem(event E) {
	ts := o.tsFn(event)
	if ts <= o.lastWatermark {
		return
	}
	k := o.keyFn(event)
	probe := Interval{Start: ts, BeyondEnd: ts + o.gap}

	tree := o.perKey[k]
	if tree == nil {
		tree = btree.NewG(8, intervalLess[Acc])
		o.perKey[k] = tree
	}

	matches := touchingEntries(tree, probe)
	switch len(matches) {
	case 0:
		acc := o.collector.Supplier()
		acc = o.collector.Accumulator(acc, event)
		tree.ReplaceOrInsert(intervalEntry[Acc]{iv: probe, acc: acc})
		o.addDeadline(probe.BeyondEnd, k)

	case 1:
		l := matches[0]
		if l.iv.encompasses(probe) {
			acc := o.collector.Accumulator(l.acc, event)
			tree.ReplaceOrInsert(intervalEntry[Acc]{iv: l.iv, acc: acc})
			return
		}
		tree.Delete(l)
		o.removeDeadline(l.iv.BeyondEnd, k)
		merged := unionInterval(l.iv, probe)
		acc := o.collector.Accumulator(l.acc, event)
		tree.ReplaceOrInsert(intervalEntry[Acc]{iv: merged, acc: acc})
		o.addDeadline(merged.BeyondEnd, k)

	default: // exactly two, per the invariant bounding matches to <= 2
		l, u := matches[0], matches[1]
		tree.Delete(l)
		tree.Delete(u)
		o.removeDeadline(l.iv.BeyondEnd, k)
		o.removeDeadline(u.iv.BeyondEnd, k)
		merged := Interval{Start: l.iv.Start, BeyondEnd: u.iv.BeyondEnd}
		acc := o.collector.Combiner(l.acc, u.acc)
		acc = o.collector.Accumulator(acc, event)
		tree.ReplaceOrInsert(intervalEntry[Acc]{iv: merged, acc: acc})
		o.addDeadline(merged.BeyondEnd, k)
	}
}

// OnWatermark advances the last watermark and emits every session whose
// BeyondEnd is now <= w, finalizing each one's accumulator via the
// collector's Finisher.
func (o *Operator[K, E, Acc, Result]) OnWatermark(w int64) []Session[K, Result] {
	o.lastWatermark = w

	var out []Session[K, Result]
	for {
		head, ok := o.deadline.Min()
		if !ok || head.at > w {
			break
		}
		o.deadline.Delete(head)

		for k := range head.keys {
			tree := o.perKey[k]
			if tree == nil {
				continue
			}
			var expired []intervalEntry[Acc]
			tree.Ascend(func(e intervalEntry[Acc]) bool {
				if e.iv.BeyondEnd <= w {
					expired = append(expired, e)
				}
				return true
			})
			for _, e := range expired {
				tree.Delete(e)
				result := o.collector.Finisher(e.acc)
				out = append(out, Session[K, Result]{
					Key:       k,
					Result:    result,
					Start:     e.iv.Start,
					BeyondEnd: e.iv.BeyondEnd,
				})
			}
			if tree.Len() == 0 {
				delete(o.perKey, k)
			}
		}
	}
	return out
}

// touchingEntries returns every interval touching probe in a key's tree,
// in ascending Start order. The tree's Start-ascending iteration lets us
// stop as soon as an entry's Start exceeds probe's BeyondEnd, since no
// later entry (all with a higher Start) can touch it either.
func touchingEntries[Acc any](tree *btree.BTreeG[intervalEntry[Acc]], probe Interval) []intervalEntry[Acc] {
	var matches []intervalEntry[Acc]
	tree.Ascend(func(e intervalEntry[Acc]) bool {
		if e.iv.Start > probe.BeyondEnd {
			return false
		}
		if e.iv.Touches(probe) {
			matches = append(matches, e)
		}
		return true
	})
	return matches
}

func (o *Operator[K, E, Acc, Result]) addDeadline(at int64, k K) {
	entry, ok := o.deadline.Get(deadlineEntry[K]{at: at})
	if !ok {
		entry = deadlineEntry[K]{at: at, keys: make(map[K]struct{})}
		o.deadline.ReplaceOrInsert(entry)
	}
	entry.keys[k] = struct{}{}
}

func (o *Operator[K, E, Acc, Result]) removeDeadline(at int64, k K) {
	entry, ok := o.deadline.Get(deadlineEntry[K]{at: at})
	if !ok {
		return
	}
	delete(entry.keys, k)
	if len(entry.keys) == 0 {
		o.deadline.Delete(deadlineEntry[K]{at: at})
	}
}
