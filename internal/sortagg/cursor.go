package sortagg

import (
	"container/heap"
	"encoding/binary"

	"github.com/dreamware/flowcore/internal/binstore"
)

// PairCursor is a forward-only, restartable-only-by-rebuilding iterator
// over the aggregator's fully sorted output.
type PairCursor interface {
	// Next returns the next pair in sorted order, or ok=false once
	// exhausted.
	Next() (Pair, bool)
}

// recordSource yields (pair, insertion sequence) pairs from one already-
// sorted partition run, in order.
type recordSource interface {
	next() (Pair, uint64, bool)
}

// addrSource reads an in-memory, sorted entry slice back through the
// partitioned store by address.
type addrSource struct {
	store     *binstore.PartitionedStore
	partition int
	entries   []entry
	pos       int
}

func (s *addrSource) next() (Pair, uint64, bool) {
	if s.pos >= len(s.entries) {
		return Pair{}, 0, false
	}
	e := s.entries[s.pos]
	s.pos++
	k, v, err := s.store.RecordAt(s.partition, e.addr)
	if err != nil {
		return Pair{}, 0, false
	}
	return Pair{Key: k, Value: v}, e.seq, true
}

// spillSource reads sequential records out of a spilled mmap region.
type spillSource struct {
	data   []byte
	offset int
}

func (s *spillSource) next() (Pair, uint64, bool) {
	if s.offset >= len(s.data) {
		return Pair{}, 0, false
	}
	seq := binary.BigEndian.Uint64(s.data[s.offset:])
	s.offset += 8
	keyLen := binary.BigEndian.Uint32(s.data[s.offset:])
	s.offset += 4
	key := s.data[s.offset : s.offset+int(keyLen)]
	s.offset += int(keyLen)
	valLen := binary.BigEndian.Uint32(s.data[s.offset:])
	s.offset += 4
	val := s.data[s.offset : s.offset+int(valLen)]
	s.offset += int(valLen)
	return Pair{Key: key, Value: val}, seq, true
}

// mergeRun is one run in the k-way merge: a recordSource plus its current
// (cached) front record, so the heap's Less never re-reads storage.
type mergeRun struct {
	src     recordSource
	cur     Pair
	curSeq  uint64
	hasItem bool
}

func newMergeRun(src recordSource) *mergeRun {
	r := &mergeRun{src: src}
	r.advance()
	return r
}

func (r *mergeRun) advance() {
	r.cur, r.curSeq, r.hasItem = r.src.next()
}

// runHeap is a container/heap min-heap over mergeRuns, ordered by the
// aggregator's comparator/order with insertion sequence breaking ties —
// the loser-tree-style structure the k-way merge pops from.
type runHeap struct {
	runs  []*mergeRun
	cmp   Comparator
	order SortOrder
}

func (h *runHeap) Len() int { return len(h.runs) }

func (h *runHeap) Less(i, j int) bool {
	a, b := h.runs[i], h.runs[j]
	c := h.cmp.Compare(a.cur.Key, b.cur.Key)
	if h.order == Desc {
		c = -c
	}
	if c != 0 {
		return c < 0
	}
	return a.curSeq < b.curSeq
}

func (h *runHeap) Swap(i, j int) { h.runs[i], h.runs[j] = h.runs[j], h.runs[i] }

func (h *runHeap) Push(x any) { h.runs = append(h.runs, x.(*mergeRun)) }

func (h *runHeap) Pop() any {
	n := len(h.runs)
	r := h.runs[n-1]
	h.runs = h.runs[:n-1]
	return r
}

// Cursor builds the k-way merge cursor across every partition's sorted
// (and possibly spilled) run. Sort must have returned true first.
func (a *Aggregator) Cursor() PairCursor {
	h := &runHeap{cmp: a.cfg.Comparator, order: a.cfg.Order}
	heap.Init(h)

	for p := range a.entries {
		var run *mergeRun
		if a.spills[p] != nil {
			run = newMergeRun(&spillSource{data: []byte(a.spills[p].mm)})
		} else {
			run = newMergeRun(&addrSource{store: a.store, partition: p, entries: a.entries[p]})
		}
		if run.hasItem {
			heap.Push(h, run)
		}
	}

	return &mergeCursor{h: h}
}

type mergeCursor struct {
	h *runHeap
}

// Next implements PairCursor.
func (c *mergeCursor) Next() (Pair, bool) {
	if c.h.Len() == 0 {
		return Pair{}, false
	}
	top := heap.Pop(c.h).(*mergeRun)
	out := top.cur
	top.advance()
	if top.hasItem {
		heap.Push(c.h, top)
	}
	return out, true
}
