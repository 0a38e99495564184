package sortagg

import (
	"errors"

	"github.com/dreamware/flowcore/internal/binstore"
	"github.com/dreamware/flowcore/internal/flowerr"
	"github.com/dreamware/flowcore/internal/memstore"
	"golang.org/x/exp/slices"
)

// Pair is one (key, value) yielded by a PairCursor.
type Pair struct {
	Key   []byte
	Value []byte
}

// entry is the address-array element the partitioned sort operates on:
// payloads stay in place inside binstore, only (addr, insertion sequence)
// travel through Sort and the merge cursor.
type entry struct {
	addr memstore.Addr
	seq  uint64
}

// Aggregator is the Sorted Aggregator. Accept, PrepareToSort, Sort, and
// Cursor must be called in that order; calling Accept after PrepareToSort
// panics, mirroring the "frozen" contract from the external interfaces.
type Aggregator struct {
	cfg   Config
	store *binstore.PartitionedStore

	entries  [][]entry      // per partition, in Accept order
	keyIndex []map[string]int // per partition; populated only when cfg.Accumulator != nil
	nextSeq  uint64

	frozen bool
	sorted []bool
	spills []*spillInfo // per partition; nil means still in memory
}

// NewAggregator creates an Aggregator backed by a fresh PartitionedStore
// drawing blocks from pool according to rule.
func NewAggregator(pool *memstore.Pool, rule memstore.ChainingRule, cfg Config) (*Aggregator, error) {
	if cfg.Comparator == nil {
		cfg.Comparator = ByteComparator{}
	}
	if cfg.Partitions < 1 {
		cfg.Partitions = 1
	}
	if cfg.SortSliceBudget < 1 {
		cfg.SortSliceBudget = 1
	}

	store, err := binstore.NewPartitionedStore(pool, cfg.Partitions, rule)
	if err != nil {
		return nil, err
	}

	n := store.NumPartitions()
	a := &Aggregator{
		cfg:     cfg,
		store:   store,
		entries: make([][]entry, n),
		sorted:  make([]bool, n),
		spills:  make([]*spillInfo, n),
	}
	if cfg.Accumulator != nil {
		a.keyIndex = make([]map[string]int, n)
		for i := range a.keyIndex {
			a.keyIndex[i] = make(map[string]int)
		}
	}
	return a, nil
}

// Accept inserts key/value, returning false iff a new record was needed
// and no block was available (allocation failure), per the external
// interfaces' accept contract. Accept must not be called after
// PrepareToSort.
func (a *Aggregator) Accept(key, value []byte) bool {
	if a.frozen {
		panic("sortagg: Accept called after PrepareToSort")
	}

	if a.cfg.Accumulator != nil {
		p := a.store.PartitionFor(key)
		if idx, ok := a.keyIndex[p][string(key)]; ok {
			addr, _, err := a.store.PutAddr(key, value, a.cfg.Accumulator)
			if err != nil {
				return a.acceptFailed(err)
			}
			a.entries[p][idx].addr = addr
			return true
		}
		addr, pp, err := a.store.PutAddr(key, value, a.cfg.Accumulator)
		if err != nil {
			return a.acceptFailed(err)
		}
		idx := len(a.entries[pp])
		a.entries[pp] = append(a.entries[pp], entry{addr: addr, seq: a.nextSeq})
		a.keyIndex[pp][string(key)] = idx
		a.nextSeq++
		return true
	}

	addr, p, err := a.store.PutAddr(key, value, nil)
	if err != nil {
		return a.acceptFailed(err)
	}
	a.entries[p] = append(a.entries[p], entry{addr: addr, seq: a.nextSeq})
	a.nextSeq++
	return true
}

// acceptFailed reports an allocation failure from Put as accept's false
// return. Only memory exhaustion collapses to false; anything else (a
// non-associative accumulator's own error, say) propagates via panic since
// Accept has no other error channel — callers supplying a fallible
// Accumulator should handle that within Combine instead.
func (a *Aggregator) acceptFailed(err error) bool {
	if errors.Is(err, flowerr.ErrMemoryExhausted) {
		return false
	}
	panic(err)
}

// PrepareToSort freezes further inserts. Sort and Cursor are only valid
// after this call.
func (a *Aggregator) PrepareToSort() {
	a.frozen = true
}

// Sort performs a bounded slice of sort work — at most cfg.SortSliceBudget
// partitions — and returns true once every partition is fully sorted (and
// spilled, where spilling applies) and ready for Cursor. Callers loop until
// Sort returns true.
func (a *Aggregator) Sort() bool {
	processed := 0
	for p := range a.entries {
		if a.sorted[p] {
			continue
		}
		if len(a.entries[p]) == 0 {
			a.sorted[p] = true
			continue
		}
		if processed >= a.cfg.SortSliceBudget {
			return false
		}
		if err := a.sortPartition(p); err != nil {
			panic(err)
		}
		a.sorted[p] = true
		processed++
	}
	return true
}

func (a *Aggregator) sortPartition(p int) error {
	ents := a.entries[p]
	slices.SortFunc(ents, func(x, y entry) int { return a.compareEntries(p, x, y) })
	a.entries[p] = ents

	if a.cfg.SpillingEnabled && a.store.Partition(p).ByteUsage() > a.cfg.SpillingBufferSize {
		return a.spill(p)
	}
	return nil
}

// compareEntries orders by key under cfg.Comparator/cfg.Order, breaking
// ties by insertion sequence so equal keys preserve insertion order
// regardless of sort algorithm stability.
func (a *Aggregator) compareEntries(p int, x, y entry) int {
	kx, _, err := a.store.RecordAt(p, x.addr)
	if err != nil {
		panic(err)
	}
	ky, _, err := a.store.RecordAt(p, y.addr)
	if err != nil {
		panic(err)
	}
	c := a.cfg.Comparator.Compare(kx, ky)
	if a.cfg.Order == Desc {
		c = -c
	}
	if c != 0 {
		return c
	}
	switch {
	case x.seq < y.seq:
		return -1
	case x.seq > y.seq:
		return 1
	default:
		return 0
	}
}

// Dispose releases every scratch file and the underlying storage's blocks
// back to their pool.
func (a *Aggregator) Dispose() {
	for _, sp := range a.spills {
		if sp != nil {
			sp.close()
		}
	}
	a.store.Dispose()
}
