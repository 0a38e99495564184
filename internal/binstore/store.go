package binstore

import (
	"bytes"

	"github.com/dreamware/flowcore/internal/flowerr"
	"github.com/dreamware/flowcore/internal/memstore"
)

// Accumulator is the off-heap capability set from the design notes: a
// second capability set alongside proc.Collector, operating on already
// serialized bytes so Binary Storage never has to deserialize a value to
// fold a new one into it.
type Accumulator interface {
	// Combine folds next into existing, returning the updated
	// serialized value. Combine is applied pairwise in insertion order;
	// whether that is safe for a given Accumulator is the caller's
	// contract (see SPEC_FULL.md §5 on non-associative combiners).
	Combine(existing, next []byte) ([]byte, error)
}

// Store is one partition's worth of Binary Storage: a record chain plus
// its hash index. Put, Lookup, and Scan are the only operations that
// touch the index; everything else is bookkeeping.
type Store struct {
	chain     *memstore.Chain
	index     *hashIndex
	recordLen int
	byteUsage int64
}

// NewStore creates an empty Store writing records into chain.
func NewStore(chain *memstore.Chain) *Store {
	return &Store{chain: chain, index: newHashIndex(16)}
}

// IsEmpty reports whether the store holds no live (index-reachable)
// records.
func (s *Store) IsEmpty() bool { return s.recordLen == 0 }

// RecordCount returns the number of live records — exactly one per
// distinct key when every Put supplied an Accumulator, per the
// per-(partition,key) accumulator-slot invariant.
func (s *Store) RecordCount() int { return s.recordLen }

// ByteUsage returns the chain's total committed bytes, including bytes
// occupied by records an accumulator update has since superseded — Binary
// Storage never compacts, per the design decision to keep scan order
// stable and avoid block compaction.
func (s *Store) ByteUsage() int64 { return s.chain.ByteUsage() }

// Put inserts key/value. With acc == nil it always appends a new record
// and links it into the hash index's collision chain, so repeated Puts of
// the same key accumulate duplicate entries (the stable-merge-order case
// the sorted aggregator relies on). With acc != nil, an existing record
// for key is combined in place; new keys are inserted fresh.
func (s *Store) Put(key, value []byte, acc Accumulator) error {
	_, err := s.PutAddr(key, value, acc)
	return err
}

// PutAddr is Put's underlying implementation, additionally returning the
// Addr the record now lives at — a freshly appended record, the
// (unchanged) address of an in-place-combined one, or the new address of a
// combined record whose value length changed. The sorted aggregator
// uses this to track insertion sequence for stable tie-breaking, which the
// hash chain's bucket order does not preserve.
func (s *Store) PutAddr(key, value []byte, acc Accumulator) (memstore.Addr, error) {
	if s.index.needsResize() {
		if err := s.resize(); err != nil {
			return memstore.Addr{}, err
		}
	}

	bucket := s.index.bucketFor(key)

	if acc == nil {
		return s.appendAndLink(key, value, bucket)
	}

	var prev *recordView
	cur := s.index.buckets[bucket]
	for !cur.IsZero() {
		rv, err := readRecord(s.chain, cur)
		if err != nil {
			return memstore.Addr{}, flowerr.MemoryExhausted("binstore: read during put", err)
		}
		if bytes.Equal(rv.Key, key) {
			updated, err := acc.Combine(rv.Value, value)
			if err != nil {
				return memstore.Addr{}, err
			}
			if len(updated) == len(rv.Value) {
				if err := s.chain.WriteAt(memstore.Addr{BlockID: rv.blockID, Offset: rv.valueOffset}, updated); err != nil {
					return memstore.Addr{}, err
				}
				return cur, nil
			}
			return s.spliceReplace(prev, bucket, rv, key, updated)
		}
		prev = &rv
		cur = rv.Next
	}

	// no existing record for key: fresh insert
	return s.appendAndLink(key, value, bucket)
}

func (s *Store) appendAndLink(key, value []byte, bucket int) (memstore.Addr, error) {
	head := s.index.buckets[bucket]
	addr, err := s.chain.Write(encodeRecord(key, value, head))
	if err != nil {
		return memstore.Addr{}, flowerr.MemoryExhausted("binstore: put", err)
	}
	s.index.buckets[bucket] = addr
	s.index.count++
	s.recordLen++
	return addr, nil
}

// spliceReplace appends updated as a new record (since its length
// differs from the record it replaces) and re-points the chain at it:
// either the bucket head (if rv was the first node) or prev's nextSlot
// field, rewritten in place since an Addr encodes to a fixed 8 bytes.
func (s *Store) spliceReplace(prev *recordView, bucket int, rv recordView, key, updated []byte) (memstore.Addr, error) {
	newAddr, err := s.chain.Write(encodeRecord(key, updated, rv.Next))
	if err != nil {
		return memstore.Addr{}, flowerr.MemoryExhausted("binstore: put (splice)", err)
	}
	if prev == nil {
		s.index.buckets[bucket] = newAddr
		return newAddr, nil
	}
	if err := s.chain.WriteAt(memstore.Addr{BlockID: prev.blockID, Offset: prev.nextOffset}, encodeAddrBytes(newAddr)); err != nil {
		return memstore.Addr{}, err
	}
	return newAddr, nil
}

func encodeAddrBytes(a memstore.Addr) []byte {
	b := make([]byte, nextSlotSize)
	encodeAddr(b, a)
	return b
}

// RecordAt returns the key/value stored at addr, an Addr previously
// returned by PutAddr. It is the seam the sorted aggregator uses to read
// back records by address instead of walking hash buckets.
func (s *Store) RecordAt(addr memstore.Addr) (key, value []byte, err error) {
	rv, err := readRecord(s.chain, addr)
	if err != nil {
		return nil, nil, flowerr.MemoryExhausted("binstore: record read", err)
	}
	return rv.Key, rv.Value, nil
}

// Lookup returns the Addr of the live record for key, if any.
func (s *Store) Lookup(key []byte) (memstore.Addr, bool) {
	bucket := s.index.bucketFor(key)
	cur := s.index.buckets[bucket]
	for !cur.IsZero() {
		rv, err := readRecord(s.chain, cur)
		if err != nil {
			return memstore.Addr{}, false
		}
		if bytes.Equal(rv.Key, key) {
			return cur, true
		}
		cur = rv.Next
	}
	return memstore.Addr{}, false
}

// Pair is one (key, value) yielded by Scan.
type Pair struct {
	Key   []byte
	Value []byte
}

// Scan returns every live record as a slice of Pairs, walking the hash
// index's buckets (not the underlying blocks directly) so superseded
// records from in-place-with-relocation accumulator updates are never
// surfaced.
func (s *Store) Scan() ([]Pair, error) {
	out := make([]Pair, 0, s.recordLen)
	for _, head := range s.index.buckets {
		cur := head
		for !cur.IsZero() {
			rv, err := readRecord(s.chain, cur)
			if err != nil {
				return nil, flowerr.MemoryExhausted("binstore: scan", err)
			}
			out = append(out, Pair{Key: rv.Key, Value: rv.Value})
			cur = rv.Next
		}
	}
	return out, nil
}

// resize doubles the bucket array and rehashes every live record into it,
// rewriting each record's nextSlot field in place (same 8-byte width, so
// no record ever moves).
func (s *Store) resize() error {
	old := s.index.buckets
	next := &hashIndex{buckets: make([]memstore.Addr, len(old)*2)}

	for _, head := range old {
		cur := head
		for !cur.IsZero() {
			rv, err := readRecord(s.chain, cur)
			if err != nil {
				return flowerr.MemoryExhausted("binstore: resize", err)
			}
			newBucket := int(hashKey(rv.Key) & uint64(len(next.buckets)-1))
			newHead := next.buckets[newBucket]
			if err := s.chain.WriteAt(memstore.Addr{BlockID: rv.blockID, Offset: rv.nextOffset}, encodeAddrBytes(newHead)); err != nil {
				return flowerr.MemoryExhausted("binstore: resize relink", err)
			}
			next.buckets[newBucket] = cur
			next.count++
			cur = rv.Next
		}
	}

	s.index = next
	return nil
}
