package binstore

import (
	"fmt"

	"github.com/dreamware/flowcore/internal/memstore"
)

// PartitionedStore owns P independent Stores, each with its own Chain, so
// partitions can be sorted or spilled independently — the pack-wide
// "consistent hashing owns a disjoint slice of the keyspace" idiom the
// teacher's shard.Shard/ShardRegistry use, generalized from node
// ownership to in-process partition ownership.
type PartitionedStore struct {
	pool       *Pool
	chains     []*memstore.Chain
	partitions []*Store
}

// Pool is a thin re-export so callers only need to import memstore for
// PoolConfig construction, not for the Pool type itself.
type Pool = memstore.Pool

// NewPartitionedStore creates a PartitionedStore with numPartitions
// partitions (rounded up to a power of two), each drawing blocks from
// pool according to rule.
func NewPartitionedStore(pool *Pool, numPartitions int, rule memstore.ChainingRule) (*PartitionedStore, error) {
	if numPartitions < 1 {
		return nil, fmt.Errorf("binstore: numPartitions must be >= 1, got %d", numPartitions)
	}
	n := nextPow2(numPartitions)
	ps := &PartitionedStore{pool: pool, chains: make([]*memstore.Chain, n), partitions: make([]*Store, n)}
	for i := 0; i < n; i++ {
		ps.chains[i] = pool.NewChain(rule)
		ps.partitions[i] = NewStore(ps.chains[i])
	}
	return ps, nil
}

// NumPartitions returns the (power-of-two) partition count.
func (ps *PartitionedStore) NumPartitions() int { return len(ps.partitions) }

// PartitionFor returns the partition index key is assigned to.
func (ps *PartitionedStore) PartitionFor(key []byte) int {
	return int(hashKey(key) & uint64(len(ps.partitions)-1))
}

// Partition returns the Store for partition index i.
func (ps *PartitionedStore) Partition(i int) *Store { return ps.partitions[i] }

// Put routes key/value to its partition and inserts, per the same
// Put contract as Store.Put.
func (ps *PartitionedStore) Put(key, value []byte, acc Accumulator) error {
	_, _, err := ps.PutAddr(key, value, acc)
	return err
}

// PutAddr is Put's underlying implementation, additionally returning the
// Addr the record now lives at and the partition index it was routed to.
func (ps *PartitionedStore) PutAddr(key, value []byte, acc Accumulator) (memstore.Addr, int, error) {
	p := ps.PartitionFor(key)
	addr, err := ps.partitions[p].PutAddr(key, value, acc)
	return addr, p, err
}

// Lookup routes key to its partition and looks it up.
func (ps *PartitionedStore) Lookup(key []byte) (memstore.Addr, int, bool) {
	p := ps.PartitionFor(key)
	addr, ok := ps.partitions[p].Lookup(key)
	return addr, p, ok
}

// RecordAt reads back the key/value stored at addr within partition p.
func (ps *PartitionedStore) RecordAt(p int, addr memstore.Addr) (key, value []byte, err error) {
	return ps.partitions[p].RecordAt(addr)
}

// IsEmpty reports whether every partition is empty.
func (ps *PartitionedStore) IsEmpty() bool {
	for _, p := range ps.partitions {
		if !p.IsEmpty() {
			return false
		}
	}
	return true
}

// RecordCount sums the live record count across all partitions.
func (ps *PartitionedStore) RecordCount() int {
	total := 0
	for _, p := range ps.partitions {
		total += p.RecordCount()
	}
	return total
}

// ByteUsage sums committed bytes across all partitions.
func (ps *PartitionedStore) ByteUsage() int64 {
	var total int64
	for _, p := range ps.partitions {
		total += p.ByteUsage()
	}
	return total
}

// Dispose releases every partition's chain back to the pool.
func (ps *PartitionedStore) Dispose() {
	for _, c := range ps.chains {
		c.Release()
	}
}
