package binstore

import "github.com/dreamware/flowcore/internal/memstore"

// hashKey is a stable 64-bit hash of raw key bytes, the same "hash of
// bytes, not of a language-level key type" idiom as the teacher's
// shard.OwnsKey (FNV-1a over key bytes), widened to 64 bits so partition
// and bucket counts in the millions don't collide at toy scale. The
// constants are the FNV-1a 64-bit offset basis and prime.
func hashKey(key []byte) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for _, b := range key {
		h ^= uint64(b)
		h *= prime64
	}
	return h
}

// hashIndex is the open-addressed-by-bucket hash table described in the
// data model: buckets hold the head Addr of a same-bucket collision
// chain; chain links live inside the records themselves (recordView.Next)
// so resizing means rewriting each record's nextSlot field in place
// rather than moving any bytes.
type hashIndex struct {
	buckets []memstore.Addr // power-of-two sized; zero Addr means empty
	count   int
}

const loadFactorResizeThreshold = 0.75

func newHashIndex(initialBuckets int) *hashIndex {
	if initialBuckets < 1 {
		initialBuckets = 1
	}
	return &hashIndex{buckets: make([]memstore.Addr, nextPow2(initialBuckets))}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (h *hashIndex) bucketFor(key []byte) int {
	return int(hashKey(key) & uint64(len(h.buckets)-1))
}

func (h *hashIndex) needsResize() bool {
	return float64(h.count+1) > loadFactorResizeThreshold*float64(len(h.buckets))
}
