// Package edge implements the conveyor between a producer tasklet's Outbox
// and a consumer tasklet's Inbox: a lock-free single-producer/single-consumer
// ring buffer per queue, the Outbox/Inbox bucket abstractions built on top of
// it, and the watermark-coherence protocol a fan-in Inbox enforces across its
// upstream producers (spec.md §4.4). Queues are bounded and power-of-two
// sized, cache-line padded at head/tail the way spec.md's design notes (§9)
// call for, grounded on the pack's ring-buffer implementations (yanet2's
// pdump control-plane ring, otter's lossy ring) rather than a channel, since a
// channel's internal mutex would put a coarse lock on this module's hottest
// path.
package edge

import (
	"sync/atomic"

	"github.com/dreamware/flowcore/internal/item"
)

const cacheLinePad = 64

// Queue is a bounded SPSC conveyor of item.Item shared between one producer
// tasklet's Outbox bucket and one consumer tasklet's Inbox slot. Capacity is
// rounded up to a power of two so index wrapping is a mask instead of a
// modulo. head is only written by the consumer, tail only by the producer;
// each is padded to its own cache line so producer and consumer don't
// false-share.
type Queue struct {
	tail uint64
	_    [cacheLinePad - 8]byte
	head uint64
	_    [cacheLinePad - 8]byte
	mask uint64
	buf  []item.Item
}

// NewQueue creates a Queue with room for at least capacity items.
func NewQueue(capacity int) *Queue {
	n := nextPowerOfTwo(capacity)
	return &Queue{
		buf:  make([]item.Item, n),
		mask: uint64(n - 1),
	}
}

func nextPowerOfTwo(n int) int {
	if n < 1 {
		n = 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Len reports the number of queued-but-undrained items. Safe to call from
// either side; may be stale by the time the caller acts on it.
func (r *Queue) Len() int {
	tail := atomic.LoadUint64(&r.tail)
	head := atomic.LoadUint64(&r.head)
	return int(tail - head)
}

// Cap reports the queue's fixed capacity (the power of two it was rounded
// up to).
func (r *Queue) Cap() int { return len(r.buf) }

// TryPush appends it, returning false if the buffer is full. Only the
// producer side may call this.
func (r *Queue) TryPush(it item.Item) bool {
	tail := atomic.LoadUint64(&r.tail)
	head := atomic.LoadUint64(&r.head)
	if tail-head >= uint64(len(r.buf)) {
		return false
	}
	r.buf[tail&r.mask] = it
	atomic.StoreUint64(&r.tail, tail+1)
	return true
}

// TryPop removes and returns the oldest item, reporting false if empty.
// Only the consumer side may call this.
func (r *Queue) TryPop() (item.Item, bool) {
	head := atomic.LoadUint64(&r.head)
	tail := atomic.LoadUint64(&r.tail)
	if head >= tail {
		return item.Item{}, false
	}
	it := r.buf[head&r.mask]
	r.buf[head&r.mask] = item.Item{}
	atomic.StoreUint64(&r.head, head+1)
	return it, true
}
