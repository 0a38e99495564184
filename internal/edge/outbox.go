package edge

import "github.com/dreamware/flowcore/internal/item"

// Forwarder picks which of a bucket's destination instance Queues an item
// is routed to. Outbox itself doesn't know about dag.ForwardingPattern (that
// would be an import cycle in the other direction conceptually, and a bucket
// outlives any one DAG type); the executor wiring layer builds the right
// Forwarder from the edge's pattern when it constructs the Outbox.
type Forwarder interface {
	// Route returns the destination instance indices it to send it to.
	// Unicast/Partitioned/AllToOne return exactly one index; Broadcast
	// returns all of them.
	Route(it item.Item, numDest int) []int
}

// ForwarderFunc adapts a plain function to Forwarder.
type ForwarderFunc func(it item.Item, numDest int) []int

// Route implements Forwarder.
func (f ForwarderFunc) Route(it item.Item, numDest int) []int { return f(it, numDest) }

// bucket is one Outbox slot, corresponding to one outgoing edge. It holds
// one Queue per destination vertex instance and the Forwarder that decides
// which of them an item goes to.
type bucket struct {
	queues        []*Queue
	forward       Forwarder
	highWaterMark int
}

func newBucket(queues []*Queue, forward Forwarder, highWaterMark int) *bucket {
	return &bucket{queues: queues, forward: forward, highWaterMark: highWaterMark}
}

func (b *bucket) hasReachedLimit() bool {
	for _, q := range b.queues {
		if q.Len() >= b.highWaterMark {
			return true
		}
	}
	return false
}

// tryAdd routes it to its destination queue(s), failing atomically: if any
// targeted queue is full, nothing is written and false is returned so the
// caller re-presents the same item later. This keeps a Broadcast item from
// landing in some downstream instances but not others.
func (b *bucket) tryAdd(it item.Item) bool {
	targets := b.forward.Route(it, len(b.queues))
	for _, idx := range targets {
		if b.queues[idx].Len() >= b.queues[idx].Cap() {
			return false
		}
	}
	for _, idx := range targets {
		b.queues[idx].TryPush(it)
	}
	return true
}

// Outbox is the per-tasklet collection of output buckets, one per outgoing
// edge ordinal, per spec.md §4.4.
type Outbox struct {
	buckets []*bucket
}

// NewOutbox builds an Outbox with len(queuesPerOrdinal) buckets. queuesPerOrdinal[o]
// is the set of destination-instance Queues for outgoing ordinal o;
// forwarders[o] is the routing strategy for that ordinal; highWaterMarks[o]
// is the backpressure threshold for that ordinal's queues.
func NewOutbox(queuesPerOrdinal [][]*Queue, forwarders []Forwarder, highWaterMarks []int) *Outbox {
	buckets := make([]*bucket, len(queuesPerOrdinal))
	for o := range queuesPerOrdinal {
		buckets[o] = newBucket(queuesPerOrdinal[o], forwarders[o], highWaterMarks[o])
	}
	return &Outbox{buckets: buckets}
}

// Add enqueues it into the bucket for ordinal, or into every bucket when
// ordinal == -1 (used to fan a watermark or end-of-stream out to all
// outgoing edges at once). Returns false if any targeted bucket is at
// capacity; the caller must re-present the same item on a later call.
func (o *Outbox) Add(ordinal int, it item.Item) bool {
	if ordinal == -1 {
		for _, b := range o.buckets {
			if !b.tryAdd(it) {
				return false
			}
		}
		return true
	}
	if ordinal < 0 || ordinal >= len(o.buckets) {
		return true
	}
	return o.buckets[ordinal].tryAdd(it)
}

// HasReachedLimit reports whether the bucket for ordinal is at its
// high-water mark, the backpressure signal cooperative processors are
// expected to observe before producing more.
func (o *Outbox) HasReachedLimit(ordinal int) bool {
	if ordinal < 0 || ordinal >= len(o.buckets) {
		return false
	}
	return o.buckets[ordinal].hasReachedLimit()
}

// NumBuckets reports how many outgoing-edge buckets this Outbox has.
func (o *Outbox) NumBuckets() int { return len(o.buckets) }

// RoundRobin returns a Forwarder that sends each item to exactly one
// destination instance, cycling through them in order — the default
// strategy for Unicast edges.
func RoundRobin() Forwarder {
	var next int
	return ForwarderFunc(func(_ item.Item, numDest int) []int {
		if numDest == 0 {
			return nil
		}
		idx := next % numDest
		next++
		return []int{idx}
	})
}

// BroadcastAll returns a Forwarder that sends every item to every
// destination instance.
func BroadcastAll() Forwarder {
	return ForwarderFunc(func(_ item.Item, numDest int) []int {
		out := make([]int, numDest)
		for i := range out {
			out[i] = i
		}
		return out
	})
}

// AllToOneForwarder returns a Forwarder that always routes to destination
// instance 0, the AllToOne pattern's fan-in-to-one behavior.
func AllToOneForwarder() Forwarder {
	return ForwarderFunc(func(_ item.Item, numDest int) []int {
		if numDest == 0 {
			return nil
		}
		return []int{0}
	})
}

// Partitioned returns a Forwarder that routes data items by
// partitionFn(keyFn(payload), numDest), and sends control items (watermarks,
// end-of-stream) to every destination instance so every downstream instance
// observes the full watermark sequence regardless of which instances
// happen to receive data for a given key.
func Partitioned(keyFn func(any) any, partitionFn func(key any, numDest int) int) Forwarder {
	return ForwarderFunc(func(it item.Item, numDest int) []int {
		if numDest == 0 {
			return nil
		}
		if !it.IsData() {
			out := make([]int, numDest)
			for i := range out {
				out[i] = i
			}
			return out
		}
		key := keyFn(it.Payload)
		idx := partitionFn(key, numDest)
		return []int{idx}
	})
}
