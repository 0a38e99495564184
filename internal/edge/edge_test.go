package edge

import (
	"testing"

	"github.com/dreamware/flowcore/internal/flowerr"
	"github.com/dreamware/flowcore/internal/item"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFOWithinOneQueue(t *testing.T) {
	q := NewQueue(4)
	for i := 0; i < 4; i++ {
		require.True(t, q.TryPush(item.NewDataItem(i)))
	}
	require.False(t, q.TryPush(item.NewDataItem(99)), "queue should be full at capacity")

	for i := 0; i < 4; i++ {
		it, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, i, it.Payload)
	}
	_, ok := q.TryPop()
	assert.False(t, ok)
}

func TestQueueCapacityRoundsUpToPowerOfTwo(t *testing.T) {
	q := NewQueue(5)
	assert.Equal(t, 8, q.Cap())
}

func TestOutboxRoundRobinUnicast(t *testing.T) {
	q0, q1 := NewQueue(4), NewQueue(4)
	ob := NewOutbox([][]*Queue{{q0, q1}}, []Forwarder{RoundRobin()}, []int{4})

	for i := 0; i < 4; i++ {
		require.True(t, ob.Add(0, item.NewDataItem(i)))
	}
	assert.Equal(t, 2, q0.Len())
	assert.Equal(t, 2, q1.Len())
}

func TestOutboxBroadcastFanOutAll(t *testing.T) {
	q0, q1, q2 := NewQueue(4), NewQueue(4), NewQueue(4)
	ob := NewOutbox([][]*Queue{{q0, q1, q2}}, []Forwarder{BroadcastAll()}, []int{4})

	require.True(t, ob.Add(0, item.NewDataItem("x")))
	for _, q := range []*Queue{q0, q1, q2} {
		it, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, "x", it.Payload)
	}
}

func TestOutboxBroadcastBackpressureIsAtomic(t *testing.T) {
	q0, q1 := NewQueue(1), NewQueue(4)
	ob := NewOutbox([][]*Queue{{q0, q1}}, []Forwarder{BroadcastAll()}, []int{1})

	require.True(t, ob.Add(0, item.NewDataItem("a")))
	// q0 is now full (cap rounds up to 1... actually NewQueue(1) -> cap 1).
	ok := ob.Add(0, item.NewDataItem("b"))
	assert.False(t, ok, "partial fan-out must be rejected, not partially applied")
	assert.Equal(t, 1, q1.Len(), "q1 must hold only the first item, not the rejected one")
}

func TestOutboxHasReachedLimit(t *testing.T) {
	q0 := NewQueue(4)
	ob := NewOutbox([][]*Queue{{q0}}, []Forwarder{RoundRobin()}, []int{2})
	assert.False(t, ob.HasReachedLimit(0))
	require.True(t, ob.Add(0, item.NewDataItem(1)))
	require.True(t, ob.Add(0, item.NewDataItem(2)))
	assert.True(t, ob.HasReachedLimit(0))
}

func TestOutboxAddMinusOneFansToAllBuckets(t *testing.T) {
	q0, q1 := NewQueue(4), NewQueue(4)
	ob := NewOutbox(
		[][]*Queue{{q0}, {q1}},
		[]Forwarder{RoundRobin(), RoundRobin()},
		[]int{4, 4},
	)
	require.True(t, ob.Add(-1, item.EndOfStream()))
	_, ok0 := q0.TryPop()
	_, ok1 := q1.TryPop()
	assert.True(t, ok0)
	assert.True(t, ok1)
}

// TestScenarioS6AlignedWatermarks mirrors spec.md §8 S6: two producers each
// emit [x1, WM(5), x2, WM(10)]; downstream should see both x1s, then a single
// aligned WM(5), then both x2s, then a single aligned WM(10).
func TestScenarioS6AlignedWatermarks(t *testing.T) {
	q0, q1 := NewQueue(8), NewQueue(8)
	ib := NewInbox([]*Queue{q0, q1})

	for _, q := range []*Queue{q0, q1} {
		require.True(t, q.TryPush(item.NewDataItem("x1")))
		require.True(t, q.TryPush(item.NewWatermark(5)))
		require.True(t, q.TryPush(item.NewDataItem("x2")))
		require.True(t, q.TryPush(item.NewWatermark(10)))
	}

	var seen []item.Item
	state := ib.DrainTo(func(it item.Item) bool {
		seen = append(seen, it)
		return true
	})
	require.NoError(t, ib.Err())
	assert.Equal(t, MadeProgress, state)

	// Both x1 items arrive before the aligned WM(5); both x2 items arrive
	// between WM(5) and WM(10).
	wm5 := indexOfWatermark(seen, 5)
	wm10 := indexOfWatermark(seen, 10)
	require.GreaterOrEqual(t, wm5, 0)
	require.GreaterOrEqual(t, wm10, 0)
	assert.Less(t, wm5, wm10)

	countData := func(lo, hi int, payload string) int {
		n := 0
		for _, it := range seen[lo:hi] {
			if it.IsData() && it.Payload == payload {
				n++
			}
		}
		return n
	}
	assert.Equal(t, 2, countData(0, wm5, "x1"))
	assert.Equal(t, 2, countData(wm5+1, wm10, "x2"))

	// Exactly one WM(5) and one WM(10) reach the collector.
	n5, n10 := 0, 0
	for _, it := range seen {
		if it.IsWatermark() && it.Watermark == 5 {
			n5++
		}
		if it.IsWatermark() && it.Watermark == 10 {
			n10++
		}
	}
	assert.Equal(t, 1, n5)
	assert.Equal(t, 1, n10)
}

// TestScenarioS6MisalignedWatermarkAborts mirrors S6's failure case: producer
// 2 emits WM(7) instead of WM(5), which must surface WatermarkMisorder.
func TestScenarioS6MisalignedWatermarkAborts(t *testing.T) {
	q0, q1 := NewQueue(8), NewQueue(8)
	ib := NewInbox([]*Queue{q0, q1})

	require.True(t, q0.TryPush(item.NewWatermark(5)))
	require.True(t, q1.TryPush(item.NewWatermark(7)))

	state := ib.DrainTo(func(item.Item) bool { return true })
	assert.Equal(t, Done, state)
	require.Error(t, ib.Err())
	kind, ok := flowerr.KindOf(ib.Err())
	require.True(t, ok)
	assert.Equal(t, flowerr.KindWatermarkMisorder, kind)
}

func TestInboxDoneProducerImplicitlyAligned(t *testing.T) {
	q0, q1 := NewQueue(8), NewQueue(8)
	ib := NewInbox([]*Queue{q0, q1})

	require.True(t, q0.TryPush(item.EndOfStream()))
	require.True(t, q1.TryPush(item.NewWatermark(9)))

	var seen []item.Item
	state := ib.DrainTo(func(it item.Item) bool {
		seen = append(seen, it)
		return true
	})
	require.NoError(t, ib.Err())
	assert.Equal(t, MadeProgress, state)
	require.Len(t, seen, 1)
	assert.True(t, seen[0].IsWatermark())
	assert.Equal(t, int64(9), seen[0].Watermark)

	// Now producer 1 also finishes; DrainTo should report Done.
	require.True(t, q1.TryPush(item.EndOfStream()))
	state = ib.DrainTo(func(item.Item) bool { return true })
	assert.Equal(t, Done, state)
}

func TestInboxCollectorStopSignalHaltsDraining(t *testing.T) {
	q0 := NewQueue(8)
	ib := NewInbox([]*Queue{q0})
	for i := 0; i < 4; i++ {
		require.True(t, q0.TryPush(item.NewDataItem(i)))
	}

	calls := 0
	state := ib.DrainTo(func(item.Item) bool {
		calls++
		return calls < 2
	})
	assert.Equal(t, MadeProgress, state)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, q0.Len(), "remaining items stay queued for the next call")
}

func indexOfWatermark(items []item.Item, seq int64) int {
	for i, it := range items {
		if it.IsWatermark() && it.Watermark == seq {
			return i
		}
	}
	return -1
}
