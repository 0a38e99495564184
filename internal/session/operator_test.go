package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/flowcore/internal/proc"
)

type testEvent struct {
	Key string
	Ts  int64
	Val int
}

func sumCollector() proc.Collector[testEvent, int, int] {
	return proc.Collector[testEvent, int, int]{
		Supplier:    func() int { return 0 },
		Accumulator: func(acc int, e testEvent) int { return acc + e.Val },
		Combiner:    func(a, b int) int { return a + b },
		Finisher:    func(acc int) int { return acc },
	}
}

func newTestOperator(gap int64) *Operator[string, testEvent, int, int] {
	return NewOperator[string, testEvent, int, int](
		gap,
		func(e testEvent) int64 { return e.Ts },
		func(e testEvent) string { return e.Key },
		sumCollector(),
	)
}

// S4: events ts 1, 5, 20, 25 with gap 10 produce two sessions,
// [1,15) and [20,35), the second invisible until watermark reaches 35.
func TestScenarioS4TwoSessionsFromFourEvents(t *testing.T) {
	op := newTestOperator(10)

	op.OnItem(testEvent{Key: "A", Ts: 1, Val: 1})
	op.OnItem(testEvent{Key: "A", Ts: 5, Val: 1})
	op.OnItem(testEvent{Key: "A", Ts: 20, Val: 1})
	op.OnItem(testEvent{Key: "A", Ts: 25, Val: 1})

	out := op.OnWatermark(30)
	require.Len(t, out, 1)
	assert.Equal(t, "A", out[0].Key)
	assert.Equal(t, int64(1), out[0].Start)
	assert.Equal(t, int64(15), out[0].BeyondEnd)
	assert.Equal(t, 2, out[0].Result)

	out2 := op.OnWatermark(40)
	require.Len(t, out2, 1)
	assert.Equal(t, int64(20), out2[0].Start)
	assert.Equal(t, int64(35), out2[0].BeyondEnd)
	assert.Equal(t, 2, out2[0].Result)
}

// Merge-bridging (property 4, in the spirit of S5): two disjoint sessions
// get bridged into one by a later event that touches both. The gap
// separating the two initial sessions here (9, between BeyondEnd 11 and
// Start 20) is within G=10 so a single bridging event can touch both —
// unlike spec.md's own S5 figures (ts 1, 30, bridged by ts 15 at G=10),
// where the first session's reach ends at 11 and nothing at ts=15 can
// touch it (15 > 11), so no bridge is possible under the stated algorithm
// for those numbers.
func TestMergeBridgingTwoMatchesCombine(t *testing.T) {
	op := newTestOperator(10)

	op.OnItem(testEvent{Key: "A", Ts: 1, Val: 1})  // [1,11)
	op.OnItem(testEvent{Key: "A", Ts: 20, Val: 1}) // [20,30), disjoint from [1,11)
	op.OnItem(testEvent{Key: "A", Ts: 11, Val: 1}) // touches both -> [1,30)

	out := op.OnWatermark(30)
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0].Start)
	assert.Equal(t, int64(30), out[0].BeyondEnd)
	assert.Equal(t, 3, out[0].Result)
}

// Property 3: after any prefix of events, open intervals for a key are
// pairwise non-touching.
func TestSessionNonOverlapInvariant(t *testing.T) {
	op := newTestOperator(10)
	events := []int64{1, 5, 20, 50, 52, 100}
	for _, ts := range events {
		op.OnItem(testEvent{Key: "A", Ts: ts, Val: 1})
		tree := op.perKey["A"]
		var all []intervalEntry[int]
		tree.Ascend(func(e intervalEntry[int]) bool {
			all = append(all, e)
			return true
		})
		for i := 0; i < len(all); i++ {
			for j := i + 1; j < len(all); j++ {
				assert.False(t, all[i].iv.Touches(all[j].iv),
					"intervals %+v and %+v should not touch after ts=%d", all[i].iv, all[j].iv, ts)
			}
		}
	}
}

// Property 5: late drop — events at or before lastWatermark don't change
// state.
func TestLateEventsAreDropped(t *testing.T) {
	op := newTestOperator(10)
	op.OnItem(testEvent{Key: "A", Ts: 1, Val: 1})
	_ = op.OnWatermark(20)
	assert.Empty(t, op.perKey["A"])

	op.OnItem(testEvent{Key: "A", Ts: 20, Val: 5}) // ts == lastWatermark, dropped
	op.OnItem(testEvent{Key: "A", Ts: 10, Val: 5}) // ts < lastWatermark, dropped
	assert.Empty(t, op.perKey["A"])

	op.OnItem(testEvent{Key: "A", Ts: 21, Val: 5}) // accepted
	assert.NotEmpty(t, op.perKey["A"])
}

// Empty watermark sweep with no pending sessions emits nothing.
func TestOnWatermarkWithNoSessionsEmitsNothing(t *testing.T) {
	op := newTestOperator(10)
	out := op.OnWatermark(1000)
	assert.Empty(t, out)
}

// Encompassed events accumulate into the same interval without changing
// its bounds. ts=1 then ts=5 first merge into [1,15); ts=3's probe [3,13)
// then falls entirely inside [1,15), so it accumulates without resizing.
func TestEncompassedEventAccumulatesWithoutResize(t *testing.T) {
	op := newTestOperator(10)
	op.OnItem(testEvent{Key: "A", Ts: 1, Val: 1})
	op.OnItem(testEvent{Key: "A", Ts: 5, Val: 1})
	op.OnItem(testEvent{Key: "A", Ts: 3, Val: 1})

	out := op.OnWatermark(15)
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0].Start)
	assert.Equal(t, int64(15), out[0].BeyondEnd)
	assert.Equal(t, 3, out[0].Result)
}
