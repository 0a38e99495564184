package flowerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfAndIs(t *testing.T) {
	cause := errors.New("disk full")
	err := MemoryExhausted("partition 3", cause)

	k, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindMemoryExhausted, k)
	assert.ErrorIs(t, err, ErrMemoryExhausted)
	assert.ErrorIs(t, err, cause)
}

func TestEachKindRoundTrips(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
	}{
		{WatermarkMisorder("producer 1 disagrees"), KindWatermarkMisorder},
		{ProcessorFailure("vertex sink", errors.New("boom")), KindProcessorFailure},
		{Cancelled("job cancelled"), KindCancelled},
		{DagInvalid("cycle detected"), KindDagInvalid},
	}
	for _, c := range cases {
		k, ok := KindOf(c.err)
		require.True(t, ok)
		assert.Equal(t, c.kind, k)
	}
}

func TestKindOfNonFlowErr(t *testing.T) {
	_, ok := KindOf(errors.New("plain error"))
	assert.False(t, ok)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "MemoryExhausted", KindMemoryExhausted.String())
	assert.Equal(t, "Unknown", Kind(99).String())
}
