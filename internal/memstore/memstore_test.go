package memstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeapChainWriteReadRoundTrip(t *testing.T) {
	pool := NewPool(PoolConfig{HeapBlockBytes: 64})
	defer pool.Close()

	chain := pool.NewChain(Heap)
	addr, err := chain.Write([]byte("hello"))
	require.NoError(t, err)

	got, err := chain.ReadAt(addr, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestChainAcquiresNewBlockWhenFull(t *testing.T) {
	pool := NewPool(PoolConfig{HeapBlockBytes: 8})
	defer pool.Close()

	chain := pool.NewChain(Heap)
	a1, err := chain.Write([]byte("abcd"))
	require.NoError(t, err)
	a2, err := chain.Write([]byte("efgh"))
	require.NoError(t, err)
	// third write doesn't fit in the remaining 0 bytes of block 1
	a3, err := chain.Write([]byte("ijkl"))
	require.NoError(t, err)

	assert.Equal(t, a1.BlockID, a2.BlockID)
	assert.NotEqual(t, a2.BlockID, a3.BlockID)
	assert.Equal(t, 2, chain.BlockCount())
}

func TestMemoryDisciplineAllocatedCountReturnsAfterRelease(t *testing.T) {
	pool := NewPool(PoolConfig{HeapBlockBytes: 16})
	defer pool.Close()

	before := pool.HeapAllocated()

	chain := pool.NewChain(Heap)
	for i := 0; i < 10; i++ {
		_, err := chain.Write([]byte("0123456789abcdef"))
		require.NoError(t, err)
	}
	assert.Greater(t, pool.HeapAllocated(), before)

	chain.Release()
	assert.Equal(t, before, pool.HeapAllocated())
}

func TestNativeChainWriteReadRoundTrip(t *testing.T) {
	pool := NewPool(PoolConfig{NativeBlockBytes: 64})
	defer pool.Close()

	chain := pool.NewChain(Native)
	addr, err := chain.Write([]byte("native-bytes"))
	require.NoError(t, err)

	got, err := chain.ReadAt(addr, uint32(len("native-bytes")))
	require.NoError(t, err)
	assert.Equal(t, "native-bytes", string(got))

	chain.Release()
	assert.Equal(t, int64(0), pool.NativeAllocated())
}

func TestHeapThenNativeFallsBackAfterBudget(t *testing.T) {
	pool := NewPool(PoolConfig{HeapBlockBytes: 8, NativeBlockBytes: 8, HeapBudgetBlocks: 1})
	defer pool.Close()

	chain := pool.NewChain(HeapThenNative)
	_, err := chain.Write([]byte("aaaa")) // fills block 1 from heap
	require.NoError(t, err)
	_, err = chain.Write([]byte("bbbb")) // still fits block 1
	require.NoError(t, err)
	_, err = chain.Write([]byte("cccc")) // needs a new block: budget exhausted -> native
	require.NoError(t, err)

	assert.Equal(t, int64(1), pool.HeapAllocated())
	assert.Equal(t, int64(1), pool.NativeAllocated())
}

func TestWriteAtSameLengthInPlace(t *testing.T) {
	pool := NewPool(PoolConfig{HeapBlockBytes: 64})
	defer pool.Close()

	chain := pool.NewChain(Heap)
	addr, err := chain.Write([]byte("value1"))
	require.NoError(t, err)

	require.NoError(t, chain.WriteAt(addr, []byte("value2")))
	got, err := chain.ReadAt(addr, 6)
	require.NoError(t, err)
	assert.Equal(t, "value2", string(got))
}
