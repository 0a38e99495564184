package memstore

import (
	"os"
	"sync"
	"sync/atomic"

	mmap "github.com/edsrzf/mmap-go"
)

// ChainingRule selects which backend a Chain draws new blocks from.
type ChainingRule int

const (
	// Heap draws every block from the heap-backed arena.
	Heap ChainingRule = iota
	// Native draws every block from the mmap-backed native arena.
	Native
	// HeapThenNative draws from the heap arena until HeapBudgetBlocks
	// blocks have been handed out, then falls back to Native — covering
	// the common case (most jobs are small) without paying mmap setup
	// cost for every store.
	HeapThenNative
)

// PoolConfig mirrors the binary storage pool configuration surface from
// the external interfaces: block sizes per backend and which chaining
// rule new chains should use.
type PoolConfig struct {
	HeapBlockBytes   int
	NativeBlockBytes int
	ChainRule        ChainingRule
	// HeapBudgetBlocks bounds how many heap blocks HeapThenNative hands
	// out before switching to native.
	HeapBudgetBlocks int
}

// DefaultPoolConfig returns the configuration defaults from the binary
// storage pool configuration surface.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		HeapBlockBytes:   DefaultBlockBytes,
		NativeBlockBytes: DefaultBlockBytes,
		ChainRule:        Heap,
	}
}

type nativeBlock struct {
	block *Block
	mm    mmap.MMap
	file  *os.File
}

// Pool is the thread-safe allocator for both backends. Blocks are owned
// exclusively by one Chain at a time; the Pool only tracks allocation
// counts and recycles released blocks onto a free list.
type Pool struct {
	cfg    PoolConfig
	nextID uint32

	heapMu   sync.Mutex
	heapFree []*Block

	nativeMu      sync.Mutex
	nativeFree    []*nativeBlock
	nativeByID    map[uint32]*nativeBlock // every native block ever created, for Close
	nativeCheckedOut map[uint32]struct{}

	heapAllocated   int64
	nativeAllocated int64
	heapHandedOut   int64
}

// NewPool constructs a Pool ready to hand out blocks for both backends.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.HeapBlockBytes <= 0 {
		cfg.HeapBlockBytes = DefaultBlockBytes
	}
	if cfg.NativeBlockBytes <= 0 {
		cfg.NativeBlockBytes = DefaultBlockBytes
	}
	return &Pool{
		cfg:              cfg,
		nativeByID:       make(map[uint32]*nativeBlock),
		nativeCheckedOut: make(map[uint32]struct{}),
	}
}

// HeapAllocated returns the number of heap blocks currently checked out
// (not yet released back to the pool's free list).
func (p *Pool) HeapAllocated() int64 { return atomic.LoadInt64(&p.heapAllocated) }

// NativeAllocated returns the number of native (mmap) blocks currently
// checked out.
func (p *Pool) NativeAllocated() int64 { return atomic.LoadInt64(&p.nativeAllocated) }

// NewChain creates an empty Chain drawing blocks from this Pool according
// to rule.
func (p *Pool) NewChain(rule ChainingRule) *Chain {
	return &Chain{pool: p, rule: rule, heapBudget: p.cfg.HeapBudgetBlocks}
}

func (p *Pool) acquireHeap() (*Block, error) {
	p.heapMu.Lock()
	defer p.heapMu.Unlock()

	var b *Block
	if n := len(p.heapFree); n > 0 {
		b = p.heapFree[n-1]
		p.heapFree = p.heapFree[:n-1]
		b.reset()
	} else {
		p.nextID++
		b = &Block{id: p.nextID, bytes: make([]byte, p.cfg.HeapBlockBytes)}
	}
	atomic.AddInt64(&p.heapAllocated, 1)
	atomic.AddInt64(&p.heapHandedOut, 1)
	return b, nil
}

func (p *Pool) releaseHeap(b *Block) {
	p.heapMu.Lock()
	p.heapFree = append(p.heapFree, b)
	p.heapMu.Unlock()
	atomic.AddInt64(&p.heapAllocated, -1)
}

func (p *Pool) acquireNative() (*Block, error) {
	p.nativeMu.Lock()
	if n := len(p.nativeFree); n > 0 {
		nb := p.nativeFree[n-1]
		p.nativeFree = p.nativeFree[:n-1]
		p.nativeCheckedOut[nb.block.id] = struct{}{}
		p.nativeMu.Unlock()
		nb.block.reset()
		atomic.AddInt64(&p.nativeAllocated, 1)
		return nb.block, nil
	}
	p.nativeMu.Unlock()

	f, err := os.CreateTemp("", "flowcore-native-block-*")
	if err != nil {
		return nil, outOfMemory("native")
	}
	if err := f.Truncate(int64(p.cfg.NativeBlockBytes)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, outOfMemory("native")
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, outOfMemory("native")
	}

	p.nativeMu.Lock()
	p.nextID++
	b := &Block{id: p.nextID, bytes: []byte(m)}
	nb := &nativeBlock{block: b, mm: m, file: f}
	p.nativeByID[b.id] = nb
	p.nativeCheckedOut[b.id] = struct{}{}
	p.nativeMu.Unlock()

	atomic.AddInt64(&p.nativeAllocated, 1)
	return b, nil
}

func (p *Pool) releaseNative(b *Block) {
	p.nativeMu.Lock()
	if nb, ok := p.nativeByID[b.id]; ok {
		delete(p.nativeCheckedOut, b.id)
		p.nativeFree = append(p.nativeFree, nb)
	}
	p.nativeMu.Unlock()
	atomic.AddInt64(&p.nativeAllocated, -1)
}

// Close releases every pooled resource, unmapping and removing the
// backing native-block temp files. Blocks still checked out by a live
// Chain are the caller's responsibility to release first.
func (p *Pool) Close() error {
	p.nativeMu.Lock()
	defer p.nativeMu.Unlock()

	var firstErr error
	for _, nb := range p.nativeByID {
		if err := nb.mm.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
		name := nb.file.Name()
		nb.file.Close()
		os.Remove(name)
	}
	p.nativeByID = make(map[uint32]*nativeBlock)
	p.nativeFree = nil
	p.nativeCheckedOut = make(map[uint32]struct{})
	return firstErr
}
