package memstore

// Chain is a singly-linked list of Blocks scoped to one logical store
// (one Binary Storage instance, or one partition of one). It is
// append-only: Write never overwrites committed bytes, only ever bumping
// the current block's cursor or acquiring a new block when the current
// one is full.
type Chain struct {
	pool       *Pool
	rule       ChainingRule
	blocks     []*Block
	current    *Block
	heapBudget int
	heapUsed   int
}

// Write appends data as a single, unsplit record and returns the Addr it
// was written at. It acquires a fresh block from the pool when the
// current block cannot fit data, per the rule the Chain was created with.
func (c *Chain) Write(data []byte) (Addr, error) {
	if c.current == nil || c.current.Remaining() < len(data) {
		if err := c.acquireBlock(); err != nil {
			return Addr{}, err
		}
	}
	offset, ok := c.current.Append(data)
	if !ok {
		// data is larger than a whole block; not supported by the fixed
		// block size model described in the data model section.
		return Addr{}, outOfMemory("chain: record larger than block size")
	}
	return Addr{BlockID: c.current.ID(), Offset: offset}, nil
}

func (c *Chain) acquireBlock() error {
	useNative := c.rule == Native
	if c.rule == HeapThenNative && c.heapBudget > 0 && c.heapUsed >= c.heapBudget {
		useNative = true
	}

	var b *Block
	var err error
	if useNative {
		b, err = c.pool.acquireNative()
	} else {
		b, err = c.pool.acquireHeap()
		if err == nil {
			c.heapUsed++
		}
	}
	if err != nil {
		return err
	}
	c.blocks = append(c.blocks, b)
	c.current = b
	return nil
}

// ReadAt returns a view of n bytes at addr.
func (c *Chain) ReadAt(addr Addr, n uint32) ([]byte, error) {
	b := c.blockByID(addr.BlockID)
	if b == nil {
		return nil, outOfMemory("chain: unknown block id")
	}
	return b.ReadAt(addr.Offset, n)
}

// WriteAt overwrites n bytes already committed at addr; see
// Block.WriteAt for the same-length contract.
func (c *Chain) WriteAt(addr Addr, data []byte) error {
	b := c.blockByID(addr.BlockID)
	if b == nil {
		return outOfMemory("chain: unknown block id")
	}
	return b.WriteAt(addr.Offset, data)
}

func (c *Chain) blockByID(id uint32) *Block {
	for _, b := range c.blocks {
		if b.ID() == id {
			return b
		}
	}
	return nil
}

// ByteUsage returns the total bytes committed across every block in the
// chain (not the blocks' full capacity).
func (c *Chain) ByteUsage() int64 {
	var total int64
	for _, b := range c.blocks {
		total += int64(b.used)
	}
	return total
}

// BlockCount returns how many blocks the chain currently holds.
func (c *Chain) BlockCount() int { return len(c.blocks) }

// Release returns every block the chain holds back to its pool. After
// Release the chain must not be used again.
func (c *Chain) Release() {
	for _, b := range c.blocks {
		switch {
		case c.rule == Native:
			c.pool.releaseNative(b)
		case c.rule == HeapThenNative:
			// blocks acquired before the heap budget was exhausted came
			// from the heap pool; the rest from native. We don't track
			// per-block origin explicitly, so ask the pool which list it
			// belongs to by attempting heap release first only for the
			// first heapUsed blocks.
			c.releaseHeapThenNativeBlock(b)
		default:
			c.pool.releaseHeap(b)
		}
	}
	c.blocks = nil
	c.current = nil
}

func (c *Chain) releaseHeapThenNativeBlock(b *Block) {
	for i, hb := range c.blocks {
		if hb == b && i < c.heapUsed {
			c.pool.releaseHeap(b)
			return
		}
	}
	c.pool.releaseNative(b)
}
