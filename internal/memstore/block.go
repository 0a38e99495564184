// Package memstore implements off-heap-style memory blocks and the pools
// that hand them out. A Block is a fixed-size byte region with a bump
// cursor; Chains link Blocks into the append-only storage a Binary Storage
// instance builds records on top of. Records are addressed by
// (blockID, offset) pairs rather than pointers, per the design notes:
// hash tables and sort runs carry these compact addresses around instead
// of Go pointers into the blocks, so the blocks themselves can move
// between a heap arena and a native (mmap) arena without invalidating
// anything that merely holds an address.
package memstore

import (
	"fmt"

	"github.com/dreamware/flowcore/internal/flowerr"
)

// DefaultBlockBytes is the default fixed block size (128 KiB), matching
// the binary storage pool configuration's default.
const DefaultBlockBytes = 128 * 1024

// Addr is a compact (blockID, offset) address into a Chain. The zero value
// is never a valid address (block IDs start at 1) so Addr can double as an
// "absent" sentinel in hash-chain links.
type Addr struct {
	BlockID uint32
	Offset  uint32
}

// IsZero reports whether a is the absent sentinel.
func (a Addr) IsZero() bool { return a.BlockID == 0 && a.Offset == 0 }

// Block is one fixed-size, append-only byte region. Writes never
// overwrite already-committed bytes; a Block releases back to its Pool
// only when the owning Chain is disposed.
type Block struct {
	id    uint32
	bytes []byte
	used  uint32
}

// ID returns the block's identifier, stable for the block's lifetime.
func (b *Block) ID() uint32 { return b.id }

// Remaining reports how many bytes are free for appends.
func (b *Block) Remaining() int { return len(b.bytes) - int(b.used) }

// Append writes data at the current bump cursor, returning the offset it
// was written at. It fails if data does not fit in the remaining space;
// callers (Chain.Write) are expected to acquire a fresh block in that
// case rather than split a record across two blocks.
func (b *Block) Append(data []byte) (offset uint32, ok bool) {
	if len(data) > b.Remaining() {
		return 0, false
	}
	offset = b.used
	copy(b.bytes[offset:], data)
	b.used += uint32(len(data))
	return offset, true
}

// WriteAt overwrites previously-committed bytes in place, starting at
// offset. Callers (Store's in-place accumulator update path) must only use
// this when the new value has the same length as what it replaces, so scan
// order and block layout stay stable — memstore itself does not enforce
// the length match, that contract lives in binstore.
func (b *Block) WriteAt(offset uint32, data []byte) error {
	if int(offset)+len(data) > len(b.bytes) {
		return fmt.Errorf("memstore: write at %d len %d exceeds block size %d", offset, len(data), len(b.bytes))
	}
	copy(b.bytes[offset:], data)
	return nil
}

// ReadAt returns a view (not a copy) of n bytes starting at offset.
func (b *Block) ReadAt(offset uint32, n uint32) ([]byte, error) {
	end := int(offset) + int(n)
	if end > len(b.bytes) {
		return nil, fmt.Errorf("memstore: read at %d len %d exceeds block size %d", offset, n, len(b.bytes))
	}
	return b.bytes[offset:end], nil
}

func (b *Block) reset() {
	b.used = 0
}

// outOfMemory is the shared error constructor for allocation failures
// across both backends.
func outOfMemory(backend string) error {
	return flowerr.MemoryExhausted("memstore", fmt.Errorf("%s arena exhausted", backend))
}
