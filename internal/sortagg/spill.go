package sortagg

import (
	"encoding/binary"
	"os"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/dreamware/flowcore/internal/flowerr"
)

// spillInfo is a sorted partition run written out to an mmap-backed
// scratch file: seq(8) keyLen(4) key valueLen(4) value, repeated, already
// in sorted order so the merge cursor reads it sequentially with no
// further comparisons needed within the run.
type spillInfo struct {
	file *os.File
	mm   mmap.MMap
}

func recordSize(key, value []byte) int {
	return 8 + 4 + len(key) + 4 + len(value)
}

// spill writes partition p's sorted entries to a scratch file in
// cfg.SpillingChunkSize-sized batches, then discards the in-memory entry
// slice so its storage's blocks can eventually be released by Dispose.
func (a *Aggregator) spill(p int) error {
	ents := a.entries[p]

	total := 0
	for _, e := range ents {
		k, v, err := a.store.RecordAt(p, e.addr)
		if err != nil {
			return err
		}
		total += recordSize(k, v)
	}

	f, err := os.CreateTemp(a.cfg.SpillDir, "flowcore-sortagg-*.spill")
	if err != nil {
		return flowerr.MemoryExhausted("sortagg: spill create", err)
	}
	if total == 0 {
		// Nothing to write; still needs a mappable, non-empty file.
		total = 1
	}
	if err := f.Truncate(int64(total)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return flowerr.MemoryExhausted("sortagg: spill truncate", err)
	}
	mm, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return flowerr.MemoryExhausted("sortagg: spill mmap", err)
	}

	offset := 0
	chunk := a.cfg.SpillingChunkSize
	if chunk < 1 {
		chunk = total
	}
	written := 0
	for _, e := range ents {
		k, v, err := a.store.RecordAt(p, e.addr)
		if err != nil {
			mm.Unmap()
			f.Close()
			os.Remove(f.Name())
			return err
		}
		binary.BigEndian.PutUint64(mm[offset:], e.seq)
		offset += 8
		binary.BigEndian.PutUint32(mm[offset:], uint32(len(k)))
		offset += 4
		offset += copy(mm[offset:], k)
		binary.BigEndian.PutUint32(mm[offset:], uint32(len(v)))
		offset += 4
		offset += copy(mm[offset:], v)

		written += recordSize(k, v)
		if written >= chunk {
			if err := mm.Flush(); err != nil {
				mm.Unmap()
				f.Close()
				os.Remove(f.Name())
				return flowerr.MemoryExhausted("sortagg: spill flush", err)
			}
			written = 0
		}
	}

	a.spills[p] = &spillInfo{file: f, mm: mm}
	a.entries[p] = nil
	return nil
}

func (s *spillInfo) close() {
	if s == nil {
		return
	}
	s.mm.Unmap()
	name := s.file.Name()
	s.file.Close()
	os.Remove(name)
}
