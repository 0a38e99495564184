// Package binstore implements Binary Storage: key/value records packed
// into internal/memstore blocks, with a per-partition open-addressed hash
// index for O(1) amortized lookup and an optional per-key accumulator
// hook on insert. It generalizes the teacher repo's storage.Store
// interface (Get/Put/Delete over an in-memory map) and shard.Shard
// (per-partition ownership by consistent hashing, atomic op counters) onto
// off-heap, address-based storage: values here are (blockID, offset)
// slots rather than Go-heap byte slices, and "ownership" is partition
// index rather than shard ID.
package binstore

import (
	"encoding/binary"

	"github.com/dreamware/flowcore/internal/memstore"
)

// record is the packed on-disk-in-block layout:
//
//	keyLen(4) valueLen(4) key(keyLen) value(valueLen) nextSlot(8)
//
// nextSlot links same-bucket records into the hash index's collision
// chain (it is not a same-key version chain); see store.go for how
// accumulator updates splice this chain in place.
const nextSlotSize = 8 // blockID(4) + offset(4)

func encodeRecord(key, value []byte, next memstore.Addr) []byte {
	buf := make([]byte, 8+len(key)+len(value)+nextSlotSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(key)))
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(value)))
	n := 8
	n += copy(buf[n:], key)
	n += copy(buf[n:], value)
	encodeAddr(buf[n:n+nextSlotSize], next)
	return buf
}

func encodeAddr(dst []byte, a memstore.Addr) {
	binary.BigEndian.PutUint32(dst[0:4], a.BlockID)
	binary.BigEndian.PutUint32(dst[4:8], a.Offset)
}

func decodeAddr(src []byte) memstore.Addr {
	return memstore.Addr{
		BlockID: binary.BigEndian.Uint32(src[0:4]),
		Offset:  binary.BigEndian.Uint32(src[4:8]),
	}
}

// recordView is a decoded record plus the chain offsets needed to splice
// or update it in place.
type recordView struct {
	Key         []byte
	Value       []byte
	Next        memstore.Addr
	valueOffset uint32
	nextOffset  uint32
	blockID     uint32
}

func readRecord(chain *memstore.Chain, addr memstore.Addr) (recordView, error) {
	header, err := chain.ReadAt(addr, 8)
	if err != nil {
		return recordView{}, err
	}
	keyLen := binary.BigEndian.Uint32(header[0:4])
	valueLen := binary.BigEndian.Uint32(header[4:8])

	total := 8 + keyLen + valueLen + nextSlotSize
	full, err := chain.ReadAt(addr, total)
	if err != nil {
		return recordView{}, err
	}

	key := make([]byte, keyLen)
	copy(key, full[8:8+keyLen])
	value := make([]byte, valueLen)
	copy(value, full[8+keyLen:8+keyLen+valueLen])
	next := decodeAddr(full[8+keyLen+valueLen:])

	return recordView{
		Key:         key,
		Value:       value,
		Next:        next,
		valueOffset: addr.Offset + 8 + keyLen,
		nextOffset:  addr.Offset + 8 + keyLen + valueLen,
		blockID:     addr.BlockID,
	}, nil
}
