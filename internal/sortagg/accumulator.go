package sortagg

import "encoding/binary"

// IntSumAccumulator is the named fixture from the testable-properties
// scenario: a binstore.Accumulator that folds fixed-width big-endian int64
// values by addition. Values must be produced with EncodeInt64.
type IntSumAccumulator struct{}

// Combine implements binstore.Accumulator.
func (IntSumAccumulator) Combine(existing, next []byte) ([]byte, error) {
	return EncodeInt64(DecodeInt64(existing) + DecodeInt64(next)), nil
}

// EncodeInt64 packs v as 8 bytes big-endian, the wire format IntSumAccumulator
// expects for both its operands and its result.
func EncodeInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

// DecodeInt64 is EncodeInt64's inverse.
func DecodeInt64(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}
