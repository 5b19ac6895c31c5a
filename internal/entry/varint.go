package entry

import (
	"encoding/binary"
	"errors"
)

// ErrCorruptVarint is returned when a varint stream is truncated or overflows.
var ErrCorruptVarint = errors.New("entry: corrupt varint")

// ZigZagEncode maps signed values onto unsigned ones so small magnitudes stay short.
func ZigZagEncode(v int64) uint64 {
	return uint64(v<<1) ^ uint64(v>>63)
}

// ZigZagDecode reverses ZigZagEncode.
func ZigZagDecode(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// AppendVarint appends the zig-zag varint encoding of v to dst.
func AppendVarint(dst []byte, v int64) []byte {
	return binary.AppendUvarint(dst, ZigZagEncode(v))
}

// VarintLen returns the encoded size of v in bytes.
func VarintLen(v int64) int {
	u := ZigZagEncode(v)
	n := 1
	for u >= 0x80 {
		u >>= 7
		n++
	}
	return n
}

// ReadVarint decodes one zig-zag varint starting at offset and returns the
// value with the number of bytes consumed. A zero length signals corruption.
func ReadVarint(buf []byte, offset int) (int64, int) {
	if offset >= len(buf) {
		return 0, 0
	}
	u, n := binary.Uvarint(buf[offset:])
	if n <= 0 {
		return 0, 0
	}
	return ZigZagDecode(u), n
}

// EncodeDeltas writes the count of values followed by the deltas between
// consecutive values (starting from zero). values must be ascending.
func EncodeDeltas(dst []byte, values []int64) []byte {
	dst = AppendVarint(dst, int64(len(values)))
	var prev int64
	for _, v := range values {
		dst = AppendVarint(dst, v-prev)
		prev = v
	}
	return dst
}

// DecodeDeltas decodes a sequence written by EncodeDeltas, appending to dst.
func DecodeDeltas(dst []int64, buf []byte) ([]int64, error) {
	count, off := ReadVarint(buf, 0)
	if off == 0 || count < 0 {
		return dst, ErrCorruptVarint
	}
	var cur int64
	for i := int64(0); i < count; i++ {
		d, n := ReadVarint(buf, off)
		if n == 0 {
			return dst, ErrCorruptVarint
		}
		off += n
		cur += d
		dst = append(dst, cur)
	}
	return dst, nil
}

// DeltaHeader returns the element count of a delta-encoded sequence and the
// offset of its first delta.
func DeltaHeader(buf []byte) (int64, int, error) {
	count, n := ReadVarint(buf, 0)
	if n == 0 || count < 0 {
		return 0, 0, ErrCorruptVarint
	}
	return count, n, nil
}
