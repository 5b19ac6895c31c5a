package entry

import "math/bits"

const (
	// FrequencyBits is the number of low bits reserved for the quantized frequency.
	FrequencyBits = 8

	frequencyMask = 1<<FrequencyBits - 1

	// MaxEntryID is the largest entry id that still encodes to a non-negative int64.
	MaxEntryID = int64(1)<<(63-FrequencyBits) - 1

	// MaxFrequency is the largest frequency representable without saturation.
	MaxFrequency = 31 << 14
)

// Encode packs an entry id and its term frequency into one sortable value.
// Frequencies outside [0, MaxFrequency] saturate.
func Encode(entryID int64, frequency int) int64 {
	return entryID<<FrequencyBits | int64(QuantizeFrequency(frequency))
}

// Decode splits an encoded value into the entry id and the (dequantized) frequency.
func Decode(v int64) (int64, int) {
	return v >> FrequencyBits, DequantizeFrequency(uint8(v & frequencyMask))
}

// DecodeEntryID returns the entry id of an encoded value.
func DecodeEntryID(v int64) int64 {
	return v >> FrequencyBits
}

// DecodeAndDiscardFrequency rewrites buf[:n] in place, keeping only entry ids.
func DecodeAndDiscardFrequency(buf []int64, n int) {
	buf = buf[:n]
	i := 0
	for ; i+4 <= len(buf); i += 4 {
		buf[i] >>= FrequencyBits
		buf[i+1] >>= FrequencyBits
		buf[i+2] >>= FrequencyBits
		buf[i+3] >>= FrequencyBits
	}
	for ; i < len(buf); i++ {
		buf[i] >>= FrequencyBits
	}
}

// SeekKey returns the smallest encoded value carrying entryID.
func SeekKey(entryID int64) int64 {
	if entryID <= 0 {
		return 0
	}
	return entryID << FrequencyBits
}

// PruneKey returns the largest encoded value carrying entryID.
func PruneKey(entryID int64) int64 {
	if entryID >= MaxEntryID {
		return int64(^uint64(0) >> 1)
	}
	return entryID<<FrequencyBits | frequencyMask
}

// QuantizeFrequency maps a frequency onto 8 bits: values below 16 are exact,
// larger values keep a 4-bit mantissa and a 4-bit exponent.
func QuantizeFrequency(frequency int) uint8 {
	if frequency <= 0 {
		return 0
	}
	if frequency < 16 {
		return uint8(frequency)
	}
	if frequency > MaxFrequency {
		frequency = MaxFrequency
	}
	// e such that frequency >> (e-1) lies in [16, 32)
	e := bits.Len(uint(frequency)) - 4
	m := frequency>>(e-1) - 16
	return uint8(e<<4 | m)
}

// DequantizeFrequency returns the lower bound of the quantization bucket.
func DequantizeFrequency(q uint8) int {
	e := int(q >> 4)
	m := int(q & 0x0F)
	if e == 0 {
		return m
	}
	return (16 + m) << (e - 1)
}
