package entry

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	for _, tc := range []struct {
		id   int64
		freq int
	}{
		{0, 0}, {1, 1}, {42, 15}, {1 << 40, 3}, {MaxEntryID, 7},
	} {
		v := Encode(tc.id, tc.freq)
		assert.GreaterOrEqual(t, v, int64(0))
		id, freq := Decode(v)
		assert.Equal(t, tc.id, id)
		assert.Equal(t, tc.freq, freq)
		assert.Equal(t, tc.id, DecodeEntryID(v))
	}
}

func TestEncodePreservesEntryOrder(t *testing.T) {
	freqs := []int{0, 1, 17, 255, 4096, MaxFrequency, MaxFrequency * 4}
	var values []int64
	for id := int64(0); id < 50; id++ {
		values = append(values, Encode(id, freqs[int(id)%len(freqs)]))
	}
	assert.True(t, sort.SliceIsSorted(values, func(i, j int) bool { return values[i] < values[j] }))

	// Any two frequencies for neighbouring ids keep the order.
	for _, lo := range freqs {
		for _, hi := range freqs {
			assert.Less(t, Encode(10, lo), Encode(11, hi))
		}
	}
}

func TestQuantizeFrequencyMonotonic(t *testing.T) {
	prev := -1
	for f := 0; f < 100000; f += 7 {
		d := DequantizeFrequency(QuantizeFrequency(f))
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, f)
		prev = d
	}
	assert.Equal(t, MaxFrequency, DequantizeFrequency(QuantizeFrequency(MaxFrequency+100)))
	assert.Equal(t, 0, DequantizeFrequency(QuantizeFrequency(-3)))
}

func TestDecodeAndDiscardFrequency(t *testing.T) {
	buf := []int64{Encode(1, 3), Encode(2, 0), Encode(3, 9), Encode(4, 20), Encode(5, 1), 99}
	DecodeAndDiscardFrequency(buf, 5)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 99}, buf)
}

func TestSeekAndPruneKeys(t *testing.T) {
	assert.Equal(t, int64(0), SeekKey(-1))
	assert.Equal(t, Encode(7, 0), SeekKey(7))
	assert.Equal(t, Encode(7, MaxFrequency), PruneKey(7))
	assert.Less(t, PruneKey(7), SeekKey(8))
	assert.Greater(t, PruneKey(MaxEntryID), int64(0))
}

func TestVarintRoundTrip(t *testing.T) {
	var buf []byte
	values := []int64{0, 1, -1, 63, -64, 64, 1 << 20, -(1 << 40), MaxEntryID}
	for _, v := range values {
		buf = AppendVarint(buf, v)
	}
	off := 0
	for _, want := range values {
		got, n := ReadVarint(buf, off)
		require.NotZero(t, n)
		assert.Equal(t, want, got)
		assert.Equal(t, VarintLen(want), n)
		off += n
	}
	_, n := ReadVarint(buf, off)
	assert.Zero(t, n)
}

func TestDeltaSequence(t *testing.T) {
	values := []int64{3, 5, 6, 1000, 1001, 1 << 33}
	buf := EncodeDeltas(nil, values)

	count, off, err := DeltaHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(values)), count)
	assert.Equal(t, 1, off)

	out, err := DecodeDeltas(nil, buf)
	require.NoError(t, err)
	assert.Equal(t, values, out)

	_, err = DecodeDeltas(nil, buf[:len(buf)-2])
	assert.ErrorIs(t, err, ErrCorruptVarint)
}
