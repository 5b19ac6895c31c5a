package postinglist

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hupe1980/postings/internal/entry"
	"github.com/hupe1980/postings/internal/pager"
)

// Leaf page layout:
//
//	[0]      flags
//	[2:4]    number of runs
//	[4:8]    bytes used, header included
//	[8:16]   baseline
//	[16:20]  number of entries
//	[24:...] runs: count(1) length(2) varints(length)
const (
	leafHeaderSize = 24
	runHeaderSize  = 3

	// RunSize is the maximum number of entries per compressed run.
	RunSize = 32

	deltaBits = 31
	deltaMask = int64(1)<<deltaBits - 1

	// baselineSpan is the width of the value range sharing one baseline.
	baselineSpan = int64(1) << deltaBits
)

// Baseline returns the high 33 bits shared by all entries of one leaf.
func Baseline(v int64) int64 { return v &^ deltaMask }

// baselineEnd returns the exclusive end of the baseline range and false when
// the range extends to math.MaxInt64.
func baselineEnd(baseline int64) (int64, bool) {
	if baseline > math.MaxInt64-baselineSpan {
		return 0, false
	}
	return baseline + baselineSpan, true
}

type leafPage []byte

func initLeaf(data []byte, baseline int64) leafPage {
	clear(data)
	l := leafPage(data)
	l[0] = byte(pager.FlagLeaf)
	l.setUsed(leafHeaderSize)
	l.setBaseline(baseline)
	return l
}

func isLeaf(data []byte) bool { return pager.Flags(data[0])&pager.FlagLeaf != 0 }

func (l leafPage) runs() int { return int(binary.LittleEndian.Uint16(l[2:4])) }
func (l leafPage) setRuns(n int) { binary.LittleEndian.PutUint16(l[2:4], uint16(n)) }
func (l leafPage) used() int { return int(binary.LittleEndian.Uint32(l[4:8])) }
func (l leafPage) setUsed(n int) { binary.LittleEndian.PutUint32(l[4:8], uint32(n)) }
func (l leafPage) baseline() int64 { return int64(binary.LittleEndian.Uint64(l[8:16])) }
func (l leafPage) setBaseline(b int64) { binary.LittleEndian.PutUint64(l[8:16], uint64(b)) }
func (l leafPage) count() int { return int(binary.LittleEndian.Uint32(l[16:20])) }
func (l leafPage) setCount(n int) { binary.LittleEndian.PutUint32(l[16:20], uint32(n)) }
func (l leafPage) firstRunOffset() int { return leafHeaderSize }

// decodeRun decodes the run starting at off into dst and returns the number
// of values and the offset of the next run.
func (l leafPage) decodeRun(off int, dst *[RunSize]int64) (int, int, error) {
	if off+runHeaderSize > l.used() {
		return 0, 0, fmt.Errorf("%w: run header at %d beyond leaf end", ErrConsistencyViolation, off)
	}
	n := int(l[off])
	length := int(binary.LittleEndian.Uint16(l[off+1 : off+3]))
	pos := off + runHeaderSize
	end := pos + length
	if n == 0 || n > RunSize || end > l.used() {
		return 0, 0, fmt.Errorf("%w: malformed run at %d", ErrConsistencyViolation, off)
	}
	baseline := l.baseline()
	var prev int64
	for i := 0; i < n; i++ {
		d, k := entry.ReadVarint(l[:end], pos)
		if k == 0 {
			return 0, 0, fmt.Errorf("%w: %w at %d", ErrConsistencyViolation, entry.ErrCorruptVarint, pos)
		}
		pos += k
		prev += d
		dst[i] = baseline | prev
	}
	return n, end, nil
}

// appendValues decodes every entry of the leaf and appends it to dst.
func (l leafPage) appendValues(dst []int64) ([]int64, error) {
	var run [RunSize]int64
	off := l.firstRunOffset()
	for r := 0; r < l.runs(); r++ {
		n, next, err := l.decodeRun(off, &run)
		if err != nil {
			return dst, err
		}
		dst = append(dst, run[:n]...)
		off = next
	}
	return dst, nil
}

// encode rewrites the leaf with values, all sharing the leaf baseline, and
// returns how many fit.
func (l leafPage) encode(values []int64) int {
	baseline := l.baseline()
	initLeaf(l, baseline)

	off := leafHeaderSize
	runs, written := 0, 0
	for written < len(values) && off+runHeaderSize < len(l) {
		start := off + runHeaderSize
		pos := start
		n := 0
		var prev int64
		for n < RunSize && written < len(values) {
			low := values[written] & deltaMask
			u := entry.ZigZagEncode(low - prev)
			if pos+uvarintLen(u) > len(l) {
				break
			}
			pos += binary.PutUvarint(l[pos:], u)
			prev = low
			n++
			written++
		}
		if n == 0 {
			break
		}
		l[off] = byte(n)
		binary.LittleEndian.PutUint16(l[off+1:off+3], uint16(pos-start))
		off = pos
		runs++
	}
	l.setRuns(runs)
	l.setUsed(off)
	l.setCount(written)
	return written
}

// encodedLeafSize returns the bytes a leaf holding values would use,
// ignoring the page size.
func encodedLeafSize(values []int64) int {
	size := leafHeaderSize
	for i := 0; i < len(values); i += RunSize {
		size += runHeaderSize
		var prev int64
		for j := i; j < len(values) && j < i+RunSize; j++ {
			low := values[j] & deltaMask
			size += uvarintLen(entry.ZigZagEncode(low - prev))
			prev = low
		}
	}
	return size
}

// firstValue returns the smallest entry of a non-empty leaf without decoding a run.
func (l leafPage) firstValue() int64 {
	d, _ := entry.ReadVarint(l, leafHeaderSize+runHeaderSize)
	return l.baseline() | d
}

func uvarintLen(u uint64) int {
	n := 1
	for u >= 0x80 {
		u >>= 7
		n++
	}
	return n
}
