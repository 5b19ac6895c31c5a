package postinglist

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/hupe1980/postings/internal/pager"
)

// Branch page layout:
//
//	[0]       flags
//	[2:4]     number of entries
//	[16:...]  entries: separator(8) child page(8)
//
// The separator of entry 0 is informational; lookups route every value below
// the separator of entry 1 to entry 0.
const (
	branchHeaderSize = 16
	branchEntrySize  = 16
)

type branchPage []byte

func initBranch(data []byte) branchPage {
	clear(data)
	b := branchPage(data)
	b[0] = byte(pager.FlagBranch)
	return b
}

func isBranch(data []byte) bool { return pager.Flags(data[0])&pager.FlagBranch != 0 }

func branchCapacity(pageSize int) int {
	return (pageSize - branchHeaderSize) / branchEntrySize
}

func (b branchPage) count() int { return int(binary.LittleEndian.Uint16(b[2:4])) }
func (b branchPage) setCount(n int) { binary.LittleEndian.PutUint16(b[2:4], uint16(n)) }
func (b branchPage) capacity() int { return branchCapacity(len(b)) }
func (b branchPage) isFull() bool { return b.count() >= b.capacity() }
func (b branchPage) offset(i int) int { return branchHeaderSize + i*branchEntrySize }

func (b branchPage) key(i int) int64 {
	off := b.offset(i)
	return int64(binary.LittleEndian.Uint64(b[off : off+8]))
}

func (b branchPage) child(i int) uint64 {
	off := b.offset(i)
	return binary.LittleEndian.Uint64(b[off+8 : off+16])
}

func (b branchPage) set(i int, key int64, child uint64) {
	off := b.offset(i)
	binary.LittleEndian.PutUint64(b[off:off+8], uint64(key))
	binary.LittleEndian.PutUint64(b[off+8:off+16], child)
}

func (b branchPage) setKey(i int, key int64) {
	off := b.offset(i)
	binary.LittleEndian.PutUint64(b[off:off+8], uint64(key))
}

// search returns the index of the child covering v.
func (b branchPage) search(v int64) int {
	n := b.count()
	// first index in [1, n) whose separator is greater than v
	i := sort.Search(n-1, func(i int) bool { return b.key(i+1) > v })
	return i
}

// lastMatch reports whether the separator at pos equals v.
func (b branchPage) lastMatch(pos int, v int64) bool {
	return pos > 0 && b.key(pos) == v
}

// insert places (key, child) at index i, shifting later entries.
func (b branchPage) insert(i int, key int64, child uint64) error {
	n := b.count()
	if n >= b.capacity() {
		return fmt.Errorf("%w: branch page full (%d entries)", ErrConsistencyViolation, n)
	}
	if i < 0 || i > n {
		return fmt.Errorf("%w: branch insert at %d of %d", ErrConsistencyViolation, i, n)
	}
	copy(b[b.offset(i+1):b.offset(n+1)], b[b.offset(i):b.offset(n)])
	b.set(i, key, child)
	b.setCount(n + 1)
	return nil
}

// remove deletes the entry at index i.
func (b branchPage) remove(i int) {
	n := b.count()
	copy(b[b.offset(i):b.offset(n-1)], b[b.offset(i+1):b.offset(n)])
	clear(b[b.offset(n-1):b.offset(n)])
	b.setCount(n - 1)
}

// truncate keeps the first n entries.
func (b branchPage) truncate(n int) {
	clear(b[b.offset(n):b.offset(b.count())])
	b.setCount(n)
}

// appendFrom copies entries [from, to) of src to the end of b.
func (b branchPage) appendFrom(src branchPage, from, to int) {
	n := b.count()
	copy(b[b.offset(n):], src[src.offset(from):src.offset(to)])
	b.setCount(n + to - from)
}

// lowerKey is the separator of entry 0 of a root page.
const lowerKey = math.MinInt64
