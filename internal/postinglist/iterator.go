package postinglist

import (
	"github.com/hupe1980/postings/internal/pager"
)

// Iterator walks the entries of a posting list in ascending order.
// It is not safe for concurrent use.
type Iterator struct {
	reader pager.Reader
	root   uint64
	stack  cursor

	leaf     leafPage
	nextRun  int // offset of the next undecoded run
	runsLeft int

	run    [RunSize]int64
	runLen int
	runPos int

	current   int64
	exhausted bool
	err       error
}

func newIterator(r pager.Reader, root uint64) *Iterator {
	it := &Iterator{reader: r, root: root, stack: newCursor()}
	it.Seek(0)
	return it
}

// Err returns the first decoding error encountered.
func (it *Iterator) Err() error { return it.err }

// Current returns the entry produced by the last successful MoveNext.
func (it *Iterator) Current() int64 { return it.current }

// Seek positions the iterator before the smallest entry >= from.
func (it *Iterator) Seek(from int64) {
	it.stack.reset()
	it.exhausted = false
	it.err = nil

	page := it.reader.GetPage(it.root)
	for isBranch(page.Data) {
		b := branchPage(page.Data)
		pos := b.search(from)
		it.stack.push(page, pos, b.lastMatch(pos, from))
		page = it.reader.GetPage(b.child(pos))
	}
	it.stack.push(page, 0, false)
	it.loadLeaf(leafPage(page.Data))

	for {
		if !it.fillRun() {
			return
		}
		// skip whole runs ending below from
		if it.run[it.runLen-1] < from {
			it.runPos = it.runLen
			continue
		}
		for it.runPos < it.runLen && it.run[it.runPos] < from {
			it.runPos++
		}
		return
	}
}

func (it *Iterator) loadLeaf(l leafPage) {
	it.leaf = l
	it.nextRun = l.firstRunOffset()
	it.runsLeft = l.runs()
	it.runLen = 0
	it.runPos = 0
}

// fillRun makes sure a decoded value is available at runPos, moving to the
// next run or leaf as needed. It returns false when the list is exhausted.
func (it *Iterator) fillRun() bool {
	for it.runPos >= it.runLen {
		if it.exhausted {
			return false
		}
		if it.runsLeft > 0 {
			n, next, err := it.leaf.decodeRun(it.nextRun, &it.run)
			if err != nil {
				it.err = err
				it.exhausted = true
				return false
			}
			it.nextRun = next
			it.runsLeft--
			it.runLen, it.runPos = n, 0
			continue
		}
		if !it.nextLeaf() {
			it.exhausted = true
			return false
		}
	}
	return true
}

// nextLeaf pops exhausted frames, advances the parent and descends to the
// leftmost leaf of the next subtree.
func (it *Iterator) nextLeaf() bool {
	it.stack.pop()
	for {
		top := it.stack.top()
		if top == nil {
			return false
		}
		b := branchPage(top.page.Data)
		if top.lastSearchPosition+1 < b.count() {
			top.lastSearchPosition++
			top.lastMatch = false
			break
		}
		it.stack.pop()
	}
	top := it.stack.top()
	page := it.reader.GetPage(branchPage(top.page.Data).child(top.lastSearchPosition))
	for isBranch(page.Data) {
		it.stack.push(page, 0, false)
		page = it.reader.GetPage(branchPage(page.Data).child(0))
	}
	it.stack.push(page, 0, false)
	it.loadLeaf(leafPage(page.Data))
	return true
}

// MoveNext advances to the next entry.
func (it *Iterator) MoveNext() bool {
	if !it.fillRun() {
		return false
	}
	it.current = it.run[it.runPos]
	it.runPos++
	return true
}

// Fill copies entries into buf until it is full, the list ends, or the next
// entry is greater than pruneGreaterThan. pruned reports the last case; the
// entry that stopped the fill is not consumed.
func (it *Iterator) Fill(buf []int64, pruneGreaterThan int64) (n int, pruned bool) {
	for n < len(buf) {
		if !it.fillRun() {
			return n, false
		}
		avail := it.run[it.runPos:it.runLen]
		if avail[len(avail)-1] <= pruneGreaterThan {
			c := copy(buf[n:], avail)
			n += c
			it.runPos += c
			continue
		}
		for _, v := range avail {
			if v > pruneGreaterThan {
				if n > 0 {
					it.current = buf[n-1]
				}
				return n, true
			}
			if n == len(buf) {
				break
			}
			buf[n] = v
			n++
			it.runPos++
		}
	}
	if n > 0 {
		it.current = buf[n-1]
	}
	return n, false
}

// Exhausted reports whether the iterator has passed the last entry.
func (it *Iterator) Exhausted() bool {
	return it.exhausted
}
