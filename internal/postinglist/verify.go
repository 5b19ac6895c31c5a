package postinglist

import (
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/bits-and-blooms/bitset"
)

// Verify walks the whole tree and checks its structural invariants: entries
// ascend across leaves and stay inside their separator ranges, every leaf
// holds a single baseline and fits its page, branches respect their capacity
// and hold at least two entries below the root, all leaves sit at State.Depth
// and the page and entry counts match State.
func (pl *PostingList) Verify() error {
	if pl.closed {
		return ErrClosed
	}
	v := &verifier{
		pl:      pl,
		visited: bitset.New(64),
		prev:    -1,
	}
	if err := v.walk(pl.state.RootPage, 1, math.MinInt64, math.MaxInt64, false); err != nil {
		return err
	}

	s := pl.state
	switch {
	case v.entries != s.NumberOfEntries:
		return v.fail("entry count %d, state says %d", v.entries, s.NumberOfEntries)
	case v.leaves != s.LeafPages:
		return v.fail("leaf pages %d, state says %d", v.leaves, s.LeafPages)
	case v.branches != s.BranchPages:
		return v.fail("branch pages %d, state says %d", v.branches, s.BranchPages)
	}
	return nil
}

type verifier struct {
	pl       *PostingList
	visited  *bitset.BitSet
	prev     int64
	entries  int64
	leaves   int64
	branches int64
}

func (v *verifier) fail(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConsistencyViolation, fmt.Sprintf(format, args...))
}

// walk checks the subtree at page n whose values must lie in [lo, hi), or
// [lo, +inf) when bounded is false.
func (v *verifier) walk(n uint64, depth int, lo, hi int64, bounded bool) error {
	if v.visited.Test(uint(n)) {
		return v.fail("page %d reachable twice", n)
	}
	v.visited.Set(uint(n))

	page := v.pl.reader.GetPage(n)
	if isBranch(page.Data) {
		v.branches++
		b := branchPage(page.Data)
		count := b.count()
		if count == 0 || count > b.capacity() {
			return v.fail("branch %d has %d entries (capacity %d)", n, count, b.capacity())
		}
		if count < 2 && n != v.pl.state.RootPage {
			return v.fail("non-root branch %d has a single entry", n)
		}
		for i := 0; i < count; i++ {
			clo := lo
			if i > 0 {
				clo = b.key(i)
				if clo < lo || (bounded && clo >= hi) {
					return v.fail("branch %d separator %d outside [%d, %d)", n, clo, lo, hi)
				}
				if i > 1 && b.key(i-1) >= clo {
					return v.fail("branch %d separators not ascending at %d", n, i)
				}
			}
			chi, cbounded := hi, bounded
			if i+1 < count {
				chi, cbounded = b.key(i+1), true
			}
			if err := v.walk(b.child(i), depth+1, clo, chi, cbounded); err != nil {
				return err
			}
		}
		return nil
	}

	if !isLeaf(page.Data) {
		return v.fail("page %d is neither leaf nor branch", n)
	}
	v.leaves++
	if depth != v.pl.state.Depth {
		return v.fail("leaf %d at depth %d, tree depth %d", n, depth, v.pl.state.Depth)
	}
	leaf := leafPage(page.Data)
	if leaf.used() > len(leaf) {
		return v.fail("leaf %d uses %d of %d bytes", n, leaf.used(), len(leaf))
	}
	if leaf.count() == 0 && n != v.pl.state.RootPage {
		return v.fail("non-root leaf %d is empty", n)
	}
	values, err := leaf.appendValues(nil)
	if err != nil {
		return err
	}
	if len(values) != leaf.count() {
		return v.fail("leaf %d decodes %d entries, header says %d", n, len(values), leaf.count())
	}
	for _, x := range values {
		if Baseline(x) != leaf.baseline() {
			return v.fail("leaf %d mixes baselines (%d vs %d)", n, Baseline(x), leaf.baseline())
		}
		if x <= v.prev {
			return v.fail("entry %d out of order after %d", x, v.prev)
		}
		if x < lo || (bounded && x >= hi) {
			return v.fail("entry %d in leaf %d outside [%d, %d)", x, n, lo, hi)
		}
		v.prev = x
	}
	v.entries += int64(len(values))
	return nil
}

// Bitmap returns the committed entries as a roaring64 bitmap.
func (pl *PostingList) Bitmap() (*roaring64.Bitmap, error) {
	it, err := pl.Iterate()
	if err != nil {
		return nil, err
	}
	bm := roaring64.New()
	buf := make([]int64, RunSize*8)
	ids := make([]uint64, len(buf))
	for {
		n, _ := it.Fill(buf, math.MaxInt64)
		if n == 0 {
			break
		}
		for i, x := range buf[:n] {
			ids[i] = uint64(x)
		}
		bm.AddMany(ids[:n])
	}
	return bm, it.Err()
}
