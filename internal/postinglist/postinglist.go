package postinglist

import (
	"fmt"
	"math"
	"slices"

	"github.com/hupe1980/postings/internal/pager"
)

// PostingList is a handle over one posting list inside a transaction.
// It is not safe for concurrent use.
type PostingList struct {
	reader pager.Reader
	writer pager.Writer // nil for read handles

	state     State
	additions []int64
	removals  []int64

	stack  cursor
	stats  Stats
	closed bool
}

// Create allocates an empty posting list and returns its state.
func Create(w pager.Writer) (State, error) {
	if w == nil {
		return State{}, fmt.Errorf("%w: nil writer", ErrInvalidArgument)
	}
	p := w.AllocatePage(1)
	initLeaf(p.Data, 0)
	return State{RootPage: p.Number, Depth: 1, LeafPages: 1}, nil
}

// Open returns a read handle.
func Open(r pager.Reader, state State) (*PostingList, error) {
	if r == nil || state.IsZero() {
		return nil, fmt.Errorf("%w: missing reader or root page", ErrInvalidArgument)
	}
	return &PostingList{reader: r, state: state, stack: newCursor()}, nil
}

// OpenWritable returns a handle that can buffer and commit changes.
func OpenWritable(w pager.Writer, state State) (*PostingList, error) {
	if w == nil || state.IsZero() {
		return nil, fmt.Errorf("%w: missing writer or root page", ErrInvalidArgument)
	}
	return &PostingList{reader: w, writer: w, state: state, stack: newCursor()}, nil
}

// State returns the current root record. It changes only in PrepareForCommit.
func (pl *PostingList) State() State { return pl.state }

// Count returns the number of committed entries.
func (pl *PostingList) Count() int64 { return pl.state.NumberOfEntries }

// Stats returns the structural counters of this handle.
func (pl *PostingList) Stats() Stats { return pl.stats }

// HasPendingChanges reports whether Add or Remove calls await PrepareForCommit.
func (pl *PostingList) HasPendingChanges() bool {
	return len(pl.additions) > 0 || len(pl.removals) > 0
}

func (pl *PostingList) checkWritable() error {
	if pl.closed {
		return ErrClosed
	}
	if pl.writer == nil {
		return ErrReadOnly
	}
	return nil
}

// Add buffers v for insertion.
func (pl *PostingList) Add(v int64) error {
	if err := pl.checkWritable(); err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("%w: negative value %d", ErrInvalidArgument, v)
	}
	pl.additions = append(pl.additions, v)
	return nil
}

// AddBatch buffers vs for insertion. Nothing is buffered if any value is negative.
func (pl *PostingList) AddBatch(vs []int64) error {
	if err := pl.checkWritable(); err != nil {
		return err
	}
	if err := checkNonNegative(vs); err != nil {
		return err
	}
	pl.additions = append(pl.additions, vs...)
	return nil
}

// Remove buffers v for deletion.
func (pl *PostingList) Remove(v int64) error {
	if err := pl.checkWritable(); err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("%w: negative value %d", ErrInvalidArgument, v)
	}
	pl.removals = append(pl.removals, v)
	return nil
}

// RemoveBatch buffers vs for deletion. Nothing is buffered if any value is negative.
func (pl *PostingList) RemoveBatch(vs []int64) error {
	if err := pl.checkWritable(); err != nil {
		return err
	}
	if err := checkNonNegative(vs); err != nil {
		return err
	}
	pl.removals = append(pl.removals, vs...)
	return nil
}

func checkNonNegative(vs []int64) error {
	for _, v := range vs {
		if v < 0 {
			return fmt.Errorf("%w: negative value %d", ErrInvalidArgument, v)
		}
	}
	return nil
}

// Close drops pending changes. The handle cannot be used afterwards.
func (pl *PostingList) Close() {
	pl.additions = nil
	pl.removals = nil
	pl.stack.reset()
	pl.closed = true
}

// Iterate returns an iterator positioned before the first entry.
func (pl *PostingList) Iterate() (*Iterator, error) {
	if pl.closed {
		return nil, ErrClosed
	}
	if pl.HasPendingChanges() {
		return nil, fmt.Errorf("%w: iterate with %d pending additions and %d pending removals",
			ErrPreconditionViolation, len(pl.additions), len(pl.removals))
	}
	return newIterator(pl.reader, pl.state.RootPage), nil
}

// Values returns every committed entry. Intended for debugging and tests.
func (pl *PostingList) Values() ([]int64, error) {
	it, err := pl.Iterate()
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, pl.state.NumberOfEntries)
	for it.MoveNext() {
		out = append(out, it.Current())
	}
	return out, it.Err()
}

// AllPages returns the numbers of every page owned by the list, root first.
func (pl *PostingList) AllPages() []uint64 {
	var pages []uint64
	var walk func(n uint64)
	walk = func(n uint64) {
		pages = append(pages, n)
		p := pl.reader.GetPage(n)
		if isBranch(p.Data) {
			b := branchPage(p.Data)
			for i := 0; i < b.count(); i++ {
				walk(b.child(i))
			}
		}
	}
	walk(pl.state.RootPage)
	return pages
}

// Release frees every page of the list and resets the state.
func (pl *PostingList) Release() error {
	if err := pl.checkWritable(); err != nil {
		return err
	}
	for _, n := range pl.AllPages() {
		pl.writer.FreePage(n)
		pl.stats.PagesFreed++
	}
	pl.additions = pl.additions[:0]
	pl.removals = pl.removals[:0]
	pl.state = State{}
	pl.stack.reset()
	return nil
}

// findPageFor descends from the root to the leaf covering v, recording the path.
func (pl *PostingList) findPageFor(v int64) *cursorState {
	pl.stack.reset()
	page := pl.reader.GetPage(pl.state.RootPage)
	for isBranch(page.Data) {
		b := branchPage(page.Data)
		pos := b.search(v)
		pl.stack.push(page, pos, b.lastMatch(pos, v))
		page = pl.reader.GetPage(b.child(pos))
	}
	pl.stack.push(page, 0, false)
	return pl.stack.top()
}

// nextParentLimit returns the smallest separator to the right of the current
// path, which bounds the values the current leaf may hold.
func (pl *PostingList) nextParentLimit() (int64, bool) {
	for level := pl.stack.depth() - 2; level >= 0; level-- {
		f := pl.stack.at(level)
		b := branchPage(f.page.Data)
		if f.lastSearchPosition+1 < b.count() {
			return b.key(f.lastSearchPosition + 1), true
		}
	}
	return math.MaxInt64, false
}

func (pl *PostingList) allocate() pager.Page {
	pl.stats.PagesAllocated++
	return pl.writer.AllocatePage(1)
}

func (pl *PostingList) free(n uint64) {
	pl.stats.PagesFreed++
	pl.writer.FreePage(n)
}

// modify makes the page of frame writable and refreshes the frame.
func (pl *PostingList) modify(f *cursorState) pager.Page {
	f.page = pl.writer.ModifyPage(f.page.Number)
	return f.page
}

func (pl *PostingList) minBranchEntriesBeforeMerge() int {
	n := branchCapacity(pl.reader.PageSize()) / 4
	if n < 2 {
		n = 2
	}
	return n
}

// sortUnique sorts vs in place and drops duplicates.
func sortUnique(vs []int64) []int64 {
	slices.Sort(vs)
	return slices.Compact(vs)
}

// subtract returns the values of a not present in b. Both must be sorted.
func subtract(a, b []int64) []int64 {
	if len(b) == 0 {
		return a
	}
	out := a[:0]
	j := 0
	for _, v := range a {
		for j < len(b) && b[j] < v {
			j++
		}
		if j < len(b) && b[j] == v {
			continue
		}
		out = append(out, v)
	}
	return out
}

// countBelow returns the number of leading values of sorted vs below limit.
func countBelow(vs []int64, limit int64, bounded bool) int {
	if !bounded {
		return len(vs)
	}
	i, _ := slices.BinarySearch(vs, limit)
	return i
}

// applyChanges merges additions into values and drops removals.
// All inputs are sorted and unique; additions and removals are disjoint.
func applyChanges(values, additions, removals []int64) []int64 {
	out := make([]int64, 0, len(values)+len(additions))
	i, j, r := 0, 0, 0
	for i < len(values) || j < len(additions) {
		var v int64
		switch {
		case j == len(additions) || (i < len(values) && values[i] < additions[j]):
			v = values[i]
			i++
		case i == len(values) || additions[j] < values[i]:
			v = additions[j]
			j++
		default:
			v = values[i]
			i++
			j++
		}
		for r < len(removals) && removals[r] < v {
			r++
		}
		if r < len(removals) && removals[r] == v {
			continue
		}
		out = append(out, v)
	}
	return out
}
