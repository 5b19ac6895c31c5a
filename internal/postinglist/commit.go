package postinglist

import (
	"fmt"
)

// PrepareForCommit applies all pending changes to the pages of the current
// write transaction. The caller persists State afterwards.
func (pl *PostingList) PrepareForCommit() error {
	if err := pl.checkWritable(); err != nil {
		return err
	}
	if !pl.HasPendingChanges() {
		return nil
	}

	adds := sortUnique(pl.additions)
	rems := subtract(sortUnique(pl.removals), adds)
	pl.additions, pl.removals = nil, nil

	for len(adds) > 0 || len(rems) > 0 {
		first, isAddition := nextPending(adds, rems)
		frame := pl.findPageFor(first)
		leaf := leafPage(frame.page.Data)
		base := Baseline(first)

		if leaf.count() > 0 && leaf.baseline() != base {
			if !isAddition {
				// no leaf holds this baseline here, so the entry cannot exist
				rems = rems[1:]
				continue
			}
			if err := pl.splitForBaseline(base); err != nil {
				return err
			}
			continue
		}
		if leaf.count() == 0 && !isAddition {
			rems = rems[1:]
			continue
		}

		limit, bounded := pl.nextParentLimit()
		if end, ok := baselineEnd(base); ok && (!bounded || end < limit) {
			limit, bounded = end, true
		}
		na := countBelow(adds, limit, bounded)
		nr := countBelow(rems, limit, bounded)
		if err := pl.updateLeaf(base, adds[:na], rems[:nr]); err != nil {
			return err
		}
		adds, rems = adds[na:], rems[nr:]
	}

	pl.stack.reset()
	pl.stats.Commits++
	return nil
}

func nextPending(adds, rems []int64) (int64, bool) {
	switch {
	case len(rems) == 0:
		return adds[0], true
	case len(adds) == 0:
		return rems[0], false
	case adds[0] < rems[0]:
		return adds[0], true
	default:
		return rems[0], false
	}
}

// splitForBaseline makes room for entries of a baseline different from the
// current leaf. A greater baseline gets a fresh leaf to the right; for a
// smaller one the existing entries move right and the current leaf is reset.
func (pl *PostingList) splitForBaseline(base int64) error {
	frame := pl.stack.top()
	old := leafPage(frame.page.Data)
	oldBaseline := old.baseline()

	p := pl.allocate()
	pl.state.LeafPages++
	pl.stats.LeafSplits++

	if base > oldBaseline {
		initLeaf(p.Data, base)
		return pl.insertSeparator(base, p.Number)
	}

	copy(p.Data, old)
	initLeaf(pl.modify(frame).Data, base)
	return pl.insertSeparator(oldBaseline, p.Number)
}

// updateLeaf applies a batch that falls entirely inside the current leaf.
func (pl *PostingList) updateLeaf(base int64, adds, rems []int64) error {
	frame := pl.stack.top()
	old := leafPage(frame.page.Data)

	values, err := old.appendValues(make([]int64, 0, old.count()+len(adds)))
	if err != nil {
		return err
	}
	merged := applyChanges(values, adds, rems)
	pl.state.NumberOfEntries += int64(len(merged) - len(values))

	leaf := leafPage(pl.modify(frame).Data)
	leaf.setBaseline(base)
	n := leaf.encode(merged)
	if n == 0 && len(merged) > 0 {
		return fmt.Errorf("%w: empty leaf cannot hold one entry", ErrConsistencyViolation)
	}
	if n < len(merged) {
		return pl.spill(base, merged[n:])
	}

	shrunk := len(merged) < len(values)
	if shrunk && pl.stack.depth() > 1 && leaf.used() < len(leaf)/2 {
		return pl.rebalanceLeaf()
	}
	return nil
}

// spill writes entries that did not fit into new leaves to the right.
func (pl *PostingList) spill(base int64, extras []int64) error {
	for len(extras) > 0 {
		p := pl.allocate()
		leaf := initLeaf(p.Data, base)
		n := leaf.encode(extras)
		if n == 0 {
			return fmt.Errorf("%w: new leaf accepted no entries", ErrConsistencyViolation)
		}
		pl.state.LeafPages++
		pl.stats.LeafSplits++
		if err := pl.insertSeparator(extras[0], p.Number); err != nil {
			return err
		}
		extras = extras[n:]
	}
	return nil
}

// insertSeparator links child into the tree right after the leaf currently
// covering key.
func (pl *PostingList) insertSeparator(key int64, child uint64) error {
	pl.findPageFor(key)
	return pl.addToParent(pl.stack.depth()-1, key, child)
}

// addToParent inserts (key, child) after the frame at level in its parent,
// splitting upward as needed.
func (pl *PostingList) addToParent(level int, key int64, child uint64) error {
	if level == 0 {
		pl.createRootPage()
		level = 1
	}
	parent := pl.stack.at(level - 1)
	b := branchPage(pl.modify(parent).Data)
	pos := parent.lastSearchPosition + 1
	if !b.isFull() {
		return b.insert(pos, key, child)
	}
	return pl.splitBranch(level-1, pos, key, child)
}

// createRootPage moves the root content to a new page and turns the root
// into a branch with that page as its only child.
func (pl *PostingList) createRootPage() {
	rootFrame := pl.stack.at(0)
	moved := pl.allocate()
	copy(moved.Data, rootFrame.page.Data)
	movedFrame := *rootFrame
	movedFrame.page = moved

	root := pl.modify(rootFrame)
	b := initBranch(root.Data)
	b.set(0, lowerKey, moved.Number)
	b.setCount(1)

	*rootFrame = movedFrame
	pl.stack.insertAt(0, cursorState{page: root, lastSearchPosition: 0})

	pl.state.BranchPages++
	pl.state.Depth++
	pl.stats.RootSplits++
}

// splitBranch inserts (key, child) at pos of the full branch at level.
// Appending at the end grows right with the last entry moved along, inserting
// right after the first entry grows left, anything else splits the page in
// half. Both halves keep at least two entries.
func (pl *PostingList) splitBranch(level, pos int, key int64, child uint64) error {
	frame := pl.stack.at(level)
	b := branchPage(frame.page.Data)
	n := b.count()

	rp := pl.allocate()
	right := initBranch(rp.Data)
	pl.state.BranchPages++
	pl.stats.BranchSplits++

	var err error
	switch {
	case pos == n:
		right.appendFrom(b, n-1, n)
		b.truncate(n - 1)
		err = right.insert(1, key, child)
	case pos == 1:
		right.appendFrom(b, 1, n)
		b.truncate(1)
		err = b.insert(1, key, child)
	default:
		mid := n / 2
		right.appendFrom(b, mid, n)
		b.truncate(mid)
		if pos <= mid {
			err = b.insert(pos, key, child)
		} else {
			err = right.insert(pos-mid, key, child)
		}
	}
	if err != nil {
		return err
	}
	return pl.addToParent(level, right.key(0), rp.Number)
}

// rebalanceLeaf runs after removals left the current leaf under half full.
func (pl *PostingList) rebalanceLeaf() error {
	level := pl.stack.depth() - 1
	frame := pl.stack.at(level)
	parentFrame := pl.stack.at(level - 1)
	leaf := leafPage(frame.page.Data)

	if leaf.count() == 0 {
		return pl.removeChild(level-1, parentFrame.lastSearchPosition)
	}

	parent := branchPage(parentFrame.page.Data)
	if parent.count() < 2 {
		return nil
	}
	pos := parentFrame.lastSearchPosition
	sib := pos - 1
	if pos == 0 {
		sib = 1
	}
	sibling := leafPage(pl.reader.GetPage(parent.child(sib)).Data)
	if !isLeaf(sibling) || (sibling.count() > 0 && sibling.baseline() != leaf.baseline()) {
		return nil
	}

	leftIdx, rightIdx := min(pos, sib), max(pos, sib)
	left, right := leaf, sibling
	if sib < pos {
		left, right = sibling, leaf
	}
	merged, err := left.appendValues(make([]int64, 0, left.count()+right.count()))
	if err != nil {
		return err
	}
	if merged, err = right.appendValues(merged); err != nil {
		return err
	}
	if encodedLeafSize(merged) > len(leaf)*3/4 {
		return nil
	}

	baseline := leaf.baseline()
	target := leafPage(pl.writer.ModifyPage(parent.child(leftIdx)).Data)
	target.setBaseline(baseline)
	if target.encode(merged) != len(merged) {
		return fmt.Errorf("%w: merged leaf overflow", ErrConsistencyViolation)
	}
	pl.stats.LeafMerges++
	return pl.removeChild(level-1, rightIdx)
}

// removeChild unlinks and frees child idx of the branch at level.
func (pl *PostingList) removeChild(level, idx int) error {
	frame := pl.stack.at(level)
	b := branchPage(pl.modify(frame).Data)
	child := b.child(idx)
	if isLeaf(pl.reader.GetPage(child).Data) {
		pl.state.LeafPages--
	} else {
		pl.state.BranchPages--
	}
	pl.free(child)
	b.remove(idx)
	return pl.rebalanceBranch(level)
}

// rebalanceBranch merges or collapses the branch at level after it lost an entry.
func (pl *PostingList) rebalanceBranch(level int) error {
	frame := pl.stack.at(level)
	b := branchPage(frame.page.Data)
	n := b.count()

	if level == 0 {
		return pl.collapseRoot()
	}
	if n == 0 {
		return pl.removeChild(level-1, pl.stack.at(level-1).lastSearchPosition)
	}
	if n > pl.minBranchEntriesBeforeMerge() {
		return nil
	}

	parentFrame := pl.stack.at(level - 1)
	parent := branchPage(parentFrame.page.Data)
	if parent.count() < 2 {
		return pl.rebalanceBranch(level - 1)
	}
	pos := parentFrame.lastSearchPosition
	sib := pos - 1
	if pos == 0 {
		sib = 1
	}
	sibling := branchPage(pl.reader.GetPage(parent.child(sib)).Data)
	if !isBranch(sibling) {
		return fmt.Errorf("%w: branch sibling at page %d is a leaf", ErrConsistencyViolation, parent.child(sib))
	}
	if n+sibling.count() > 2*pl.minBranchEntriesBeforeMerge() || n+sibling.count() > b.capacity() {
		if n < 2 {
			return pl.borrowBranchEntry(level, pos, sib)
		}
		return nil
	}

	leftIdx, rightIdx := min(pos, sib), max(pos, sib)
	left := branchPage(pl.writer.ModifyPage(parent.child(leftIdx)).Data)
	right := branchPage(pl.reader.GetPage(parent.child(rightIdx)).Data)
	start := left.count()
	left.appendFrom(right, 0, right.count())
	left.setKey(start, parent.key(rightIdx))

	pl.stats.BranchMerges++
	return pl.removeChild(level-1, rightIdx)
}

// borrowBranchEntry moves the adjacent entry of the sibling at sib into the
// single-entry branch at level and moves their separator in the parent.
func (pl *PostingList) borrowBranchEntry(level, pos, sib int) error {
	parentFrame := pl.stack.at(level - 1)
	parent := branchPage(pl.modify(parentFrame).Data)
	b := branchPage(pl.modify(pl.stack.at(level)).Data)
	sibling := branchPage(pl.writer.ModifyPage(parent.child(sib)).Data)
	if sibling.count() < 3 {
		return fmt.Errorf("%w: branch sibling has %d entries to lend", ErrConsistencyViolation, sibling.count())
	}

	if sib < pos {
		last := sibling.count() - 1
		sep := sibling.key(last)
		b.setKey(0, parent.key(pos))
		if err := b.insert(0, sep, sibling.child(last)); err != nil {
			return err
		}
		sibling.truncate(last)
		parent.setKey(pos, sep)
	} else {
		if err := b.insert(b.count(), parent.key(sib), sibling.child(0)); err != nil {
			return err
		}
		sibling.remove(0)
		parent.setKey(sib, sibling.key(0))
	}
	pl.stats.BranchBorrows++
	return nil
}

// collapseRoot replaces a root branch that has a single child by that child,
// or by an empty leaf when the last child is gone.
func (pl *PostingList) collapseRoot() error {
	for {
		frame := pl.stack.at(0)
		b := branchPage(frame.page.Data)
		switch b.count() {
		case 0:
			initLeaf(pl.modify(frame).Data, 0)
			pl.state.BranchPages--
			pl.state.LeafPages++
			pl.state.Depth = 1
			pl.stats.RootCollapses++
			return nil
		case 1:
			child := b.child(0)
			cp := pl.reader.GetPage(child)
			root := pl.modify(frame)
			copy(root.Data, cp.Data)
			pl.free(child)
			pl.state.BranchPages--
			pl.state.Depth--
			pl.stats.RootCollapses++
			if !isBranch(root.Data) {
				return nil
			}
		default:
			return nil
		}
	}
}
