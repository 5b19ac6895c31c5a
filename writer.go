package postings

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/hupe1980/postings/internal/container"
	"github.com/hupe1980/postings/internal/entry"
	"github.com/hupe1980/postings/internal/pager"
	"github.com/hupe1980/postings/internal/postinglist"
	"github.com/hupe1980/postings/termmatch"
)

// termChanges buffers the changes of one term. An id present in both maps is
// added: additions win over removals of the same commit.
type termChanges struct {
	adds    map[int64]int // id -> frequency
	removes map[int64]struct{}
}

// Writer buffers changes and applies them atomically on Commit.
// It is not safe for concurrent use.
type Writer struct {
	idx     *Index
	tx      *pager.WriteTx
	base    *version
	changes map[string]*termChanges
	docs    map[int64]int // id -> length, -1 deletes
	stats   CommitStats
	done    bool
}

func (w *Writer) check(term string, id int64) error {
	if w.done {
		return ErrClosed
	}
	if term == "" {
		return fmt.Errorf("%w: empty term", ErrInvalidArgument)
	}
	if id < 0 || id > entry.MaxEntryID {
		return fmt.Errorf("%w: entry id %d out of range", ErrInvalidArgument, id)
	}
	return nil
}

func (w *Writer) term(term string) *termChanges {
	ch, ok := w.changes[term]
	if !ok {
		ch = &termChanges{adds: make(map[int64]int), removes: make(map[int64]struct{})}
		w.changes[term] = ch
	}
	return ch
}

// Add records that term occurs frequency times in document id. Adding an id
// that is already posted replaces its frequency.
func (w *Writer) Add(term string, id int64, frequency int) error {
	if err := w.check(term, id); err != nil {
		return err
	}
	if frequency < 0 {
		return fmt.Errorf("%w: negative frequency %d", ErrInvalidArgument, frequency)
	}
	if !w.idx.opts.frequencies {
		frequency = 0
	}
	w.term(term).adds[id] = frequency
	if n, ok := w.docs[id]; (ok && n < 0) || (!ok && !w.base.docs.contains(id)) {
		w.docs[id] = 0
	}
	return nil
}

// Remove records that document id no longer contains term.
func (w *Writer) Remove(term string, id int64) error {
	if err := w.check(term, id); err != nil {
		return err
	}
	w.term(term).removes[id] = struct{}{}
	return nil
}

// IndexDocument adds every term of a document with its frequency and records
// the document length, the sum of the frequencies.
func (w *Writer) IndexDocument(id int64, terms map[string]int) error {
	length := 0
	for term, freq := range terms {
		if err := w.Add(term, id, freq); err != nil {
			return err
		}
		length += max(freq, 1)
	}
	w.docs[id] = length
	return nil
}

// DeleteDocument removes document id from the given terms and forgets its
// length.
func (w *Writer) DeleteDocument(id int64, terms ...string) error {
	for _, term := range terms {
		if err := w.Remove(term, id); err != nil {
			return err
		}
	}
	if w.done {
		return ErrClosed
	}
	if id < 0 {
		return fmt.Errorf("%w: entry id %d out of range", ErrInvalidArgument, id)
	}
	w.docs[id] = -1
	return nil
}

// Stats returns the statistics of the last Commit.
func (w *Writer) Stats() CommitStats { return w.stats }

// Rollback discards the buffered changes and releases the writer.
// Calling it after Commit is a no-op.
func (w *Writer) Rollback() {
	if w.done {
		return
	}
	w.tx.Rollback()
	w.finish()
}

func (w *Writer) finish() {
	w.done = true
	w.changes = nil
	w.docs = nil
	w.idx.writeMu.Release(1)
}

// Commit applies every buffered change, selects the representation of each
// touched term and publishes the new version. On error nothing is published.
func (w *Writer) Commit(ctx context.Context) (err error) {
	if w.done {
		return ErrClosed
	}
	start := time.Now()
	var txID uint64
	defer func() {
		w.idx.metrics.RecordCommit(w.stats, time.Since(start), err)
		w.idx.logger.LogCommit(ctx, txID, w.stats, err)
	}()

	terms := maps.Clone(w.base.terms)
	if terms == nil {
		terms = make(map[string]TermInfo, len(w.changes))
	}
	for _, name := range slices.Sorted(maps.Keys(w.changes)) {
		if err := ctx.Err(); err != nil {
			w.Rollback()
			return err
		}
		if err := w.apply(terms, name, w.changes[name]); err != nil {
			w.Rollback()
			return translateError(fmt.Errorf("term %q: %w", name, err))
		}
	}
	docs := w.base.docs.apply(w.docs)

	txStats := w.tx.Stats()
	w.stats.PagesAllocated = int64(txStats.Allocated)
	w.stats.PagesFreed = int64(txStats.Freed)

	snap, err := w.tx.Commit()
	if err != nil {
		w.finish()
		return translateError(err)
	}
	txID = snap.TxID()
	w.idx.publish(&version{snap: snap, terms: terms, docs: docs})
	w.finish()
	return nil
}

// apply resolves the changes of one term against its committed postings and
// stores the result in the representation its new cardinality calls for.
func (w *Writer) apply(terms map[string]TermInfo, name string, ch *termChanges) error {
	w.stats.Terms++
	info, exists := terms[name]
	if !exists {
		info = TermInfo{Kind: termmatch.Empty}
	}

	var removes []int64
	for id := range ch.removes {
		if _, added := ch.adds[id]; !added {
			removes = append(removes, id)
		}
	}
	slices.Sort(removes)

	var values []int64
	if info.Kind == termmatch.Set {
		demoted, done, err := w.applySet(terms, name, info, ch.adds, removes)
		if done || err != nil {
			return err
		}
		values = demoted
	} else {
		var err error
		if values, err = w.inlineValues(info); err != nil {
			return err
		}
	}

	values = w.merge(values, ch.adds, removes)
	return w.store(terms, name, info, values)
}

// applySet updates a posting list in place and reports done. When the list
// would hold at most one entry or shrink below half the small set threshold
// it is released instead and its committed postings are returned for the
// inline path, which drops or demotes the term.
func (w *Writer) applySet(terms map[string]TermInfo, name string, info TermInfo, adds map[int64]int, removes []int64) ([]int64, bool, error) {
	pl, err := postinglist.OpenWritable(w.tx, info.State)
	if err != nil {
		return nil, false, err
	}
	defer pl.Close()

	existing, err := lookup(pl, adds, removes)
	if err != nil {
		return nil, false, err
	}

	var toAdd, toRemove []int64
	var added, removed int64
	for _, id := range removes {
		if v, ok := existing[id]; ok {
			toRemove = append(toRemove, v)
			removed++
		}
	}
	for id, freq := range adds {
		v := entry.Encode(id, freq)
		old, ok := existing[id]
		switch {
		case !ok:
			toAdd = append(toAdd, v)
			added++
		case old != v:
			toRemove = append(toRemove, old)
			toAdd = append(toAdd, v)
		}
	}

	count := info.Count + added - removed
	if count <= 1 || count < int64(w.idx.opts.smallSetThreshold/2) {
		values, err := pl.Values()
		if err != nil {
			return nil, false, err
		}
		if err := pl.Release(); err != nil {
			return nil, false, err
		}
		w.collect(pl)
		return values, false, nil
	}

	if err := pl.RemoveBatch(toRemove); err != nil {
		return nil, false, err
	}
	if err := pl.AddBatch(toAdd); err != nil {
		return nil, false, err
	}
	if err := pl.PrepareForCommit(); err != nil {
		return nil, false, err
	}
	w.collect(pl)
	if pl.Count() != count {
		return nil, false, fmt.Errorf("%w: expected %d entries, list holds %d", ErrConsistencyViolation, count, pl.Count())
	}
	w.stats.Added += added
	w.stats.Removed += removed
	info.Count = pl.Count()
	info.State = pl.State()
	terms[name] = info
	return nil, true, nil
}

// lookup returns the committed encoded posting of every id in adds and
// removes that the list holds.
func lookup(pl *postinglist.PostingList, adds map[int64]int, removes []int64) (map[int64]int64, error) {
	ids := make([]int64, 0, len(adds)+len(removes))
	for id := range adds {
		ids = append(ids, id)
	}
	ids = append(ids, removes...)
	slices.Sort(ids)

	it, err := pl.Iterate()
	if err != nil {
		return nil, err
	}
	found := make(map[int64]int64)
	for _, id := range ids {
		it.Seek(entry.SeekKey(id))
		if it.MoveNext() && entry.DecodeEntryID(it.Current()) == id {
			found[id] = it.Current()
		}
	}
	return found, it.Err()
}

func (w *Writer) collect(pl *postinglist.PostingList) {
	st := pl.Stats()
	w.stats.Splits += st.LeafSplits + st.BranchSplits + st.RootSplits
	w.stats.Merges += st.LeafMerges + st.BranchMerges + st.RootCollapses
}

// inlineValues returns the encoded postings of a Single or Small term.
func (w *Writer) inlineValues(info TermInfo) ([]int64, error) {
	switch info.Kind {
	case termmatch.Single:
		return []int64{info.Single}, nil
	case termmatch.Small:
		blob, err := container.Get(w.tx, info.Container)
		if err != nil {
			return nil, err
		}
		values, err := entry.DecodeDeltas(make([]int64, 0, info.Count), blob)
		if err != nil {
			return nil, fmt.Errorf("small set %d: %w", info.Container, err)
		}
		return values, nil
	default:
		return nil, nil
	}
}

// merge applies id level changes to encoded postings sorted by id.
func (w *Writer) merge(values []int64, adds map[int64]int, removes []int64) []int64 {
	byID := make(map[int64]int64, len(values)+len(adds))
	for _, v := range values {
		byID[entry.DecodeEntryID(v)] = v
	}
	for _, id := range removes {
		if _, ok := byID[id]; ok {
			delete(byID, id)
			w.stats.Removed++
		}
	}
	for id, freq := range adds {
		if _, ok := byID[id]; !ok {
			w.stats.Added++
		}
		byID[id] = entry.Encode(id, freq)
	}
	return slices.Sorted(maps.Values(byID))
}

// store writes values in the representation for their cardinality and frees
// what the previous representation no longer needs. A Set info has already
// been released by applySet.
func (w *Writer) store(terms map[string]TermInfo, name string, old TermInfo, values []int64) error {
	next := TermInfo{Count: int64(len(values))}
	switch n := len(values); {
	case n == 0:
		next.Kind = termmatch.Empty
	case n == 1:
		next.Kind = termmatch.Single
		next.Single = values[0]
	case n <= w.idx.opts.smallSetThreshold:
		next.Kind = termmatch.Small
	default:
		next.Kind = termmatch.Set
	}

	if old.Kind == termmatch.Small && next.Kind != termmatch.Small {
		if err := container.Delete(w.tx, old.Container); err != nil {
			return err
		}
	}

	switch next.Kind {
	case termmatch.Small:
		blob := entry.EncodeDeltas(nil, values)
		if old.Kind == termmatch.Small {
			id, err := container.Update(w.tx, old.Container, blob)
			if err != nil {
				return err
			}
			next.Container = id
		} else {
			next.Container = container.Allocate(w.tx, blob)
		}
	case termmatch.Set:
		state, err := postinglist.Create(w.tx)
		if err != nil {
			return err
		}
		pl, err := postinglist.OpenWritable(w.tx, state)
		if err != nil {
			return err
		}
		defer pl.Close()
		if err := pl.AddBatch(values); err != nil {
			return err
		}
		if err := pl.PrepareForCommit(); err != nil {
			return err
		}
		w.collect(pl)
		next.State = pl.State()
	}

	switch {
	case next.Kind == termmatch.Empty:
		delete(terms, name)
		if old.Kind != termmatch.Empty {
			w.stats.Dropped++
		}
		return nil
	case old.Kind != termmatch.Empty && next.Kind > old.Kind:
		w.stats.Promoted++
	case next.Kind < old.Kind:
		w.stats.Demoted++
	}
	terms[name] = next
	return nil
}
