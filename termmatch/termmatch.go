package termmatch

import (
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/hupe1980/postings/internal/entry"
	"github.com/hupe1980/postings/internal/postinglist"
	"github.com/hupe1980/postings/internal/scratch"
	"github.com/hupe1980/postings/internal/simd"
	"github.com/hupe1980/postings/relevance"
)

// BlockSize is the number of posting entries decoded per step of the
// block-wise intersection.
const BlockSize = 4096

// Kind identifies the representation behind a TermMatch.
type Kind uint8

const (
	// Empty matches nothing.
	Empty Kind = iota
	// Single matches exactly one entry.
	Single
	// Small matches the entries of an inline varint blob.
	Small
	// Set matches the entries of a posting list.
	Set
)

func (k Kind) String() string {
	switch k {
	case Empty:
		return "Empty"
	case Single:
		return "Once"
	case Small:
		return "SmallSet"
	case Set:
		return "Set"
	default:
		return "Unknown"
	}
}

// State is the lifecycle position of a match.
type State uint8

const (
	// Initial means neither Fill nor AndWith has run yet.
	Initial State = iota
	// Active means Fill or AndWith has run and may produce more.
	Active
	// Exhausted means Fill and AndWith return 0 from now on.
	Exhausted
)

// TermMatch streams the entry ids of one term.
type TermMatch struct {
	kind        Kind
	count       int64
	ratio       float64
	scorer      relevance.Scorer
	accelerated bool
	state       State

	// Single
	value int64

	// Single and Small
	remaining int64

	// Small
	blob   []byte
	offset int
	prev   int64

	// Set
	list *postinglist.PostingList
	it   *postinglist.Iterator

	fill    func(m *TermMatch, buf []int64) int
	andWith func(m *TermMatch, buf []int64, n int) int
}

// NewEmpty returns a match without entries.
func NewEmpty() *TermMatch {
	return &TermMatch{
		kind:    Empty,
		state:   Exhausted,
		fill:    func(*TermMatch, []int64) int { return 0 },
		andWith: func(*TermMatch, []int64, int) int { return 0 },
	}
}

// NewSingle returns a match over one encoded posting entry.
func NewSingle(value int64, ratio float64, scorer relevance.Scorer) *TermMatch {
	return &TermMatch{
		kind:      Single,
		count:     1,
		ratio:     ratio,
		scorer:    scorer,
		value:     value,
		remaining: 1,
		fill:      fillSingle,
		andWith:   andWithSingle,
	}
}

// NewSmall returns a match over a delta-encoded blob of posting entries.
func NewSmall(blob []byte, ratio float64, scorer relevance.Scorer) (*TermMatch, error) {
	count, off, err := entry.DeltaHeader(blob)
	if err != nil {
		return nil, fmt.Errorf("termmatch: small set header: %w", err)
	}
	return &TermMatch{
		kind:      Small,
		count:     count,
		ratio:     ratio,
		scorer:    scorer,
		blob:      blob,
		offset:    off,
		remaining: count,
		fill:      fillSmall,
		andWith:   andWithSmall,
	}, nil
}

// NewSet returns a match over a posting list. accelerated selects the
// block-wise intersection.
func NewSet(list *postinglist.PostingList, ratio float64, scorer relevance.Scorer, accelerated bool) (*TermMatch, error) {
	it, err := list.Iterate()
	if err != nil {
		return nil, err
	}
	m := &TermMatch{
		kind:        Set,
		count:       list.Count(),
		ratio:       ratio,
		scorer:      scorer,
		accelerated: accelerated,
		list:        list,
		it:          it,
		fill:        fillSet,
		andWith:     andWithSetScalar,
	}
	if accelerated {
		m.andWith = andWithSetBlocks
	}
	return m, nil
}

// Kind returns the representation of the match.
func (m *TermMatch) Kind() Kind { return m.kind }

// State returns the lifecycle state of Fill.
func (m *TermMatch) State() State { return m.state }

// Count returns the exact number of entries.
func (m *TermMatch) Count() int64 { return m.count }

// Ratio returns the fraction of documents the term matches.
func (m *TermMatch) Ratio() float64 { return m.ratio }

// Confidence returns High: every variant knows its exact count.
func (m *TermMatch) Confidence() Confidence { return High }

// IsBoosting reports whether matches are scored.
func (m *TermMatch) IsBoosting() bool { return m.scorer != nil }

// Fill writes the next entry ids into buf and returns how many were written.
// It returns 0 once the match is exhausted.
func (m *TermMatch) Fill(buf []int64) int {
	if m.state == Exhausted || len(buf) == 0 {
		return 0
	}
	n := m.fill(m, buf)
	if n == 0 {
		m.state = Exhausted
	} else {
		m.state = Active
	}
	return n
}

// AndWith keeps the ids of buf[:n] that the term matches, compacted to the
// front of buf, and returns their number. buf[:n] must be sorted and unique.
// For a Set, candidates of successive calls must be strictly increasing; the
// match moves to Exhausted once its posting list is passed. Single and Small
// rescan on every call.
func (m *TermMatch) AndWith(buf []int64, n int) int {
	if m.state == Exhausted || n <= 0 {
		return 0
	}
	m.state = Active
	return m.andWith(m, buf, n)
}

// Score adds the relevance of each match to scores when boosting.
func (m *TermMatch) Score(matches []int64, scores []float32, boost float32) {
	if m.scorer == nil {
		return
	}
	m.scorer.Score(matches, scores, boost)
}

// Close releases the scorer state.
func (m *TermMatch) Close() {
	if m.scorer != nil {
		m.scorer.Close()
	}
}

// Inspect describes the match.
func (m *TermMatch) Inspect() InspectionNode {
	params := map[string]string{
		"IsBoosting": strconv.FormatBool(m.IsBoosting()),
		"Count":      strconv.FormatInt(m.count, 10),
		"Confidence": m.Confidence().String(),
	}
	if m.kind == Set {
		params["Accelerated"] = strconv.FormatBool(m.accelerated)
	}
	return InspectionNode{
		Name:       "TermMatch [" + m.kind.String() + "]",
		Parameters: params,
	}
}

func (m *TermMatch) String() string {
	return fmt.Sprintf("TermMatch [%s] count=%d boosting=%t", m.kind, m.count, m.IsBoosting())
}

// record hands one encoded entry to the scorer and returns its id.
func (m *TermMatch) record(v int64) int64 {
	if m.scorer != nil {
		return m.scorer.Add(v)
	}
	return entry.DecodeEntryID(v)
}

// reject forgets the last recorded entry.
func (m *TermMatch) reject() {
	if m.scorer != nil {
		m.scorer.Remove()
	}
}

// decode rewrites buf[:n] from encoded entries to ids.
func (m *TermMatch) decode(buf []int64, n int) {
	if m.scorer != nil && m.scorer.IsStored() {
		m.scorer.Process(buf, n)
		return
	}
	entry.DecodeAndDiscardFrequency(buf, n)
}

func fillSingle(m *TermMatch, buf []int64) int {
	if m.remaining == 0 {
		return 0
	}
	m.remaining = 0
	buf[0] = m.record(m.value)
	return 1
}

func andWithSingle(m *TermMatch, buf []int64, n int) int {
	id := entry.DecodeEntryID(m.value)
	if _, found := slices.BinarySearch(buf[:n], id); !found {
		return 0
	}
	buf[0] = m.record(m.value)
	return 1
}

func fillSmall(m *TermMatch, buf []int64) int {
	i := 0
	for i < len(buf) && m.remaining > 0 {
		d, k := entry.ReadVarint(m.blob, m.offset)
		if k == 0 {
			// truncated blob, stop here
			m.remaining = 0
			break
		}
		m.offset += k
		m.remaining--
		m.prev += d
		buf[i] = m.record(m.prev)
		i++
	}
	return i
}

func andWithSmall(m *TermMatch, buf []int64, n int) int {
	count, off, err := entry.DeltaHeader(m.blob)
	if err != nil {
		return 0
	}
	var cur int64
	i, w := 0, 0
	for ; count > 0 && i < n; count-- {
		d, k := entry.ReadVarint(m.blob, off)
		if k == 0 {
			break
		}
		off += k
		cur += d
		id := m.record(cur)
		for i < n && buf[i] < id {
			i++
		}
		if i < n && buf[i] == id {
			buf[w] = id
			w++
			i++
			continue
		}
		m.reject()
	}
	return w
}

func fillSet(m *TermMatch, buf []int64) int {
	n, _ := m.it.Fill(buf, math.MaxInt64)
	if n > 0 {
		m.decode(buf, n)
	}
	return n
}

// seek repositions the match's iterator at the first entry of id.
func (m *TermMatch) seek(id int64) *postinglist.Iterator {
	m.it.Seek(entry.SeekKey(id))
	return m.it
}

// settle moves the match to Exhausted once its iterator has run out.
func (m *TermMatch) settle(w int) int {
	if m.it.Exhausted() {
		m.state = Exhausted
	}
	return w
}

func andWithSetScalar(m *TermMatch, buf []int64, n int) int {
	it := m.seek(buf[0])
	i, w := 0, 0
	for i < n && it.MoveNext() {
		id := m.record(it.Current())
		for i < n && buf[i] < id {
			i++
		}
		if i < n && buf[i] == id {
			buf[w] = id
			w++
			i++
			continue
		}
		m.reject()
	}
	return m.settle(w)
}

func andWithSetBlocks(m *TermMatch, buf []int64, n int) int {
	it := m.seek(buf[0])
	block, release := scratch.Get(BlockSize)
	defer release()

	prune := entry.PruneKey(buf[n-1])
	in, w := 0, 0
	for in < n {
		k, _ := it.Fill(block, prune)
		if k == 0 {
			break
		}
		m.decode(block, k)

		var consumed, written int
		if n-in > simd.Lanes && k > simd.Lanes {
			consumed, written = simd.AndBlock(buf[w:], buf[in:n], block[:k])
		} else {
			consumed, written = simd.AndBlockScalar(buf[w:], buf[in:n], block[:k])
		}
		in += consumed
		w += written
		if k < len(block) {
			break
		}
	}
	return m.settle(w)
}
