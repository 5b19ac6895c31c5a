package postings

import (
	"maps"

	"github.com/hupe1980/postings/relevance"
)

// docLengths is the immutable per-version table of document lengths.
// A document registered through Writer.Add without IndexDocument has
// length 0, which disables length normalization for it.
type docLengths struct {
	lengths map[int64]int32
	total   int64
}

var _ relevance.DocumentLengths = (*docLengths)(nil)

func newDocLengths() *docLengths {
	return &docLengths{lengths: make(map[int64]int32)}
}

// Length implements relevance.DocumentLengths.
func (d *docLengths) Length(id int64) int { return int(d.lengths[id]) }

// AverageLength implements relevance.DocumentLengths.
func (d *docLengths) AverageLength() float64 {
	if len(d.lengths) == 0 {
		return 0
	}
	return float64(d.total) / float64(len(d.lengths))
}

// DocumentCount implements relevance.DocumentLengths.
func (d *docLengths) DocumentCount() int64 { return int64(len(d.lengths)) }

func (d *docLengths) contains(id int64) bool {
	_, ok := d.lengths[id]
	return ok
}

// apply returns a copy with changes applied. Negative lengths delete.
func (d *docLengths) apply(changes map[int64]int) *docLengths {
	if len(changes) == 0 {
		return d
	}
	out := &docLengths{lengths: maps.Clone(d.lengths), total: d.total}
	if out.lengths == nil {
		out.lengths = make(map[int64]int32, len(changes))
	}
	for id, n := range changes {
		if old, ok := out.lengths[id]; ok {
			out.total -= int64(old)
			delete(out.lengths, id)
		}
		if n >= 0 {
			out.lengths[id] = int32(min(n, 1<<31-1))
			out.total += int64(out.lengths[id])
		}
	}
	return out
}
