package relevance

import (
	"math"

	"github.com/hupe1980/postings/internal/entry"
)

const (
	// K1 controls term frequency saturation.
	K1 = 1.2
	// B controls document length normalization.
	B = 0.75

	minRatio = 1e-9
)

// BM25 scores entries with Okapi BM25.
type BM25 struct {
	idf     float64
	stored  bool
	lengths DocumentLengths
	avgLen  float64

	freqs map[int64]uint8
	last  int64
	valid bool
}

var _ Scorer = (*BM25)(nil)

// BM25Option configures a BM25 scorer.
type BM25Option func(*BM25)

// WithDocumentLengths enables document length normalization.
func WithDocumentLengths(l DocumentLengths) BM25Option {
	return func(s *BM25) {
		s.lengths = l
	}
}

// WithoutFrequencies scores every match as if the term occurred once.
func WithoutFrequencies() BM25Option {
	return func(s *BM25) {
		s.stored = false
	}
}

// NewBM25 creates a scorer for a term matching the given fraction of all
// documents.
func NewBM25(ratio float64, opts ...BM25Option) *BM25 {
	s := &BM25{stored: true}
	for _, opt := range opts {
		opt(s)
	}
	var docs int64
	if s.lengths != nil {
		docs = s.lengths.DocumentCount()
		s.avgLen = s.lengths.AverageLength()
	}
	s.idf = IDF(ratio, docs)
	if s.stored {
		s.freqs = make(map[int64]uint8)
	}
	return s
}

// IDF returns log(1 + (N - n + 0.5) / (n + 0.5)) with n = ratio * N.
// Without a document count the smoothing terms are dropped.
func IDF(ratio float64, docs int64) float64 {
	ratio = math.Min(math.Max(ratio, minRatio), 1)
	if docs <= 0 {
		return math.Log(1 + (1-ratio)/ratio + minRatio)
	}
	n := ratio * float64(docs)
	return math.Log(1 + (float64(docs)-n+0.5)/(n+0.5))
}

// IDFValue returns the inverse document frequency used by the scorer.
func (s *BM25) IDFValue() float64 { return s.idf }

// IsStored implements Scorer.
func (s *BM25) IsStored() bool { return s.stored }

// Add implements Scorer.
func (s *BM25) Add(encoded int64) int64 {
	id, q := splitEncoded(encoded)
	if s.stored {
		s.freqs[id] = q
		s.last, s.valid = id, true
	}
	return id
}

// Process implements Scorer.
func (s *BM25) Process(buf []int64, n int) {
	if !s.stored {
		entry.DecodeAndDiscardFrequency(buf, n)
		return
	}
	for i := 0; i < n; i++ {
		id, q := splitEncoded(buf[i])
		s.freqs[id] = q
		buf[i] = id
	}
	s.valid = false
}

// Remove implements Scorer.
func (s *BM25) Remove() {
	if s.valid {
		delete(s.freqs, s.last)
		s.valid = false
	}
}

// Score implements Scorer.
func (s *BM25) Score(matches []int64, scores []float32, boost float32) {
	for i, id := range matches {
		tf := 1.0
		if s.stored {
			if q, ok := s.freqs[id]; ok && q > 0 {
				tf = float64(entry.DequantizeFrequency(q))
			}
		}
		norm := 1.0
		if s.lengths != nil && s.avgLen > 0 {
			if dl := s.lengths.Length(id); dl > 0 {
				norm = 1 - B + B*float64(dl)/s.avgLen
			}
		}
		w := s.idf * tf * (K1 + 1) / (tf + K1*norm)
		scores[i] += boost * float32(w)
	}
	s.reset()
}

// reset drops the frequencies captured for the scored batch.
func (s *BM25) reset() {
	if s.freqs != nil {
		clear(s.freqs)
	}
	s.valid = false
}

// Close implements Scorer.
func (s *BM25) Close() {
	s.freqs = nil
	s.valid = false
}

func splitEncoded(v int64) (int64, uint8) {
	return entry.DecodeEntryID(v), uint8(v)
}
