package relevance

import (
	"math"
	"testing"

	"github.com/hupe1980/postings/internal/entry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedLengths struct {
	lengths map[int64]int
	avg     float64
	docs    int64
}

func (f fixedLengths) Length(id int64) int { return f.lengths[id] }
func (f fixedLengths) AverageLength() float64 { return f.avg }
func (f fixedLengths) DocumentCount() int64 { return f.docs }

func TestIDF(t *testing.T) {
	assert.InDelta(t, math.Log(1+(100-10+0.5)/(10+0.5)), IDF(0.1, 100), 1e-9)
	assert.Greater(t, IDF(0.01, 0), IDF(0.5, 0))
	assert.False(t, math.IsInf(IDF(0, 0), 0))
	assert.GreaterOrEqual(t, IDF(1, 10), 0.0)
}

func TestBM25AddRemoveScore(t *testing.T) {
	s := NewBM25(0.1)
	require.True(t, s.IsStored())

	assert.Equal(t, int64(3), s.Add(entry.Encode(3, 1)))
	assert.Equal(t, int64(7), s.Add(entry.Encode(7, 5)))
	assert.Equal(t, int64(9), s.Add(entry.Encode(9, 2)))
	s.Remove()

	scores := make([]float32, 2)
	s.Score([]int64{3, 7}, scores, 1)
	assert.Greater(t, scores[1], scores[0])
	assert.Greater(t, scores[0], float32(0))

	// scores accumulate and boost scales
	before := scores[0]
	s.Add(entry.Encode(3, 1))
	s.Score([]int64{3}, scores[:1], 2)
	assert.InDelta(t, 3*before, scores[0], 1e-5)
}

func TestBM25ScoreDropsCapturedBatch(t *testing.T) {
	s := NewBM25(0.1)
	buf := []int64{entry.Encode(1, 9), entry.Encode(2, 9)}
	s.Process(buf, len(buf))

	first := make([]float32, 2)
	s.Score(buf, first, 1)
	assert.Empty(t, s.freqs)

	// the next batch scores with its own frequencies only
	s.Add(entry.Encode(3, 9))
	again := make([]float32, 3)
	s.Score([]int64{1, 2, 3}, again, 1)
	assert.Less(t, again[0], first[0])
	assert.InDelta(t, first[0], again[2], 1e-6)
	assert.Empty(t, s.freqs)
}

func TestBM25Process(t *testing.T) {
	s := NewBM25(0.2)
	buf := []int64{entry.Encode(1, 1), entry.Encode(2, 9), entry.Encode(4, 3)}
	s.Process(buf, len(buf))
	assert.Equal(t, []int64{1, 2, 4}, buf)

	scores := make([]float32, 3)
	s.Score(buf, scores, 1)
	assert.Greater(t, scores[1], scores[2])
	assert.Greater(t, scores[2], scores[0])
}

func TestBM25WithoutFrequencies(t *testing.T) {
	s := NewBM25(0.2, WithoutFrequencies())
	assert.False(t, s.IsStored())

	buf := []int64{entry.Encode(1, 1), entry.Encode(2, 9)}
	s.Process(buf, 2)
	assert.Equal(t, []int64{1, 2}, buf)

	scores := make([]float32, 2)
	s.Score(buf, scores, 1)
	assert.Equal(t, scores[0], scores[1])
	s.Close()
}

func TestBM25LengthNormalization(t *testing.T) {
	lengths := fixedLengths{lengths: map[int64]int{1: 5, 2: 50}, avg: 10, docs: 100}
	s := NewBM25(0.05, WithDocumentLengths(lengths))
	s.Add(entry.Encode(1, 2))
	s.Add(entry.Encode(2, 2))

	scores := make([]float32, 2)
	s.Score([]int64{1, 2}, scores, 1)
	assert.Greater(t, scores[0], scores[1])
	assert.InDelta(t, IDF(0.05, 100), s.IDFValue(), 1e-12)
}
