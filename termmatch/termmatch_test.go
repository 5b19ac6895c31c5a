package termmatch

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/hupe1980/postings/internal/entry"
	"github.com/hupe1980/postings/internal/pager"
	"github.com/hupe1980/postings/internal/postinglist"
	"github.com/hupe1980/postings/relevance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeAll(ids []int64) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = entry.Encode(id, int(id%7)+1)
	}
	return out
}

func newList(t *testing.T, ids []int64) *postinglist.PostingList {
	t.Helper()
	s, err := pager.New(pager.MinPageSize)
	require.NoError(t, err)
	tx, err := s.BeginWrite()
	require.NoError(t, err)
	state, err := postinglist.Create(tx)
	require.NoError(t, err)
	pl, err := postinglist.OpenWritable(tx, state)
	require.NoError(t, err)
	require.NoError(t, pl.AddBatch(encodeAll(ids)))
	require.NoError(t, pl.PrepareForCommit())
	snap, err := tx.Commit()
	require.NoError(t, err)

	ro, err := postinglist.Open(snap, pl.State())
	require.NoError(t, err)
	return ro
}

func newSmall(t *testing.T, ids []int64) *TermMatch {
	t.Helper()
	m, err := NewSmall(entry.EncodeDeltas(nil, encodeAll(ids)), 0.1, nil)
	require.NoError(t, err)
	return m
}

func sequence(n int, step int64) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i+1) * step
	}
	return out
}

func drain(m *TermMatch, size int) ([]int64, []int) {
	buf := make([]int64, size)
	var all []int64
	var batches []int
	for {
		n := m.Fill(buf)
		batches = append(batches, n)
		if n == 0 {
			return all, batches
		}
		all = append(all, buf[:n]...)
	}
}

func TestEmpty(t *testing.T) {
	m := NewEmpty()
	buf := []int64{1, 2, 3}
	assert.Zero(t, m.Fill(buf))
	assert.Zero(t, m.AndWith(buf, 3))
	assert.Zero(t, m.Count())
	assert.Equal(t, Exhausted, m.State())
	assert.Equal(t, "TermMatch [Empty]", m.Inspect().Name)
}

func TestSingle(t *testing.T) {
	m := NewSingle(entry.Encode(7, 2), 0.01, nil)

	buf := []int64{3, 7, 9}
	require.Equal(t, 1, m.AndWith(buf, 3))
	assert.Equal(t, int64(7), buf[0])

	// AndWith is stateless
	buf = []int64{3, 7, 9}
	assert.Equal(t, 1, m.AndWith(buf, 3))
	buf = []int64{3, 8, 9}
	assert.Zero(t, m.AndWith(buf, 3))

	all, batches := drain(m, 4)
	assert.Equal(t, []int64{7}, all)
	assert.Equal(t, []int{1, 0}, batches)
	assert.Zero(t, m.Fill(make([]int64, 4)))
	assert.Equal(t, int64(1), m.Count())
}

func TestFillBatchesAcrossVariants(t *testing.T) {
	ids := sequence(16, 3)

	small := newSmall(t, ids)
	set, err := NewSet(newList(t, ids), 0.1, nil, true)
	require.NoError(t, err)

	for _, m := range []*TermMatch{small, set} {
		all, batches := drain(m, 12)
		assert.Equal(t, ids, all, m.Kind().String())
		assert.Equal(t, []int{12, 4, 0}, batches, m.Kind().String())
		assert.Equal(t, Exhausted, m.State())
		assert.Zero(t, m.Fill(make([]int64, 12)))
		assert.Equal(t, int64(16), m.Count())
	}
}

func TestSmallAndWithRescans(t *testing.T) {
	m := newSmall(t, []int64{2, 4, 6, 8, 10})

	buf := []int64{1, 4, 5, 10, 11}
	require.Equal(t, 2, m.AndWith(buf, 5))
	assert.Equal(t, []int64{4, 10}, buf[:2])

	buf = []int64{2, 3}
	require.Equal(t, 1, m.AndWith(buf, 2))
	assert.Equal(t, int64(2), buf[0])
}

func TestNewSmallRejectsCorruptBlob(t *testing.T) {
	_, err := NewSmall(nil, 0, nil)
	require.ErrorIs(t, err, entry.ErrCorruptVarint)
}

func TestSetAndWithScalarMatchesBlocks(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 10; round++ {
		universe := int64(20_000 + round*5_000)
		postings := randomIDs(rng, 2_000+rng.Intn(10_000), universe)
		candidates := randomIDs(rng, 1+rng.Intn(6_000), universe)
		want := intersect(postings, candidates)

		list := newList(t, postings)
		scalar, err := NewSet(list, 0.1, nil, false)
		require.NoError(t, err)
		blocks, err := NewSet(list, 0.1, nil, true)
		require.NoError(t, err)

		buf := slices.Clone(candidates)
		n := scalar.AndWith(buf, len(buf))
		assert.Equal(t, want, nilIfEmpty(buf[:n]), "scalar round %d", round)

		buf = slices.Clone(candidates)
		n = blocks.AndWith(buf, len(buf))
		assert.Equal(t, want, nilIfEmpty(buf[:n]), "blocks round %d", round)

		small := newSmall(t, postings)
		buf = slices.Clone(candidates)
		n = small.AndWith(buf, len(buf))
		assert.Equal(t, want, nilIfEmpty(buf[:n]), "small round %d", round)
	}
}

func TestSetAndWithBeyondLastEntry(t *testing.T) {
	for _, accelerated := range []bool{false, true} {
		m, err := NewSet(newList(t, sequence(100, 2)), 0.1, nil, accelerated)
		require.NoError(t, err)

		buf := []int64{1, 2, 197, 198, 199}
		require.Equal(t, 2, m.AndWith(buf, 5))
		assert.Equal(t, []int64{2, 198}, buf[:2])
		assert.Equal(t, Active, m.State())

		buf = []int64{1_000, 2_000}
		assert.Zero(t, m.AndWith(buf, 2))
		assert.Equal(t, Exhausted, m.State())

		buf = []int64{3_000}
		assert.Zero(t, m.AndWith(buf, 1))
		assert.Zero(t, m.Fill(make([]int64, 8)))
	}
}

func TestSetAndWithStateTransitions(t *testing.T) {
	ids := sequence(16, 3) // 3, 6, ..., 48

	for _, accelerated := range []bool{false, true} {
		m, err := NewSet(newList(t, ids), 0.1, nil, accelerated)
		require.NoError(t, err)
		require.Equal(t, Initial, m.State())

		buf := []int64{3, 6, 9}
		require.Equal(t, 3, m.AndWith(buf, 3))
		assert.Equal(t, []int64{3, 6, 9}, buf[:3])
		assert.Equal(t, Active, m.State(), "accelerated=%t", accelerated)

		buf = []int64{10, 12, 15, 40}
		require.Equal(t, 2, m.AndWith(buf, 4))
		assert.Equal(t, []int64{12, 15}, buf[:2])
		assert.Equal(t, Active, m.State(), "accelerated=%t", accelerated)

		buf = []int64{45, 48, 50}
		require.Equal(t, 2, m.AndWith(buf, 3))
		assert.Equal(t, []int64{45, 48}, buf[:2])
		assert.Equal(t, Exhausted, m.State(), "accelerated=%t", accelerated)

		buf = []int64{60, 63}
		assert.Zero(t, m.AndWith(buf, 2))
	}
}

func TestSetAndWithAfterFillExhausted(t *testing.T) {
	ids := sequence(16, 3)

	for _, accelerated := range []bool{false, true} {
		m, err := NewSet(newList(t, ids), 0.1, nil, accelerated)
		require.NoError(t, err)

		buf := []int64{3, 6, 9}
		require.Equal(t, 3, m.AndWith(buf, 3))

		drain(m, 8)
		require.Equal(t, Exhausted, m.State())

		buf = []int64{30, 33, 36}
		assert.Zero(t, m.AndWith(buf, 3), "accelerated=%t", accelerated)
	}
}

func TestSmallAndWithKeepsFill(t *testing.T) {
	m := newSmall(t, []int64{2, 4, 6})

	buf := []int64{4}
	require.Equal(t, 1, m.AndWith(buf, 1))
	assert.Equal(t, Active, m.State())

	all, _ := drain(m, 8)
	assert.Equal(t, []int64{2, 4, 6}, all)
	assert.Equal(t, Exhausted, m.State())
	assert.Zero(t, m.AndWith([]int64{4}, 1))
}

func TestScoring(t *testing.T) {
	ids := sequence(40, 5)
	list := newList(t, ids)

	scorer := relevance.NewBM25(0.2)
	m, err := NewSet(list, 0.2, scorer, true)
	require.NoError(t, err)
	assert.True(t, m.IsBoosting())

	buf := []int64{5, 10, 11, 200}
	n := m.AndWith(buf, len(buf))
	require.Equal(t, 3, n)

	scores := make([]float32, n)
	m.Score(buf[:n], scores, 1)
	for _, s := range scores {
		assert.Greater(t, s, float32(0))
	}
	m.Close()

	plain, err := NewSet(list, 0.2, nil, false)
	require.NoError(t, err)
	scores = make([]float32, n)
	plain.Score(buf[:n], scores, 1)
	assert.Equal(t, []float32{0, 0, 0}, scores)
}

func TestScalarScoringRejectsNonMatches(t *testing.T) {
	ids := []int64{1, 2, 3}
	scorer := relevance.NewBM25(0.5)
	m, err := NewSet(newList(t, ids), 0.5, scorer, false)
	require.NoError(t, err)

	buf := []int64{2}
	require.Equal(t, 1, m.AndWith(buf, 1))
	scores := make([]float32, 1)
	m.Score(buf[:1], scores, 1)
	assert.Greater(t, scores[0], float32(0))
}

func TestInspect(t *testing.T) {
	m, err := NewSet(newList(t, sequence(10, 1)), 0.1, relevance.NewBM25(0.1), true)
	require.NoError(t, err)

	node := m.Inspect()
	assert.Equal(t, "TermMatch [Set]", node.Name)
	assert.Equal(t, "true", node.Parameters["IsBoosting"])
	assert.Equal(t, "10", node.Parameters["Count"])
	assert.Equal(t, "High", node.Parameters["Confidence"])
	assert.Contains(t, node.String(), "Accelerated: true")

	data, err := node.JSON(nil)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name":"TermMatch [Set]"`)

	assert.Equal(t, "TermMatch [Once]", NewSingle(1, 0, nil).Inspect().Name)
	assert.Equal(t, "TermMatch [SmallSet]", newSmall(t, []int64{1}).Inspect().Name)
	assert.Contains(t, m.String(), "count=10")
}

func randomIDs(rng *rand.Rand, n int, universe int64) []int64 {
	seen := make(map[int64]struct{}, n)
	out := make([]int64, 0, n)
	for len(out) < n {
		v := rng.Int63n(universe)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

func intersect(a, b []int64) []int64 {
	var out []int64
	for _, v := range b {
		if _, ok := slices.BinarySearch(a, v); ok {
			out = append(out, v)
		}
	}
	return out
}

func nilIfEmpty(s []int64) []int64 {
	if len(s) == 0 {
		return nil
	}
	return s
}
