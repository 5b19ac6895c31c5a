package postings_test

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/postings"
	"github.com/hupe1980/postings/termmatch"
	"github.com/hupe1980/postings/testutil"
)

func openIndex(t *testing.T, opts ...postings.Option) *postings.Index {
	t.Helper()
	idx, err := postings.Open(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func commit(t *testing.T, idx *postings.Index, fn func(w *postings.Writer)) postings.CommitStats {
	t.Helper()
	ctx := context.Background()
	w, err := idx.Writer(ctx)
	require.NoError(t, err)
	fn(w)
	require.NoError(t, w.Commit(ctx))
	return w.Stats()
}

func and(t *testing.T, idx *postings.Index, terms ...string) []int64 {
	t.Helper()
	s, err := idx.Searcher()
	require.NoError(t, err)
	ids, err := s.And(context.Background(), terms...)
	require.NoError(t, err)
	return ids
}

func TestAddAcrossCommits(t *testing.T) {
	idx := openIndex(t)

	commit(t, idx, func(w *postings.Writer) {
		require.NoError(t, w.Add("go", 10, 1))
		require.NoError(t, w.Add("go", 5, 1))
	})
	commit(t, idx, func(w *postings.Writer) {
		require.NoError(t, w.Add("go", 20, 1))
		require.NoError(t, w.Add("go", 5, 1))
	})

	assert.Equal(t, []int64{5, 10, 20}, and(t, idx, "go"))
	info, ok := idx.TermInfo("go")
	require.True(t, ok)
	assert.Equal(t, termmatch.Small, info.Kind)
	assert.Equal(t, int64(3), info.Count)
}

func TestRepresentationTransitions(t *testing.T) {
	idx := openIndex(t)
	kind := func() termmatch.Kind {
		info, ok := idx.TermInfo("t")
		if !ok {
			return termmatch.Empty
		}
		return info.Kind
	}
	add := func(from, to int64) postings.CommitStats {
		return commit(t, idx, func(w *postings.Writer) {
			for id := from; id <= to; id++ {
				require.NoError(t, w.Add("t", id, 1))
			}
		})
	}
	remove := func(from, to int64) postings.CommitStats {
		return commit(t, idx, func(w *postings.Writer) {
			for id := from; id <= to; id++ {
				require.NoError(t, w.Remove("t", id))
			}
		})
	}

	add(1, 1)
	assert.Equal(t, termmatch.Single, kind())

	st := add(2, 64)
	assert.Equal(t, termmatch.Small, kind())
	assert.Equal(t, 1, st.Promoted)

	st = add(65, 65)
	assert.Equal(t, termmatch.Set, kind())
	assert.Equal(t, 1, st.Promoted)

	// stays a set until it drops below half the threshold
	remove(1, 30)
	assert.Equal(t, termmatch.Set, kind())
	st = remove(31, 34)
	assert.Equal(t, termmatch.Small, kind())
	assert.Equal(t, 1, st.Demoted)
	assert.Positive(t, st.PagesFreed)

	remove(35, 64)
	assert.Equal(t, termmatch.Single, kind())
	assert.Equal(t, []int64{65}, and(t, idx, "t"))

	st = remove(65, 65)
	assert.Equal(t, termmatch.Empty, kind())
	assert.Equal(t, 1, st.Dropped)
	assert.Zero(t, idx.Stats().Terms)
}

func TestEmptiedSetIsDropped(t *testing.T) {
	idx := openIndex(t, postings.WithSmallSetThreshold(1))

	commit(t, idx, func(w *postings.Writer) {
		for id := int64(1); id <= 3; id++ {
			require.NoError(t, w.Add("t", id, 1))
		}
	})
	info, ok := idx.TermInfo("t")
	require.True(t, ok)
	require.Equal(t, termmatch.Set, info.Kind)

	st := commit(t, idx, func(w *postings.Writer) {
		for id := int64(1); id <= 3; id++ {
			require.NoError(t, w.Remove("t", id))
		}
	})
	assert.Equal(t, 1, st.Dropped)
	assert.Positive(t, st.PagesFreed)

	_, ok = idx.TermInfo("t")
	assert.False(t, ok)
	assert.Zero(t, idx.Stats().Terms)
	assert.Empty(t, and(t, idx, "t"))
}

func TestSetShrinkingToOneEntryBecomesSingle(t *testing.T) {
	idx := openIndex(t, postings.WithSmallSetThreshold(1))

	commit(t, idx, func(w *postings.Writer) {
		require.NoError(t, w.Add("t", 4, 1))
		require.NoError(t, w.Add("t", 9, 2))
	})
	st := commit(t, idx, func(w *postings.Writer) {
		require.NoError(t, w.Remove("t", 4))
	})
	assert.Equal(t, 1, st.Demoted)

	info, ok := idx.TermInfo("t")
	require.True(t, ok)
	assert.Equal(t, termmatch.Single, info.Kind)
	assert.Equal(t, []int64{9}, and(t, idx, "t"))
}

func TestLargeSetWithRemovals(t *testing.T) {
	idx := openIndex(t)

	commit(t, idx, func(w *postings.Writer) {
		for id := int64(1); id <= 100_000; id++ {
			require.NoError(t, w.Add("seq", id, 1))
		}
	})
	commit(t, idx, func(w *postings.Writer) {
		for id := int64(3); id <= 100_000; id += 3 {
			require.NoError(t, w.Remove("seq", id))
		}
	})

	info, ok := idx.TermInfo("seq")
	require.True(t, ok)
	assert.Equal(t, termmatch.Set, info.Kind)
	assert.Equal(t, int64(66_667), info.Count)

	ids := and(t, idx, "seq")
	require.Len(t, ids, 66_667)
	for _, id := range ids {
		require.NotZero(t, id%3)
	}

	s, err := idx.Searcher()
	require.NoError(t, err)
	require.NoError(t, s.Verify("seq"))
}

func TestAdditionsWinOverRemovals(t *testing.T) {
	idx := openIndex(t)
	commit(t, idx, func(w *postings.Writer) {
		require.NoError(t, w.Add("a", 1, 1))
		require.NoError(t, w.Remove("a", 1))
		require.NoError(t, w.Remove("a", 2))
		require.NoError(t, w.Add("a", 3, 1))
	})
	assert.Equal(t, []int64{1, 3}, and(t, idx, "a"))
}

func TestFrequencyUpdateKeepsCount(t *testing.T) {
	for _, n := range []int64{1, 10, 200} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			idx := openIndex(t)
			commit(t, idx, func(w *postings.Writer) {
				for id := int64(0); id < n; id++ {
					require.NoError(t, w.Add("f", id, 1))
				}
			})
			st := commit(t, idx, func(w *postings.Writer) {
				require.NoError(t, w.Add("f", 0, 7))
			})
			assert.Zero(t, st.Added)

			info, _ := idx.TermInfo("f")
			assert.Equal(t, n, info.Count)
		})
	}
}

func TestSearcherIsolation(t *testing.T) {
	idx := openIndex(t)
	commit(t, idx, func(w *postings.Writer) {
		require.NoError(t, w.Add("x", 1, 1))
	})
	before, err := idx.Searcher()
	require.NoError(t, err)

	commit(t, idx, func(w *postings.Writer) {
		require.NoError(t, w.Add("x", 2, 1))
		require.NoError(t, w.Add("y", 2, 1))
	})

	ctx := context.Background()
	ids, err := before.And(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
	ids, err = before.And(ctx, "y")
	require.NoError(t, err)
	assert.Empty(t, ids)

	assert.Equal(t, []int64{1, 2}, and(t, idx, "x"))
	assert.Greater(t, idx.Stats().TxID, before.TxID())
}

func TestRollback(t *testing.T) {
	idx := openIndex(t)
	ctx := context.Background()

	w, err := idx.Writer(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Add("r", 1, 1))
	w.Rollback()
	w.Rollback()

	assert.Empty(t, and(t, idx, "r"))
	require.ErrorIs(t, w.Commit(ctx), postings.ErrClosed)
	require.ErrorIs(t, w.Add("r", 1, 1), postings.ErrClosed)

	// the writer slot is free again
	commit(t, idx, func(w *postings.Writer) {
		require.NoError(t, w.Add("r", 2, 1))
	})
	assert.Equal(t, []int64{2}, and(t, idx, "r"))
}

func TestWriterIsExclusive(t *testing.T) {
	idx := openIndex(t)
	ctx := context.Background()

	w, err := idx.Writer(ctx)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = idx.Writer(waitCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, w.Commit(ctx))
	w2, err := idx.Writer(ctx)
	require.NoError(t, err)
	w2.Rollback()
}

func TestCommitHonorsContext(t *testing.T) {
	idx := openIndex(t)
	w, err := idx.Writer(context.Background())
	require.NoError(t, err)
	require.NoError(t, w.Add("c", 1, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, w.Commit(ctx), context.Canceled)
	assert.Empty(t, and(t, idx, "c"))
}

func TestInvalidArguments(t *testing.T) {
	idx := openIndex(t)
	w, err := idx.Writer(context.Background())
	require.NoError(t, err)
	defer w.Rollback()

	require.ErrorIs(t, w.Add("", 1, 1), postings.ErrInvalidArgument)
	require.ErrorIs(t, w.Add("a", -1, 1), postings.ErrInvalidArgument)
	require.ErrorIs(t, w.Add("a", 1, -1), postings.ErrInvalidArgument)
	require.ErrorIs(t, w.Remove("a", -5), postings.ErrInvalidArgument)
	require.ErrorIs(t, w.DeleteDocument(-1), postings.ErrInvalidArgument)

	s, err := idx.Searcher()
	require.NoError(t, err)
	_, err = s.And(context.Background())
	require.ErrorIs(t, err, postings.ErrInvalidArgument)
	_, err = s.Search(context.Background(), []string{"a"}, 0)
	require.ErrorIs(t, err, postings.ErrInvalidArgument)
	require.ErrorIs(t, s.Verify("missing"), postings.ErrNotFound)
}

func TestInvalidPageSize(t *testing.T) {
	_, err := postings.Open(context.Background(), postings.WithPageSize(1000))
	require.ErrorIs(t, err, postings.ErrInvalidArgument)
}

func TestClose(t *testing.T) {
	idx, err := postings.Open(context.Background())
	require.NoError(t, err)
	commit(t, idx, func(w *postings.Writer) {
		require.NoError(t, w.Add("z", 1, 1))
	})
	s, err := idx.Searcher()
	require.NoError(t, err)

	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())

	_, err = idx.Writer(context.Background())
	require.ErrorIs(t, err, postings.ErrClosed)
	_, err = idx.Searcher()
	require.ErrorIs(t, err, postings.ErrClosed)

	ids, err := s.And(context.Background(), "z")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
}

func TestDocuments(t *testing.T) {
	idx := openIndex(t)
	commit(t, idx, func(w *postings.Writer) {
		require.NoError(t, w.IndexDocument(1, map[string]int{"a": 2, "b": 1}))
		require.NoError(t, w.IndexDocument(2, map[string]int{"a": 1}))
		require.NoError(t, w.Add("c", 3, 1))
	})

	st := idx.Stats()
	assert.Equal(t, int64(3), st.Documents)
	assert.InDelta(t, 4.0/3.0, st.AverageLength, 1e-9)
	assert.Equal(t, 3, st.Terms)

	commit(t, idx, func(w *postings.Writer) {
		require.NoError(t, w.DeleteDocument(1, "a", "b"))
	})
	assert.Equal(t, []int64{2}, and(t, idx, "a"))
	assert.Empty(t, and(t, idx, "b"))
	assert.Equal(t, int64(2), idx.Stats().Documents)
}

func TestAndMatchesBruteForce(t *testing.T) {
	for _, accelerated := range []bool{false, true} {
		t.Run(fmt.Sprintf("accelerated=%t", accelerated), func(t *testing.T) {
			rng := testutil.NewRNG(42)
			docs := rng.Documents(3000, 60, 12, 1.05)

			idx := openIndex(t, postings.WithAcceleration(accelerated), postings.WithPageSize(512))
			commit(t, idx, func(w *postings.Writer) {
				for id, doc := range docs {
					require.NoError(t, w.IndexDocument(int64(id), doc))
				}
			})

			s, err := idx.Searcher()
			require.NoError(t, err)
			for _, q := range [][]string{
				{testutil.Term(0)},
				{testutil.Term(0), testutil.Term(1)},
				{testutil.Term(2), testutil.Term(0), testutil.Term(5)},
				{testutil.Term(40), testutil.Term(0)},
				{testutil.Term(0), "absent"},
			} {
				got, err := s.And(context.Background(), q...)
				require.NoError(t, err)
				assert.Equal(t, testutil.BruteForceAnd(docs, q...), nilIfEmpty(got), "query %v", q)
			}
			for _, term := range s.Terms() {
				require.NoError(t, s.Verify(term))
			}
		})
	}
}

func TestRandomCommitsMatchOracle(t *testing.T) {
	rng := testutil.NewRNG(7)
	idx := openIndex(t, postings.WithPageSize(512), postings.WithSmallSetThreshold(16))
	terms := []string{"a", "b", "c", "d"}
	oracle := make(map[string]map[int64]struct{}, len(terms))
	for _, term := range terms {
		oracle[term] = map[int64]struct{}{}
	}

	for round := 0; round < 25; round++ {
		type change struct {
			term string
			id   int64
		}
		var adds, removes []change
		commit(t, idx, func(w *postings.Writer) {
			for range 400 {
				c := change{term: terms[rng.Intn(len(terms))], id: rng.Int63n(2000)}
				if rng.Intn(3) == 0 {
					require.NoError(t, w.Remove(c.term, c.id))
					removes = append(removes, c)
				} else {
					require.NoError(t, w.Add(c.term, c.id, 1+rng.Intn(20)))
					adds = append(adds, c)
				}
			}
		})
		for _, c := range removes {
			delete(oracle[c.term], c.id)
		}
		for _, c := range adds {
			oracle[c.term][c.id] = struct{}{}
		}

		s, err := idx.Searcher()
		require.NoError(t, err)
		for _, term := range terms {
			bm, err := s.Bitmap(term)
			require.NoError(t, err)
			require.Equal(t, uint64(len(oracle[term])), bm.GetCardinality(), "round %d term %s", round, term)
			for id := range oracle[term] {
				require.True(t, bm.Contains(uint64(id)), "round %d term %s id %d", round, term, id)
			}
			if _, ok := s.TermInfo(term); ok {
				require.NoError(t, s.Verify(term))
			}
		}
	}
}

func TestEvaluate(t *testing.T) {
	idx := openIndex(t)
	commit(t, idx, func(w *postings.Writer) {
		for id := int64(0); id < 500; id++ {
			doc := map[string]int{"all": 1}
			if id%2 == 0 {
				doc["even"] = 1
			}
			if id%5 == 0 {
				doc["five"] = 1
			}
			require.NoError(t, w.IndexDocument(id, doc))
		}
	})

	s, err := idx.Searcher()
	require.NoError(t, err)
	results, err := s.Evaluate(context.Background(), [][]string{
		{"even", "five"},
		{"all"},
		{"none"},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Len(t, results[0], 50)
	for _, id := range results[0] {
		assert.Zero(t, id%10)
	}
	assert.Len(t, results[1], 500)
	assert.Empty(t, results[2])

	_, err = s.Evaluate(context.Background(), [][]string{{"all"}, {}})
	require.ErrorIs(t, err, postings.ErrInvalidArgument)
}

func TestSearchRanksByTermFrequency(t *testing.T) {
	idx := openIndex(t)
	commit(t, idx, func(w *postings.Writer) {
		// equal lengths isolate the frequency
		require.NoError(t, w.IndexDocument(1, map[string]int{"go": 3, "x": 1}))
		require.NoError(t, w.IndexDocument(2, map[string]int{"go": 1, "y": 3}))
		require.NoError(t, w.IndexDocument(3, map[string]int{"go": 2, "z": 2}))
		require.NoError(t, w.IndexDocument(4, map[string]int{"go": 1, "w": 3}))
		require.NoError(t, w.IndexDocument(5, map[string]int{"other": 4}))
	})

	s, err := idx.Searcher()
	require.NoError(t, err)

	hits, err := s.Search(context.Background(), []string{"go"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 4)
	assert.Equal(t, []int64{1, 3, 2, 4}, hitIDs(hits))
	assert.Equal(t, hits[2].Score, hits[3].Score)
	assert.True(t, slices.IsSortedFunc(hits, func(a, b postings.Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	}))

	top, err := s.Search(context.Background(), []string{"go"}, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, hitIDs(top))

	both, err := s.Search(context.Background(), []string{"go", "x"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, hitIDs(both))
}

func TestSearchWithoutFrequencies(t *testing.T) {
	idx := openIndex(t, postings.WithoutFrequencies())
	commit(t, idx, func(w *postings.Writer) {
		require.NoError(t, w.IndexDocument(1, map[string]int{"go": 3, "x": 1}))
		require.NoError(t, w.IndexDocument(2, map[string]int{"go": 1, "y": 3}))
	})

	s, err := idx.Searcher()
	require.NoError(t, err)
	hits, err := s.Search(context.Background(), []string{"go"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, hits[0].Score, hits[1].Score)
	assert.Equal(t, []int64{1, 2}, hitIDs(hits))
}

func TestInspect(t *testing.T) {
	idx := openIndex(t)
	commit(t, idx, func(w *postings.Writer) {
		require.NoError(t, w.Add("one", 1, 1))
		for id := int64(0); id < 100; id++ {
			require.NoError(t, w.Add("many", id, 1))
		}
	})

	s, err := idx.Searcher()
	require.NoError(t, err)

	node, err := s.Inspect("many", "one")
	require.NoError(t, err)
	assert.Equal(t, "And", node.Name)
	require.Len(t, node.Children, 2)
	assert.Equal(t, "TermMatch [Once]", node.Children[0].Name)
	assert.Equal(t, "TermMatch [Set]", node.Children[1].Name)
	assert.Contains(t, node.String(), "Count: 100")

	data, err := node.JSON(nil)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name":"And"`)
}

func hitIDs(hits []postings.Hit) []int64 {
	out := make([]int64, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}

func nilIfEmpty(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	return ids
}
