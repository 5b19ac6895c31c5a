package postings

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/postings/internal/container"
	"github.com/hupe1980/postings/internal/entry"
	"github.com/hupe1980/postings/internal/postinglist"
	"github.com/hupe1980/postings/internal/queue"
	"github.com/hupe1980/postings/relevance"
	"github.com/hupe1980/postings/termmatch"
)

// batchSize is the number of candidates pulled per Fill.
const batchSize = termmatch.BlockSize

// Hit is one scored search result.
type Hit struct {
	ID    int64   `json:"id"`
	Score float32 `json:"score"`
}

// Searcher reads one committed version of an index. It is safe for
// concurrent use; the TermMatch values it returns are not.
type Searcher struct {
	idx *Index
	v   *version
}

// TxID returns the transaction id of the version.
func (s *Searcher) TxID() uint64 { return s.v.snap.TxID() }

// Stats describes the version.
func (s *Searcher) Stats() Stats { return s.v.stats() }

// TermInfo returns the dictionary record of term.
func (s *Searcher) TermInfo(term string) (TermInfo, bool) {
	info, ok := s.v.terms[term]
	return info, ok
}

// Terms returns every term in ascending order.
func (s *Searcher) Terms() []string {
	terms := make([]string, 0, len(s.v.terms))
	for t := range s.v.terms {
		terms = append(terms, t)
	}
	slices.Sort(terms)
	return terms
}

// Term returns a match over the postings of term. Unknown terms yield an
// empty match. With boosting the match scores with BM25.
func (s *Searcher) Term(term string, boosting bool) (*termmatch.TermMatch, error) {
	info, ok := s.v.terms[term]
	if !ok {
		return termmatch.NewEmpty(), nil
	}
	ratio := s.v.ratio(info.Count)
	var scorer relevance.Scorer
	if boosting {
		opts := []relevance.BM25Option{relevance.WithDocumentLengths(s.v.docs)}
		if !s.idx.opts.frequencies {
			opts = append(opts, relevance.WithoutFrequencies())
		}
		scorer = relevance.NewBM25(ratio, opts...)
	}

	switch info.Kind {
	case termmatch.Single:
		return termmatch.NewSingle(info.Single, ratio, scorer), nil
	case termmatch.Small:
		blob, err := container.Get(s.v.snap, info.Container)
		if err != nil {
			return nil, fmt.Errorf("postings: term %q: %w", term, err)
		}
		return termmatch.NewSmall(blob, ratio, scorer)
	case termmatch.Set:
		pl, err := postinglist.Open(s.v.snap, info.State)
		if err != nil {
			return nil, translateError(err)
		}
		return termmatch.NewSet(pl, ratio, scorer, s.idx.opts.accelerated)
	default:
		return termmatch.NewEmpty(), nil
	}
}

func (s *Searcher) matches(terms []string, boosting bool) ([]*termmatch.TermMatch, error) {
	if len(terms) == 0 {
		return nil, fmt.Errorf("%w: no terms", ErrInvalidArgument)
	}
	out := make([]*termmatch.TermMatch, 0, len(terms))
	for _, t := range terms {
		m, err := s.Term(t, boosting)
		if err != nil {
			closeAll(out)
			return nil, err
		}
		out = append(out, m)
	}
	// drive the intersection from the rarest term
	slices.SortStableFunc(out, func(a, b *termmatch.TermMatch) int {
		switch {
		case a.Count() < b.Count():
			return -1
		case a.Count() > b.Count():
			return 1
		}
		return 0
	})
	return out, nil
}

func closeAll(ms []*termmatch.TermMatch) {
	for _, m := range ms {
		m.Close()
	}
}

// intersect calls fn with every batch of ids matched by all ms. Batches
// without matches are passed empty so scorers drop what they captured.
func intersect(ctx context.Context, ms []*termmatch.TermMatch, fn func(ids []int64)) error {
	if ms[0].Count() == 0 {
		return nil
	}
	buf := make([]int64, batchSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := ms[0].Fill(buf)
		if n == 0 {
			return nil
		}
		for _, m := range ms[1:] {
			if n = m.AndWith(buf, n); n == 0 {
				break
			}
		}
		fn(buf[:n])
	}
}

func (s *Searcher) and(ctx context.Context, terms []string) ([]int64, error) {
	ms, err := s.matches(terms, false)
	if err != nil {
		return nil, err
	}
	defer closeAll(ms)

	var ids []int64
	err = intersect(ctx, ms, func(batch []int64) {
		ids = append(ids, batch...)
	})
	return ids, err
}

// And returns the ascending ids of the documents containing every term.
func (s *Searcher) And(ctx context.Context, terms ...string) (ids []int64, err error) {
	start := time.Now()
	defer func() {
		s.idx.metrics.RecordQuery(len(terms), len(ids), time.Since(start), err)
		s.idx.logger.LogQuery(ctx, len(terms), len(ids), err)
	}()
	return s.and(ctx, terms)
}

// Evaluate runs independent conjunctive queries concurrently and returns
// their results in query order.
func (s *Searcher) Evaluate(ctx context.Context, queries [][]string) (results [][]int64, err error) {
	start := time.Now()
	total, terms := 0, 0
	defer func() {
		s.idx.metrics.RecordQuery(terms, total, time.Since(start), err)
		s.idx.logger.LogQuery(ctx, terms, total, err)
	}()

	results = make([][]int64, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, q := range queries {
		terms += len(q)
		g.Go(func() error {
			ids, err := s.and(gctx, q)
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			results[i] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, r := range results {
		total += len(r)
	}
	return results, nil
}

// Search returns the k best BM25 scored documents containing every term,
// best first. Equal scores are ordered by ascending id.
func (s *Searcher) Search(ctx context.Context, terms []string, k int) (hits []Hit, err error) {
	start := time.Now()
	defer func() {
		s.idx.metrics.RecordQuery(len(terms), len(hits), time.Since(start), err)
		s.idx.logger.LogQuery(ctx, len(terms), len(hits), err)
	}()
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", ErrInvalidArgument)
	}

	ms, err := s.matches(terms, true)
	if err != nil {
		return nil, err
	}
	defer closeAll(ms)

	top := queue.NewMin(k)
	scores := make([]float32, batchSize)
	err = intersect(ctx, ms, func(ids []int64) {
		sc := scores[:len(ids)]
		clear(sc)
		for _, m := range ms {
			m.Score(ids, sc, 1)
		}
		for i, id := range ids {
			top.Offer(queue.Item{ID: id, Score: sc[i]}, k)
		}
	})
	if err != nil {
		return nil, err
	}

	items := top.Drain()
	hits = make([]Hit, len(items))
	for i, it := range items {
		hits[len(items)-1-i] = Hit{ID: it.ID, Score: it.Score}
	}
	return hits, nil
}

// Bitmap returns the ids of the documents containing term.
func (s *Searcher) Bitmap(term string) (*roaring64.Bitmap, error) {
	m, err := s.Term(term, false)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	bm := roaring64.New()
	buf := make([]int64, batchSize)
	vals := make([]uint64, batchSize)
	for {
		n := m.Fill(buf)
		if n == 0 {
			return bm, nil
		}
		for i, id := range buf[:n] {
			vals[i] = uint64(id)
		}
		bm.AddMany(vals[:n])
	}
}

// Inspect describes how a conjunction over terms would be evaluated.
func (s *Searcher) Inspect(terms ...string) (termmatch.InspectionNode, error) {
	ms, err := s.matches(terms, false)
	if err != nil {
		return termmatch.InspectionNode{}, err
	}
	defer closeAll(ms)

	if len(ms) == 1 {
		return ms[0].Inspect(), nil
	}
	node := termmatch.InspectionNode{
		Name:       "And",
		Parameters: map[string]string{"Terms": fmt.Sprint(len(ms))},
	}
	for _, m := range ms {
		node.Children = append(node.Children, m.Inspect())
	}
	return node, nil
}

// Verify checks the stored postings of term: posting list structure for
// sets, ordering and count for inline sets.
func (s *Searcher) Verify(term string) error {
	info, ok := s.v.terms[term]
	if !ok {
		return fmt.Errorf("%w: term %q", ErrNotFound, term)
	}
	var values []int64
	switch info.Kind {
	case termmatch.Single:
		values = []int64{info.Single}
	case termmatch.Small:
		blob, err := container.Get(s.v.snap, info.Container)
		if err != nil {
			return err
		}
		if values, err = entry.DecodeDeltas(nil, blob); err != nil {
			return fmt.Errorf("%w: term %q: %w", ErrConsistencyViolation, term, err)
		}
	case termmatch.Set:
		pl, err := postinglist.Open(s.v.snap, info.State)
		if err != nil {
			return translateError(err)
		}
		if err := pl.Verify(); err != nil {
			return fmt.Errorf("term %q: %w", term, err)
		}
		if pl.Count() != info.Count {
			return fmt.Errorf("%w: term %q list holds %d entries, dictionary says %d",
				ErrConsistencyViolation, term, pl.Count(), info.Count)
		}
		return nil
	}
	if int64(len(values)) != info.Count {
		return fmt.Errorf("%w: term %q holds %d entries, dictionary says %d",
			ErrConsistencyViolation, term, len(values), info.Count)
	}
	for i := 1; i < len(values); i++ {
		if entry.DecodeEntryID(values[i]) <= entry.DecodeEntryID(values[i-1]) {
			return fmt.Errorf("%w: term %q not ascending at %d", ErrConsistencyViolation, term, i)
		}
	}
	return nil
}
