package postings

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/postings/internal/checkpoint"
	"github.com/hupe1980/postings/internal/pager"
	"github.com/hupe1980/postings/internal/postinglist"
	"github.com/hupe1980/postings/internal/resource"
	"github.com/hupe1980/postings/termmatch"
)

// TermInfo is the dictionary record of one term. Kind selects which of the
// other fields is meaningful.
type TermInfo struct {
	Kind  termmatch.Kind `json:"kind"`
	Count int64          `json:"count"`
	// Single is the encoded posting of a Single term.
	Single int64 `json:"single,omitempty"`
	// Container is the container item holding the inline blob of a Small term.
	Container uint64 `json:"container,omitempty"`
	// State is the posting list root record of a Set term.
	State postinglist.State `json:"state"`
}

// version is one published state of the index. It is never mutated.
type version struct {
	snap  *pager.Snapshot
	terms map[string]TermInfo
	docs  *docLengths
}

// Stats describes the published version of an index.
type Stats struct {
	TxID          uint64  `json:"tx_id"`
	Terms         int     `json:"terms"`
	Entries       int64   `json:"entries"`
	Singles       int     `json:"singles"`
	SmallSets     int     `json:"small_sets"`
	Sets          int     `json:"sets"`
	Documents     int64   `json:"documents"`
	AverageLength float64 `json:"average_length"`
	PageSize      int     `json:"page_size"`
	LivePages     int     `json:"live_pages"`
	FreePages     int     `json:"free_pages"`
}

// Index is a transactional inverted index over posting lists.
//
// One Writer at a time may change the index; Searchers read immutable
// versions and may be used concurrently with a Writer and with each other.
type Index struct {
	opts    options
	logger  *Logger
	metrics MetricsCollector

	store   *pager.Store
	current atomic.Pointer[version]
	writeMu *semaphore.Weighted

	ckpt   *checkpoint.Manager
	rc     *resource.Controller
	closed atomic.Bool
}

// Open creates an index. With WithBlobStore the latest checkpoint of the
// store is restored unless WithoutRestore is given.
func Open(ctx context.Context, optFns ...Option) (*Index, error) {
	o := applyOptions(optFns)
	idx := &Index{
		opts:    o,
		logger:  o.logger,
		metrics: o.metricsCollector,
		writeMu: semaphore.NewWeighted(1),
	}

	if o.store != nil {
		idx.rc = resource.NewController(resource.Config{
			MemoryLimitBytes:     o.memoryLimit,
			MaxBackgroundWorkers: 1,
			IOLimitBytesPerSec:   o.rateLimit,
		})
		idx.ckpt = checkpoint.NewManager(o.store,
			checkpoint.WithCompression(o.compression),
			checkpoint.WithCodec(o.codec),
			checkpoint.WithController(idx.rc),
			checkpoint.WithRetention(o.retention),
			checkpoint.WithRetry(o.retries, 0),
		)
		if !o.restoreDisabled {
			restored, err := idx.restore(ctx)
			if err != nil {
				return nil, err
			}
			if restored {
				return idx, nil
			}
		}
	}

	store, err := pager.New(o.pageSize)
	if err != nil {
		return nil, translateError(err)
	}
	idx.store = store
	idx.current.Store(&version{
		snap:  store.Snapshot(),
		terms: make(map[string]TermInfo),
		docs:  newDocLengths(),
	})
	return idx, nil
}

// Writer starts the exclusive write transaction, waiting for a running one
// to finish or ctx to be done.
func (idx *Index) Writer(ctx context.Context) (*Writer, error) {
	if idx.closed.Load() {
		return nil, ErrClosed
	}
	if err := idx.writeMu.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	tx, err := idx.store.BeginWrite()
	if err != nil {
		idx.writeMu.Release(1)
		return nil, translateError(err)
	}
	return &Writer{
		idx:     idx,
		tx:      tx,
		base:    idx.current.Load(),
		changes: make(map[string]*termChanges),
		docs:    make(map[int64]int),
	}, nil
}

// Searcher returns a reader over the latest committed version.
func (idx *Index) Searcher() (*Searcher, error) {
	if idx.closed.Load() {
		return nil, ErrClosed
	}
	return &Searcher{idx: idx, v: idx.current.Load()}, nil
}

// TermInfo returns the committed dictionary record of term.
func (idx *Index) TermInfo(term string) (TermInfo, bool) {
	info, ok := idx.current.Load().terms[term]
	return info, ok
}

// Stats describes the latest committed version.
func (idx *Index) Stats() Stats {
	return idx.current.Load().stats()
}

// Close closes the index. Searchers obtained before keep working; new
// writers and searchers fail with ErrClosed.
func (idx *Index) Close() error {
	if idx.closed.Swap(true) {
		return nil
	}
	return idx.store.Close()
}

func (v *version) stats() Stats {
	st := Stats{
		TxID:          v.snap.TxID(),
		Terms:         len(v.terms),
		Documents:     v.docs.DocumentCount(),
		AverageLength: v.docs.AverageLength(),
		PageSize:      v.snap.PageSize(),
		LivePages:     v.snap.LivePages(),
		FreePages:     v.snap.FreePages(),
	}
	for _, info := range v.terms {
		st.Entries += info.Count
		switch info.Kind {
		case termmatch.Single:
			st.Singles++
		case termmatch.Small:
			st.SmallSets++
		case termmatch.Set:
			st.Sets++
		}
	}
	return st
}

// ratio is the fraction of documents matched by a term of count entries.
func (v *version) ratio(count int64) float64 {
	docs := v.docs.DocumentCount()
	if docs <= 0 {
		return 1
	}
	return min(float64(count)/float64(docs), 1)
}

func (idx *Index) publish(v *version) {
	idx.current.Store(v)
}

func (idx *Index) String() string {
	st := idx.Stats()
	return fmt.Sprintf("postings.Index{tx=%d terms=%d docs=%d pages=%d}", st.TxID, st.Terms, st.Documents, st.LivePages)
}
