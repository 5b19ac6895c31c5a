// Package postings provides a transactional inverted index over compressed,
// paged posting lists with lazily evaluated, relevance-scored term matches.
//
// # Quick Start
//
//	ctx := context.Background()
//	idx, _ := postings.Open(ctx)
//	defer idx.Close()
//
//	w, _ := idx.Writer(ctx)
//	_ = w.IndexDocument(1, map[string]int{"go": 2, "index": 1})
//	_ = w.IndexDocument(2, map[string]int{"go": 1})
//	_ = w.Commit(ctx)
//
//	s, _ := idx.Searcher()
//	ids, _ := s.And(ctx, "go", "index")    // [1]
//	hits, _ := s.Search(ctx, []string{"go"}, 10)
//
// # Representations
//
// Every term is stored in the smallest representation its cardinality allows:
//
//   - Single: one posting kept in the term dictionary
//   - Small: up to SmallSetThreshold postings, delta varint encoded in the
//     container store
//   - Set: a posting list, a B+tree of compressed leaf pages
//
// A Set is demoted only after it shrinks below half the threshold, so terms
// near the threshold do not flip on every commit.
//
// # Transactions
//
// One Writer at a time buffers changes; Commit applies them in a single page
// store transaction and publishes a new version atomically. A Searcher reads
// the version that was current when it was created and is unaffected by later
// commits. Rollback, or a failed Commit, publishes nothing.
//
// # Checkpoints
//
// With WithBlobStore, Checkpoint serializes the committed pages, the term
// dictionary and the document lengths into one compressed, CRC32C checked
// blob. Open restores the latest checkpoint. Local directories, in-memory
// stores, S3 (optionally with a DynamoDB commit table), MinIO and Redis are
// supported.
package postings
