// Package relevance defines the scorer contract used by term matches and
// provides a BM25 implementation.
//
// A Scorer sees every posting entry a match decodes (Add, Process), forgets
// entries the match rejects (Remove) and finally scores the surviving entry
// ids (Score). Scores are accumulated so several terms can contribute to the
// same slot.
package relevance
