// Package termmatch evaluates the postings of a single term.
//
// A TermMatch wraps one of four representations chosen by the planner from
// the term's stored cardinality:
//
//   - Empty: the term has no postings
//   - Single: exactly one posting, stored inline
//   - Small: a short zig-zag varint blob from the container store
//   - Set: a full posting list
//
// All variants share one contract. Fill pulls the next batch of entry ids
// into a caller-owned buffer; AndWith intersects a sorted candidate buffer in
// place; Score hands surviving matches to the relevance scorer when the match
// is boosting. A TermMatch is used by one goroutine for one query execution.
package termmatch
