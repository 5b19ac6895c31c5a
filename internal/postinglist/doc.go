// Package postinglist implements the paged, transactional sorted set of
// posting entries backing one term.
//
// # Layout
//
// A posting list is a B+tree over pager pages. Branch pages hold ordered
// (separator, child) pairs; leaf pages hold entries that share a baseline (the
// high 33 bits) as runs of zig-zag varint deltas over the low 31 bits.
//
// # Updates
//
// Add and Remove only buffer changes. PrepareForCommit applies them leaf by
// leaf inside the caller's write transaction, splitting full pages and merging
// sparse ones. The resulting State must be persisted by the caller together
// with the transaction.
//
// # Reading
//
// Iterator walks the leaves in order with Seek, MoveNext and the bulk Fill.
// All leaves are at the same depth.
package postinglist
