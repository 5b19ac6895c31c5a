// Package pager provides the copy-on-write page substrate used by posting lists.
//
// # Model
//
// A Store holds an immutable Snapshot of fixed-size pages. Readers take the
// current snapshot and never block. A single WriteTx at a time copies the page
// table, copies each page it modifies on first touch (ModifyPage), and
// publishes a new snapshot on Commit. Pages visible to a reader are never
// mutated.
//
// # Allocation
//
// AllocatePage(n) returns n contiguous pages backed by one buffer. Freed pages
// become reusable only after the freeing transaction commits.
package pager
