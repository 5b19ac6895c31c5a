package postinglist

import "fmt"

// State is the persistent root record of a posting list.
type State struct {
	RootPage        uint64 `json:"root_page"`
	Depth           int    `json:"depth"`
	NumberOfEntries int64  `json:"entries"`
	BranchPages     int64  `json:"branch_pages"`
	LeafPages       int64  `json:"leaf_pages"`
}

// IsZero reports whether the state refers to no pages.
func (s State) IsZero() bool { return s.RootPage == 0 }

// Pages returns the total number of pages owned by the list.
func (s State) Pages() int64 { return s.BranchPages + s.LeafPages }

func (s State) String() string {
	return fmt.Sprintf("root=%d depth=%d entries=%d branches=%d leaves=%d",
		s.RootPage, s.Depth, s.NumberOfEntries, s.BranchPages, s.LeafPages)
}

// Stats counts structural work done through one handle.
type Stats struct {
	Commits        int64
	LeafSplits     int64
	BranchSplits   int64
	LeafMerges     int64
	BranchMerges   int64
	BranchBorrows  int64
	RootSplits     int64
	RootCollapses  int64
	PagesAllocated int64
	PagesFreed     int64
}
