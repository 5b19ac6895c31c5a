package pager

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

const (
	// DefaultPageSize is the page size used when none is configured.
	DefaultPageSize = 8192
	// MinPageSize is the smallest supported page size.
	MinPageSize = 512
	// MaxPageSize is the largest supported page size.
	MaxPageSize = 1 << 16
)

var (
	// ErrClosed is returned when using a closed store.
	ErrClosed = errors.New("pager: store closed")
	// ErrTxDone is returned when committing or rolling back a finished transaction.
	ErrTxDone = errors.New("pager: transaction already finished")
	// ErrInvalidPageSize is returned for page sizes outside [MinPageSize, MaxPageSize]
	// or not a power of two.
	ErrInvalidPageSize = errors.New("pager: invalid page size")
)

// Page is a numbered view over page bytes.
// For multi-page allocations Data spans all pages of the run.
type Page struct {
	Number uint64
	Data   []byte
}

// IsValid reports whether the page refers to allocated memory.
func (p Page) IsValid() bool { return p.Number != 0 && p.Data != nil }

// Reader reads pages from a consistent snapshot.
type Reader interface {
	GetPage(n uint64) Page
	PageSize() int
}

// Writer mutates pages inside a write transaction.
type Writer interface {
	Reader
	// ModifyPage returns a private, writable copy of page n.
	ModifyPage(n uint64) Page
	// AllocatePage returns count zeroed contiguous pages.
	AllocatePage(count int) Page
	// FreePage releases the page run starting at n.
	FreePage(n uint64)
}

// overflow marks pages covered by a multi-page run.
var overflow = []byte{}

// Snapshot is an immutable committed version of the page table.
type Snapshot struct {
	txID     uint64
	pageSize int
	pages    [][]byte // index 0 is reserved
	free     []uint64
}

// TxID returns the id of the transaction that produced the snapshot.
func (s *Snapshot) TxID() uint64 { return s.txID }

// PageSize implements Reader.
func (s *Snapshot) PageSize() int { return s.pageSize }

// GetPage implements Reader.
func (s *Snapshot) GetPage(n uint64) Page {
	return getPage(s.pages, n)
}

// NextPage returns the page number the next extending allocation would use.
func (s *Snapshot) NextPage() uint64 { return uint64(len(s.pages)) }

// FreePages returns the number of reusable pages.
func (s *Snapshot) FreePages() int { return len(s.free) }

// LivePages returns the number of allocated pages, counting every page of a run.
func (s *Snapshot) LivePages() int {
	n := 0
	for i := 1; i < len(s.pages); i++ {
		if s.pages[i] != nil {
			n++
		}
	}
	return n
}

// ForEachRun calls fn for the first page of every allocated run in page order.
func (s *Snapshot) ForEachRun(fn func(p Page) error) error {
	for i := 1; i < len(s.pages); i++ {
		data := s.pages[i]
		if len(data) == 0 {
			continue
		}
		if err := fn(Page{Number: uint64(i), Data: data}); err != nil {
			return err
		}
	}
	return nil
}

func getPage(pages [][]byte, n uint64) Page {
	if n == 0 || n >= uint64(len(pages)) {
		panic(fmt.Sprintf("pager: page %d out of range", n))
	}
	data := pages[n]
	if len(data) == 0 {
		panic(fmt.Sprintf("pager: page %d is not allocated", n))
	}
	return Page{Number: n, Data: data}
}

// Store is a copy-on-write page store with one writer and many readers.
type Store struct {
	pageSize int
	current  atomic.Pointer[Snapshot]
	writeMu  sync.Mutex
	closed   atomic.Bool
}

// New creates an empty store. pageSize <= 0 selects DefaultPageSize.
func New(pageSize int) (*Store, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if err := validatePageSize(pageSize); err != nil {
		return nil, err
	}
	s := &Store{pageSize: pageSize}
	s.current.Store(&Snapshot{pageSize: pageSize, pages: make([][]byte, 1)})
	return s, nil
}

func validatePageSize(pageSize int) error {
	if pageSize < MinPageSize || pageSize > MaxPageSize || pageSize&(pageSize-1) != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPageSize, pageSize)
	}
	return nil
}

// PageSize returns the fixed page size.
func (s *Store) PageSize() int { return s.pageSize }

// Snapshot returns the latest committed snapshot.
func (s *Store) Snapshot() *Snapshot { return s.current.Load() }

// BeginWrite starts the single write transaction, blocking while another is active.
func (s *Store) BeginWrite() (*WriteTx, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	s.writeMu.Lock()
	if s.closed.Load() {
		s.writeMu.Unlock()
		return nil, ErrClosed
	}
	base := s.current.Load()
	return &WriteTx{
		store: s,
		base:  base,
		pages: slices.Clone(base.pages),
		free:  slices.Clone(base.free),
		dirty: make(map[uint64]struct{}),
	}, nil
}

// Close marks the store closed. Existing snapshots stay readable.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

// WriteTx is the exclusive write transaction.
type WriteTx struct {
	store *Store
	base  *Snapshot
	pages [][]byte
	free  []uint64
	freed []uint64
	dirty map[uint64]struct{}
	done  bool
	stats TxStats
}

// TxStats counts page operations of one transaction.
type TxStats struct {
	Allocated int
	Freed     int
	Modified  int
}

// PageSize implements Reader.
func (tx *WriteTx) PageSize() int { return tx.store.pageSize }

// GetPage implements Reader.
func (tx *WriteTx) GetPage(n uint64) Page {
	return getPage(tx.pages, n)
}

// ModifyPage implements Writer.
func (tx *WriteTx) ModifyPage(n uint64) Page {
	p := getPage(tx.pages, n)
	if _, ok := tx.dirty[n]; ok {
		return p
	}
	cp := make([]byte, len(p.Data))
	copy(cp, p.Data)
	tx.pages[n] = cp
	tx.dirty[n] = struct{}{}
	tx.stats.Modified++
	return Page{Number: n, Data: cp}
}

// AllocatePage implements Writer.
func (tx *WriteTx) AllocatePage(count int) Page {
	if count <= 0 {
		count = 1
	}
	tx.stats.Allocated += count
	data := make([]byte, count*tx.store.pageSize)
	if count == 1 && len(tx.free) > 0 {
		n := tx.free[len(tx.free)-1]
		tx.free = tx.free[:len(tx.free)-1]
		tx.pages[n] = data
		tx.dirty[n] = struct{}{}
		return Page{Number: n, Data: data}
	}
	n := uint64(len(tx.pages))
	tx.pages = append(tx.pages, data)
	for i := 1; i < count; i++ {
		tx.pages = append(tx.pages, overflow)
	}
	tx.dirty[n] = struct{}{}
	return Page{Number: n, Data: data}
}

// FreePage implements Writer.
func (tx *WriteTx) FreePage(n uint64) {
	p := getPage(tx.pages, n)
	count := len(p.Data) / tx.store.pageSize
	for i := 0; i < count; i++ {
		tx.pages[n+uint64(i)] = nil
		tx.freed = append(tx.freed, n+uint64(i))
	}
	delete(tx.dirty, n)
	tx.stats.Freed += count
}

// Stats returns the page counters of the transaction so far.
func (tx *WriteTx) Stats() TxStats { return tx.stats }

// Commit publishes the transaction as the new snapshot and releases the writer lock.
func (tx *WriteTx) Commit() (*Snapshot, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	tx.done = true
	defer tx.store.writeMu.Unlock()

	free := append(tx.free, tx.freed...)
	// reuse the lowest numbers first
	slices.SortFunc(free, func(a, b uint64) int {
		switch {
		case a > b:
			return -1
		case a < b:
			return 1
		}
		return 0
	})
	snap := &Snapshot{
		txID:     tx.base.txID + 1,
		pageSize: tx.store.pageSize,
		pages:    tx.pages,
		free:     free,
	}
	tx.store.current.Store(snap)
	return snap, nil
}

// Rollback discards the transaction. Calling it after Commit is a no-op.
func (tx *WriteTx) Rollback() {
	if tx.done {
		return
	}
	tx.done = true
	tx.store.writeMu.Unlock()
}

// Load rebuilds a store from persisted page runs.
// runs maps the first page number of every run to its bytes.
func Load(pageSize int, txID uint64, nextPage uint64, runs map[uint64][]byte) (*Store, error) {
	if err := validatePageSize(pageSize); err != nil {
		return nil, err
	}
	if nextPage == 0 {
		nextPage = 1
	}
	pages := make([][]byte, nextPage)
	for n, data := range runs {
		if n == 0 || n >= nextPage || len(data) == 0 || len(data)%pageSize != 0 {
			return nil, fmt.Errorf("pager: invalid run at page %d", n)
		}
		count := uint64(len(data) / pageSize)
		if n+count > nextPage {
			return nil, fmt.Errorf("pager: run at page %d exceeds page table", n)
		}
		pages[n] = data
		for i := uint64(1); i < count; i++ {
			pages[n+i] = overflow
		}
	}
	var free []uint64
	for n := nextPage - 1; n >= 1; n-- {
		if pages[n] == nil {
			free = append(free, n)
		}
	}
	s := &Store{pageSize: pageSize}
	s.current.Store(&Snapshot{txID: txID, pageSize: pageSize, pages: pages, free: free})
	return s, nil
}

// Flags is the page kind stored in the first byte of every page.
type Flags uint8

const (
	// FlagLeaf marks a posting list leaf page.
	FlagLeaf Flags = 1 << iota
	// FlagBranch marks a posting list branch page.
	FlagBranch
	// FlagContainer marks the first page of a container item.
	FlagContainer
)

// PageFlags returns the kind byte of a page.
func PageFlags(p Page) Flags { return Flags(p.Data[0]) }
