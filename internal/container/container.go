// Package container stores small variable-length items in pager pages.
//
// An item occupies a run of whole pages. The item id is the number of the
// first page; the first page starts with an 8 byte header holding the page
// kind and the payload length.
package container

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/postings/internal/pager"
)

// HeaderSize is the number of bytes preceding the payload.
const HeaderSize = 8

// ErrNotContainer is returned when an id does not refer to a container item.
var ErrNotContainer = errors.New("container: page is not a container item")

// PagesFor returns the number of pages needed for a payload of n bytes.
func PagesFor(pageSize, n int) int {
	return (HeaderSize + n + pageSize - 1) / pageSize
}

// Allocate stores data and returns its item id.
func Allocate(w pager.Writer, data []byte) uint64 {
	p := w.AllocatePage(PagesFor(w.PageSize(), len(data)))
	p.Data[0] = byte(pager.FlagContainer)
	binary.LittleEndian.PutUint32(p.Data[4:8], uint32(len(data)))
	copy(p.Data[HeaderSize:], data)
	return p.Number
}

// Get returns the payload of item id. The result aliases page memory and must
// not be modified.
func Get(r pager.Reader, id uint64) ([]byte, error) {
	p := r.GetPage(id)
	if pager.PageFlags(p)&pager.FlagContainer == 0 {
		return nil, fmt.Errorf("%w: %d", ErrNotContainer, id)
	}
	n := int(binary.LittleEndian.Uint32(p.Data[4:8]))
	if HeaderSize+n > len(p.Data) {
		return nil, fmt.Errorf("container: item %d length %d exceeds run", id, n)
	}
	return p.Data[HeaderSize : HeaderSize+n], nil
}

// Update replaces the payload of id, reusing the run when it fits.
// It returns the possibly new item id.
func Update(w pager.Writer, id uint64, data []byte) (uint64, error) {
	p := w.GetPage(id)
	if pager.PageFlags(p)&pager.FlagContainer == 0 {
		return 0, fmt.Errorf("%w: %d", ErrNotContainer, id)
	}
	if HeaderSize+len(data) > len(p.Data) {
		w.FreePage(id)
		return Allocate(w, data), nil
	}
	p = w.ModifyPage(id)
	binary.LittleEndian.PutUint32(p.Data[4:8], uint32(len(data)))
	copy(p.Data[HeaderSize:], data)
	clear(p.Data[HeaderSize+len(data):])
	return id, nil
}

// Delete frees the pages of item id.
func Delete(w pager.Writer, id uint64) error {
	p := w.GetPage(id)
	if pager.PageFlags(p)&pager.FlagContainer == 0 {
		return fmt.Errorf("%w: %d", ErrNotContainer, id)
	}
	w.FreePage(id)
	return nil
}
