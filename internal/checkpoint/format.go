package checkpoint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/hupe1980/postings/codec"
	"github.com/hupe1980/postings/internal/conv"
	"github.com/hupe1980/postings/internal/hash"
)

const (
	magic         = "PSTC"
	formatVersion = 1
	frameSize     = 24
)

// ErrCorrupt is returned for blobs that fail validation.
var ErrCorrupt = errors.New("checkpoint: corrupt")

// Image is the content of one checkpoint.
type Image struct {
	TxID     uint64
	PageSize int
	NextPage uint64
	// Runs maps the first page number of every allocated run to its bytes.
	Runs map[uint64][]byte
	// Meta is stored verbatim.
	Meta []byte
	// Codec names the codec of the header section. Decode sets it; callers
	// may use it to decode Meta written with the same codec.
	Codec string
}

// Bytes returns the number of page bytes in the image.
func (img *Image) Bytes() int64 {
	var n int64
	for _, data := range img.Runs {
		n += int64(len(data))
	}
	return n
}

type run struct {
	Page  uint64 `json:"page"`
	Pages int    `json:"pages"`
}

type header struct {
	TxID     uint64 `json:"tx_id"`
	PageSize int    `json:"page_size"`
	NextPage uint64 `json:"next_page"`
	Runs     []run  `json:"runs"`
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}

// Encode serializes img. c encodes the header section; nil selects
// codec.Default.
func Encode(img *Image, comp Compression, c codec.Codec) ([]byte, error) {
	if c == nil {
		c = codec.Default
	}
	if img.PageSize <= 0 {
		return nil, fmt.Errorf("checkpoint: invalid page size %d", img.PageSize)
	}
	name := c.Name()
	if len(name) > 255 {
		return nil, fmt.Errorf("checkpoint: codec name %q too long", name)
	}

	h := header{TxID: img.TxID, PageSize: img.PageSize, NextPage: img.NextPage}
	pages := slices.Sorted(maps.Keys(img.Runs))
	for _, n := range pages {
		data := img.Runs[n]
		if len(data) == 0 || len(data)%img.PageSize != 0 {
			return nil, fmt.Errorf("checkpoint: run at page %d has %d bytes", n, len(data))
		}
		h.Runs = append(h.Runs, run{Page: n, Pages: len(data) / img.PageSize})
	}
	hdr, err := c.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: encode header: %w", err)
	}

	hdrLen, err := conv.IntToUint32(len(hdr))
	if err != nil {
		return nil, fmt.Errorf("checkpoint: header: %w", err)
	}
	metaLen, err := conv.IntToUint32(len(img.Meta))
	if err != nil {
		return nil, fmt.Errorf("checkpoint: meta: %w", err)
	}

	body := make([]byte, 0, 8+len(hdr)+len(img.Meta)+int(img.Bytes()))
	body = binary.LittleEndian.AppendUint32(body, hdrLen)
	body = append(body, hdr...)
	body = binary.LittleEndian.AppendUint32(body, metaLen)
	body = append(body, img.Meta...)
	for _, n := range pages {
		body = append(body, img.Runs[n]...)
	}

	packed, applied, err := compress(body, comp)
	if err != nil {
		return nil, err
	}

	out := make([]byte, frameSize+len(name), frameSize+len(name)+len(packed))
	copy(out[0:4], magic)
	out[4] = formatVersion
	out[5] = byte(applied)
	out[6] = byte(len(name))
	binary.LittleEndian.PutUint64(out[8:16], uint64(len(body)))
	binary.LittleEndian.PutUint32(out[16:20], hash.CRC32C(body))
	copy(out[frameSize:], name)
	binary.LittleEndian.PutUint32(out[20:24], frameChecksum(out))
	return append(out, packed...), nil
}

func frameChecksum(frame []byte) uint32 {
	crc := hash.CRC32C(frame[0:20])
	return hash.UpdateCRC32C(crc, frame[frameSize:frameSize+int(frame[6])])
}

// Decode parses and validates a blob produced by Encode. The returned runs
// do not alias data.
func Decode(data []byte) (*Image, error) {
	if len(data) < frameSize {
		return nil, corrupt("blob of %d bytes is shorter than the frame", len(data))
	}
	if string(data[0:4]) != magic {
		return nil, corrupt("bad magic %q", data[0:4])
	}
	if data[4] != formatVersion {
		return nil, corrupt("unsupported format version %d", data[4])
	}
	nameLen := int(data[6])
	if len(data) < frameSize+nameLen {
		return nil, corrupt("truncated codec name")
	}
	if got, want := frameChecksum(data), binary.LittleEndian.Uint32(data[20:24]); got != want {
		return nil, corrupt("frame checksum %08x, want %08x", got, want)
	}
	name := string(data[frameSize : frameSize+nameLen])
	c, ok := codec.ByName(name)
	if !ok {
		return nil, corrupt("unknown codec %q", name)
	}

	raw := binary.LittleEndian.Uint64(data[8:16])
	size, err := conv.Uint64ToInt(raw)
	if err != nil || raw > 1<<40 {
		return nil, corrupt("body size %d", raw)
	}
	body, err := decompress(data[frameSize+nameLen:], Compression(data[5]), size)
	if err != nil {
		return nil, corrupt("%s body: %v", Compression(data[5]), err)
	}
	if got, want := hash.CRC32C(body), binary.LittleEndian.Uint32(data[16:20]); got != want {
		return nil, corrupt("body checksum %08x, want %08x", got, want)
	}

	hdr, rest, err := section(body)
	if err != nil {
		return nil, err
	}
	var h header
	if err := c.Unmarshal(hdr, &h); err != nil {
		return nil, corrupt("header: %v", err)
	}
	meta, pages, err := section(rest)
	if err != nil {
		return nil, err
	}
	if h.PageSize <= 0 {
		return nil, corrupt("page size %d", h.PageSize)
	}

	img := &Image{
		TxID:     h.TxID,
		PageSize: h.PageSize,
		NextPage: h.NextPage,
		Runs:     make(map[uint64][]byte, len(h.Runs)),
		Meta:     slices.Clone(meta),
		Codec:    name,
	}
	for _, r := range h.Runs {
		n := r.Pages * h.PageSize
		if r.Pages <= 0 || n > len(pages) {
			return nil, corrupt("run at page %d exceeds body", r.Page)
		}
		img.Runs[r.Page] = slices.Clone(pages[:n])
		pages = pages[n:]
	}
	if len(pages) != 0 {
		return nil, corrupt("%d trailing bytes", len(pages))
	}
	return img, nil
}

func section(b []byte) ([]byte, []byte, error) {
	if len(b) < 4 {
		return nil, nil, corrupt("truncated section length")
	}
	n := int(binary.LittleEndian.Uint32(b))
	if len(b)-4 < n {
		return nil, nil, corrupt("section of %d bytes exceeds body", n)
	}
	return b[4 : 4+n], b[4+n:], nil
}
