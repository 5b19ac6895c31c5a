package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hupe1980/postings/blobstore"
	"github.com/hupe1980/postings/codec"
	"github.com/hupe1980/postings/internal/resource"
)

const (
	// Prefix is the name prefix of checkpoint blobs.
	Prefix = "checkpoints/"
	// CurrentName is the pointer to the latest checkpoint.
	CurrentName = "CURRENT"
)

var (
	// ErrNoCheckpoint is returned by Load when no checkpoint was written yet.
	ErrNoCheckpoint = errors.New("checkpoint: none available")
	// ErrConcurrentCheckpoint is returned when another writer claimed the
	// sequence number first.
	ErrConcurrentCheckpoint = errors.New("checkpoint: concurrent checkpoint")
)

// Info describes a stored checkpoint.
type Info struct {
	Name    string
	Seq     uint64
	Size    int64 // stored bytes
	RawSize int64 // page bytes before compression
}

// Manager writes and reads checkpoints in a blob store.
type Manager struct {
	store       blobstore.BlobStore
	compression Compression
	codec       codec.Codec
	rc          *resource.Controller
	keep        int

	retries uint64
	initial time.Duration
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCompression sets the body compression. Default is zstd.
func WithCompression(c Compression) ManagerOption {
	return func(m *Manager) { m.compression = c }
}

// WithCodec sets the codec of the header section.
func WithCodec(c codec.Codec) ManagerOption {
	return func(m *Manager) {
		if c != nil {
			m.codec = c
		}
	}
}

// WithController throttles uploads and accounts encode buffers.
func WithController(rc *resource.Controller) ManagerOption {
	return func(m *Manager) { m.rc = rc }
}

// WithRetention keeps the newest n checkpoints after each Save. 0 keeps all.
func WithRetention(n int) ManagerOption {
	return func(m *Manager) { m.keep = max(n, 0) }
}

// WithRetry retries failed blob reads and writes up to n times with
// exponential backoff starting at initial. Missing blobs and lost claims are
// not retried.
func WithRetry(n int, initial time.Duration) ManagerOption {
	return func(m *Manager) {
		m.retries = uint64(max(n, 0))
		if initial > 0 {
			m.initial = initial
		}
	}
}

// NewManager creates a manager over store.
func NewManager(store blobstore.BlobStore, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:       store,
		compression: CompressionZstd,
		codec:       codec.Default,
		initial:     100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the blob name of sequence seq.
func Name(seq uint64) string {
	return fmt.Sprintf("%s%020d", Prefix, seq)
}

// ParseName extracts the sequence from a blob name.
func ParseName(name string) (uint64, bool) {
	s, ok := strings.CutPrefix(name, Prefix)
	if !ok || len(s) != 20 {
		return 0, false
	}
	seq, err := strconv.ParseUint(s, 10, 64)
	return seq, err == nil
}

// Save writes img as the next checkpoint and moves CURRENT to it.
// Only one Save runs at a time per controller; a second one fails with
// resource.ErrBusy.
func (m *Manager) Save(ctx context.Context, img *Image) (Info, error) {
	if err := m.rc.TryAcquireBackground(); err != nil {
		return Info{}, fmt.Errorf("checkpoint: save: %w", err)
	}
	defer m.rc.ReleaseBackground()

	raw := img.Bytes()
	if err := m.rc.AcquireMemory(raw); err != nil {
		return Info{}, fmt.Errorf("checkpoint: save: %w", err)
	}
	defer m.rc.ReleaseMemory(raw)

	data, err := Encode(img, m.compression, m.codec)
	if err != nil {
		return Info{}, err
	}

	seq, err := m.nextSeq(ctx)
	if err != nil {
		return Info{}, err
	}
	name := Name(seq)

	if err := m.rc.AcquireIO(ctx, len(data)); err != nil {
		return Info{}, err
	}
	err = m.retry(ctx, func() error {
		if cs, ok := m.store.(blobstore.ConditionalStore); ok {
			return cs.PutIfAbsent(ctx, name, data)
		}
		return m.store.Put(ctx, name, data)
	})
	if errors.Is(err, blobstore.ErrExists) {
		return Info{}, fmt.Errorf("%w: %s", ErrConcurrentCheckpoint, name)
	}
	if err != nil {
		return Info{}, fmt.Errorf("checkpoint: put %s: %w", name, err)
	}

	err = m.retry(ctx, func() error {
		return m.store.Put(ctx, CurrentName, []byte(name))
	})
	if err != nil {
		return Info{}, fmt.Errorf("checkpoint: update %s: %w", CurrentName, err)
	}

	if m.keep > 0 {
		if _, err := m.Prune(ctx, m.keep); err != nil {
			return Info{}, err
		}
	}
	return Info{Name: name, Seq: seq, Size: int64(len(data)), RawSize: raw}, nil
}

// retry runs op under the retry policy.
func (m *Manager) retry(ctx context.Context, op func() error) error {
	if m.retries == 0 {
		return op()
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = m.initial
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, m.retries), ctx)
	return backoff.Retry(func() error {
		err := op()
		if errors.Is(err, blobstore.ErrExists) || errors.Is(err, blobstore.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func (m *Manager) nextSeq(ctx context.Context) (uint64, error) {
	infos, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(infos) == 0 {
		return 1, nil
	}
	return infos[len(infos)-1].Seq + 1, nil
}

// Current returns the name CURRENT points to.
func (m *Manager) Current(ctx context.Context) (string, error) {
	b, err := blobstore.ReadAll(ctx, m.store, CurrentName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return "", ErrNoCheckpoint
		}
		return "", fmt.Errorf("checkpoint: read %s: %w", CurrentName, err)
	}
	name := strings.TrimSpace(string(b))
	if _, ok := ParseName(name); !ok {
		return "", corrupt("%s names %q", CurrentName, name)
	}
	return name, nil
}

// Load reads the checkpoint CURRENT points to.
func (m *Manager) Load(ctx context.Context) (*Image, Info, error) {
	name, err := m.Current(ctx)
	if err != nil {
		return nil, Info{}, err
	}
	return m.LoadName(ctx, name)
}

// LoadName reads a specific checkpoint.
func (m *Manager) LoadName(ctx context.Context, name string) (*Image, Info, error) {
	seq, ok := ParseName(name)
	if !ok {
		return nil, Info{}, fmt.Errorf("checkpoint: invalid name %q", name)
	}
	var data []byte
	err := m.retry(ctx, func() (err error) {
		data, err = blobstore.ReadAll(ctx, m.store, name)
		return err
	})
	if err != nil {
		return nil, Info{}, fmt.Errorf("checkpoint: read %s: %w", name, err)
	}
	img, err := Decode(data)
	if err != nil {
		return nil, Info{}, fmt.Errorf("%s: %w", name, err)
	}
	return img, Info{Name: name, Seq: seq, Size: int64(len(data)), RawSize: img.Bytes()}, nil
}

// List returns the stored checkpoints, oldest first. Size is the stored
// size; RawSize is not known without decoding and left zero.
func (m *Manager) List(ctx context.Context) ([]Info, error) {
	names, err := m.store.List(ctx, Prefix)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list: %w", err)
	}
	infos := make([]Info, 0, len(names))
	for _, name := range names {
		seq, ok := ParseName(name)
		if !ok {
			continue
		}
		infos = append(infos, Info{Name: name, Seq: seq})
	}
	return infos, nil
}

// Prune deletes all but the newest keep checkpoints. The checkpoint CURRENT
// points to is never deleted. It returns the number of deleted blobs.
func (m *Manager) Prune(ctx context.Context, keep int) (int, error) {
	infos, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	current, err := m.Current(ctx)
	if err != nil && !errors.Is(err, ErrNoCheckpoint) {
		return 0, err
	}
	deleted := 0
	for i := 0; i < len(infos)-keep; i++ {
		if infos[i].Name == current {
			continue
		}
		if err := m.store.Delete(ctx, infos[i].Name); err != nil {
			return deleted, fmt.Errorf("checkpoint: delete %s: %w", infos[i].Name, err)
		}
		deleted++
	}
	return deleted, nil
}
