package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/postings/blobstore"
	"github.com/hupe1980/postings/codec"
	"github.com/hupe1980/postings/internal/resource"
)

func testImage() *Image {
	const pageSize = 64
	return &Image{
		TxID:     7,
		PageSize: pageSize,
		NextPage: 10,
		Runs: map[uint64][]byte{
			1: bytes.Repeat([]byte{0xAB}, pageSize),
			3: bytes.Repeat([]byte{1, 2, 3, 4}, 3*pageSize/4),
			9: make([]byte, pageSize),
		},
		Meta: []byte(`{"terms":2}`),
	}
}

func TestEncodeDecode(t *testing.T) {
	for _, comp := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		for _, c := range []codec.Codec{codec.JSON{}, codec.GoJSON{}} {
			t.Run(comp.String()+"/"+c.Name(), func(t *testing.T) {
				img := testImage()
				data, err := Encode(img, comp, c)
				require.NoError(t, err)

				got, err := Decode(data)
				require.NoError(t, err)
				assert.Equal(t, c.Name(), got.Codec)
				img.Codec = c.Name()
				assert.Equal(t, img, got)
			})
		}
	}
}

func TestEncodeRejectsPartialPages(t *testing.T) {
	img := testImage()
	img.Runs[20] = make([]byte, 10)
	_, err := Encode(img, CompressionNone, nil)
	require.Error(t, err)
}

func TestDecodeDetectsCorruption(t *testing.T) {
	data, err := Encode(testImage(), CompressionZstd, nil)
	require.NoError(t, err)

	cases := map[string]func([]byte) []byte{
		"truncated frame": func(b []byte) []byte { return b[:10] },
		"bad magic":       func(b []byte) []byte { b[0] = 'X'; return b },
		"header flip":     func(b []byte) []byte { b[9] ^= 0xFF; return b },
		"body flip":       func(b []byte) []byte { b[len(b)-1] ^= 0xFF; return b },
		"truncated body":  func(b []byte) []byte { return b[:len(b)-3] },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(mutate(bytes.Clone(data)))
			require.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("LZ4")
	require.NoError(t, err)
	assert.Equal(t, CompressionLZ4, c)

	c, err = ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, c)

	_, err = ParseCompression("brotli")
	require.Error(t, err)
}

func TestNames(t *testing.T) {
	name := Name(42)
	assert.Equal(t, "checkpoints/00000000000000000042", name)

	seq, ok := ParseName(name)
	require.True(t, ok)
	assert.Equal(t, uint64(42), seq)

	_, ok = ParseName("checkpoints/42")
	assert.False(t, ok)
	_, ok = ParseName(CurrentName)
	assert.False(t, ok)
}

func TestManagerSaveLoad(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	m := NewManager(store, WithCompression(CompressionLZ4))

	_, _, err := m.Load(ctx)
	require.ErrorIs(t, err, ErrNoCheckpoint)

	img := testImage()
	info, err := m.Save(ctx, img)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Seq)
	assert.Equal(t, img.Bytes(), info.RawSize)

	img.TxID = 8
	info, err = m.Save(ctx, img)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.Seq)

	got, loaded, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, info.Name, loaded.Name)
	assert.Equal(t, uint64(8), got.TxID)

	infos, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, uint64(1), infos[0].Seq)
}

func TestManagerRetention(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewLocalStore(t.TempDir())
	m := NewManager(store, WithRetention(2))

	for i := 0; i < 5; i++ {
		_, err := m.Save(ctx, testImage())
		require.NoError(t, err)
	}

	infos, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, uint64(4), infos[0].Seq)
	assert.Equal(t, uint64(5), infos[1].Seq)

	_, info, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), info.Seq)
}

func TestManagerConcurrentClaim(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	m := NewManager(store)

	// Another writer sneaks in between listing and writing.
	racing := &racingStore{MemoryStore: store}
	racing.beforePut = func(name string) {
		racing.beforePut = nil
		require.NoError(t, store.Put(ctx, name, []byte("other")))
	}
	m.store = racing

	_, err := m.Save(ctx, testImage())
	require.ErrorIs(t, err, ErrConcurrentCheckpoint)

	_, err = m.Current(ctx)
	require.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestManagerCorruptCurrent(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	m := NewManager(store)

	info, err := m.Save(ctx, testImage())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, info.Name, []byte("garbage that is long enough to parse")))
	_, _, err = m.Load(ctx)
	require.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, store.Put(ctx, CurrentName, []byte("elsewhere")))
	_, _, err = m.Load(ctx)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestManagerBusy(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{MaxBackgroundWorkers: 1})
	require.NoError(t, rc.TryAcquireBackground())

	m := NewManager(blobstore.NewMemoryStore(), WithController(rc))
	_, err := m.Save(ctx, testImage())
	require.ErrorIs(t, err, resource.ErrBusy)

	rc.ReleaseBackground()
	_, err = m.Save(ctx, testImage())
	require.NoError(t, err)
}

func TestManagerMemoryLimit(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 16})
	m := NewManager(blobstore.NewMemoryStore(), WithController(rc))
	_, err := m.Save(context.Background(), testImage())
	require.True(t, errors.Is(err, resource.ErrMemoryLimitExceeded))
	assert.Zero(t, rc.MemoryUsage())
}

type racingStore struct {
	*blobstore.MemoryStore
	beforePut func(name string)
}

func (s *racingStore) PutIfAbsent(ctx context.Context, name string, data []byte) error {
	if s.beforePut != nil {
		s.beforePut(name)
	}
	return s.MemoryStore.PutIfAbsent(ctx, name, data)
}

var errFlaky = errors.New("flaky: unavailable")

type flakyStore struct {
	*blobstore.MemoryStore
	failures int
	calls    int
}

func (s *flakyStore) fail() error {
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errFlaky
	}
	return nil
}

func (s *flakyStore) Put(ctx context.Context, name string, data []byte) error {
	if err := s.fail(); err != nil {
		return err
	}
	return s.MemoryStore.Put(ctx, name, data)
}

func (s *flakyStore) PutIfAbsent(ctx context.Context, name string, data []byte) error {
	if err := s.fail(); err != nil {
		return err
	}
	return s.MemoryStore.PutIfAbsent(ctx, name, data)
}

func (s *flakyStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	return s.MemoryStore.Open(ctx, name)
}

func TestManagerRetry(t *testing.T) {
	ctx := context.Background()

	store := &flakyStore{MemoryStore: blobstore.NewMemoryStore(), failures: 2}
	_, err := NewManager(store).Save(ctx, testImage())
	require.ErrorIs(t, err, errFlaky)

	store = &flakyStore{MemoryStore: blobstore.NewMemoryStore(), failures: 2}
	m := NewManager(store, WithRetry(3, time.Millisecond))
	info, err := m.Save(ctx, testImage())
	require.NoError(t, err)
	assert.Equal(t, 4, store.calls) // two failures, blob, CURRENT

	store.failures = 1
	_, loaded, err := m.LoadName(ctx, info.Name)
	require.NoError(t, err)
	assert.Equal(t, info.Seq, loaded.Seq)

	store.failures = 10
	_, _, err = m.LoadName(ctx, info.Name)
	require.ErrorIs(t, err, errFlaky)
}

func TestManagerRetryStopsOnMissingBlob(t *testing.T) {
	store := &flakyStore{MemoryStore: blobstore.NewMemoryStore()}
	m := NewManager(store, WithRetry(5, time.Millisecond))

	_, _, err := m.LoadName(context.Background(), Name(3))
	require.ErrorIs(t, err, blobstore.ErrNotFound)
	assert.Equal(t, 1, store.calls)
}
