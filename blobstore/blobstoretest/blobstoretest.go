// Package blobstoretest provides a conformance suite for blobstore.BlobStore
// implementations.
package blobstoretest

import (
	"context"
	"testing"

	"github.com/hupe1980/postings/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises the behavior every BlobStore must provide. The store must be
// empty.
func Run(t *testing.T, s blobstore.BlobStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("OpenMissing", func(t *testing.T) {
		_, err := s.Open(ctx, "missing")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	t.Run("PutOpenRead", func(t *testing.T) {
		data := []byte("posting list checkpoint payload")
		require.NoError(t, s.Put(ctx, "checkpoints/00000000000000000001", data))

		b, err := s.Open(ctx, "checkpoints/00000000000000000001")
		require.NoError(t, err)
		defer b.Close()
		assert.Equal(t, int64(len(data)), b.Size())

		buf := make([]byte, 4)
		n, err := b.ReadAt(ctx, buf, 8)
		require.NoError(t, err)
		assert.Equal(t, "list", string(buf[:n]))

		all, err := blobstore.ReadAll(ctx, s, "checkpoints/00000000000000000001")
		require.NoError(t, err)
		assert.Equal(t, data, all)
	})

	t.Run("PutReplaces", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "CURRENT", []byte("checkpoints/00000000000000000001")))
		require.NoError(t, s.Put(ctx, "CURRENT", []byte("checkpoints/00000000000000000002")))
		got, err := blobstore.ReadAll(ctx, s, "CURRENT")
		require.NoError(t, err)
		assert.Equal(t, "checkpoints/00000000000000000002", string(got))
	})

	t.Run("PutCopiesInput", func(t *testing.T) {
		data := []byte("abc")
		require.NoError(t, s.Put(ctx, "copy", data))
		data[0] = 'x'
		got, err := blobstore.ReadAll(ctx, s, "copy")
		require.NoError(t, err)
		assert.Equal(t, "abc", string(got))
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "checkpoints/00000000000000000002", []byte("2")))
		names, err := s.List(ctx, "checkpoints/")
		require.NoError(t, err)
		assert.Equal(t, []string{
			"checkpoints/00000000000000000001",
			"checkpoints/00000000000000000002",
		}, names)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "checkpoints/00000000000000000001"))
		require.NoError(t, s.Delete(ctx, "checkpoints/00000000000000000001"))
		_, err := s.Open(ctx, "checkpoints/00000000000000000001")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)

		names, err := s.List(ctx, "checkpoints/")
		require.NoError(t, err)
		assert.Equal(t, []string{"checkpoints/00000000000000000002"}, names)
	})
}

// RunConditional exercises PutIfAbsent. The store must be empty.
func RunConditional(t *testing.T, s blobstore.ConditionalStore) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.PutIfAbsent(ctx, "checkpoints/00000000000000000009", []byte("first")))
	err := s.PutIfAbsent(ctx, "checkpoints/00000000000000000009", []byte("second"))
	assert.ErrorIs(t, err, blobstore.ErrExists)

	got, err := blobstore.ReadAll(ctx, s, "checkpoints/00000000000000000009")
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))
}
