package postings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/postings/codec"
	"github.com/hupe1980/postings/internal/checkpoint"
	"github.com/hupe1980/postings/internal/pager"
)

// checkpointMeta is the dictionary section of a checkpoint.
type checkpointMeta struct {
	Frequencies bool                `json:"frequencies"`
	Terms       map[string]TermInfo `json:"terms"`
	Documents   map[int64]int32     `json:"documents"`
}

// CheckpointInfo describes a stored checkpoint.
type CheckpointInfo = checkpoint.Info

// Checkpoint writes the latest committed version to the blob store and
// moves the CURRENT pointer to it. It runs concurrently with writers and
// searchers; only one checkpoint runs at a time.
func (idx *Index) Checkpoint(ctx context.Context) (info CheckpointInfo, err error) {
	if idx.ckpt == nil {
		return CheckpointInfo{}, ErrNoBlobStore
	}
	if idx.closed.Load() {
		return CheckpointInfo{}, ErrClosed
	}
	start := time.Now()
	defer func() {
		idx.metrics.RecordCheckpoint(info.Size, time.Since(start), err)
		idx.logger.LogCheckpoint(ctx, info, err)
	}()

	v := idx.current.Load()
	meta, err := idx.opts.codec.Marshal(checkpointMeta{
		Frequencies: idx.opts.frequencies,
		Terms:       v.terms,
		Documents:   v.docs.lengths,
	})
	if err != nil {
		return CheckpointInfo{}, fmt.Errorf("postings: encode dictionary: %w", err)
	}

	img := &checkpoint.Image{
		TxID:     v.snap.TxID(),
		PageSize: v.snap.PageSize(),
		NextPage: v.snap.NextPage(),
		Runs:     make(map[uint64][]byte),
		Meta:     meta,
	}
	_ = v.snap.ForEachRun(func(p pager.Page) error {
		img.Runs[p.Number] = p.Data
		return nil
	})

	info, err = idx.ckpt.Save(ctx, img)
	if err != nil {
		return CheckpointInfo{}, translateError(err)
	}
	return info, nil
}

// Checkpoints lists the stored checkpoints, oldest first.
func (idx *Index) Checkpoints(ctx context.Context) ([]CheckpointInfo, error) {
	if idx.ckpt == nil {
		return nil, ErrNoBlobStore
	}
	return idx.ckpt.List(ctx)
}

// restore loads the latest checkpoint. It reports false when the store holds
// none.
func (idx *Index) restore(ctx context.Context) (restored bool, err error) {
	start := time.Now()
	img, info, err := idx.ckpt.Load(ctx)
	if errors.Is(err, checkpoint.ErrNoCheckpoint) {
		return false, nil
	}
	defer func() {
		idx.metrics.RecordRestore(time.Since(start), err)
		var txID uint64
		if img != nil {
			txID = img.TxID
		}
		idx.logger.LogRestore(ctx, info.Name, txID, err)
	}()
	if err != nil {
		return false, translateError(err)
	}

	c, ok := codec.ByName(img.Codec)
	if !ok {
		c = idx.opts.codec
	}
	var meta checkpointMeta
	if err := c.Unmarshal(img.Meta, &meta); err != nil {
		return false, &ErrCorruptCheckpoint{Reason: "dictionary: " + err.Error(), cause: err}
	}

	store, err := pager.Load(img.PageSize, img.TxID, img.NextPage, img.Runs)
	if err != nil {
		return false, &ErrCorruptCheckpoint{Reason: err.Error(), cause: err}
	}

	docs := newDocLengths()
	for id, n := range meta.Documents {
		docs.lengths[id] = n
		docs.total += int64(n)
	}
	if meta.Terms == nil {
		meta.Terms = make(map[string]TermInfo)
	}

	idx.opts.frequencies = meta.Frequencies
	idx.store = store
	idx.current.Store(&version{snap: store.Snapshot(), terms: meta.Terms, docs: docs})
	return true, nil
}
