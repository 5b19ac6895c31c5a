package postings

import (
	"errors"
	"fmt"

	"github.com/hupe1980/postings/internal/checkpoint"
	"github.com/hupe1980/postings/internal/pager"
	"github.com/hupe1980/postings/internal/postinglist"
)

var (
	// ErrInvalidArgument is returned for negative or out of range ids and
	// frequencies and for empty terms.
	ErrInvalidArgument = postinglist.ErrInvalidArgument
	// ErrConsistencyViolation is returned when a posting list breaks a
	// structural invariant while committing.
	ErrConsistencyViolation = postinglist.ErrConsistencyViolation
	// ErrPreconditionViolation is returned when an operation requires
	// committed state.
	ErrPreconditionViolation = postinglist.ErrPreconditionViolation
	// ErrReadOnly is returned when mutating through a read handle.
	ErrReadOnly = postinglist.ErrReadOnly
	// ErrClosed is returned after Close or after a writer finished.
	ErrClosed = errors.New("postings: closed")
	// ErrNotFound is returned for unknown terms where a term is required.
	ErrNotFound = errors.New("postings: not found")
	// ErrNoBlobStore is returned by Checkpoint without WithBlobStore.
	ErrNoBlobStore = errors.New("postings: no blob store configured")
)

// ErrCorruptCheckpoint indicates a checkpoint that failed validation.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrCorruptCheckpoint struct {
	Reason string
	cause  error
}

func (e *ErrCorruptCheckpoint) Error() string {
	return fmt.Sprintf("corrupt checkpoint: %s", e.Reason)
}

func (e *ErrCorruptCheckpoint) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, checkpoint.ErrCorrupt) {
		return &ErrCorruptCheckpoint{Reason: err.Error(), cause: err}
	}
	if errors.Is(err, pager.ErrClosed) || errors.Is(err, postinglist.ErrClosed) || errors.Is(err, pager.ErrTxDone) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	if errors.Is(err, pager.ErrInvalidPageSize) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	return err
}
