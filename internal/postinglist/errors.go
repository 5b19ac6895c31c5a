package postinglist

import "errors"

var (
	// ErrInvalidArgument is returned for negative values.
	ErrInvalidArgument = errors.New("postinglist: invalid argument")
	// ErrConsistencyViolation is returned when page bookkeeping breaks an internal invariant.
	ErrConsistencyViolation = errors.New("postinglist: consistency violation")
	// ErrPreconditionViolation is returned when iterating with uncommitted changes.
	ErrPreconditionViolation = errors.New("postinglist: precondition violation")
	// ErrReadOnly is returned when mutating through a read handle.
	ErrReadOnly = errors.New("postinglist: read-only handle")
	// ErrClosed is returned when using a closed handle.
	ErrClosed = errors.New("postinglist: handle closed")
)
