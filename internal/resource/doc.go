// Package resource bounds the work done by checkpoints and restores.
//
//   - Memory: checkpoint images are accounted against a hard limit and fail
//     fast with ErrMemoryLimitExceeded instead of blocking.
//   - Background: a weighted semaphore caps concurrent checkpoints.
//   - IO: a token bucket throttles checkpoint uploads so they do not starve
//     query traffic sharing the same link.
//
// A nil *Controller imposes no limits, so callers never need nil checks:
//
//	var rc *resource.Controller
//	_ = rc.AcquireIO(ctx, len(data)) // no-op
package resource
