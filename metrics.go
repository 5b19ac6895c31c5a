package postings

import (
	"sync/atomic"
	"time"
)

// CommitStats summarizes the work of one Writer.Commit.
type CommitStats struct {
	Terms    int // terms touched
	Added    int64
	Removed  int64
	Promoted int // terms moved to a larger representation
	Demoted  int // terms moved to a smaller representation
	Dropped  int // terms that became empty

	PagesAllocated int64
	PagesFreed     int64
	Splits         int64
	Merges         int64
}

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; see
// PrometheusCollector.
type MetricsCollector interface {
	// RecordCommit is called after each commit.
	RecordCommit(stats CommitStats, duration time.Duration, err error)

	// RecordQuery is called after each And, Search or Evaluate query.
	// terms is the number of terms, results the number of matches returned.
	RecordQuery(terms, results int, duration time.Duration, err error)

	// RecordCheckpoint is called after each checkpoint. bytes is the stored size.
	RecordCheckpoint(bytes int64, duration time.Duration, err error)

	// RecordRestore is called after Open restored a checkpoint.
	RecordRestore(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCommit(CommitStats, time.Duration, error) {}
func (NoopMetricsCollector) RecordQuery(int, int, time.Duration, error)     {}
func (NoopMetricsCollector) RecordCheckpoint(int64, time.Duration, error)   {}
func (NoopMetricsCollector) RecordRestore(time.Duration, error)             {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CommitCount      atomic.Int64
	CommitErrors     atomic.Int64
	CommitTotalNanos atomic.Int64
	EntriesAdded     atomic.Int64
	EntriesRemoved   atomic.Int64
	PagesAllocated   atomic.Int64
	PagesFreed       atomic.Int64
	QueryCount       atomic.Int64
	QueryErrors      atomic.Int64
	QueryTotalNanos  atomic.Int64
	QueryResults     atomic.Int64
	CheckpointCount  atomic.Int64
	CheckpointErrors atomic.Int64
	CheckpointBytes  atomic.Int64
	RestoreCount     atomic.Int64
	RestoreErrors    atomic.Int64
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(stats CommitStats, duration time.Duration, err error) {
	b.CommitCount.Add(1)
	b.CommitTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CommitErrors.Add(1)
		return
	}
	b.EntriesAdded.Add(stats.Added)
	b.EntriesRemoved.Add(stats.Removed)
	b.PagesAllocated.Add(stats.PagesAllocated)
	b.PagesFreed.Add(stats.PagesFreed)
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(_, results int, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.QueryErrors.Add(1)
		return
	}
	b.QueryResults.Add(int64(results))
}

// RecordCheckpoint implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCheckpoint(bytes int64, _ time.Duration, err error) {
	b.CheckpointCount.Add(1)
	if err != nil {
		b.CheckpointErrors.Add(1)
		return
	}
	b.CheckpointBytes.Add(bytes)
}

// RecordRestore implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRestore(_ time.Duration, err error) {
	b.RestoreCount.Add(1)
	if err != nil {
		b.RestoreErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CommitCount:      b.CommitCount.Load(),
		CommitErrors:     b.CommitErrors.Load(),
		CommitAvgNanos:   avg(b.CommitTotalNanos.Load(), b.CommitCount.Load()),
		EntriesAdded:     b.EntriesAdded.Load(),
		EntriesRemoved:   b.EntriesRemoved.Load(),
		PagesAllocated:   b.PagesAllocated.Load(),
		PagesFreed:       b.PagesFreed.Load(),
		QueryCount:       b.QueryCount.Load(),
		QueryErrors:      b.QueryErrors.Load(),
		QueryAvgNanos:    avg(b.QueryTotalNanos.Load(), b.QueryCount.Load()),
		QueryResults:     b.QueryResults.Load(),
		CheckpointCount:  b.CheckpointCount.Load(),
		CheckpointErrors: b.CheckpointErrors.Load(),
		CheckpointBytes:  b.CheckpointBytes.Load(),
		RestoreCount:     b.RestoreCount.Load(),
		RestoreErrors:    b.RestoreErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	CommitCount      int64
	CommitErrors     int64
	CommitAvgNanos   int64
	EntriesAdded     int64
	EntriesRemoved   int64
	PagesAllocated   int64
	PagesFreed       int64
	QueryCount       int64
	QueryErrors      int64
	QueryAvgNanos    int64
	QueryResults     int64
	CheckpointCount  int64
	CheckpointErrors int64
	CheckpointBytes  int64
	RestoreCount     int64
	RestoreErrors    int64
}
