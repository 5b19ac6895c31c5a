package postings

import (
	"log/slog"

	"github.com/hupe1980/postings/blobstore"
	"github.com/hupe1980/postings/codec"
	"github.com/hupe1980/postings/internal/checkpoint"
	"github.com/hupe1980/postings/internal/pager"
	"github.com/hupe1980/postings/internal/simd"
)

// DefaultSmallSetThreshold is the largest cardinality stored inline in the
// container store instead of a posting list.
const DefaultSmallSetThreshold = 64

type options struct {
	pageSize          int
	smallSetThreshold int
	accelerated       bool
	frequencies       bool
	codec             codec.Codec
	metricsCollector  MetricsCollector
	logger            *Logger

	store           blobstore.BlobStore
	compression     checkpoint.Compression
	rateLimit       int64
	memoryLimit     int64
	retention       int
	retries         int
	restoreDisabled bool
}

// Option configures Open.
type Option func(*options)

// WithPageSize sets the page size of a new index. It must be a power of two
// between 512 and 65536. Restored indexes keep their page size.
func WithPageSize(size int) Option {
	return func(o *options) {
		o.pageSize = size
	}
}

// WithSmallSetThreshold sets the largest cardinality kept inline.
// Terms above it are stored in posting lists; a posting list is demoted only
// when it shrinks below half the threshold or to a single entry.
func WithSmallSetThreshold(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.smallSetThreshold = n
		}
	}
}

// WithAcceleration enables or disables the block-wise vector intersection.
// It defaults to the detected CPU capability.
func WithAcceleration(enabled bool) Option {
	return func(o *options) {
		o.accelerated = enabled
	}
}

// WithoutFrequencies stores every posting with frequency zero and scores
// matches as if each term occurred once.
func WithoutFrequencies() Option {
	return func(o *options) {
		o.frequencies = false
	}
}

// WithCodec configures the codec used for checkpoint sections and
// inspection output.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &postings.BasicMetricsCollector{}
//	idx, _ := postings.Open(ctx, postings.WithMetricsCollector(metrics))
//	// ... use idx ...
//	stats := metrics.GetStats()
//	fmt.Printf("Commits: %d, Avg latency: %dns\n", stats.CommitCount, stats.CommitAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithBlobStore enables checkpoints. Open restores the latest checkpoint
// found in the store.
func WithBlobStore(store blobstore.BlobStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithCompression sets the checkpoint body compression. Default is zstd.
func WithCompression(c checkpoint.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithCheckpointRateLimit caps checkpoint upload throughput in bytes per
// second. 0 disables the limit.
func WithCheckpointRateLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.rateLimit = max(bytesPerSec, 0)
	}
}

// WithCheckpointMemoryLimit bounds the page bytes a checkpoint may buffer.
func WithCheckpointMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = max(bytes, 0)
	}
}

// WithCheckpointRetention keeps the newest n checkpoints. 0 keeps all.
func WithCheckpointRetention(n int) Option {
	return func(o *options) {
		o.retention = max(n, 0)
	}
}

// WithCheckpointRetry retries failed blob store calls of checkpoints and
// restores up to n times with exponential backoff.
func WithCheckpointRetry(n int) Option {
	return func(o *options) {
		o.retries = max(n, 0)
	}
}

// WithoutRestore opens an empty index even if the store holds checkpoints.
// The next checkpoint continues the sequence of the store.
func WithoutRestore() Option {
	return func(o *options) {
		o.restoreDisabled = true
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		pageSize:          pager.DefaultPageSize,
		smallSetThreshold: DefaultSmallSetThreshold,
		accelerated:       simd.Accelerated(),
		frequencies:       true,
		codec:             codec.Default,
		metricsCollector:  NoopMetricsCollector{},
		logger:            NoopLogger(),
		compression:       checkpoint.CompressionZstd,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
