package rodb

import (
	"log/slog"

	"github.com/hupe1980/rodb/codec"
	"github.com/hupe1980/rodb/internal/fs"
)

type options struct {
	readOnly         bool
	pageMultiplier   int
	cacheCapacity    int
	memoryLimit      int64
	indexIOLimit     int64
	indexCompression string
	buckets          int
	codec            codec.Codec
	fs               fs.FileSystem
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures Create and Open.
type Option func(*options)

// WithReadOnly opens every store read-only. Saving an object or flushing
// fails with ErrReadOnly; Close skips the flush.
//
// Create ignores the option.
func WithReadOnly() Option {
	return func(o *options) {
		o.readOnly = true
	}
}

// WithPageMultiplier sets the store page size to multiplier times the host
// page size. It only affects Create; Open uses the page size recorded in
// the database.
func WithPageMultiplier(multiplier int) Option {
	return func(o *options) {
		o.pageMultiplier = multiplier
	}
}

// WithCacheCapacity bounds the identity map of every container. Objects
// with unsaved changes are never dropped. Zero (the default) keeps every
// loaded object until Evict.
func WithCacheCapacity(capacity int) Option {
	return func(o *options) {
		o.cacheCapacity = capacity
	}
}

// WithMemoryLimit bounds the memory held by loaded index buckets.
// Clean buckets are released when the budget is exceeded.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithIndexIOLimit throttles index flushes to bytes per second.
func WithIndexIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.indexIOLimit = bytesPerSec
	}
}

// WithIndexCompression selects the block compression of index files:
// "none", "snappy", "lz4" or "zstd".
//
// Example:
//
//	db, err := rodb.Create("./data", resources, rodb.WithIndexCompression("zstd"))
func WithIndexCompression(name string) Option {
	return func(o *options) {
		o.indexCompression = name
	}
}

// WithBuckets sets the bucket count of segmented indexes.
// The count must stay the same for the lifetime of an index.
func WithBuckets(n int) Option {
	return func(o *options) {
		o.buckets = n
	}
}

// WithCodec configures the codec used for object fields and index files.
//
// Create defaults to codec.Default. Open defaults to the built-in codec
// recorded in the manifest; a custom codec must be passed again, under the
// same name.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithFileSystem replaces the file system used by stores and flat or
// segmented indexes. It exists for fault injection in tests.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &rodb.BasicMetricsCollector{}
//	db, _ := rodb.Open("./data", resources, rodb.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Saves: %d, Avg latency: %dns\n", stats.SaveCount, stats.SaveAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := rodb.NewJSONLogger(slog.LevelInfo)
//	db, _ := rodb.Open("./data", resources, rodb.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
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

func applyOptions(optFns []Option) options {
	o := options{
		fs:               fs.Default,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.fs == nil {
		o.fs = fs.Default
	}
	return o
}
