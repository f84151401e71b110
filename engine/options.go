package engine

import (
	"time"

	"github.com/quivigo/quivigo/blobstore"
	"github.com/quivigo/quivigo/codec"
	"github.com/quivigo/quivigo/hnsw"
	"github.com/quivigo/quivigo/persistence"
)

const (
	// DefaultMaxBatchSize is the pending-mutation count that triggers an
	// immediate flush.
	DefaultMaxBatchSize = 50

	// DefaultBatchDelay is how long pending mutations may sit before a
	// flush is forced.
	DefaultBatchDelay = 5 * time.Second

	// DefaultCacheTTL is how long an owner stays cached after its last
	// touch.
	DefaultCacheTTL = 30 * time.Minute

	// DefaultSweepInterval is how often the background sweeper checks for
	// due flushes and expired owners.
	DefaultSweepInterval = time.Second

	// DefaultRetryRate caps background flush retries per second across all
	// owners.
	DefaultRetryRate = 2
)

// Options configures a Coordinator.
type Options struct {
	// Store persists index snapshots. Defaults to an in-memory store.
	Store blobstore.Store

	// VersionStore tracks the committed snapshot per owner.
	// Defaults to an in-process store.
	VersionStore VersionStore

	// Codec serializes snapshots. Defaults to gob.
	Codec codec.Codec

	// Compression is applied to serialized snapshots.
	Compression persistence.Compression

	// Dimension is the vector dimension for newly created indexes. Required.
	Dimension int

	// Index customizes newly created indexes (metric, M, ef parameters).
	Index []func(o *hnsw.Options)

	// MaxBatchSize triggers a flush once this many mutations are pending.
	MaxBatchSize int

	// BatchDelay forces a flush of pending mutations older than this.
	BatchDelay time.Duration

	// CacheTTL evicts owners untouched for this long. Dirty owners are
	// flushed before eviction and kept on flush failure.
	CacheTTL time.Duration

	// SweepInterval is the background sweeper period.
	SweepInterval time.Duration

	// RetryRate caps background flush retries per second. Zero applies the
	// default; negative disables pacing.
	RetryRate float64

	// GCSuperseded deletes a snapshot blob once a newer version for the
	// same owner has been committed.
	GCSuperseded bool

	// Logger receives structured logs. Defaults to a noop logger.
	Logger *Logger

	// Metrics receives operational metrics. Defaults to a noop collector.
	Metrics MetricsCollector
}

// DefaultOptions are the options applied before user overrides.
var DefaultOptions = Options{
	Compression:   persistence.CompressionNone,
	MaxBatchSize:  DefaultMaxBatchSize,
	BatchDelay:    DefaultBatchDelay,
	CacheTTL:      DefaultCacheTTL,
	SweepInterval: DefaultSweepInterval,
	RetryRate:     DefaultRetryRate,
	GCSuperseded:  true,
}
