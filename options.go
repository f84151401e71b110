package quivigo

import (
	"time"

	"github.com/quivigo/quivigo/blobstore"
	"github.com/quivigo/quivigo/codec"
	"github.com/quivigo/quivigo/distance"
	"github.com/quivigo/quivigo/engine"
	"github.com/quivigo/quivigo/hnsw"
	"github.com/quivigo/quivigo/persistence"
)

// Option configures an Engine.
type Option func(o *engine.Options)

// WithStore sets the blob store snapshots are persisted to.
// The default is an in-memory store.
func WithStore(store blobstore.Store) Option {
	return func(o *engine.Options) {
		o.Store = store
	}
}

// WithVersionStore sets the store tracking the committed snapshot version
// per owner. The default is in-process only.
func WithVersionStore(versions engine.VersionStore) Option {
	return func(o *engine.Options) {
		o.VersionStore = versions
	}
}

// WithCodec sets the snapshot serialization codec.
//
// If nil is passed, the default codec is kept.
func WithCodec(c codec.Codec) Option {
	return func(o *engine.Options) {
		if c != nil {
			o.Codec = c
		}
	}
}

// WithCompression sets the snapshot compression scheme.
func WithCompression(c persistence.Compression) Option {
	return func(o *engine.Options) {
		o.Compression = c
	}
}

// WithMetric sets the distance metric for newly created indexes.
func WithMetric(m distance.Metric) Option {
	return func(o *engine.Options) {
		o.Index = append(o.Index, func(io *hnsw.Options) {
			io.Metric = m
		})
	}
}

// WithM sets the graph connectivity of newly created indexes.
func WithM(m int) Option {
	return func(o *engine.Options) {
		o.Index = append(o.Index, func(io *hnsw.Options) {
			io.M = m
		})
	}
}

// WithEFConstruction sets the construction-time candidate list size of newly
// created indexes. Higher values build better graphs more slowly.
func WithEFConstruction(ef int) Option {
	return func(o *engine.Options) {
		o.Index = append(o.Index, func(io *hnsw.Options) {
			io.EFConstruction = ef
		})
	}
}

// WithEFSearch sets the default search-time candidate list size.
func WithEFSearch(ef int) Option {
	return func(o *engine.Options) {
		o.Index = append(o.Index, func(io *hnsw.Options) {
			io.EFSearch = ef
		})
	}
}

// WithRandomSeed seeds level generation in newly created indexes, making
// graph construction reproducible. Intended for tests.
func WithRandomSeed(seed int64) Option {
	return func(o *engine.Options) {
		o.Index = append(o.Index, func(io *hnsw.Options) {
			io.RandomSeed = &seed
		})
	}
}

// WithIndexOptions applies arbitrary index option overrides for callers that
// need more than the dedicated setters.
func WithIndexOptions(fns ...func(o *hnsw.Options)) Option {
	return func(o *engine.Options) {
		o.Index = append(o.Index, fns...)
	}
}

// WithMaxBatchSize sets how many pending mutations trigger an immediate
// flush.
func WithMaxBatchSize(n int) Option {
	return func(o *engine.Options) {
		o.MaxBatchSize = n
	}
}

// WithBatchDelay sets how long pending mutations may sit before a flush is
// forced.
func WithBatchDelay(d time.Duration) Option {
	return func(o *engine.Options) {
		o.BatchDelay = d
	}
}

// WithCacheTTL sets how long an idle owner stays cached.
func WithCacheTTL(d time.Duration) Option {
	return func(o *engine.Options) {
		o.CacheTTL = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *engine.Logger) Option {
	return func(o *engine.Options) {
		o.Logger = l
	}
}

// WithMetrics sets the metrics collector. See the prom package for a
// Prometheus-backed implementation.
func WithMetrics(m engine.MetricsCollector) Option {
	return func(o *engine.Options) {
		o.Metrics = m
	}
}
