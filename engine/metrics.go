package engine

import (
	"sync/atomic"
	"time"
)

// MetricsCollector receives operational metrics. Implement it to integrate
// with monitoring systems; see the prom package for a Prometheus-backed
// implementation.
type MetricsCollector interface {
	// RecordQueue is called after each queued mutation.
	RecordQueue(owner string, err error)

	// RecordFlush is called after each flush attempt. applied is the number
	// of mutations written into the index.
	RecordFlush(owner string, applied int, duration time.Duration, err error)

	// RecordSearch is called after each search.
	RecordSearch(owner string, k int, duration time.Duration, err error)

	// RecordLoad is called after each snapshot load from the blob store.
	RecordLoad(owner string, duration time.Duration, err error)

	// RecordEviction is called when an idle owner is evicted from the cache.
	RecordEviction(owner string)
}

// NoopMetricsCollector discards all metrics.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordQueue(string, error)                      {}
func (NoopMetricsCollector) RecordFlush(string, int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordSearch(string, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordLoad(string, time.Duration, error)        {}
func (NoopMetricsCollector) RecordEviction(string)                          {}

// BasicMetricsCollector keeps simple in-memory counters. Useful for tests
// and debugging without an external monitoring system.
type BasicMetricsCollector struct {
	QueueCount      atomic.Int64
	QueueErrors     atomic.Int64
	FlushCount      atomic.Int64
	FlushErrors     atomic.Int64
	FlushedItems    atomic.Int64
	FlushTotalNanos atomic.Int64
	SearchCount     atomic.Int64
	SearchErrors    atomic.Int64
	LoadCount       atomic.Int64
	LoadErrors      atomic.Int64
	Evictions       atomic.Int64
}

func (b *BasicMetricsCollector) RecordQueue(_ string, err error) {
	b.QueueCount.Add(1)
	if err != nil {
		b.QueueErrors.Add(1)
	}
}

func (b *BasicMetricsCollector) RecordFlush(_ string, applied int, duration time.Duration, err error) {
	b.FlushCount.Add(1)
	b.FlushTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.FlushErrors.Add(1)
		return
	}
	b.FlushedItems.Add(int64(applied))
}

func (b *BasicMetricsCollector) RecordSearch(_ string, _ int, _ time.Duration, err error) {
	b.SearchCount.Add(1)
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

func (b *BasicMetricsCollector) RecordLoad(_ string, _ time.Duration, err error) {
	b.LoadCount.Add(1)
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

func (b *BasicMetricsCollector) RecordEviction(string) {
	b.Evictions.Add(1)
}
