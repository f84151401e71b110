// Package prom exposes engine metrics to Prometheus. The collector
// implements engine.MetricsCollector, so wiring it in is one option:
//
//	c, err := engine.New(dim, func(o *engine.Options) {
//	    o.Metrics = prom.NewCollector(prometheus.DefaultRegisterer)
//	})
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements engine.MetricsCollector on Prometheus primitives.
type Collector struct {
	queueTotal    *prometheus.CounterVec
	flushTotal    *prometheus.CounterVec
	flushedItems  *prometheus.CounterVec
	flushDuration *prometheus.HistogramVec
	searchTotal   *prometheus.CounterVec
	searchSeconds *prometheus.HistogramVec
	loadTotal     *prometheus.CounterVec
	loadDuration  *prometheus.HistogramVec
	evictions     *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		queueTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quivigo_queue_total",
				Help: "Total number of queued mutations",
			},
			[]string{"owner", "status"},
		),
		flushTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quivigo_flush_total",
				Help: "Total number of flush attempts",
			},
			[]string{"owner", "status"},
		),
		flushedItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quivigo_flushed_items_total",
				Help: "Total number of mutations persisted by successful flushes",
			},
			[]string{"owner"},
		),
		flushDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quivigo_flush_duration_seconds",
				Help:    "Duration of flush attempts in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"owner"},
		),
		searchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quivigo_search_total",
				Help: "Total number of searches",
			},
			[]string{"owner", "status"},
		),
		searchSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quivigo_search_duration_seconds",
				Help:    "Duration of searches in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"owner"},
		),
		loadTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quivigo_load_total",
				Help: "Total number of snapshot loads from the blob store",
			},
			[]string{"owner", "status"},
		),
		loadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quivigo_load_duration_seconds",
				Help:    "Duration of snapshot loads in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"owner"},
		),
		evictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quivigo_evictions_total",
				Help: "Total number of idle owners evicted from the cache",
			},
			[]string{"owner"},
		),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (c *Collector) RecordQueue(owner string, err error) {
	c.queueTotal.WithLabelValues(owner, status(err)).Inc()
}

func (c *Collector) RecordFlush(owner string, applied int, duration time.Duration, err error) {
	c.flushTotal.WithLabelValues(owner, status(err)).Inc()
	c.flushDuration.WithLabelValues(owner).Observe(duration.Seconds())
	if err == nil {
		c.flushedItems.WithLabelValues(owner).Add(float64(applied))
	}
}

func (c *Collector) RecordSearch(owner string, _ int, duration time.Duration, err error) {
	c.searchTotal.WithLabelValues(owner, status(err)).Inc()
	c.searchSeconds.WithLabelValues(owner).Observe(duration.Seconds())
}

func (c *Collector) RecordLoad(owner string, duration time.Duration, err error) {
	c.loadTotal.WithLabelValues(owner, status(err)).Inc()
	c.loadDuration.WithLabelValues(owner).Observe(duration.Seconds())
}

func (c *Collector) RecordEviction(owner string) {
	c.evictions.WithLabelValues(owner).Inc()
}
