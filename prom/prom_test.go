package prom

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quivigo/quivigo/engine"
)

var _ engine.MetricsCollector = (*Collector)(nil)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordQueue("tenant-a", nil)
	c.RecordQueue("tenant-a", errors.New("boom"))
	c.RecordFlush("tenant-a", 5, 10*time.Millisecond, nil)
	c.RecordFlush("tenant-a", 3, 10*time.Millisecond, errors.New("boom"))
	c.RecordSearch("tenant-a", 10, time.Millisecond, nil)
	c.RecordLoad("tenant-a", time.Millisecond, nil)
	c.RecordEviction("tenant-a")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.queueTotal.WithLabelValues("tenant-a", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.queueTotal.WithLabelValues("tenant-a", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.flushTotal.WithLabelValues("tenant-a", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.flushTotal.WithLabelValues("tenant-a", "error")))

	// Only successful flushes count their items.
	assert.Equal(t, 5.0, testutil.ToFloat64(c.flushedItems.WithLabelValues("tenant-a")))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.searchTotal.WithLabelValues("tenant-a", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.loadTotal.WithLabelValues("tenant-a", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.evictions.WithLabelValues("tenant-a")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
