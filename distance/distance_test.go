package distance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	a := []float32{1, 0, 0, 0}
	b := []float32{0, 1, 0, 0}

	assert.InDelta(t, 0.0, Cosine(a, a), 1e-6)
	assert.InDelta(t, 1.0, Cosine(a, b), 1e-6)

	// Parallel vectors of different magnitude are still identical in direction.
	assert.InDelta(t, 0.0, Cosine([]float32{2, 2}, []float32{4, 4}), 1e-6)
}

func TestCosineZeroNorm(t *testing.T) {
	zero := []float32{0, 0, 0}
	v := []float32{1, 2, 3}

	assert.Equal(t, float32(0), CosineSimilarity(zero, v))
	assert.Equal(t, float32(1), Cosine(zero, v))
	assert.Equal(t, float32(1), Cosine(zero, zero))
}

func TestEuclidean(t *testing.T) {
	assert.InDelta(t, 5.0, Euclidean([]float32{0, 0}, []float32{3, 4}), 1e-6)
	assert.InDelta(t, 0.0, Euclidean([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-6)
}

func TestManhattan(t *testing.T) {
	assert.InDelta(t, 7.0, Manhattan([]float32{0, 0}, []float32{3, 4}), 1e-6)
	assert.InDelta(t, 2.0, Manhattan([]float32{1, -1}, []float32{0, 0}), 1e-6)
}

func TestProvider(t *testing.T) {
	for _, m := range []Metric{MetricCosine, MetricEuclidean, MetricManhattan} {
		fn, err := Provider(m)
		assert.NoError(t, err)
		assert.NotNil(t, fn)
	}

	_, err := Provider(Metric(42))
	assert.Error(t, err)
}

func TestMetricByName(t *testing.T) {
	for _, m := range []Metric{MetricCosine, MetricEuclidean, MetricManhattan} {
		got, ok := MetricByName(m.String())
		assert.True(t, ok)
		assert.Equal(t, m, got)
	}

	_, ok := MetricByName("chebyshev")
	assert.False(t, ok)
}
