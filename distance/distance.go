package distance

import (
	"fmt"
	"math"

	"github.com/viterin/vek/vek32"
)

// Metric identifies a distance metric.
type Metric int

const (
	MetricCosine Metric = iota
	MetricEuclidean
	MetricManhattan
)

func (m Metric) String() string {
	switch m {
	case MetricCosine:
		return "cosine"
	case MetricEuclidean:
		return "euclidean"
	case MetricManhattan:
		return "manhattan"
	default:
		return fmt.Sprintf("unknown(%d)", m)
	}
}

// MetricByName returns the metric with the given stable name.
// Names match Metric.String and are used in persisted snapshots.
func MetricByName(name string) (Metric, bool) {
	switch name {
	case "cosine":
		return MetricCosine, true
	case "euclidean":
		return MetricEuclidean, true
	case "manhattan":
		return MetricManhattan, true
	default:
		return 0, false
	}
}

// Func computes the distance between two equal-length vectors.
// Smaller values mean closer.
type Func func(a, b []float32) float32

// Provider returns the distance function for the given metric.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricCosine:
		return Cosine, nil
	case MetricEuclidean:
		return Euclidean, nil
	case MetricManhattan:
		return Manhattan, nil
	default:
		return nil, fmt.Errorf("distance: unsupported metric: %v", m)
	}
}

// Dot returns the dot product of two vectors.
func Dot(a, b []float32) float32 {
	return vek32.Dot(a, b)
}

// Magnitude returns the L2 norm of v.
func Magnitude(v []float32) float32 {
	return float32(math.Sqrt(float64(vek32.Dot(v, v))))
}

// CosineSimilarity returns the cosine similarity of two vectors.
// If either vector has zero norm, the similarity is defined as 0.
func CosineSimilarity(a, b []float32) float32 {
	magA := Magnitude(a)
	magB := Magnitude(b)
	if magA == 0 || magB == 0 {
		return 0
	}
	return vek32.Dot(a, b) / (magA * magB)
}

// Cosine returns the cosine distance, 1 - CosineSimilarity.
// Zero-norm inputs yield a distance of 1.
func Cosine(a, b []float32) float32 {
	return 1 - CosineSimilarity(a, b)
}

// Euclidean returns the L2 distance between two vectors.
func Euclidean(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

// Manhattan returns the L1 distance between two vectors.
func Manhattan(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return float32(sum)
}
