package hnsw

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quivigo/quivigo/distance"
)

func seeded(seed int64) func(o *Options) {
	return func(o *Options) {
		o.RandomSeed = &seed
	}
}

func newTestIndex(t *testing.T, dim int, optFns ...func(o *Options)) *Index {
	t.Helper()
	fns := append([]func(o *Options){seeded(42)}, optFns...)
	h, err := New(dim, fns...)
	require.NoError(t, err)
	return h
}

func TestNewValidation(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)

	_, err = New(-3)
	assert.Error(t, err)

	h, err := New(4)
	require.NoError(t, err)
	assert.Equal(t, 4, h.Dimension())
	assert.Equal(t, distance.MetricCosine, h.Metric())
}

func TestInsertDimensionMismatch(t *testing.T) {
	h := newTestIndex(t, 4)

	err := h.Insert(1, []float32{1, 2, 3})
	require.Error(t, err)

	var mismatch *ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 4, mismatch.Expected)
	assert.Equal(t, 3, mismatch.Actual)
}

func TestSearchEmptyIndex(t *testing.T) {
	h := newTestIndex(t, 4)

	results, err := h.SearchKNN([]float32{1, 0, 0, 0}, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchDimensionMismatch(t *testing.T) {
	h := newTestIndex(t, 4)
	require.NoError(t, h.Insert(1, []float32{1, 0, 0, 0}))

	_, err := h.SearchKNN([]float32{1, 0}, 1, 0)
	var mismatch *ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)
}

func TestSearchInvalidK(t *testing.T) {
	h := newTestIndex(t, 2)

	_, err := h.SearchKNN([]float32{1, 0}, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidK)

	_, err = h.SearchKNN([]float32{1, 0}, -1, 0)
	assert.ErrorIs(t, err, ErrInvalidK)
}

func TestConnectionsRespectNodeLevels(t *testing.T) {
	h := newTestIndex(t, 4, func(o *Options) { o.M = 4 })

	// Enough inserts for several entry-point promotions, so nodes arrive
	// both above and below the current top level.
	rng := rand.New(rand.NewSource(7))
	for i := uint64(0); i < 300; i++ {
		v := make([]float32, 4)
		for j := range v {
			v[j] = rng.Float32()
		}
		require.NoError(t, h.Insert(i, v))
	}

	// An edge at layer l may only belong to a node that is a member of
	// layer l; a promoted entry point must not hand its predecessor edges
	// above its own level.
	for id, node := range h.nodes {
		for l, conns := range node.Connections {
			if len(conns) == 0 {
				continue
			}
			assert.LessOrEqual(t, l, node.Level, "node %d has edges above its level", id)
			for _, c := range conns {
				neighbor, ok := h.nodes[c]
				if !ok {
					continue
				}
				assert.GreaterOrEqual(t, neighbor.Level, l, "node %d links to %d at layer %d above its level", id, c, l)
			}
		}
	}
}

func TestCosineScenario(t *testing.T) {
	h := newTestIndex(t, 4)

	vectors := map[uint64][]float32{
		1: {1, 0, 0, 0},
		2: {0, 1, 0, 0},
		3: {0, 0, 1, 0},
		4: {0, 0, 0, 1},
		5: {0.9, 0.1, 0, 0},
	}
	for id, v := range vectors {
		require.NoError(t, h.Insert(id, v))
	}

	results, err := h.SearchKNN([]float32{1, 0, 0, 0}, 2, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, uint64(1), results[0].ID)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-6)
	assert.Equal(t, uint64(5), results[1].ID)
	assert.Less(t, results[0].Distance, results[1].Distance)
}

func TestSelfRetrieval(t *testing.T) {
	h := newTestIndex(t, 8, func(o *Options) {
		o.Metric = distance.MetricEuclidean
	})

	rng := rand.New(rand.NewSource(7))
	vectors := make(map[uint64][]float32, 200)
	for i := uint64(0); i < 200; i++ {
		v := make([]float32, 8)
		for j := range v {
			v[j] = rng.Float32()
		}
		vectors[i] = v
		require.NoError(t, h.Insert(i, v))
	}

	// Every indexed vector must find itself at distance zero.
	for id, v := range vectors {
		results, err := h.SearchKNN(v, 1, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, id, results[0].ID, "vector %d did not retrieve itself", id)
		assert.InDelta(t, 0.0, results[0].Distance, 1e-5)
	}
}

func TestResultsSortedAscending(t *testing.T) {
	h := newTestIndex(t, 4, func(o *Options) {
		o.Metric = distance.MetricManhattan
	})

	rng := rand.New(rand.NewSource(3))
	for i := uint64(0); i < 100; i++ {
		v := make([]float32, 4)
		for j := range v {
			v[j] = rng.Float32() * 10
		}
		require.NoError(t, h.Insert(i, v))
	}

	results, err := h.SearchKNN([]float32{5, 5, 5, 5}, 10, 64)
	require.NoError(t, err)
	require.Len(t, results, 10)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}
}

func TestKLargerThanIndex(t *testing.T) {
	h := newTestIndex(t, 2)
	require.NoError(t, h.Insert(1, []float32{1, 0}))
	require.NoError(t, h.Insert(2, []float32{0, 1}))

	results, err := h.SearchKNN([]float32{1, 0}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestDeleteTombstones(t *testing.T) {
	h := newTestIndex(t, 2, func(o *Options) {
		o.Metric = distance.MetricEuclidean
	})
	require.NoError(t, h.Insert(1, []float32{0, 0}))
	require.NoError(t, h.Insert(2, []float32{1, 0}))
	require.NoError(t, h.Insert(3, []float32{2, 0}))
	assert.Equal(t, 3, h.Len())

	assert.True(t, h.Delete(2))
	assert.False(t, h.Delete(2), "double delete must be a no-op")
	assert.False(t, h.Delete(99), "deleting an unknown id must be a no-op")
	assert.Equal(t, 2, h.Len())
	assert.False(t, h.Contains(2))

	results, err := h.SearchKNN([]float32{1, 0}, 3, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NotEqual(t, uint64(2), r.ID)
	}
}

func TestInsertOverwritesExistingID(t *testing.T) {
	h := newTestIndex(t, 2, func(o *Options) {
		o.Metric = distance.MetricEuclidean
	})
	require.NoError(t, h.Insert(1, []float32{0, 0}))
	require.NoError(t, h.Insert(2, []float32{5, 5}))

	require.NoError(t, h.Insert(1, []float32{10, 10}))
	assert.Equal(t, 2, h.Len())

	results, err := h.SearchKNN([]float32{10, 10}, 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(1), results[0].ID)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-5)
}

func TestOverwriteRevivesTombstonedID(t *testing.T) {
	h := newTestIndex(t, 2, func(o *Options) {
		o.Metric = distance.MetricEuclidean
	})
	require.NoError(t, h.Insert(1, []float32{0, 0}))
	require.True(t, h.Delete(1))
	assert.Equal(t, 0, h.Len())

	require.NoError(t, h.Insert(1, []float32{3, 4}))
	assert.Equal(t, 1, h.Len())
	assert.True(t, h.Contains(1))

	results, err := h.SearchKNN([]float32{3, 4}, 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(1), results[0].ID)
}

func TestSeededDeterminism(t *testing.T) {
	build := func() *Index {
		h := newTestIndex(t, 4)
		rng := rand.New(rand.NewSource(11))
		for i := uint64(0); i < 50; i++ {
			v := make([]float32, 4)
			for j := range v {
				v[j] = rng.Float32()
			}
			if err := h.Insert(i, v); err != nil {
				t.Fatal(err)
			}
		}
		return h
	}

	a, b := build(), build()
	query := []float32{0.5, 0.5, 0.5, 0.5}

	ra, err := a.SearchKNN(query, 10, 0)
	require.NoError(t, err)
	rb, err := b.SearchKNN(query, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, ra, rb)
}

func TestSnapshotRoundTrip(t *testing.T) {
	h := newTestIndex(t, 4, func(o *Options) {
		o.Metric = distance.MetricEuclidean
	})

	rng := rand.New(rand.NewSource(5))
	for i := uint64(0); i < 100; i++ {
		v := make([]float32, 4)
		for j := range v {
			v[j] = rng.Float32()
		}
		require.NoError(t, h.Insert(i, v))
	}
	require.True(t, h.Delete(7))

	snap, err := h.Snapshot()
	require.NoError(t, err)

	restored, err := FromSnapshot(snap)
	require.NoError(t, err)

	assert.Equal(t, h.Len(), restored.Len())
	assert.Equal(t, h.Dimension(), restored.Dimension())
	assert.Equal(t, h.Metric(), restored.Metric())
	assert.False(t, restored.Contains(7))

	query := []float32{0.5, 0.5, 0.5, 0.5}
	want, err := h.SearchKNN(query, 10, 0)
	require.NoError(t, err)
	got, err := restored.SearchKNN(query, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFromSnapshotUnknownMetric(t *testing.T) {
	_, err := FromSnapshot(&Snapshot{Dimension: 2, M: 8, Metric: "hamming"})
	assert.Error(t, err)
}

func TestCloneIsIndependent(t *testing.T) {
	h := newTestIndex(t, 2, func(o *Options) {
		o.Metric = distance.MetricEuclidean
	})
	require.NoError(t, h.Insert(1, []float32{0, 0}))
	require.NoError(t, h.Insert(2, []float32{1, 1}))

	c := h.Clone()
	require.NoError(t, c.Insert(3, []float32{2, 2}))
	require.True(t, c.Delete(1))

	assert.Equal(t, 2, h.Len())
	assert.True(t, h.Contains(1))
	assert.False(t, h.Contains(3))
	assert.Equal(t, 2, c.Len())
}

func TestCompactedDropsTombstones(t *testing.T) {
	h := newTestIndex(t, 2, func(o *Options) {
		o.Metric = distance.MetricEuclidean
	})
	for i := uint64(0); i < 20; i++ {
		require.NoError(t, h.Insert(i, []float32{float32(i), 0}))
	}
	for i := uint64(0); i < 10; i++ {
		require.True(t, h.Delete(i))
	}

	c, err := h.Compacted()
	require.NoError(t, err)

	assert.Equal(t, 10, c.Len())
	assert.Equal(t, 0, c.Stats().Tombstoned)
	for i := uint64(0); i < 10; i++ {
		assert.False(t, c.Contains(i))
	}
	for i := uint64(10); i < 20; i++ {
		assert.True(t, c.Contains(i))
	}

	results, err := c.SearchKNN([]float32{15, 0}, 3, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, uint64(15), results[0].ID)
}

func TestStats(t *testing.T) {
	h := newTestIndex(t, 2)
	require.NoError(t, h.Insert(1, []float32{1, 0}))
	require.NoError(t, h.Insert(2, []float32{0, 1}))
	require.True(t, h.Delete(2))

	s := h.Stats()
	assert.Equal(t, 1, s.Size)
	assert.Equal(t, 1, s.Tombstoned)
	assert.GreaterOrEqual(t, s.MaxLevel, 0)
	require.NotEmpty(t, s.LayerSizes)
	assert.Equal(t, 2, s.LayerSizes[0])
}

func TestRecallAgainstBruteForce(t *testing.T) {
	const (
		n   = 500
		dim = 16
		k   = 10
	)

	h := newTestIndex(t, dim, func(o *Options) {
		o.Metric = distance.MetricEuclidean
		o.EFConstruction = 200
	})

	rng := rand.New(rand.NewSource(13))
	vectors := make([][]float32, n)
	for i := 0; i < n; i++ {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()
		}
		vectors[i] = v
		require.NoError(t, h.Insert(uint64(i), v))
	}

	var hits, total int
	for q := 0; q < 20; q++ {
		query := make([]float32, dim)
		for j := range query {
			query[j] = rng.Float32()
		}

		exact := bruteForce(vectors, query, k)
		approx, err := h.SearchKNN(query, k, 200)
		require.NoError(t, err)

		got := make(map[uint64]struct{}, len(approx))
		for _, r := range approx {
			got[r.ID] = struct{}{}
		}
		for _, id := range exact {
			if _, ok := got[id]; ok {
				hits++
			}
			total++
		}
	}

	recall := float64(hits) / float64(total)
	assert.Greater(t, recall, 0.85, fmt.Sprintf("recall %.3f too low", recall))
}

func bruteForce(vectors [][]float32, query []float32, k int) []uint64 {
	type pair struct {
		id   uint64
		dist float32
	}
	pairs := make([]pair, len(vectors))
	for i, v := range vectors {
		pairs[i] = pair{id: uint64(i), dist: distance.Euclidean(query, v)}
	}
	for i := 0; i < k; i++ {
		best := i
		for j := i + 1; j < len(pairs); j++ {
			if pairs[j].dist < pairs[best].dist {
				best = j
			}
		}
		pairs[i], pairs[best] = pairs[best], pairs[i]
	}
	out := make([]uint64, k)
	for i := 0; i < k; i++ {
		out[i] = pairs[i].id
	}
	return out
}
