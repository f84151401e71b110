// Package testutil provides deterministic helpers for tests and benchmarks:
// a seeded thread-safe RNG, exact brute-force search, and recall scoring.
package testutil

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/quivigo/quivigo/distance"
)

// RNG is a seeded, thread-safe random number generator.
type RNG struct {
	mu   sync.Mutex
	rand *rand.Rand
	seed int64
}

// NewRNG creates an RNG with the given seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset rewinds the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewSource(r.seed))
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Float32 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// FillUniform fills dst with random values in [0, 1). It locks once per
// call, so prefer it over calling Float32 in a loop.
func (r *RNG) FillUniform(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float32()
	}
}

// Vectors generates n random vectors of the given dimension, keyed 0..n-1.
func (r *RNG) Vectors(n, dim int) map[uint64][]float32 {
	out := make(map[uint64][]float32, n)
	for i := 0; i < n; i++ {
		v := make([]float32, dim)
		r.FillUniform(v)
		out[uint64(i)] = v
	}
	return out
}

// Neighbor is one exact nearest-neighbor result.
type Neighbor struct {
	ID       uint64
	Distance float32
}

// BruteForceSearch returns the exact k nearest neighbors of query under the
// given distance function, sorted ascending. Ties break on id for
// determinism.
func BruteForceSearch(vectors map[uint64][]float32, query []float32, k int, distFunc distance.Func) []Neighbor {
	all := make([]Neighbor, 0, len(vectors))
	for id, v := range vectors {
		all = append(all, Neighbor{ID: id, Distance: distFunc(query, v)})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Distance != all[j].Distance {
			return all[i].Distance < all[j].Distance
		}
		return all[i].ID < all[j].ID
	})
	if k < len(all) {
		all = all[:k]
	}
	return all
}

// ComputeRecall returns the fraction of exact neighbor ids present in got.
func ComputeRecall(exact []Neighbor, got []uint64) float64 {
	if len(exact) == 0 {
		return 1
	}
	present := make(map[uint64]struct{}, len(got))
	for _, id := range got {
		present[id] = struct{}{}
	}
	hits := 0
	for _, n := range exact {
		if _, ok := present[n.ID]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(exact))
}
